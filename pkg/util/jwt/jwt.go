package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 全局签名密钥，由 Init 函数初始化
var jwtSecret []byte

// Init 初始化 JWT 配置
func Init(secret string) {
	jwtSecret = []byte(secret)
}

// Claims 自定义 JWT 声明
// UserID 为认证系统的账号 ID，不是消息域的 profile ID，
// 使用前必须经过 user.Service.ResolveProfileId 转换
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken 生成会话令牌（用于测试和本地联调）
func GenerateToken(userID string, expiry time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "linguachat",
			Subject:   "access_token",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseToken 解析并验证 Token
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
