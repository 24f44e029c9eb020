// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找，敏感项可由 .env 覆盖
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName string `toml:"appName"` // 应用名称，用于日志标识等
	Mode    string `toml:"mode"`    // 运行模式："dev" 或 "release"
}

// MysqlConfig MySQL 数据库连接配置
type MysqlConfig struct {
	Host         string `toml:"host"`         // MySQL 服务器地址
	Port         int    `toml:"port"`         // MySQL 端口，默认 3306
	User         string `toml:"user"`         // 数据库用户名
	Password     string `toml:"password"`     // 数据库密码，可由 LINGUACHAT_MYSQL_PASSWORD 覆盖
	DatabaseName string `toml:"databaseName"` // 数据库名称
}

// RedisConfig Redis 连接配置，用于用户资料缓存
type RedisConfig struct {
	Host     string `toml:"host"`     // Redis 服务器地址
	Port     int    `toml:"port"`     // Redis 端口，默认 6379
	Password string `toml:"password"` // Redis 密码，可由 LINGUACHAT_REDIS_PASSWORD 覆盖
	Db       int    `toml:"db"`       // Redis 数据库编号，默认 0
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// FeedConfig 变更事件源配置
// feedMode 决定事件的传输方式："channel"（单机内存）、"kafka"、"websocket"
type FeedConfig struct {
	FeedMode    string        `toml:"feedMode"`    // 事件源模式
	HostPort    string        `toml:"hostPort"`    // Kafka 服务器地址，如 "localhost:9092"
	EventTopic  string        `toml:"eventTopic"`  // 变更事件主题
	Partition   int           `toml:"partition"`   // 分区数
	Timeout     time.Duration `toml:"timeout"`     // 超时时间
	RealtimeURL string        `toml:"realtimeUrl"` // websocket 模式下远端实时流地址
}

// BlobConfig 附件存储配置
// blobMode 决定附件落盘方式："local"（静态目录）或 "gridfs"（MongoDB GridFS）
type BlobConfig struct {
	BlobMode   string `toml:"blobMode"`   // 存储模式
	StaticPath string `toml:"staticPath"` // local 模式下的附件存储目录
	PublicBase string `toml:"publicBase"` // 对外访问的 URL 前缀
	MongoURI   string `toml:"mongoUri"`   // gridfs 模式下的 MongoDB 连接串
	MongoDB    string `toml:"mongoDb"`    // gridfs 模式下的数据库名
}

// JWTConfig JWT 认证配置，用于解析会话令牌
type JWTConfig struct {
	Secret string `toml:"secret"` // JWT 签名密钥，可由 LINGUACHAT_JWT_SECRET 覆盖
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 雪花算法节点 ID，范围 0-1023
}

// SyncConfig 同步上下文行为配置
type SyncConfig struct {
	PageSize        int           `toml:"pageSize"`        // 消息分页条数，0 则取默认值
	DebounceWindow  time.Duration `toml:"debounceWindow"`  // 列表刷新去抖窗口，0 则取默认值
	SearchDebounce  time.Duration `toml:"searchDebounce"`  // 搜索去抖窗口，0 则取默认值
	CacheWorkers    int           `toml:"cacheWorkers"`    // 异步任务 Worker 数量
	CacheBufferSize int           `toml:"cacheBufferSize"` // 异步任务通道缓冲大小
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`      // 主配置
	MysqlConfig     `toml:"mysqlConfig"`     // MySQL 配置
	RedisConfig     `toml:"redisConfig"`     // Redis 配置
	LogConfig       `toml:"logConfig"`       // 日志配置
	FeedConfig      `toml:"feedConfig"`      // 变更事件源配置
	BlobConfig      `toml:"blobConfig"`      // 附件存储配置
	JWTConfig       `toml:"jwtConfig"`       // JWT 配置
	SnowflakeConfig `toml:"snowflakeConfig"` // 雪花算法配置
	SyncConfig      `toml:"syncConfig"`      // 同步上下文配置
}

// config 全局配置单例，延迟加载
var config *Config

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个可用的配置文件即停止
func LoadConfig() error {
	// 候选配置文件路径（优先加载本地配置）
	paths := []string{
		"configs/config_local.toml",
		"configs/config.toml",
		"../../configs/config_local.toml",
		"../../configs/config.toml",
	}

	for _, path := range paths {
		if _, err := toml.DecodeFile(path, config); err == nil {
			applyEnvOverrides(config)
			return nil
		}
	}

	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// applyEnvOverrides 用环境变量覆盖敏感配置项
// 先尝试加载 .env 文件（不存在则忽略），再读取环境变量
func applyEnvOverrides(c *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("LINGUACHAT_MYSQL_PASSWORD"); v != "" {
		c.MysqlConfig.Password = v
	}
	if v := os.Getenv("LINGUACHAT_REDIS_PASSWORD"); v != "" {
		c.RedisConfig.Password = v
	}
	if v := os.Getenv("LINGUACHAT_JWT_SECRET"); v != "" {
		c.JWTConfig.Secret = v
	}
	if v := os.Getenv("LINGUACHAT_MONGO_URI"); v != "" {
		c.BlobConfig.MongoURI = v
	}
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件
func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig() // 忽略加载错误，使用默认值
	}
	return config
}
