// Package repository 提供数据访问层的接口与实现
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
package repository

import (
	"errors"
	"strings"

	"linguachat/pkg/errorx"

	"gorm.io/gorm"
)

// wrapDBError 包装数据库错误
// 根据错误类型返回不同的错误码：
//   - ErrRecordNotFound -> CodeNotFound
//   - 其他错误 -> CodeDBError
func wrapDBError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.Wrap(err, errorx.CodeNotFound, msg)
	}
	return errorx.Wrap(err, errorx.CodeDBError, msg)
}

// wrapDBErrorf 包装数据库错误（支持格式化消息）
func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.Wrapf(err, errorx.CodeNotFound, format, args...)
	}
	return errorx.Wrapf(err, errorx.CodeDBError, format, args...)
}

// IsDuplicateKey 判断错误是否为唯一约束冲突
// 会话解析依赖此判断收敛并发创建：两端同时发起首次聊天时，
// 后写入的一方收到唯一键冲突后重新查询已有会话而不是报错
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// 兜底：部分驱动未开启错误翻译
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
