// Package mysql 提供数据访问层的初始化和全局数据库实例管理
// 负责建立 MySQL 连接、自动迁移表结构、初始化 Repository 层
package mysql

import (
	"fmt"

	"linguachat/internal/config"
	"linguachat/internal/dao/mysql/repository"
	"linguachat/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// GormDB 全局 GORM 数据库实例
var GormDB *gorm.DB

// Repos 全局 Repository 实例集合
// 聚合所有 Repository，供 Service 层通过依赖注入使用
var Repos *repository.Repositories

// Init 初始化数据库连接和 Repository 层
// 执行步骤：
//  1. 从配置读取 MySQL 连接信息
//  2. 构建 DSN 连接字符串
//  3. 使用 GORM 建立数据库连接（开启错误翻译，唯一键冲突可被识别）
//  4. 执行 AutoMigrate 自动迁移表结构
//  5. 初始化全局 Repository 实例
func Init() {
	conf := config.GetConfig()

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.MysqlConfig.User,
		conf.MysqlConfig.Password,
		conf.MysqlConfig.Host,
		conf.MysqlConfig.Port,
		conf.MysqlConfig.DatabaseName,
	)

	var err error
	GormDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		zap.L().Fatal(err.Error())
	}

	if err = AutoMigrate(GormDB); err != nil {
		zap.L().Fatal(err.Error())
	}

	Repos = repository.NewRepositories(GormDB)
}

// AutoMigrate 迁移消息域的全部表结构
// 独立导出：测试使用 sqlite 内存库时也走同一份迁移
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ChatUser{},      // 用户资料投影表
		&model.DirectChat{},    // 一对一会话表
		&model.DirectMessage{}, // 消息表
		&model.Attachment{},    // 附件表
		&model.UserBlock{},     // 拉黑关系表
	)
}
