package logger

import (
	"fmt"
	"os"

	"linguachat/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init 初始化 Logger
// 为什么：日志组件需要根据配置（如文件路径、级别）进行初始化，才能正确输出日志
func Init(cfg *config.LogConfig, mode string) (err error) {
	if cfg == nil {
		return fmt.Errorf("logger.Init received nil config")
	}

	// 设置默认值
	if cfg.FileName == "" {
		cfg.FileName = cfg.LogPath + "/app.log"
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 100
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 30
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}

	// 获取日志写入器，支持日志切割
	writeSyncer := getLogWriter(
		cfg.FileName,
		cfg.MaxSize,
		cfg.MaxBackups,
		cfg.MaxAge,
	)
	// 获取日志编码器，决定日志的输出格式（如 JSON）
	encoder := getEncoder()

	var level zapcore.Level
	// 将配置文件中的字符串（如 "info", "debug"）转换成 zap 日志库能识别的内部类型
	if err = level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return
	}
	var core zapcore.Core
	if mode == "dev" {
		// 开发模式 (dev)，日志输出到控制台和文件
		// 为什么：开发时看 JSON 格式比较累，Console 格式更直观；文件用于追溯
		consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		fileCore := zapcore.NewCore(encoder, writeSyncer, level)
		consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), zapcore.DebugLevel)
		core = zapcore.NewTee(fileCore, consoleCore)
	} else {
		// 生产模式 (release)，日志只输出到文件
		// 为什么：生产环境必须结构化（JSON）以便日志收集系统（如 ELK）解析
		core = zapcore.NewCore(encoder, writeSyncer, level)
	}
	// zap.AddCaller() 会在日志中添加调用者的文件名和行号，方便定位代码
	lg := zap.New(core, zap.AddCaller())
	// 替换全局的 Logger，后续在其他包中可以直接使用 zap.L() 调用
	zap.ReplaceGlobals(lg)
	return
}

// getLogWriter 获取日志写入器
// 为什么：使用 lumberjack 库实现日志切割（Log Rotation），防止单个日志文件过大占满磁盘
func getLogWriter(filename string, maxSize int, maxBackups int, maxAge int) zapcore.WriteSyncer {
	lumberjackLogger := &lumberjack.Logger{
		Filename:   filename,   // 日志文件路径
		MaxSize:    maxSize,    // 单个日志文件最大大小（MB）
		MaxBackups: maxBackups, // 保留旧日志文件的最大个数
		MaxAge:     maxAge,     // 保留旧日志文件的最大天数
	}
	return zapcore.AddSync(lumberjackLogger)
}

// getEncoder 获取日志编码器
// 为什么：配置日志的输出格式，这里使用 JSON 格式，适合机器解析
func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}
