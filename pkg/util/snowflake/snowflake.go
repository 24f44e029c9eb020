package snowflake

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"linguachat/internal/config"
)

var (
	node     *snowflake.Node
	nodeOnce sync.Once
)

// Init 初始化雪花算法节点
// 应在程序启动时调用一次
func Init() {
	nodeOnce.Do(func() {
		machineID := config.GetConfig().SnowflakeConfig.MachineID
		if machineID < 0 || machineID > 1023 {
			machineID = 1 // 默认节点 ID
			zap.L().Warn("Invalid MachineID in config, using default value 1")
		}
		var err error
		node, err = snowflake.NewNode(machineID)
		if err != nil {
			zap.L().Fatal("Failed to initialize snowflake node", zap.Error(err))
		}
	})
}

// GenerateID 生成雪花 ID (int64)
// 消息主键使用 int64，保证同一毫秒内的消息也能按 ID 排序
func GenerateID() int64 {
	if node == nil {
		Init()
	}
	return node.Generate().Int64()
}
