package constants

import "time"

const (
	CHANNEL_SIZE       = 100                    // 事件通道缓冲大小
	FILE_MAX_SIZE      = 50000                  // 附件最大大小 (KB)
	REDIS_TIMEOUT      = 1                      // redis 缓存过期时间 (分钟)
	MESSAGE_PAGE_SIZE  = 30                     // 消息分页默认条数
	ANCHOR_BEFORE_SIZE = 5                      // 锚点定位时向前补充的上下文条数
	DEBOUNCE_WINDOW    = 300 * time.Millisecond // 会话列表刷新去抖窗口
	SEARCH_DEBOUNCE    = 300 * time.Millisecond // 用户搜索去抖窗口
	TIME_LAYOUT        = "2006-01-02 15:04:05"  // 对外时间格式
)
