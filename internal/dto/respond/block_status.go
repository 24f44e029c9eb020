package respond

// BlockStatus 拉黑检查结果
// 双向都拉黑时两个字段同时为 true，此时"我拉黑了对方"优先生效
type BlockStatus struct {
	BlockedBySelf  bool `json:"blocked_by_self"`
	BlockedByOther bool `json:"blocked_by_other"`
}
