package respond

// ChatRespond 会话视图，作为会话表变更事件的载荷
type ChatRespond struct {
	ChatId         string `json:"chat_id"`
	ParticipantAId string `json:"participant_a_id"`
	ParticipantBId string `json:"participant_b_id"`
	LastMessageAt  string `json:"last_message_at,omitempty"`
}
