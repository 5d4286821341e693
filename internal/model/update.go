package model

// UpdateType MessageUpdate 的判别标记
type UpdateType string

const (
	UpdateTypeStatus      UpdateType = "status"
	UpdateTypeStream      UpdateType = "stream"
	UpdateTypeWebSearch   UpdateType = "webSearch"
	UpdateTypeFinalAnswer UpdateType = "finalAnswer"
	UpdateTypeError       UpdateType = "error"
)

// webSearch 更新的细分类型
const (
	WebSearchMessageUpdate  = "update"
	WebSearchMessageError   = "error"
	WebSearchMessageSources = "sources"
)

// 状态更新取值
const (
	StatusStarted = "started"
)

// MessageUpdate 轮次进行中推送给调用方的进度事件（封闭的 tagged union）
// Type 决定哪些字段有效：
//
//	status      → Status
//	stream      → Token
//	webSearch   → MessageType + Message (+ Args / Sources)
//	finalAnswer → Text
//	error       → Message
//
// stream 事件不落库，其余会累积在 assistant 消息的 updates 日志里
type MessageUpdate struct {
	Type UpdateType `bson:"type" json:"type"`

	Status      string            `bson:"status,omitempty" json:"status,omitempty"`
	Token       string            `bson:"token,omitempty" json:"token,omitempty"`
	MessageType string            `bson:"message_type,omitempty" json:"messageType,omitempty"`
	Message     string            `bson:"message,omitempty" json:"message,omitempty"`
	Args        []string          `bson:"args,omitempty" json:"args,omitempty"`
	Sources     []WebSearchSource `bson:"sources,omitempty" json:"sources,omitempty"`
	Text        string            `bson:"text,omitempty" json:"text,omitempty"`
}

// StatusUpdate 状态事件
func StatusUpdate(status string) MessageUpdate {
	return MessageUpdate{Type: UpdateTypeStatus, Status: status}
}

// StreamUpdate 单个生成片段
func StreamUpdate(token string) MessageUpdate {
	return MessageUpdate{Type: UpdateTypeStream, Token: token}
}

// FinalAnswerUpdate 轮次收尾事件，携带清理后的完整回答
func FinalAnswerUpdate(text string) MessageUpdate {
	return MessageUpdate{Type: UpdateTypeFinalAnswer, Text: text}
}

// ErrorUpdate 可恢复错误事件
func ErrorUpdate(message string) MessageUpdate {
	return MessageUpdate{Type: UpdateTypeError, Message: message}
}
