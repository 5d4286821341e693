package model

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ConversationListResponse 对话列表响应
type ConversationListResponse struct {
	Conversations []*Conversation `json:"conversations"`
	Total         int             `json:"total"`
}
