package model

// GenerateRequest 发起一个生成轮次
type GenerateRequest struct {
	Inputs     string `json:"inputs" binding:"required"`
	ID         string `json:"id,omitempty" binding:"omitempty,uuid"`
	ResponseID string `json:"response_id,omitempty" binding:"omitempty,uuid"`
	IsRetry    bool   `json:"is_retry,omitempty"`
	WebSearch  bool   `json:"web_search,omitempty"`
}

// CreateConversationRequest 创建对话请求
type CreateConversationRequest struct {
	Model string `json:"model,omitempty"`
	Title string `json:"title,omitempty" binding:"omitempty,max=100"`
}

// RenameConversationRequest 重命名对话请求
type RenameConversationRequest struct {
	Title string `json:"title" binding:"required,min=1,max=100"`
}
