package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 消息来源
const (
	MessageFromUser      = "user"
	MessageFromAssistant = "assistant"
)

// Conversation 对话实体，持久化的最小单元
// 一次生成轮次只会修改一个对话文档（追加或替换尾部消息）
type Conversation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	Title     string             `bson:"title" json:"title"`
	Model     string             `bson:"model" json:"model"`
	Messages  []Message          `bson:"messages" json:"messages"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Message 对话中的一条消息
// 持久化后不可变，唯一例外是正在流式写入的 assistant 消息的 content
type Message struct {
	ID        string          `bson:"id" json:"id"`
	From      string          `bson:"from" json:"from"`
	Content   string          `bson:"content" json:"content"`
	WebSearch *WebSearch      `bson:"web_search,omitempty" json:"webSearch,omitempty"`
	Updates   []MessageUpdate `bson:"updates,omitempty" json:"updates,omitempty"`
	CreatedAt time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updated_at"`
}

// PromptMessage 下发给推理后端的消息（裁剪后的 role + content）
type PromptMessage struct {
	From    string `json:"from"`
	Content string `json:"content"`
}

// WebSearch 一次联网搜索的结果，随 assistant 消息内嵌保存
// 编排器返回后不再修改
type WebSearch struct {
	Prompt         string            `bson:"prompt" json:"prompt"`
	SearchQuery    string            `bson:"search_query" json:"searchQuery"`
	Results        []WebSearchSource `bson:"results" json:"results"`
	Context        string            `bson:"context" json:"context"`
	ContextSources []WebSearchSource `bson:"context_sources" json:"contextSources"`
	CreatedAt      time.Time         `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time         `bson:"updated_at" json:"updatedAt"`
}

// WebSearchSource 搜索来源（organic result 的裁剪）
type WebSearchSource struct {
	Title    string `bson:"title" json:"title"`
	Link     string `bson:"link" json:"link"`
	Hostname string `bson:"hostname" json:"hostname"`
}
