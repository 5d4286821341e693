package id

import "github.com/google/uuid"

// New 生成新的消息/会话标识（UUID v4 字符串）
func New() string {
	return uuid.New().String()
}

// IsValid 验证标识是否为合法 UUID
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
