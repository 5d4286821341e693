package ctxutil

import "context"

// sessionIDKeyType 使用私有类型避免与其他 context key 冲突
type sessionIDKeyType struct{}

var sessionIDKey = sessionIDKeyType{}

// WithSessionID 将会话标识注入到 context 中
// 会话标识由 session 中间件解析（Bearer Token 的 user_id 或匿名 cookie）
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionID 从 context 中解析会话标识
func GetSessionID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v := ctx.Value(sessionIDKey)
	id, ok := v.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
