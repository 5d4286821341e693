// Package ratelimit 按会话统计消息事件并执行配额。
// 统计在任何状态变更之前进行：超限的请求直接拒绝，不产生副作用。
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "msg_events:"
	// 事件计数的滚动窗口
	window = 24 * time.Hour
)

// Limiter 会话级消息配额
type Limiter struct {
	client *redis.Client
	limit  int64
}

// New 创建配额器，limit <= 0 表示不限制
func New(client *redis.Client, limit int64) *Limiter {
	return &Limiter{client: client, limit: limit}
}

// Record 记录一次消息事件并返回是否放行
// Redis 不可用时放行
func (l *Limiter) Record(ctx context.Context, sessionID string) (bool, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true, nil
	}

	key := keyPrefix + sessionID
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		_ = l.client.Expire(ctx, key, window).Err()
	}

	return count <= l.limit, nil
}
