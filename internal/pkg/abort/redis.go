package abort

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "abort:"
	// 条目只需要存活一个进行中的轮次，TTL 兜底防止泄漏
	entryTTL = 10 * time.Minute
)

// RedisStore 多实例部署时共享取消信号
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 取消信号存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Signal(ctx context.Context, conversationID string, at time.Time) error {
	return s.client.Set(ctx, keyPrefix+conversationID, at.UnixNano(), entryTTL).Err()
}

func (s *RedisStore) Last(ctx context.Context, conversationID string) (time.Time, bool) {
	val, err := s.client.Get(ctx, keyPrefix+conversationID).Result()
	if err != nil {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

func (s *RedisStore) Clear(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, keyPrefix+conversationID).Err()
}
