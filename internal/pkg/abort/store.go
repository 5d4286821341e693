// Package abort 维护"停止生成"信号：conversation id → 取消时间戳。
// 轮次控制器在每个生成片段到达时轮询一次；时间戳晚于轮次开始时间
// 即视为取消。条目的生命周期只覆盖一次进行中的轮次，轮次结束后清除。
package abort

import (
	"context"
	"sync"
	"time"
)

// Store 取消信号存储
type Store interface {
	// Signal 记录一次取消请求
	Signal(ctx context.Context, conversationID string, at time.Time) error
	// Last 返回最近一次取消请求的时间戳
	Last(ctx context.Context, conversationID string) (time.Time, bool)
	// Clear 轮次结束后移除条目
	Clear(ctx context.Context, conversationID string) error
}

// MemoryStore 进程内实现（单实例部署和测试用）
type MemoryStore struct {
	mu      sync.RWMutex
	signals map[string]time.Time
}

// NewMemoryStore 创建进程内取消信号存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signals: make(map[string]time.Time)}
}

func (s *MemoryStore) Signal(_ context.Context, conversationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.signals[conversationID]; !ok || at.After(prev) {
		s.signals[conversationID] = at
	}
	return nil
}

func (s *MemoryStore) Last(_ context.Context, conversationID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.signals[conversationID]
	return at, ok
}

func (s *MemoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.signals, conversationID)
	return nil
}
