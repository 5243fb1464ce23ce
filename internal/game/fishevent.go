package game

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// FishEventStore 会话级鱼事件状态存储
// 以会话ID为键，每个会话同时至多一个待处理事件
// 事件只存在于进程内存中，带TTL，过期后按不存在处理并由后台清扫回收
type FishEventStore struct {
	mu      sync.RWMutex
	pending map[string]time.Time // 会话ID -> 开启时间
	ttl     time.Duration
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped sync.Once
	now     func() time.Time
}

// NewFishEventStore 创建鱼事件存储
func NewFishEventStore(ttl time.Duration, logger *zap.Logger) *FishEventStore {
	return &FishEventStore{
		pending: make(map[string]time.Time),
		ttl:     ttl,
		logger:  logger,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// Open 为会话开启鱼事件
// 已有未过期事件时跳过不覆盖，返回是否真正开启
func (s *FishEventStore) Open(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if openedAt, ok := s.pending[conversationID]; ok {
		if !s.expired(openedAt) {
			return false
		}
	}

	s.pending[conversationID] = s.now()
	return true
}

// IsPending 会话是否有未过期的待处理事件
func (s *FishEventStore) IsPending(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	openedAt, ok := s.pending[conversationID]
	return ok && !s.expired(openedAt)
}

// Claim 原子地取走会话的待处理事件
// 取走即占有：并发结算者中只有一个能成功，返回事件的开启时间
func (s *FishEventStore) Claim(conversationID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	openedAt, ok := s.pending[conversationID]
	if !ok {
		return time.Time{}, false
	}
	delete(s.pending, conversationID)
	if s.expired(openedAt) {
		return time.Time{}, false
	}
	return openedAt, true
}

// Restore 把已占有的事件按原开启时间放回，TTL不被刷新
func (s *FishEventStore) Restore(conversationID string, openedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[conversationID] = openedAt
}

// Consume 消耗会话的待处理事件，返回是否成功消耗
func (s *FishEventStore) Consume(conversationID string) bool {
	_, ok := s.Claim(conversationID)
	return ok
}

// StartSweeper 启动后台清扫，按TTL定期回收过期事件
func (s *FishEventStore) StartSweeper() {
	interval := s.ttl
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop 停止后台清扫
func (s *FishEventStore) Stop() {
	s.stopped.Do(func() {
		close(s.stopCh)
	})
}

// sweep 回收过期事件
func (s *FishEventStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, openedAt := range s.pending {
		if s.expired(openedAt) {
			delete(s.pending, id)
			removed++
		}
	}

	if removed > 0 && s.logger != nil {
		s.logger.Debug("清理过期鱼事件", zap.Int("count", removed))
	}
}

// expired 判断事件是否已过期，ttl≤0表示永不过期
func (s *FishEventStore) expired(openedAt time.Time) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(openedAt) > s.ttl
}
