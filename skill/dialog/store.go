package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/skillflow/internal/cache"
	"github.com/BaSui01/skillflow/internal/metrics"
)

// ErrNoInstance 会话中没有进行中的 Skill 对话
var ErrNoInstance = errors.New("dialog: no skill dialog for conversation")

// StateStore 按会话 ID 保存 Skill 对话实例
type StateStore interface {
	// Load 返回会话的实例，不存在时返回 ErrNoInstance
	Load(ctx context.Context, conversationID string) (*Instance, error)
	Save(ctx context.Context, conversationID string, inst *Instance) error
	Delete(ctx context.Context, conversationID string) error
}

// =============================================================================
// 内存存储
// =============================================================================

type memoryEntry struct {
	inst      Instance
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore 进程内存储。ttl 为 0 时实例不过期。
// 过期实例在 Load 时移除，Save 每隔一个 ttl 顺带清理一次。
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	nextSweep time.Time
	metrics   *metrics.Collector
	now       func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(ttl time.Duration, collector *metrics.Collector) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		metrics: collector,
		now:     time.Now,
	}
}

// Load 实现 StateStore
func (s *MemoryStore) Load(_ context.Context, conversationID string) (*Instance, error) {
	s.mu.RLock()
	e, ok := s.entries[conversationID]
	s.mu.RUnlock()

	if ok && e.expired(s.now()) {
		// 释放读锁后可能有新的 Save，持写锁重新判定
		s.mu.Lock()
		e, ok = s.entries[conversationID]
		if ok && e.expired(s.now()) {
			delete(s.entries, conversationID)
			ok = false
		}
		s.mu.Unlock()
	}
	s.metrics.RecordStateLookup("memory", ok)
	if !ok {
		return nil, ErrNoInstance
	}
	inst := e.inst
	if inst.PendingTokenRequest != nil {
		inst.PendingTokenRequest = inst.PendingTokenRequest.Clone()
	}
	return &inst, nil
}

// Save 实现 StateStore
func (s *MemoryStore) Save(_ context.Context, conversationID string, inst *Instance) error {
	e := memoryEntry{inst: *inst}
	if inst.PendingTokenRequest != nil {
		e.inst.PendingTokenRequest = inst.PendingTokenRequest.Clone()
	}
	now := s.now()
	if s.ttl > 0 {
		e.expiresAt = now.Add(s.ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl > 0 && !now.Before(s.nextSweep) {
		s.sweepLocked(now)
		s.nextSweep = now.Add(s.ttl)
	}
	s.entries[conversationID] = e
	return nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for id, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, id)
		}
	}
}

// Delete 实现 StateStore
func (s *MemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	delete(s.entries, conversationID)
	s.mu.Unlock()
	return nil
}

// Len 返回保存的实例数（包括尚未清理的过期实例）
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// =============================================================================
// Redis 存储
// =============================================================================

const redisKeyPrefix = "dialog:"

// RedisStore 通过 cache.Manager 在多个父 Bot 实例之间共享对话状态
type RedisStore struct {
	cache   *cache.Manager
	ttl     time.Duration
	metrics *metrics.Collector
}

// NewRedisStore 创建 Redis 存储。ttl 为 0 时使用 Manager 的默认过期时间。
func NewRedisStore(manager *cache.Manager, ttl time.Duration, collector *metrics.Collector) *RedisStore {
	return &RedisStore{cache: manager, ttl: ttl, metrics: collector}
}

// Load 实现 StateStore
func (s *RedisStore) Load(ctx context.Context, conversationID string) (*Instance, error) {
	var inst Instance
	err := s.cache.GetJSON(ctx, redisKeyPrefix+conversationID, &inst)
	if cache.IsCacheMiss(err) {
		s.metrics.RecordStateLookup("redis", false)
		return nil, ErrNoInstance
	}
	if err != nil {
		return nil, fmt.Errorf("load dialog state: %w", err)
	}
	s.metrics.RecordStateLookup("redis", true)
	return &inst, nil
}

// Save 实现 StateStore
func (s *RedisStore) Save(ctx context.Context, conversationID string, inst *Instance) error {
	if err := s.cache.SetJSON(ctx, redisKeyPrefix+conversationID, inst, s.ttl); err != nil {
		return fmt.Errorf("save dialog state: %w", err)
	}
	return nil
}

// Delete 实现 StateStore
func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.cache.Delete(ctx, redisKeyPrefix+conversationID); err != nil {
		return fmt.Errorf("delete dialog state: %w", err)
	}
	return nil
}
