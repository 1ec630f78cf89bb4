package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RiskStore 累加每位用户历次消息的毒性得分。
type RiskStore interface {
	Add(ctx context.Context, user string, toxicity float64) (float64, error)
	Get(ctx context.Context, user string) (float64, error)
}

// MemoryRiskStore 只在当前进程内累计。
type MemoryRiskStore struct {
	mu    sync.Mutex
	risks map[string]float64
}

func NewMemoryRiskStore() *MemoryRiskStore {
	return &MemoryRiskStore{risks: make(map[string]float64)}
}

func (s *MemoryRiskStore) Add(_ context.Context, user string, toxicity float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risks[user] += toxicity
	return s.risks[user], nil
}

func (s *MemoryRiskStore) Get(_ context.Context, user string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.risks[user], nil
}

// RiskHashKey 是 Redis 中保存风险值的 hash。
const RiskHashKey = "user_risk"

// RedisRiskStore 把风险值存到 Redis hash，多实例共享。
type RedisRiskStore struct {
	client *redis.Client
}

func NewRedisRiskStore(client *redis.Client) *RedisRiskStore {
	return &RedisRiskStore{client: client}
}

func (s *RedisRiskStore) Add(ctx context.Context, user string, toxicity float64) (float64, error) {
	total, err := s.client.HIncrByFloat(ctx, RiskHashKey, user, toxicity).Result()
	if err != nil {
		return 0, fmt.Errorf("incr risk for %s: %w", user, err)
	}
	return total, nil
}

func (s *RedisRiskStore) Get(ctx context.Context, user string) (float64, error) {
	total, err := s.client.HGet(ctx, RiskHashKey, user).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get risk for %s: %w", user, err)
	}
	return total, nil
}
