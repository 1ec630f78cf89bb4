// Package presence tracks which users currently hold a realtime connection.
package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store counts realtime connections per user. Add and Remove are called once
// per connection; a user is online while at least one connection is open.
type Store interface {
	Add(ctx context.Context, user string) error
	Remove(ctx context.Context, user string) error
	List(ctx context.Context) ([]string, error)
}

// MemoryStore keeps the counts in process.
type MemoryStore struct {
	mu    sync.RWMutex
	conns map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conns: make(map[string]int)}
}

func (s *MemoryStore) Add(_ context.Context, user string) error {
	s.mu.Lock()
	s.conns[user]++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, user string) error {
	s.mu.Lock()
	if s.conns[user] <= 1 {
		delete(s.conns, user)
	} else {
		s.conns[user]--
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	users := make([]string, 0, len(s.conns))
	for user := range s.conns {
		users = append(users, user)
	}
	s.mu.RUnlock()

	sort.Strings(users)
	return users, nil
}

const (
	// OnlineUsersKey is the Redis set shared by every instance.
	OnlineUsersKey = "online_users"
	// OnlineConnsKey holds the open connection count per user across instances.
	OnlineConnsKey = "online_conns"
)

// KEYS[1] = online_users, KEYS[2] = online_conns, ARGV[1] = user
var (
	addScript = redis.NewScript(`
redis.call("HINCRBY", KEYS[2], ARGV[1], 1)
redis.call("SADD", KEYS[1], ARGV[1])
return 1
`)
	removeScript = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[2], ARGV[1], -1)
if n <= 0 then
	redis.call("HDEL", KEYS[2], ARGV[1])
	redis.call("SREM", KEYS[1], ARGV[1])
end
return n
`)
)

// RedisStore keeps the counts in Redis so a user stays online while any
// instance still holds one of their connections.
type RedisStore struct {
	client   *redis.Client
	usersKey string
	connsKey string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, usersKey: OnlineUsersKey, connsKey: OnlineConnsKey}
}

func (s *RedisStore) Add(ctx context.Context, user string) error {
	if err := addScript.Run(ctx, s.client, []string{s.usersKey, s.connsKey}, user).Err(); err != nil {
		return fmt.Errorf("mark %s online: %w", user, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, user string) error {
	if err := removeScript.Run(ctx, s.client, []string{s.usersKey, s.connsKey}, user).Err(); err != nil {
		return fmt.Errorf("mark %s offline: %w", user, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	users, err := s.client.SMembers(ctx, s.usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}
	sort.Strings(users)
	return users, nil
}
