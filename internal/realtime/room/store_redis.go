package room

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore room:<name> 一个 set，多实例共享
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "room:"}
}

func (s *RedisStore) key(room string) string { return s.prefix + room }

func (s *RedisStore) Add(ctx context.Context, room, playerID string) error {
	return s.rdb.SAdd(ctx, s.key(room), playerID).Err()
}

func (s *RedisStore) Remove(ctx context.Context, room, playerID string) error {
	return s.rdb.SRem(ctx, s.key(room), playerID).Err()
}

func (s *RedisStore) IsMember(ctx context.Context, room, playerID string) (bool, error) {
	return s.rdb.SIsMember(ctx, s.key(room), playerID).Result()
}

func (s *RedisStore) Members(ctx context.Context, room string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.key(room)).Result()
}
