package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

const DefaultRedisPrefix = "inkbatch:rec"

// RedisStore 把识别结果存入 Redis，适合多台机器共享同一批图片的结果。
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis 返回 RedisStore；ttl<=0 表示不过期。
func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) redisKey(service, key string) (string, error) {
	svc, k, err := clean(service, key)
	if err != nil {
		return "", err
	}
	return s.prefix + ":" + svc + ":" + k, nil
}

func (s *RedisStore) Get(ctx context.Context, service, key string) (domain.Recognition, bool, error) {
	rk, err := s.redisKey(service, key)
	if err != nil {
		return domain.Recognition{}, false, err
	}
	b, err := s.rdb.Get(ctx, rk).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Recognition{}, false, nil
		}
		return domain.Recognition{}, false, err
	}
	var rec domain.Recognition
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.Recognition{}, false, nil
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, service, key string, rec domain.Recognition) error {
	rk, err := s.redisKey(service, key)
	if err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, rk, b, s.ttl).Err()
}

// Ping 用于 precheck：Redis 不可达时应在开始工作前失败。
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close 释放底层连接池。
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
