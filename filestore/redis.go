package filestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrFileNotFound = errors.New("uploaded file not found or expired")

// RedisStore keeps uploaded file bytes in Redis with a TTL. It is the fallback
// backend for deployments without OSS; the TTL bounds memory use and must
// comfortably exceed the queue backlog.
type RedisStore struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	ttlSec := readEnvInt64Default("UPLOAD_FILE_TTL_SECONDS", 24*3600)
	if ttlSec <= 0 {
		ttlSec = 24 * 3600
	}
	return &RedisStore{
		rdb:       rdb,
		keyPrefix: "dp:uploadfile:",
		ttl:       time.Duration(ttlSec) * time.Second,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.keyPrefix + strings.TrimSpace(key)
}

func (s *RedisStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("object key empty")
	}
	if err := s.rdb.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store uploaded file: %w", err)
	}
	return nil
}

func (s *RedisStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch uploaded file: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.redisKey(key)).Err()
}
