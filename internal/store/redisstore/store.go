package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	client *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// --- captcha codes for registration ---

func captchaKey(email string) string { return "captcha:" + email }

func (s *Store) SetCaptcha(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.client.Set(ctx, captchaKey(email), code, ttl).Err()
}

func (s *Store) GetCaptcha(ctx context.Context, email string) (string, error) {
	return s.client.Get(ctx, captchaKey(email)).Result()
}

func (s *Store) DeleteCaptcha(ctx context.Context, email string) error {
	return s.client.Del(ctx, captchaKey(email)).Err()
}

// --- attachment bytes ---

func attachmentKey(id string) string { return "att:" + id }

func (s *Store) PutAttachment(ctx context.Context, id, contentType string, data []byte, ttl time.Duration) error {
	key := attachmentKey(id)
	if err := s.client.HSet(ctx, key, "content_type", contentType, "data", data).Err(); err != nil {
		return err
	}
	if ttl > 0 {
		return s.client.Expire(ctx, key, ttl).Err()
	}
	return nil
}

func (s *Store) GetAttachment(ctx context.Context, id string) (string, []byte, error) {
	vals, err := s.client.HGetAll(ctx, attachmentKey(id)).Result()
	if err != nil {
		return "", nil, err
	}
	if len(vals) == 0 {
		return "", nil, redis.Nil
	}
	return vals["content_type"], []byte(vals["data"]), nil
}

// --- sliding-window rate limiter ---

// Allow implements a bounded sliding window per key: timestamps live in a
// sorted set, entries older than the window are trimmed on every call, and
// the whole key expires after one idle window.
func (s *Store) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-window)
	rkey := "rate:" + key

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(cutoff.UnixNano(), 10))
	count := pipe.ZCard(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	if count.Val() >= int64(limit) {
		return false, nil
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), count.Val())
	pipe = s.client.TxPipeline()
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, rkey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}
