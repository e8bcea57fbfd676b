package files

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/multimind-ai/multimind/internal/common"
	"github.com/multimind-ai/multimind/internal/store/redisstore"
)

// Store keeps attachment bytes in redis, keyed by a minted uuid. Large
// long-lived blobs belong in object storage; chat attachments are small and
// short-lived by design.
type Store struct {
	redis *redisstore.Store
	ttl   time.Duration
}

func NewStore(r *redisstore.Store, ttl time.Duration) *Store {
	return &Store{redis: r, ttl: ttl}
}

func (s *Store) PutFile(ctx context.Context, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", common.BadRequestErr("empty attachment")
	}
	id := uuid.NewString()
	if err := s.redis.PutAttachment(ctx, id, contentType, data, s.ttl); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetFile(ctx context.Context, id string) (string, []byte, error) {
	ctype, data, err := s.redis.GetAttachment(ctx, id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil, common.NotFoundErr("attachment %s not found", id)
		}
		return "", nil, err
	}
	return ctype, data, nil
}
