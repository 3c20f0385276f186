// internal/blob/redis_store.go
package blob

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/overlaypush/broadcast-backend/internal/errors"
)

const keyPrefix = "campaign_payload:"

// RedisStore keeps payloads as plain string values; GETRANGE/STRLEN give
// ranged reads without pulling the full value over the wire.
type RedisStore struct {
	Client *redis.Client
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{Client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, payload []byte) error {
	return s.Client.Set(ctx, keyPrefix+id, payload, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	b, err := s.Client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrBlobNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *RedisStore) GetRange(ctx context.Context, id string, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}
	v, err := s.Client.GetRange(ctx, keyPrefix+id, offset, offset+length-1).Result()
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

func (s *RedisStore) Len(ctx context.Context, id string) (int64, error) {
	n, err := s.Client.StrLen(ctx, keyPrefix+id).Result()
	if err != nil {
		return 0, err
	}
	// Empty payloads are rejected at schedule time, so zero length means
	// the key is gone.
	if n == 0 {
		return 0, appErrors.ErrBlobNotFound
	}
	return n, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.Client.Del(ctx, keyPrefix+id).Err()
}

var _ Store = (*RedisStore)(nil)
