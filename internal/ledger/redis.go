package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"product-image-miner/internal/product"
)

// Redis keeps the ledger as a list of JSON-encoded ids under one key.
type Redis struct {
	client redis.Cmdable
	key    string
}

func NewRedis(client redis.Cmdable, key string) *Redis {
	return &Redis{client: client, key: key}
}

func (r *Redis) Describe() string { return "redis:" + r.key }

func (r *Redis) Load(ctx context.Context) ([]product.ID, error) {
	vals, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: lrange %s: %v", ErrPersistence, r.key, err)
	}
	ids := make([]product.ID, 0, len(vals))
	for _, v := range vals {
		ids = append(ids, product.ID(v))
	}
	return ids, nil
}

// Replace swaps the list in a single MULTI/EXEC.
func (r *Redis) Replace(ctx context.Context, ids []product.ID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(ids) > 0 {
			vals := make([]any, 0, len(ids))
			for _, id := range ids {
				vals = append(vals, string(id))
			}
			pipe.RPush(ctx, r.key, vals...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrPersistence, r.key, err)
	}
	return nil
}
