package cache

import (
	"context"
	"encoding/json"
	"time"
)

func GetOrLoadJSON[T any](
	c *Cache,
	ctx context.Context,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, bool, error) {
	var zero T
	b, hit, err := c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, e := load(ctx)
		if e != nil {
			return nil, e
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, false, err
	}
	var out T
	if e := json.Unmarshal(b, &out); e != nil {
		// 缓存内容损坏时直接回源
		v, le := load(ctx)
		return v, false, le
	}
	return out, hit, nil
}
