package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Getter is satisfied by *redis.Client as well as *redis.Tx inside Watch.
type Getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// GetJSON decodes key into out. found is false when the key does not exist.
func GetJSON(ctx context.Context, rdb Getter, key string, out any) (found bool, err error) {
	b, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// CheckAndSet runs the WATCH / GET / MULTI / SET / EXEC sequence against key.
// check receives the current value (nil when absent) and returns the value to
// commit, or nil to abort. The result is nil when check aborted or a
// concurrent writer touched key between WATCH and EXEC.
func CheckAndSet[T any](ctx context.Context, rdb *redis.Client, key string, check func(cur *T) *T) (*T, error) {
	var committed *T
	err := rdb.Watch(ctx, func(tx *redis.Tx) error {
		var cur *T
		var v T
		found, err := GetJSON(ctx, tx, key, &v)
		if err != nil {
			return err
		}
		if found {
			cur = &v
		}

		next := check(cur)
		if next == nil {
			return nil
		}
		b, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		if err != nil {
			return err
		}
		committed = next
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return committed, nil
}
