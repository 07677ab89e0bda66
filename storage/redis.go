package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisWatchBuffer = 16

// Redis stores token keys in Redis and announces every mutation on a pub/sub channel
// so other processes sharing the same prefix can react.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	origin string
}

// NewRedis returns a Redis-backed storage context. Each call gets its own origin id, so
// two values built over the same client behave like two tabs.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "aif"
	}
	return &Redis{
		redis:  client,
		prefix: prefix,
		origin: uuid.NewString(),
	}
}

// Origin returns the id carried in change messages this context publishes.
func (r *Redis) Origin() string {
	return r.origin
}

func (r *Redis) key(key string) string {
	return r.prefix + ":" + key
}

func (r *Redis) channel() string {
	return r.prefix + ":changes"
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validKey(key); err != nil {
		return "", false, err
	}
	v, err := r.redis.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	payload, err := r.encodeChange(key)
	if err != nil {
		return err
	}
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(key), value, 0)
		pipe.Publish(ctx, r.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		n, err := r.redis.Del(ctx, r.key(key)).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if n == 0 {
			continue
		}
		payload, err := r.encodeChange(key)
		if err != nil {
			return err
		}
		if err := r.redis.Publish(ctx, r.channel(), payload).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return nil
}

// RemoveIf runs the check and the delete in a WATCH/MULTI transaction. When another
// client writes one of the keys first the transaction aborts and nothing is removed.
func (r *Redis) RemoveIf(ctx context.Context, key, expected string, also ...string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	keys := make([]string, 0, len(also)+1)
	for _, k := range append([]string{key}, also...) {
		if k != "" {
			keys = append(keys, r.key(k))
		}
	}

	removed := false
	err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
		v, err := tx.Get(ctx, r.key(key)).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		case v != expected:
			return nil
		}

		present := make([]string, 0, len(keys))
		for _, k := range append([]string{key}, also...) {
			if k == "" {
				continue
			}
			n, err := tx.Exists(ctx, r.key(k)).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				present = append(present, k)
			}
		}
		if len(present) == 0 {
			removed = true
			return nil
		}

		payloads := make([]string, 0, len(present))
		for _, k := range present {
			payload, err := r.encodeChange(k)
			if err != nil {
				return err
			}
			payloads = append(payloads, payload)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, k := range present {
				pipe.Del(ctx, r.key(k))
				pipe.Publish(ctx, r.channel(), payloads[i])
			}
			return nil
		})
		if err == nil {
			removed = true
		}
		return err
	}, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return removed, nil
}

// Watch subscribes to the change channel. It returns once the subscription is
// confirmed, so writes issued after Watch returns are observed.
func (r *Redis) Watch(ctx context.Context) (<-chan Change, error) {
	sub := r.redis.Subscribe(ctx, r.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make(chan Change, redisWatchBuffer)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					continue
				}
				if change.Origin == r.origin || change.Key == "" {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *Redis) encodeChange(key string) (string, error) {
	b, err := json.Marshal(Change{Key: key, Origin: r.origin})
	if err != nil {
		return "", fmt.Errorf("encode change: %w", err)
	}
	return string(b), nil
}
