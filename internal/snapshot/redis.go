package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores the document under a single namespaced key.
// The client is thread-safe and may be shared with the event relay.
type Redis struct {
	rdb       *redis.Client
	namespace string
	ownsConn  bool
}

// NewRedis wraps an existing client. Close leaves the client open.
func NewRedis(rdb *redis.Client, namespace string) (*Redis, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &Redis{rdb: rdb, namespace: namespace}, nil
}

// NewRedisFromURL connects to the server at url and verifies connectivity.
func NewRedisFromURL(ctx context.Context, url, namespace string) (*Redis, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &Redis{rdb: rdb, namespace: namespace, ownsConn: true}, nil
}

// Load reads the document. A missing key is (nil, nil).
func (r *Redis) Load(ctx context.Context) ([]byte, error) {
	data, err := r.rdb.Get(ctx, SessionsKey(r.namespace)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from Redis: %w", err)
	}
	return data, nil
}

// Save overwrites the document.
func (r *Redis) Save(ctx context.Context, document []byte) error {
	if err := r.rdb.Set(ctx, SessionsKey(r.namespace), document, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot to Redis: %w", err)
	}
	return nil
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Client exposes the underlying connection so the relay can share it.
func (r *Redis) Client() *redis.Client {
	return r.rdb
}

// Close closes the connection if this snapshotter opened it.
func (r *Redis) Close() error {
	if !r.ownsConn {
		return nil
	}
	return r.rdb.Close()
}
