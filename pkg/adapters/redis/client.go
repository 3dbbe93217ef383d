package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rendezvous-io/rendezvous/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Client implements ports.StateClient using Redis.
//
// All keys are namespaced under a configurable prefix so several deployments
// can share one Redis. Every operation runs under a bounded deadline; a call
// that times out is reported as domain.ErrTimeout and its effect must be
// treated as not committed.
type Client struct {
	rdb     *backend.Client
	prefix  string
	timeout time.Duration
}

type Option func(*Client)

// WithPrefix sets the key namespace prefix.
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = prefix
	}
}

// WithTimeout sets the default per-operation deadline applied when the caller
// context carries none.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// New creates a Redis state client with options.
func New(address, password string, db int, opts ...Option) *Client {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis state client from an existing client.
func NewFromClient(rdb *backend.Client, opts ...Option) *Client {
	c := &Client{
		rdb:     rdb,
		prefix:  "rendezvous:",
		timeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) key(k string) string {
	return c.prefix + k
}

// op bounds the operation with the default timeout unless the caller already
// supplied a deadline.
func (c *Client) op(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// wrap maps transport errors onto the domain taxonomy.
func wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrStoreUnavailable)
}

// Get returns the value at key, or domain.ErrKeyNotFound on a miss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()

	val, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, wrap("redis get", err)
	}
	return val, nil
}

// Set writes value at key with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := c.op(ctx)
	defer cancel()

	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return wrap("redis set", err)
	}
	return nil
}

// Delete removes the key. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	ctx, cancel := c.op(ctx)
	defer cancel()

	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return wrap("redis del", err)
	}
	return nil
}

// AddToSet adds member to the set at key and refreshes the set's TTL. The two
// commands are pipelined; the TTL refresh means the longest-lived writer wins,
// which is the intended semantics for secondary indexes.
func (c *Client) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	ctx, cancel := c.op(ctx)
	defer cancel()

	pipe := c.rdb.Pipeline()
	pipe.SAdd(ctx, c.key(key), member)
	if ttl > 0 {
		pipe.Expire(ctx, c.key(key), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrap("redis sadd", err)
	}
	return nil
}

// RemoveFromSet removes member from the set at key.
func (c *Client) RemoveFromSet(ctx context.Context, key, member string) error {
	ctx, cancel := c.op(ctx)
	defer cancel()

	if err := c.rdb.SRem(ctx, c.key(key), member).Err(); err != nil {
		return wrap("redis srem", err)
	}
	return nil
}

// Members returns all members of the set at key.
func (c *Client) Members(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()

	members, err := c.rdb.SMembers(ctx, c.key(key)).Result()
	if err != nil {
		return nil, wrap("redis smembers", err)
	}
	return members, nil
}

// Expire extends the TTL of an existing key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()

	ok, err := c.rdb.Expire(ctx, c.key(key), ttl).Result()
	if err != nil {
		return false, wrap("redis expire", err)
	}
	return ok, nil
}

// Close closes the underlying redis client.
func (c *Client) Close() error {
	return c.rdb.Close()
}
