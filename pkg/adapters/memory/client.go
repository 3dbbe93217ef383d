package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rendezvous-io/rendezvous/pkg/domain"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

type setEntry struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// Client implements ports.StateClient in memory. Safe for concurrent use.
//
// It exists for tests and single-process development; it honors per-key TTL
// with lazy eviction so expiry behavior matches the Redis adapter.
type Client struct {
	mu   sync.Mutex
	data map[string]*entry
	sets map[string]*setEntry
	now  func() time.Time
}

type Option func(*Client)

// WithClock injects a time source, letting tests steer expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates an empty in-memory state client.
func New(opts ...Option) *Client {
	c := &Client{
		data: make(map[string]*entry),
		sets: make(map[string]*setEntry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) live(e *entry) bool {
	return e != nil && (e.expiresAt.IsZero() || c.now().Before(e.expiresAt))
}

func (c *Client) liveSet(e *setEntry) bool {
	return e != nil && (e.expiresAt.IsZero() || c.now().Before(e.expiresAt))
}

// Get returns the value at key, or domain.ErrKeyNotFound on a miss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.data[key]
	if !c.live(e) {
		delete(c.data, key)
		return nil, domain.ErrKeyNotFound
	}

	// Copy on read so callers can't mutate stored bytes.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set writes value at key with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	e := &entry{value: stored}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.data[key] = e
	return nil
}

// Delete removes the key.
func (c *Client) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// AddToSet adds member to the set at key and refreshes the set's TTL.
func (c *Client) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sets[key]
	if !c.liveSet(s) {
		s = &setEntry{members: make(map[string]struct{})}
		c.sets[key] = s
	}
	s.members[member] = struct{}{}
	if ttl > 0 {
		s.expiresAt = c.now().Add(ttl)
	}
	return nil
}

// RemoveFromSet removes member from the set at key.
func (c *Client) RemoveFromSet(ctx context.Context, key, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.sets[key]; c.liveSet(s) {
		delete(s.members, member)
		if len(s.members) == 0 {
			delete(c.sets, key)
		}
	}
	return nil
}

// Members returns all members of the set at key.
func (c *Client) Members(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sets[key]
	if !c.liveSet(s) {
		delete(c.sets, key)
		return nil, nil
	}

	members := make([]string, 0, len(s.members))
	for m := range s.members {
		members = append(members, m)
	}
	return members, nil
}

// Expire extends the TTL of an existing key (value or set).
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.data[key]; c.live(e) {
		e.expiresAt = c.now().Add(ttl)
		return true, nil
	}
	if s := c.sets[key]; c.liveSet(s) {
		s.expiresAt = c.now().Add(ttl)
		return true, nil
	}
	return false, nil
}
