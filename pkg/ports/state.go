package ports

import (
	"context"
	"time"
)

// StateClient is the single adapter over the external, replicated key-value
// store. It owns no business semantics; it exists so the rest of the system
// has exactly one place where external-store failure is observed.
//
// No operation is assumed atomic across two different keys. Every call must
// honor the context deadline; on timeout the effect is unknown and callers
// treat it as not committed.
type StateClient interface {
	// Get returns the value at key, or domain.ErrKeyNotFound on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value at key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// AddToSet adds member to the set at key and refreshes the set's TTL.
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error

	// RemoveFromSet removes member from the set at key. Removing a missing
	// member is not an error.
	RemoveFromSet(ctx context.Context, key, member string) error

	// Members returns all members of the set at key. A missing set yields an
	// empty slice, not an error.
	Members(ctx context.Context, key string) ([]string, error)

	// Expire extends the TTL of an existing key. It returns false when the
	// key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
