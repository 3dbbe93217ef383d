package domain

import "errors"

// ErrKeyNotFound is returned by a StateClient when a key does not exist.
// Higher layers translate it into an ordinary miss (nil record), never an error.
var ErrKeyNotFound = errors.New("key not found")

// ErrStoreUnavailable wraps connectivity failures against the shared state store.
var ErrStoreUnavailable = errors.New("shared state store unavailable")

// ErrTimeout wraps a store operation that exceeded its deadline.
// The effect of the operation is unknown and must be treated as not committed.
var ErrTimeout = errors.New("store operation timed out")

// ErrTenantIsolation is returned when a principal attempts to access a session
// or connection owned by a different tenant without an explicit grant.
// It is kept distinct from generic permission failures so it can be audited
// and alerted on separately. Boundary adapters must render it as "not found".
var ErrTenantIsolation = errors.New("tenant isolation violation")
