package domain

// Event names emitted to the observability sink.
const (
	EventConnectionRegistered   = "connection_registered"
	EventConnectionUnregistered = "connection_unregistered"
	EventConnectionRenewed      = "connection_renewed"
	EventRegistryDegraded       = "registry_degraded"
	EventSessionCreated         = "session_created"
	EventSessionDeleted         = "session_deleted"
	EventIsolationViolation     = "tenant_isolation_violation"
	EventStaleIndexHealed       = "stale_index_entry_dropped"
)
