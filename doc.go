/*
Package rendezvous is a distributed connection and session registry for
real-time, multi-tenant services that run as many stateless process instances
behind a load balancer.

It solves three problems at once:

  - WebSocket connection metadata registered by one instance is visible to
    every instance, so any process can answer "which sockets belong to this
    session" without having accepted them.
  - Session state lives in an external replicated key-value store with
    per-key TTL, so it survives process restarts and rolling deploys.
  - A principal from one tenant can never observe or mutate session or
    connection data belonging to another tenant, except under an explicit,
    individually-granted cross-tenant capability.

# Architecture

The Coordinator is the only public entry point. It composes three internal
components: a connection registry (primary record plus session-indexed
secondary index), a session store, and a tenant isolation guard. All three
are stateless over a ports.StateClient, the single adapter to the external
store; Redis and in-memory implementations ship under pkg/adapters.

The two store writes behind a registration (primary record, index entry) are
separate keys with no cross-key transaction. Reads are written to tolerate
both race outcomes and self-heal dangling index entries by dropping them on
the next lookup.

# Usage

	client := redis.New("localhost:6379", "", 0)
	coord := rendezvous.New(client,
		rendezvous.WithLogger(logger),
		rendezvous.WithConnectionTTL(5*time.Minute),
	)

	coord.RegisterConnection(ctx, rendezvous.RegisterParams{
		WebsocketID: "ws-1",
		SessionID:   "sess-1",
		AgentType:   "guide",
	})

Registry operations are best-effort and return bool: a failed registration
degrades global visibility, it does not fail the request. Isolation checks
are the opposite: any ambiguity resolves to denial.
*/
package rendezvous
