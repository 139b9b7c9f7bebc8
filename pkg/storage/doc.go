// Package storage defines the Store interface consumed by the auth core and
// the HTTP handlers, plus the sentinel errors shared across adapter
// implementations.
//
// Two adapters implement Store: postgres (pgx/v5 connection pool, embedded
// schema migrations) and memory (mutex-guarded maps, used by tests and small
// deployments). All visibility rules are pushed into the queries themselves:
// scoped reads take the calling principal and only ever return rows that
// principal may see.
package storage
