// Package store is the record store gateway: a thin accessor over a remote
// tabular store with get/insert/patch/delete by filter. MongoStore is the
// production backend; MemoryStore backs tests and local development.
package store

import "context"

// SchemaVersion is bumped whenever a table gains or loses a persisted field.
// EnsureSchema creates the indexes for this version at startup.
const SchemaVersion = 1

const (
	TablePots          = "pots"
	TablePotItems      = "pot_items"
	TableSessions      = "contribution_sessions"
	TableAllocations   = "allocations"
	TableWebhookEvents = "webhook_events"
)

var Tables = []string{TablePots, TablePotItems, TableSessions, TableAllocations, TableWebhookEvents}

// Store failures are reported as *apperr.Error with KindStoreUnavailable
// (store unreachable or schema not set up) or KindStore.
type Store interface {
	// Find decodes matching rows into out, which must be a pointer to a slice.
	Find(ctx context.Context, table string, q Query, out interface{}) error
	Insert(ctx context.Context, table string, docs ...interface{}) error
	// Patch sets changes on every matching row and returns how many matched.
	Patch(ctx context.Context, table string, changes map[string]interface{}, f Filter) (int64, error)
	Delete(ctx context.Context, table string, f Filter) (int64, error)
	// WithTransaction runs fn so that its writes become visible together or
	// not at all. Calls nested inside fn join the outer transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
}
