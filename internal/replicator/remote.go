package replicator

import (
	"context"

	"github.com/roach88/appsync/internal/store"
)

// Remote is the counterpart a Coordinator replicates with.
//
// Cursor semantics: every write a remote accepts is stamped with a cursor
// that is strictly greater than any cursor it handed out before. Pull returns
// rows with cursor > After in cursor order. A document rewritten on the
// remote only appears at its latest cursor.
type Remote interface {
	// Name identifies the remote in checkpoints and logs. It must be stable
	// across restarts.
	Name() string

	// Push stores changes. Each change replaces the remote row for its
	// (scope, collection, id) and keeps its origin.
	Push(ctx context.Context, changes []store.Change) error

	// Pull returns remote rows after req.After.
	Pull(ctx context.Context, req PullRequest) (PullResult, error)
}

// PullRequest selects remote rows.
type PullRequest struct {
	Scope      string
	Collection string

	// After is the last cursor already applied.
	After int64

	// Limit caps the rows scanned in one call, excluded rows included.
	Limit int

	// Exclude drops rows with this origin. Set to the requesting replica id
	// so a replica never pulls its own writes back.
	Exclude string
}

// PullResult is one batch of remote rows.
type PullResult struct {
	// Changes are the rows to apply, in cursor order. Seq is not meaningful
	// on pulled changes.
	Changes []store.Change

	// Cursor is the highest cursor scanned; pass it as the next After.
	Cursor int64

	// More is true when the scan stopped at Limit.
	More bool
}
