package replicator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/appsync/internal/store"
)

type memoryKey struct {
	scope, collection, id string
}

type memoryRow struct {
	change store.Change
	cursor int64
}

// MemoryRemote is an in-process Remote. Several stores pushing to the same
// MemoryRemote behave like replicas of one shared collection.
type MemoryRemote struct {
	name string

	mu     sync.Mutex
	cursor int64
	rows   map[memoryKey]memoryRow
}

// NewMemoryRemote creates an empty remote.
func NewMemoryRemote(name string) *MemoryRemote {
	return &MemoryRemote{
		name: name,
		rows: make(map[memoryKey]memoryRow),
	}
}

// Name implements Remote.
func (r *MemoryRemote) Name() string { return r.name }

// Push implements Remote.
func (r *MemoryRemote) Push(ctx context.Context, changes []store.Change) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range changes {
		if ch.ID == "" {
			return fmt.Errorf("push: %w", store.ErrEmptyID)
		}
		r.cursor++
		ch.Properties = cloneProps(ch.Properties)
		r.rows[memoryKey{ch.Scope, ch.Collection, ch.ID}] = memoryRow{change: ch, cursor: r.cursor}
	}
	return nil
}

// Pull implements Remote.
func (r *MemoryRemote) Pull(ctx context.Context, req PullRequest) (PullResult, error) {
	if err := ctx.Err(); err != nil {
		return PullResult{}, fmt.Errorf("pull: %w", err)
	}

	r.mu.Lock()
	candidates := make([]memoryRow, 0, len(r.rows))
	for k, row := range r.rows {
		if k.scope == req.Scope && k.collection == req.Collection && row.cursor > req.After {
			candidates = append(candidates, row)
		}
	}
	r.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].cursor < candidates[j].cursor
	})

	res := PullResult{Changes: []store.Change{}, Cursor: req.After}
	if req.Limit > 0 && len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
		res.More = true
	}
	for _, row := range candidates {
		res.Cursor = row.cursor
		if row.change.Origin == req.Exclude {
			continue
		}
		ch := row.change
		ch.Properties = cloneProps(ch.Properties)
		res.Changes = append(res.Changes, ch)
	}
	return res, nil
}

// Len returns the number of rows held, tombstones included.
func (r *MemoryRemote) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func cloneProps(props map[string]string) map[string]string {
	if props == nil {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
