// Package pgremote is a replicator.Remote backed by PostgreSQL. Any number of
// local stores can replicate one collection through a shared database.
package pgremote

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/appsync/internal/doc"
	"github.com/roach88/appsync/internal/replicator"
	"github.com/roach88/appsync/internal/store"
)

// pushLock serializes pushes so cursors become visible in increasing order.
const pushLock = 0x61707073796e63 // "appsync"

// Remote is a PostgreSQL-backed replicator.Remote.
type Remote struct {
	pool  *pgxpool.Pool
	name  string
	owned bool
}

// New wraps an existing pool. The caller keeps ownership of the pool.
func New(pool *pgxpool.Pool, name string) *Remote {
	return &Remote{pool: pool, name: name}
}

// Connect opens a pool for dsn. Close releases it.
func Connect(ctx context.Context, dsn, name string) (*Remote, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Remote{pool: pool, name: name, owned: true}, nil
}

// Close releases a pool opened by Connect.
func (r *Remote) Close() {
	if r.owned {
		r.pool.Close()
	}
}

// Name implements replicator.Remote.
func (r *Remote) Name() string { return r.name }

// EnsureTable creates the documents table and cursor sequence if they don't exist.
func (r *Remote) EnsureTable(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `CREATE SEQUENCE IF NOT EXISTS appsync_cursor`)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS appsync_documents (
			scope      TEXT NOT NULL,
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			body       JSONB NOT NULL DEFAULT '{}',
			revision   TEXT NOT NULL,
			deleted    BOOLEAN NOT NULL DEFAULT FALSE,
			origin     TEXT NOT NULL,
			cursor     BIGINT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (scope, collection, id)
		)`)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_appsync_documents_cursor ON appsync_documents(scope, collection, cursor)`)
	return err
}

// Push implements replicator.Remote. All changes land in one transaction.
func (r *Remote) Push(ctx context.Context, changes []store.Change) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(pushLock)); err != nil {
		return fmt.Errorf("lock push: %w", err)
	}

	batch := &pgx.Batch{}
	for _, ch := range changes {
		if ch.ID == "" {
			return fmt.Errorf("push: %w", store.ErrEmptyID)
		}
		body := []byte("{}")
		if !ch.Deleted {
			body, err = doc.MarshalCanonical(ch.Properties)
			if err != nil {
				return fmt.Errorf("push %q: %w", ch.ID, err)
			}
		}
		batch.Queue(`
			INSERT INTO appsync_documents (scope, collection, id, body, revision, deleted, origin, cursor)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, nextval('appsync_cursor'))
			ON CONFLICT (scope, collection, id) DO UPDATE SET
				body = excluded.body,
				revision = excluded.revision,
				deleted = excluded.deleted,
				origin = excluded.origin,
				cursor = excluded.cursor,
				updated_at = NOW()`,
			ch.Scope, ch.Collection, ch.ID, string(body), ch.Revision, ch.Deleted, ch.Origin)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("push changes: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit push: %w", err)
	}
	return nil
}

// Pull implements replicator.Remote.
func (r *Remote) Pull(ctx context.Context, req replicator.PullRequest) (replicator.PullResult, error) {
	var limit any // NULL: no limit
	if req.Limit > 0 {
		limit = req.Limit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, body, revision, deleted, origin, cursor
		FROM appsync_documents
		WHERE scope = $1 AND collection = $2 AND cursor > $3
		ORDER BY cursor ASC
		LIMIT $4`,
		req.Scope, req.Collection, req.After, limit)
	if err != nil {
		return replicator.PullResult{}, fmt.Errorf("pull: %w", err)
	}
	defer rows.Close()

	res := replicator.PullResult{Changes: []store.Change{}, Cursor: req.After}
	scanned := 0
	for rows.Next() {
		ch := store.Change{Scope: req.Scope, Collection: req.Collection}
		var body string
		var cursor int64
		if err := rows.Scan(&ch.ID, &body, &ch.Revision, &ch.Deleted, &ch.Origin, &cursor); err != nil {
			return replicator.PullResult{}, fmt.Errorf("scan pulled row: %w", err)
		}
		scanned++
		res.Cursor = cursor
		if ch.Origin == req.Exclude {
			continue
		}
		if !ch.Deleted {
			ch.Properties, err = doc.Unmarshal(body)
			if err != nil {
				return replicator.PullResult{}, fmt.Errorf("pulled row %q: %w", ch.ID, err)
			}
		}
		res.Changes = append(res.Changes, ch)
	}
	if err := rows.Err(); err != nil {
		return replicator.PullResult{}, fmt.Errorf("iterate pulled rows: %w", err)
	}
	res.More = req.Limit > 0 && scanned == req.Limit
	return res, nil
}
