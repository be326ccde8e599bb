package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/appsync/internal/doc"
)

// Change is one committed document write as seen by the replicator.
// Tombstones carry Deleted=true and no properties.
type Change struct {
	Scope      string            `json:"scope"`
	Collection string            `json:"collection"`
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties,omitempty"`
	Deleted    bool              `json:"deleted"`
	Revision   string            `json:"revision"`
	Seq        int64             `json:"seq"`
	Origin     string            `json:"origin"`
}

// Checkpoint records how far a collection has been replicated with one
// remote: the last local seq pushed and the last remote cursor pulled.
type Checkpoint struct {
	PushedSeq    int64 `json:"pushed_seq"`
	PulledCursor int64 `json:"pulled_cursor"`
}

// LocalChangesSince returns writes made by this replica with seq > after,
// ordered by seq, at most limit rows (0 means no limit). Writes applied from
// a remote are excluded so they are never pushed back.
func (c *Collection) LocalChangesSince(ctx context.Context, after int64, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unbounded
	}

	rows, err := c.store.db.QueryContext(ctx, `
		SELECT id, body, revision, deleted, seq, origin
		FROM documents
		WHERE scope = ? AND collection = ? AND origin = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, c.scope, c.name, c.store.replicaID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query local changes: %w", err)
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		ch := Change{Scope: c.scope, Collection: c.name}
		var body string
		if err := rows.Scan(&ch.ID, &body, &ch.Revision, &ch.Deleted, &ch.Seq, &ch.Origin); err != nil {
			return nil, fmt.Errorf("scan local change: %w", err)
		}
		if !ch.Deleted {
			ch.Properties, err = doc.Unmarshal(body)
			if err != nil {
				return nil, fmt.Errorf("local change %q: %w", ch.ID, err)
			}
		}
		changes = append(changes, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate local changes: %w", err)
	}
	return changes, nil
}

// ApplyRemote writes a change received from a remote, keeping its origin.
//
// The revision is recomputed from the change content. Returns applied=false
// without writing when the local row already has that revision, or when the
// change deletes a document this replica never had.
func (c *Collection) ApplyRemote(ctx context.Context, in Change) (applied bool, err error) {
	if in.ID == "" {
		return false, fmt.Errorf("apply remote: %w", ErrEmptyID)
	}

	rev, err := doc.Revision(in.ID, in.Properties, in.Deleted)
	if err != nil {
		return false, fmt.Errorf("apply remote: %w", err)
	}
	body := "{}"
	if !in.Deleted {
		body, err = doc.New(in.ID, in.Properties).Body()
		if err != nil {
			return false, fmt.Errorf("apply remote: %w", err)
		}
	}

	ch := Change{
		Scope:      c.scope,
		Collection: c.name,
		ID:         in.ID,
		Properties: in.Properties,
		Deleted:    in.Deleted,
		Revision:   rev,
		Origin:     in.Origin,
	}
	if in.Deleted {
		ch.Properties = nil
	}

	err = c.store.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `
			SELECT revision FROM documents
			WHERE scope = ? AND collection = ? AND id = ?
		`, c.scope, c.name, in.ID).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if in.Deleted {
				return nil
			}
		case err != nil:
			return err
		case current == rev:
			return nil
		}

		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		ch.Seq = seq
		if err := upsertDocument(ctx, tx, ch, body); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply remote %q: %w", in.ID, err)
	}

	if applied {
		c.publish(ch)
	}
	return applied, nil
}

// Checkpoint returns the replication checkpoint for remote, or the zero
// Checkpoint if none has been saved.
func (c *Collection) Checkpoint(ctx context.Context, remote string) (Checkpoint, error) {
	var cp Checkpoint
	err := c.store.db.QueryRowContext(ctx, `
		SELECT pushed_seq, pulled_cursor FROM sync_checkpoints
		WHERE remote = ? AND scope = ? AND collection = ?
	`, remote, c.scope, c.name).Scan(&cp.PushedSeq, &cp.PulledCursor)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// SaveCheckpoint records the replication checkpoint for remote.
func (c *Collection) SaveCheckpoint(ctx context.Context, remote string, cp Checkpoint) error {
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO sync_checkpoints (remote, scope, collection, pushed_seq, pulled_cursor)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(remote, scope, collection) DO UPDATE SET
			pushed_seq = excluded.pushed_seq,
			pulled_cursor = excluded.pulled_cursor
	`, remote, c.scope, c.name, cp.PushedSeq, cp.PulledCursor)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
