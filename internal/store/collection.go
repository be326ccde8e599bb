package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/appsync/internal/changefeed"
	"github.com/roach88/appsync/internal/doc"
)

// CollectionInfo describes a registered collection.
type CollectionInfo struct {
	Scope      string `json:"scope"`
	Name       string `json:"name"`
	CreatedSeq int64  `json:"created_seq"`
}

// Collection is a handle to one (scope, name) collection. Handles are cheap,
// hold no document state and are safe for concurrent use.
type Collection struct {
	store *Store
	scope string
	name  string
}

// CreateCollection registers a collection.
// Returns ErrCollectionExists if the pair is already registered.
func (s *Store) CreateCollection(ctx context.Context, scope, name string) error {
	if scope == "" || name == "" {
		return fmt.Errorf("create collection: scope and name are required")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO collections (scope, name, created_seq)
			VALUES (?, ?, ?)
			ON CONFLICT(scope, name) DO NOTHING
		`, scope, name, seq)
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("create collection: rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("create collection %s.%s: %w", scope, name, ErrCollectionExists)
		}
		return nil
	})
}

// Collection returns a handle to a registered collection.
// Returns ErrCollectionNotFound if it was never created.
func (s *Store) Collection(ctx context.Context, scope, name string) (*Collection, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM collections WHERE scope = ? AND name = ?
	`, scope, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get collection %s.%s: %w", scope, name, ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return &Collection{store: s, scope: scope, name: name}, nil
}

// Collections lists registered collections ordered by scope, then name.
func (s *Store) Collections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, name, created_seq FROM collections
		ORDER BY scope COLLATE BINARY ASC, name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	infos := []CollectionInfo{}
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Scope, &info.Name, &info.CreatedSeq); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return infos, nil
}

// Scope returns the collection's scope.
func (c *Collection) Scope() string { return c.scope }

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// GetDocument returns the live document with the given id.
// Returns ErrDocumentNotFound if the id is absent or tombstoned.
func (c *Collection) GetDocument(ctx context.Context, id string) (doc.Document, error) {
	var body string
	err := c.store.db.QueryRowContext(ctx, `
		SELECT body FROM documents
		WHERE scope = ? AND collection = ? AND id = ? AND deleted = 0
	`, c.scope, c.name, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return doc.Document{}, fmt.Errorf("get document %q: %w", id, ErrDocumentNotFound)
	}
	if err != nil {
		return doc.Document{}, fmt.Errorf("get document %q: %w", id, err)
	}

	props, err := doc.Unmarshal(body)
	if err != nil {
		return doc.Document{}, fmt.Errorf("get document %q: %w", id, err)
	}
	return doc.Document{ID: id, Properties: props}, nil
}

// Save writes d as the complete new body of its id, inserting or replacing.
// Prior properties are not merged. The write is a single row in a single
// transaction.
func (c *Collection) Save(ctx context.Context, d doc.Document) (Change, error) {
	if d.ID == "" {
		return Change{}, fmt.Errorf("save document: %w", ErrEmptyID)
	}

	body, err := d.Body()
	if err != nil {
		return Change{}, fmt.Errorf("save document: %w", err)
	}
	rev, err := d.Revision()
	if err != nil {
		return Change{}, fmt.Errorf("save document: %w", err)
	}

	ch := Change{
		Scope:      c.scope,
		Collection: c.name,
		ID:         d.ID,
		Properties: d.Properties,
		Revision:   rev,
		Origin:     c.store.replicaID,
	}

	err = c.store.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		ch.Seq = seq
		return upsertDocument(ctx, tx, ch, body)
	})
	if err != nil {
		return Change{}, fmt.Errorf("save document %q: %w", d.ID, err)
	}

	c.publish(ch)
	return ch, nil
}

// Delete tombstones the document with the given id.
// Returns ErrDocumentNotFound if it is absent or already deleted.
func (c *Collection) Delete(ctx context.Context, id string) (Change, error) {
	if id == "" {
		return Change{}, fmt.Errorf("delete document: %w", ErrEmptyID)
	}

	rev, err := doc.Revision(id, nil, true)
	if err != nil {
		return Change{}, fmt.Errorf("delete document: %w", err)
	}

	ch := Change{
		Scope:      c.scope,
		Collection: c.name,
		ID:         id,
		Deleted:    true,
		Revision:   rev,
		Origin:     c.store.replicaID,
	}

	err = c.store.withTx(ctx, func(tx *sql.Tx) error {
		var deleted bool
		err := tx.QueryRowContext(ctx, `
			SELECT deleted FROM documents
			WHERE scope = ? AND collection = ? AND id = ?
		`, c.scope, c.name, id).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
			return ErrDocumentNotFound
		}
		if err != nil {
			return err
		}

		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		ch.Seq = seq
		return upsertDocument(ctx, tx, ch, "{}")
	})
	if err != nil {
		return Change{}, fmt.Errorf("delete document %q: %w", id, err)
	}

	c.publish(ch)
	return ch, nil
}

// upsertDocument writes the whole row for ch inside tx.
func upsertDocument(ctx context.Context, tx *sql.Tx, ch Change, body string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (scope, collection, id, body, revision, deleted, seq, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, collection, id) DO UPDATE SET
			body = excluded.body,
			revision = excluded.revision,
			deleted = excluded.deleted,
			seq = excluded.seq,
			origin = excluded.origin
	`,
		ch.Scope,
		ch.Collection,
		ch.ID,
		body,
		ch.Revision,
		ch.Deleted,
		ch.Seq,
		ch.Origin,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// publish announces a committed change on the store's feed.
func (c *Collection) publish(ch Change) {
	op := changefeed.OpSave
	if ch.Deleted {
		op = changefeed.OpDelete
	}
	c.store.changes.Publish(changefeed.Event{
		Scope:      ch.Scope,
		Collection: ch.Collection,
		ID:         ch.ID,
		Op:         op,
		Seq:        ch.Seq,
		Origin:     ch.Origin,
		Local:      ch.Origin == c.store.replicaID,
	})
}
