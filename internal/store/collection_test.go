package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/appsync/internal/changefeed"
	"github.com/roach88/appsync/internal/doc"
)

func TestSave_InsertThenGet(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	ch, err := c.Save(ctx, profileDoc("EMP0010", "A", "B", "a@b.com"))
	require.NoError(t, err)
	assert.Equal(t, testReplica, ch.Origin)
	assert.False(t, ch.Deleted)
	assert.NotEmpty(t, ch.Revision)
	assert.Positive(t, ch.Seq)

	got, err := c.GetDocument(ctx, "EMP0010")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "A", "title": "B", "email": "a@b.com"}, got.Properties)
}

func TestSave_ReplacesWholesale(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	_, err := c.Save(ctx, profileDoc("EMP0010", "A", "B", "a@b.com"))
	require.NoError(t, err)

	// Second save drops "title"; it must not be merged from the first.
	_, err = c.Save(ctx, doc.New("EMP0010", map[string]string{"name": "A2", "email": "a@b.com"}))
	require.NoError(t, err)

	got, err := c.GetDocument(ctx, "EMP0010")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "A2", "email": "a@b.com"}, got.Properties)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSave_EmptyID(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	_, err := c.Save(context.Background(), doc.New("", nil))
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestSave_SeqIncreases(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	first, err := c.Save(ctx, profileDoc("EMP0001", "A", "", ""))
	require.NoError(t, err)
	second, err := c.Save(ctx, profileDoc("EMP0001", "B", "", ""))
	require.NoError(t, err)

	assert.Greater(t, second.Seq, first.Seq)
}

func TestGetDocument_NotFound(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	_, err := c.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDelete_Tombstones(t *testing.T) {
	s := createTestStore(t)
	c := createTestCollection(t, s)
	ctx := context.Background()

	_, err := c.Save(ctx, profileDoc("EMP0001", "A", "B", "a@b.com"))
	require.NoError(t, err)

	ch, err := c.Delete(ctx, "EMP0001")
	require.NoError(t, err)
	assert.True(t, ch.Deleted)
	assert.Nil(t, ch.Properties)

	_, err = c.GetDocument(ctx, "EMP0001")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	// The row survives as a tombstone with an empty body.
	var body string
	var deleted bool
	err = s.db.QueryRow(`SELECT body, deleted FROM documents WHERE id = 'EMP0001'`).Scan(&body, &deleted)
	require.NoError(t, err)
	assert.Equal(t, "{}", body)
	assert.True(t, deleted)
}

func TestDelete_Twice(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	_, err := c.Save(ctx, profileDoc("EMP0001", "A", "B", "a@b.com"))
	require.NoError(t, err)

	_, err = c.Delete(ctx, "EMP0001")
	require.NoError(t, err)

	_, err = c.Delete(ctx, "EMP0001")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDelete_Absent(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	_, err := c.Delete(context.Background(), "never-existed")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestSave_AfterDeleteRevives(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	_, err := c.Save(ctx, profileDoc("EMP0001", "A", "", ""))
	require.NoError(t, err)
	_, err = c.Delete(ctx, "EMP0001")
	require.NoError(t, err)
	_, err = c.Save(ctx, profileDoc("EMP0001", "Back", "", ""))
	require.NoError(t, err)

	got, err := c.GetDocument(ctx, "EMP0001")
	require.NoError(t, err)
	assert.Equal(t, "Back", got.Properties["name"])
}

func TestCollections_AreIsolated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	profiles := createTestCollection(t, s)

	require.NoError(t, s.CreateCollection(ctx, testScope, "badges"))
	badges, err := s.Collection(ctx, testScope, "badges")
	require.NoError(t, err)

	_, err = profiles.Save(ctx, profileDoc("EMP0001", "A", "", ""))
	require.NoError(t, err)

	_, err = badges.GetDocument(ctx, "EMP0001")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestSave_PublishesChange(t *testing.T) {
	s := createTestStore(t)
	c := createTestCollection(t, s)
	ctx := context.Background()

	events := s.Changes().Subscribe()
	defer s.Changes().Unsubscribe(events)

	saved, err := c.Save(ctx, profileDoc("EMP0001", "A", "", ""))
	require.NoError(t, err)
	_, err = c.Delete(ctx, "EMP0001")
	require.NoError(t, err)

	e := <-events
	assert.Equal(t, changefeed.OpSave, e.Op)
	assert.Equal(t, "EMP0001", e.ID)
	assert.Equal(t, saved.Seq, e.Seq)
	assert.True(t, e.Local)
	assert.Equal(t, testScope, e.Scope)
	assert.Equal(t, testCollection, e.Collection)

	e = <-events
	assert.Equal(t, changefeed.OpDelete, e.Op)
}

func TestSave_ConcurrentDistinctIDs(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("EMP%04d", i)
			if _, err := c.Save(ctx, profileDoc(id, id, "t", "e")); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent save failed: %v", err)
	}

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestSave_ConcurrentReadsSeeWholeDocuments(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	_, err := c.Save(ctx, profileDoc("EMP0001", "v0", "v0", "v0"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 50; i++ {
			v := fmt.Sprintf("v%d", i)
			if _, err := c.Save(ctx, profileDoc("EMP0001", v, v, v)); err != nil {
				t.Errorf("save: %v", err)
				return
			}
		}
	}()

	fields := []string{"name", "title", "email"}
	for {
		select {
		case <-done:
			return
		default:
		}
		rows, err := c.Query(ctx, Selector{Fields: fields})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		v := rows[0].Values
		assert.Equal(t, v["name"], v["title"], "torn read")
		assert.Equal(t, v["name"], v["email"], "torn read")
	}
}
