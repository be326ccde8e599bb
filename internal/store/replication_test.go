package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/appsync/internal/doc"
)

func remoteChange(id string, props map[string]string, deleted bool) Change {
	return Change{
		ID:         id,
		Properties: props,
		Deleted:    deleted,
		Revision:   doc.MustRevision(id, props, deleted),
		Origin:     "replica-remote",
	}
}

func TestLocalChangesSince(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	a, err := c.Save(ctx, profileDoc("EMP0001", "A", "", ""))
	require.NoError(t, err)
	_, err = c.Save(ctx, profileDoc("EMP0002", "B", "", ""))
	require.NoError(t, err)
	_, err = c.Delete(ctx, "EMP0001")
	require.NoError(t, err)

	all, err := c.LocalChangesSince(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2, "one row per document, latest write wins")
	assert.Equal(t, "EMP0002", all[0].ID)
	assert.Equal(t, "EMP0001", all[1].ID)
	assert.True(t, all[1].Deleted)
	assert.Nil(t, all[1].Properties)

	after, err := c.LocalChangesSince(ctx, a.Seq+1, 0)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "EMP0001", after[0].ID)

	limited, err := c.LocalChangesSince(ctx, 0, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestApplyRemote_InsertsWithRemoteOrigin(t *testing.T) {
	s := createTestStore(t)
	c := createTestCollection(t, s)
	ctx := context.Background()

	events := s.Changes().Subscribe()
	defer s.Changes().Unsubscribe(events)

	applied, err := c.ApplyRemote(ctx, remoteChange("EMP0100", map[string]string{"name": "Remote"}, false))
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := c.GetDocument(ctx, "EMP0100")
	require.NoError(t, err)
	assert.Equal(t, "Remote", got.Properties["name"])

	e := <-events
	assert.False(t, e.Local)
	assert.Equal(t, "replica-remote", e.Origin)

	// Remote-origin writes are never reported as local changes.
	local, err := c.LocalChangesSince(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, local)
}

func TestApplyRemote_SameRevisionIsSkipped(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	props := map[string]string{"name": "A", "title": "B", "email": "a@b.com"}
	_, err := c.Save(ctx, doc.New("EMP0001", props))
	require.NoError(t, err)

	applied, err := c.ApplyRemote(ctx, remoteChange("EMP0001", props, false))
	require.NoError(t, err)
	assert.False(t, applied)

	// Still attributed to the local replica.
	local, err := c.LocalChangesSince(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, local, 1)
}

func TestApplyRemote_OverwritesLocal(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	_, err := c.Save(ctx, profileDoc("EMP0001", "Local", "", ""))
	require.NoError(t, err)

	applied, err := c.ApplyRemote(ctx, remoteChange("EMP0001", map[string]string{"name": "Remote"}, false))
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := c.GetDocument(ctx, "EMP0001")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Remote"}, got.Properties)
}

func TestApplyRemote_Delete(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	_, err := c.Save(ctx, profileDoc("EMP0001", "A", "", ""))
	require.NoError(t, err)

	applied, err := c.ApplyRemote(ctx, remoteChange("EMP0001", nil, true))
	require.NoError(t, err)
	assert.True(t, applied)

	_, err = c.GetDocument(ctx, "EMP0001")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	// Replaying the same tombstone is a no-op.
	applied, err = c.ApplyRemote(ctx, remoteChange("EMP0001", nil, true))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyRemote_DeleteUnknownIsSkipped(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))

	applied, err := c.ApplyRemote(context.Background(), remoteChange("ghost", nil, true))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyRemote_RecomputesRevision(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	in := remoteChange("EMP0001", map[string]string{"name": "A"}, false)
	in.Revision = "bogus"
	_, err := c.ApplyRemote(ctx, in)
	require.NoError(t, err)

	rows, err := c.Query(ctx, Selector{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var rev string
	require.NoError(t, c.store.db.QueryRow(`SELECT revision FROM documents WHERE id = 'EMP0001'`).Scan(&rev))
	assert.Equal(t, doc.MustRevision("EMP0001", map[string]string{"name": "A"}, false), rev)
}

func TestApplyRemote_EmptyID(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	_, err := c.ApplyRemote(context.Background(), Change{})
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	c := createTestCollection(t, createTestStore(t))
	ctx := context.Background()

	cp, err := c.Checkpoint(ctx, "memory")
	require.NoError(t, err)
	assert.Equal(t, Checkpoint{}, cp)

	require.NoError(t, c.SaveCheckpoint(ctx, "memory", Checkpoint{PushedSeq: 4, PulledCursor: 9}))
	require.NoError(t, c.SaveCheckpoint(ctx, "memory", Checkpoint{PushedSeq: 5, PulledCursor: 11}))

	cp, err = c.Checkpoint(ctx, "memory")
	require.NoError(t, err)
	assert.Equal(t, Checkpoint{PushedSeq: 5, PulledCursor: 11}, cp)

	other, err := c.Checkpoint(ctx, "postgres")
	require.NoError(t, err)
	assert.Equal(t, Checkpoint{}, other)
}
