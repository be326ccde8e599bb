// Package testutil holds helpers shared by package tests that need a real
// store or have to wait on the change feed.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/appsync/internal/changefeed"
	"github.com/roach88/appsync/internal/store"
)

// DefaultWait bounds how long helpers wait for asynchronous events.
const DefaultWait = 5 * time.Second

// OpenStore opens a store in a fresh temp directory and closes it when the
// test ends. The replica id is fixed to "replica-<name>" for readable
// failures unless opts override it.
func OpenStore(t *testing.T, name string, opts ...store.Option) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".db")
	opts = append([]store.Option{store.WithReplicaID("replica-" + name)}, opts...)
	s, err := store.Open(path, opts...)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NextEvent waits up to DefaultWait for the next event on ch.
func NextEvent(t *testing.T, ch <-chan changefeed.Event) changefeed.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("change feed closed while waiting for event")
		}
		return e
	case <-time.After(DefaultWait):
		t.Fatal("timed out waiting for change event")
	}
	return changefeed.Event{}
}

// NoEvent asserts that nothing arrives on ch within d.
func NoEvent(t *testing.T, ch <-chan changefeed.Event, d time.Duration) {
	t.Helper()
	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("unexpected change event: %+v", e)
		}
	case <-time.After(d):
	}
}
