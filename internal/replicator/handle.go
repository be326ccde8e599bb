package replicator

import "sync"

// Handle controls a running sync loop.
type Handle struct {
	coord  *Coordinator
	cancel func()
	kick   chan struct{}
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Stop cancels the loop and waits for it to exit. Safe to call more than
// once and from any goroutine.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Done is closed when the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns why the loop exited: nil after Stop or context cancellation,
// ErrFeedClosed if the store was closed first. Err returns nil while the
// loop is running.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// SyncNow requests a pass without waiting for it. Requests made while a pass
// is pending coalesce.
func (h *Handle) SyncNow() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

// Stats returns the coordinator's cumulative counters.
func (h *Handle) Stats() Stats {
	return h.coord.Stats()
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}
