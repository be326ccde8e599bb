package replicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/appsync/internal/changefeed"
	"github.com/roach88/appsync/internal/store"
)

// Defaults for Coordinator options.
const (
	DefaultScope      = "employees"
	DefaultCollection = "profiles"
	DefaultInterval   = 30 * time.Second
	DefaultBatchSize  = 100
	DefaultTimeout    = 30 * time.Second
)

// ErrFeedClosed ends the sync loop when the store's change feed closes,
// which happens when the store is closed underneath a running coordinator.
var ErrFeedClosed = errors.New("change feed closed")

// Stats counts replication work.
type Stats struct {
	Passes   int       `json:"passes"`
	Failures int       `json:"failures"`
	Pushed   int       `json:"pushed"`
	Pulled   int       `json:"pulled"`
	Applied  int       `json:"applied"`
	LastSync time.Time `json:"last_sync,omitzero"`
}

func (s *Stats) add(o Stats) {
	s.Passes += o.Passes
	s.Failures += o.Failures
	s.Pushed += o.Pushed
	s.Pulled += o.Pulled
	s.Applied += o.Applied
	if o.LastSync.After(s.LastSync) {
		s.LastSync = o.LastSync
	}
}

// Coordinator replicates one collection of a store with one Remote.
//
// Thread-safety model:
//   - SyncOnce(): safe from any goroutine; passes are serialized
//   - Start(): may be called more than once; each Handle runs its own loop
type Coordinator struct {
	store    *store.Store
	remote   Remote
	scope    string
	name     string
	interval time.Duration
	batch    int
	timeout  time.Duration
	logger   *slog.Logger

	passMu sync.Mutex // serializes passes

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNamespace sets the replicated collection.
func WithNamespace(scope, name string) Option {
	return func(c *Coordinator) {
		c.scope = scope
		c.name = name
	}
}

// WithInterval sets the periodic pass interval. Zero or negative disables
// the ticker; passes then run only on start, local writes and SyncNow.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.interval = d
	}
}

// WithBatchSize sets how many changes are pushed or pulled per round trip.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.batch = n
		}
	}
}

// WithTimeout bounds a single pass. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Coordinator. Nothing runs until Start or SyncOnce.
func New(st *store.Store, remote Remote, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		remote:   remote,
		scope:    DefaultScope,
		name:     DefaultCollection,
		interval: DefaultInterval,
		batch:    DefaultBatchSize,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("remote", remote.Name(), "scope", c.scope, "collection", c.name)
	return c
}

// Stats returns the cumulative counters of every pass run so far.
func (c *Coordinator) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// SyncOnce runs a single pass and returns its counters.
func (c *Coordinator) SyncOnce(ctx context.Context) (Stats, error) {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	st, err := c.pass(ctx)
	st.Passes = 1
	if err != nil {
		st.Failures = 1
	} else {
		st.LastSync = time.Now()
	}

	c.statsMu.Lock()
	c.stats.add(st)
	c.statsMu.Unlock()

	if err != nil {
		return st, fmt.Errorf("sync %s.%s with %s: %w", c.scope, c.name, c.remote.Name(), err)
	}
	return st, nil
}

// pass pushes, then pulls. The checkpoint is saved after every batch so an
// interrupted pass resumes where it stopped.
func (c *Coordinator) pass(ctx context.Context) (Stats, error) {
	var st Stats

	coll, err := c.store.Collection(ctx, c.scope, c.name)
	if err != nil {
		return st, err
	}

	cp, err := coll.Checkpoint(ctx, c.remote.Name())
	if err != nil {
		return st, err
	}

	for {
		changes, err := coll.LocalChangesSince(ctx, cp.PushedSeq, c.batch)
		if err != nil {
			return st, err
		}
		if len(changes) == 0 {
			break
		}
		if err := c.remote.Push(ctx, changes); err != nil {
			return st, err
		}
		cp.PushedSeq = changes[len(changes)-1].Seq
		if err := coll.SaveCheckpoint(ctx, c.remote.Name(), cp); err != nil {
			return st, err
		}
		st.Pushed += len(changes)
		if len(changes) < c.batch {
			break
		}
	}

	for {
		res, err := c.remote.Pull(ctx, PullRequest{
			Scope:      c.scope,
			Collection: c.name,
			After:      cp.PulledCursor,
			Limit:      c.batch,
			Exclude:    c.store.ReplicaID(),
		})
		if err != nil {
			return st, err
		}
		for _, ch := range res.Changes {
			applied, err := coll.ApplyRemote(ctx, ch)
			if err != nil {
				return st, err
			}
			st.Pulled++
			if applied {
				st.Applied++
			}
		}
		if res.Cursor > cp.PulledCursor {
			cp.PulledCursor = res.Cursor
			if err := coll.SaveCheckpoint(ctx, c.remote.Name(), cp); err != nil {
				return st, err
			}
		}
		if !res.More {
			break
		}
	}

	if st.Pushed > 0 || st.Applied > 0 {
		c.logger.Info("sync pass complete", "pushed", st.Pushed, "pulled", st.Pulled, "applied", st.Applied)
	} else {
		c.logger.Debug("sync pass complete, nothing to do")
	}
	return st, nil
}

// Start launches the sync loop and returns immediately. The loop ends when
// ctx is cancelled, Handle.Stop is called, or the store is closed.
func (c *Coordinator) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		coord:  c,
		cancel: cancel,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	// Subscribe before returning so no local write made after Start is missed.
	bus := c.store.Changes()
	events := bus.Subscribe()

	go func() {
		defer close(h.done)
		defer bus.Unsubscribe(events)
		h.setErr(c.loop(ctx, events, h.kick))
	}()
	return h
}

func (c *Coordinator) loop(ctx context.Context, events <-chan changefeed.Event, kick chan struct{}) error {
	c.logger.Info("sync coordinator starting", "interval", c.interval)

	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	c.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sync coordinator stopping: context cancelled")
			return nil

		case <-tick:
			c.runPass(ctx)

		case <-kick:
			c.runPass(ctx)

		case e, ok := <-events:
			if !ok {
				c.logger.Warn("sync coordinator stopping: change feed closed")
				return ErrFeedClosed
			}
			if !e.Local || e.Scope != c.scope || e.Collection != c.name {
				continue
			}
			// Coalesce bursts of writes into one pass.
			select {
			case kick <- struct{}{}:
			default:
			}
		}
	}
}

// runPass runs one pass on behalf of the loop. Failures are logged and left
// for the next trigger to retry.
func (c *Coordinator) runPass(ctx context.Context) {
	if _, err := c.SyncOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("sync pass failed", "error", err)
	}
}
