// Package app wires the store, the profile manager and the replicator into
// one process-wide unit. It is the init hook the presentation layer calls
// once at startup.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/appsync/internal/config"
	"github.com/roach88/appsync/internal/profiles"
	"github.com/roach88/appsync/internal/replicator"
	"github.com/roach88/appsync/internal/replicator/pgremote"
	"github.com/roach88/appsync/internal/store"
)

// ErrSyncDisabled is returned by SyncOnce when the configuration does not
// enable replication.
var ErrSyncDisabled = errors.New("sync is not enabled")

// App owns the process's store, manager and sync coordinator.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store   *store.Store
	manager *profiles.Manager

	remote      replicator.Remote
	closeRemote func()
	coord       *replicator.Coordinator

	mu     sync.Mutex
	handle *replicator.Handle
}

type options struct {
	logger    *slog.Logger
	remote    replicator.Remote
	storeOpts []store.Option
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger passed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRemote replaces the remote the configuration would build. Sync must
// still be enabled in the configuration.
func WithRemote(r replicator.Remote) Option {
	return func(o *options) {
		o.remote = r
	}
}

// WithStoreOptions adds options for store.Open.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// Open opens the store, initializes the profile manager and, when sync is
// enabled, builds the coordinator. Sync is not started; call StartSync.
//
// Any error here is fatal to the caller: the App is unusable.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	storeOpts := append([]store.Option{store.WithDriver(cfg.Driver)}, o.storeOpts...)
	st, err := store.Open(cfg.DB, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DB, err)
	}
	o.logger.Debug("store opened", "path", cfg.DB, "driver", st.Driver(), "replica", st.ReplicaID())

	a := &App{cfg: cfg, logger: o.logger, store: st}

	a.manager = profiles.New(st,
		profiles.WithNamespace(cfg.Namespace.Scope, cfg.Namespace.Collection),
		profiles.WithSeeds(seedProvider(cfg.Seed)),
		profiles.WithTimeout(cfg.Timeout),
		profiles.WithLogger(o.logger),
	)
	if err := a.manager.Initialize(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize profiles: %w", err)
	}

	if cfg.Sync.Enabled {
		if err := a.openSync(ctx, o.remote); err != nil {
			st.Close()
			return nil, err
		}
	}
	return a, nil
}

func seedProvider(s config.Seed) profiles.SeedProvider {
	switch s.Source {
	case config.SeedNone:
		return profiles.NoSeeds()
	case config.SeedFile:
		return profiles.FileSeeds{Path: s.File}
	default:
		return profiles.DemoSeeds()
	}
}

func (a *App) openSync(ctx context.Context, remote replicator.Remote) error {
	sc := a.cfg.Sync
	a.closeRemote = func() {}

	switch {
	case remote != nil:
	case sc.Remote == config.RemotePostgres:
		pg, err := pgremote.Connect(ctx, sc.DSN, sc.Name)
		if err != nil {
			return err
		}
		if err := pg.EnsureTable(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("ensure remote table: %w", err)
		}
		remote = pg
		a.closeRemote = pg.Close
	default:
		remote = replicator.NewMemoryRemote(sc.Name)
	}

	a.remote = remote
	a.coord = replicator.New(a.store, remote,
		replicator.WithNamespace(a.cfg.Namespace.Scope, a.cfg.Namespace.Collection),
		replicator.WithInterval(sc.Interval),
		replicator.WithBatchSize(sc.Batch),
		replicator.WithTimeout(sc.Timeout),
		replicator.WithLogger(a.logger),
	)
	return nil
}

// Config returns the configuration the App was opened with.
func (a *App) Config() config.Config { return a.cfg }

// Store returns the shared store.
func (a *App) Store() *store.Store { return a.store }

// Profiles returns the initialized profile manager.
func (a *App) Profiles() *profiles.Manager { return a.manager }

// SyncEnabled reports whether a coordinator was built.
func (a *App) SyncEnabled() bool { return a.coord != nil }

// Remote returns the sync remote, or nil when sync is disabled.
func (a *App) Remote() replicator.Remote { return a.remote }

// StartSync starts the coordinator once and returns its handle. Later calls
// return the same handle. Returns nil when sync is disabled.
func (a *App) StartSync(ctx context.Context) *replicator.Handle {
	if a.coord == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle == nil {
		a.handle = a.coord.Start(ctx)
	}
	return a.handle
}

// SyncOnce runs one pass outside the background loop.
func (a *App) SyncOnce(ctx context.Context) (replicator.Stats, error) {
	if a.coord == nil {
		return replicator.Stats{}, ErrSyncDisabled
	}
	return a.coord.SyncOnce(ctx)
}

// Close stops sync, then closes the remote and the store.
func (a *App) Close() error {
	a.mu.Lock()
	h := a.handle
	a.handle = nil
	a.mu.Unlock()

	if h != nil {
		h.Stop()
	}
	if a.closeRemote != nil {
		a.closeRemote()
	}
	return a.store.Close()
}
