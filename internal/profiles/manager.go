package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/appsync/internal/changefeed"
	"github.com/roach88/appsync/internal/doc"
	"github.com/roach88/appsync/internal/profile"
	"github.com/roach88/appsync/internal/store"
)

// Namespace defaults.
const (
	DefaultScope      = "employees"
	DefaultCollection = "profiles"
)

// DefaultTimeout bounds every storage call made by the Manager.
const DefaultTimeout = 5 * time.Second

// State is the Manager lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SeedReport describes what Initialize did about seeding.
type SeedReport struct {
	// Seeded is true when the collection was found empty and seeding ran.
	Seeded bool `json:"seeded"`

	// Saved counts records written; less than Attempted on partial failure.
	Saved int `json:"saved"`

	// Attempted counts records the provider returned.
	Attempted int `json:"attempted"`

	// Err is the error that stopped seeding, if any. Partial seeding is not
	// retried: the collection is no longer empty on the next start.
	Err error `json:"-"`
}

// Manager is the profile collection manager.
//
// Thread-safety model:
//   - Initialize(): serialized internally; later calls are no-ops
//   - all other methods: safe from any goroutine once Ready
type Manager struct {
	store   *store.Store
	scope   string
	name    string
	seeds   SeedProvider
	timeout time.Duration
	logger  *slog.Logger

	initMu   sync.Mutex
	state    atomic.Int32
	coll     atomic.Pointer[store.Collection] // set once by Initialize
	lastSeed SeedReport                       // guarded by initMu
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the scope and collection name. They are fixed for the
// lifetime of the Manager.
func WithNamespace(scope, name string) Option {
	return func(m *Manager) {
		m.scope = scope
		m.name = name
	}
}

// WithSeeds sets the provider consulted when the collection is empty.
// Default: DemoSeeds().
func WithSeeds(p SeedProvider) Option {
	return func(m *Manager) {
		if p != nil {
			m.seeds = p
		}
	}
}

// WithTimeout bounds each storage call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates an uninitialized Manager over st.
func New(st *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:   st,
		scope:   DefaultScope,
		name:    DefaultCollection,
		seeds:   DemoSeeds(),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("scope", m.scope, "collection", m.name)
	return m
}

// Scope returns the configured scope.
func (m *Manager) Scope() string { return m.scope }

// Collection returns the configured collection name.
func (m *Manager) Collection() string { return m.name }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// LastSeed returns the report of the seeding decision made by Initialize.
func (m *Manager) LastSeed() SeedReport {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	return m.lastSeed
}

// Initialize ensures the collection exists, caches its handle and seeds it
// when empty. An existing collection is not an error. Failure to obtain the
// collection handle is returned and leaves the Manager Uninitialized; the
// caller must not continue startup.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.State() == StateReady {
		return nil
	}
	m.state.Store(int32(StateInitializing))

	coll, err := m.ensureCollection(ctx)
	if err != nil {
		m.state.Store(int32(StateUninitialized))
		return err
	}
	m.coll.Store(coll)

	m.lastSeed = m.seedIfEmpty(ctx, coll)

	m.state.Store(int32(StateReady))
	m.logger.Debug("profile manager initialized")
	return nil
}

func (m *Manager) ensureCollection(ctx context.Context) (*store.Collection, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	err := m.store.CreateCollection(ctx, m.scope, m.name)
	switch {
	case err == nil:
		m.logger.Info("collection created")
	case errors.Is(err, store.ErrCollectionExists):
		m.logger.Debug("collection creation skipped", "reason", err)
	default:
		return nil, newError(KindStorage, "initialize", "", err)
	}

	coll, err := m.store.Collection(ctx, m.scope, m.name)
	if err != nil {
		return nil, newError(KindStorage, "initialize", "", err)
	}
	return coll, nil
}

// seedIfEmpty writes the provider's records when coll has no documents.
// Errors are recorded in the report and logged; they do not fail Initialize.
func (m *Manager) seedIfEmpty(ctx context.Context, coll *store.Collection) SeedReport {
	empty, err := m.isEmpty(ctx, coll)
	if err != nil {
		m.logger.Warn("emptiness check failed, skipping seed", "error", err)
		return SeedReport{Err: err}
	}
	if !empty {
		return SeedReport{}
	}

	records, err := m.seeds.Seeds(ctx)
	if err != nil {
		m.logger.Error("seed provider failed", "error", err)
		return SeedReport{Seeded: true, Err: err}
	}

	report := SeedReport{Seeded: true, Attempted: len(records)}
	for _, p := range records {
		if err := m.save(ctx, coll, p); err != nil {
			m.logger.Error("seeding stopped", "id", p.ID, "saved", report.Saved, "error", err)
			report.Err = err
			return report
		}
		report.Saved++
	}
	m.logger.Info("inserted seed profiles", "count", report.Saved)
	return report
}

// collection returns the cached handle, or a KindNotReady error.
func (m *Manager) collection(op string) (*store.Collection, error) {
	coll := m.coll.Load()
	if coll == nil || m.State() != StateReady {
		return nil, newError(KindNotReady, op, "", ErrNotReady)
	}
	return coll, nil
}

// IsEmpty reports whether the collection holds no live documents.
// It probes for a single id and never reads document bodies.
func (m *Manager) IsEmpty(ctx context.Context) (bool, error) {
	coll, err := m.collection("is_empty")
	if err != nil {
		return false, err
	}
	return m.isEmpty(ctx, coll)
}

func (m *Manager) isEmpty(ctx context.Context, coll *store.Collection) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	rows, err := coll.Query(ctx, store.Selector{Limit: 1})
	if err != nil {
		m.logger.Error("emptiness probe failed", "error", err)
		return false, newError(KindQueryFailure, "is_empty", "", err)
	}
	return len(rows) == 0, nil
}

// GetAll returns every profile in the collection. No order is promised to
// callers. A failed query is returned as KindQueryFailure, never as an empty
// result.
func (m *Manager) GetAll(ctx context.Context) ([]profile.Profile, error) {
	coll, err := m.collection("get_all")
	if err != nil {
		return nil, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	rows, err := coll.Query(ctx, store.Selector{Fields: profile.FieldNames})
	if err != nil {
		m.logger.Error("query error", "error", err)
		return nil, newError(KindQueryFailure, "get_all", "", err)
	}

	profiles := make([]profile.Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, profile.FromProperties(row.ID, row.Values))
	}
	m.logger.Debug("retrieved profiles", "count", len(profiles))
	return profiles, nil
}

// Get returns the profile with the given id, or a KindNotFound error.
func (m *Manager) Get(ctx context.Context, id string) (profile.Profile, error) {
	coll, err := m.collection("get")
	if err != nil {
		return profile.Profile{}, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	d, err := coll.GetDocument(ctx, id)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return profile.Profile{}, newError(KindNotFound, "get", id, err)
	}
	if err != nil {
		return profile.Profile{}, newError(KindQueryFailure, "get", id, err)
	}
	return profile.FromProperties(d.ID, d.Properties), nil
}

// Count returns the number of profiles.
func (m *Manager) Count(ctx context.Context) (int, error) {
	coll, err := m.collection("count")
	if err != nil {
		return 0, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	n, err := coll.Count(ctx)
	if err != nil {
		return 0, newError(KindQueryFailure, "count", "", err)
	}
	return n, nil
}

// Save upserts p by id. All four fields replace the stored document; no
// property of an earlier version survives.
func (m *Manager) Save(ctx context.Context, p profile.Profile) error {
	coll, err := m.collection("save")
	if err != nil {
		return err
	}
	return m.save(ctx, coll, p)
}

func (m *Manager) save(ctx context.Context, coll *store.Collection, p profile.Profile) error {
	if err := p.Validate(); err != nil {
		return newError(KindInvalidRecord, "save", p.ID, err)
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if _, err := coll.Save(ctx, doc.New(p.ID, p.Properties())); err != nil {
		return newError(KindStorage, "save", p.ID, err)
	}
	m.logger.Debug("saved/updated document", "id", p.ID)
	return nil
}

// Delete removes the profile with the given id. Deleting an id that is not
// present, including the empty id, is logged and returns nil, so Delete may
// be repeated safely.
func (m *Manager) Delete(ctx context.Context, id string) error {
	coll, err := m.collection("delete")
	if err != nil {
		return err
	}
	if id == "" {
		// No document can have an empty id, so there is nothing to delete.
		m.logger.Info("document not found", "id", id)
		return nil
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err = coll.Delete(ctx, id)
	switch {
	case errors.Is(err, store.ErrDocumentNotFound):
		m.logger.Info("document not found", "id", id)
		return nil
	case err != nil:
		return newError(KindStorage, "delete", id, err)
	}
	m.logger.Debug("deleted document", "id", id)
	return nil
}

// Watch streams committed changes to this Manager's collection, whether
// written locally or applied by the replicator. Call stop to release the
// subscription; the channel is closed afterwards. Events are dropped if the
// reader falls behind.
func (m *Manager) Watch() (events <-chan changefeed.Event, stop func()) {
	bus := m.store.Changes()
	src := bus.Subscribe()
	out := make(chan changefeed.Event, changefeed.SubscriberBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case e, ok := <-src:
				if !ok {
					return
				}
				if e.Scope != m.scope || e.Collection != m.name {
					continue
				}
				select {
				case out <- e:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			close(done)
			bus.Unsubscribe(src)
		})
	}
	return out, stop
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}
