// Package session owns the per-browser navigation state: one entity store,
// one router and one transition guard per session, created lazily and swept
// when idle.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"stacnav/internal/entity"
	"stacnav/internal/navigation"
	"stacnav/internal/slug"
	"stacnav/internal/uri"
	"stacnav/internal/validate"
	"stacnav/pkg/models"
)

// Recorder persists guarded navigations. history.Repo implements it.
type Recorder interface {
	Add(ctx context.Context, entry models.NavigationEntry) error
}

type Config struct {
	RootURL             string
	IndexPath           string
	FetchTimeout        time.Duration
	PrefetchConcurrency int
}

// Deps are shared by every session of a manager.
type Deps struct {
	Fetcher  entity.Fetcher
	Provider validate.Provider
	Metrics  *entity.Metrics
	History  Recorder
	Logger   logrus.FieldLogger
}

type Session struct {
	ID        string
	CreatedAt time.Time

	Resolver   *uri.Resolver
	Codec      *slug.Codec
	Store      *entity.Store
	Router     *navigation.Router
	Dispatcher *validate.Dispatcher

	prefetcher *navigation.Prefetcher
	history    Recorder
	log        logrus.FieldLogger

	mu         sync.Mutex
	guard      *navigation.Guard
	reconciler *navigation.Reconciler
	current    navigation.Route
	lastSeen   time.Time
	onClose    []func()
	closed     bool
}

func New(id string, cfg Config, deps Deps) (*Session, error) {
	resolver, err := uri.NewResolver(cfg.RootURL)
	if err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("session_id", id)

	codec := slug.NewCodec(resolver, log)
	store := entity.NewStore(deps.Fetcher, entity.Options{
		FetchTimeout: cfg.FetchTimeout,
		Metrics:      deps.Metrics,
		Logger:       log,
	})
	router := navigation.NewRouter(codec, resolver.Root(), cfg.IndexPath)
	navLog := log.WithField("component", "navigation")
	prefetcher := navigation.NewPrefetcher(store, cfg.PrefetchConcurrency, deps.Metrics, navLog)

	now := time.Now()
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		Resolver:   resolver,
		Codec:      codec,
		Store:      store,
		Router:     router,
		Dispatcher: validate.NewDispatcher(deps.Provider),
		prefetcher: prefetcher,
		history:    deps.History,
		log:        navLog,
		guard:      navigation.NewGuard(prefetcher, nil, navLog),
		current:    router.Match("/", ""),
		lastSeen:   now,
	}
	return s, nil
}

// Start loads the root catalog. It blocks until the root record is terminal
// or ctx is done.
func (s *Session) Start(ctx context.Context) {
	s.Store.Load(ctx, s.Resolver.Root())
}

// SetPersistedState installs the state a server-rendered page was built
// with. Only the next guarded transition is reconciled against it.
func (s *Session) SetPersistedState(st navigation.PersistedState) {
	rec := navigation.NewReconciler(st)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciler = rec
	s.guard = navigation.NewGuard(s.prefetcher, rec, s.log)
}

// Persisted returns the installed server-rendered path, or "".
func (s *Session) Persisted() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Persisted()
}

// Current returns the last route the session navigated to.
func (s *Session) Current() navigation.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Navigate runs a guarded transition to path. On a redirect the current
// route is left unchanged and the caller is expected to navigate to
// Decision.Redirect.
func (s *Session) Navigate(ctx context.Context, path, hash string) (navigation.Route, navigation.Decision) {
	s.touch()
	to := s.Router.Match(path, hash)

	s.mu.Lock()
	from, guard := s.current, s.guard
	s.mu.Unlock()

	decision := guard.BeforeEach(ctx, to, from)
	if decision.Proceed() {
		s.mu.Lock()
		s.current = to
		s.mu.Unlock()
	}

	s.record(ctx, from, to, decision)
	return to, decision
}

// Chain returns the records of route's ancestors, root first.
func (s *Session) Chain(route navigation.Route) []models.EntityRecord {
	out := make([]models.EntityRecord, 0, len(route.Ancestors))
	for _, u := range route.Ancestors {
		rec, _ := s.Store.Get(u)
		out = append(out, rec)
	}
	return out
}

// OnClose registers fn to run when the session is discarded.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		go fn()
		return
	}
	s.onClose = append(s.onClose, fn)
}

func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fns := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// LastSeen reports when the session last navigated or was looked up.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) record(ctx context.Context, from, to navigation.Route, d navigation.Decision) {
	if s.history == nil || from.Path == to.Path {
		return
	}
	entry := models.NavigationEntry{
		SessionID:  s.ID,
		FromPath:   from.Path,
		ToPath:     to.Path,
		Redirect:   d.Redirect,
		Prefetched: len(d.Prefetch.Records),
		Failed:     len(d.Prefetch.Failed()),
		At:         time.Now().UTC(),
	}
	// a lost history row must not fail the navigation
	if err := s.history.Add(context.WithoutCancel(ctx), entry); err != nil {
		s.log.WithError(err).Warn("unable to record navigation")
	}
}
