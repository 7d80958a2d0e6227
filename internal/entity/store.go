// Package entity caches the load state and payload of every catalog resource
// requested during a browsing session.
//
// Each URI moves through loading to a terminal loaded or failed record
// exactly once. Records are never evicted; a failed record stays failed for
// the session.
package entity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"stacnav/pkg/models"
)

const defaultFetchTimeout = 30 * time.Second

// Observer is told about every state change. It is called without the store
// lock held, from the goroutine performing the load. Panics are recovered.
type Observer func(rec models.EntityRecord)

type Options struct {
	// FetchTimeout bounds one fetch. Fetches outlive the caller's context so
	// an abandoned navigation still settles its records.
	FetchTimeout time.Duration
	Metrics      *Metrics
	Logger       logrus.FieldLogger
}

type Store struct {
	fetcher Fetcher
	timeout time.Duration
	metrics *Metrics
	log     logrus.FieldLogger
	now     func() time.Time

	mu        sync.RWMutex
	records   map[string]models.EntityRecord // terminal records only
	loading   map[string]chan struct{}       // closed when the load settles
	observers map[int]Observer
	nextObs   int
}

func NewStore(fetcher Fetcher, opts Options) *Store {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Store{
		fetcher:   fetcher,
		timeout:   opts.FetchTimeout,
		metrics:   opts.Metrics,
		log:       opts.Logger.WithField("component", "entity"),
		now:       time.Now,
		records:   make(map[string]models.EntityRecord),
		loading:   make(map[string]chan struct{}),
		observers: make(map[int]Observer),
	}
}

// Load brings uri to a terminal state. Terminal URIs are left alone. When
// another caller is already loading uri, Load issues no request and waits for
// that load to settle or for ctx to be done. Failures are stored, never
// returned.
func (s *Store) Load(ctx context.Context, uri string) {
	s.mu.Lock()
	if _, ok := s.records[uri]; ok {
		s.mu.Unlock()
		return
	}
	if done, ok := s.loading[uri]; ok {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.loading[uri] = done
	s.mu.Unlock()

	s.notify(models.EntityRecord{URI: uri, State: models.StateLoading})

	rec := s.fetch(ctx, uri)

	s.mu.Lock()
	s.records[uri] = rec
	delete(s.loading, uri)
	close(done)
	s.mu.Unlock()

	s.notify(rec)
}

// Get returns the record for uri. The second result is false for URIs that
// were never requested.
func (s *Store) Get(uri string) (models.EntityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[uri]; ok {
		return rec, true
	}
	if _, ok := s.loading[uri]; ok {
		return models.EntityRecord{URI: uri, State: models.StateLoading}, true
	}
	return models.EntityRecord{URI: uri, State: models.StateUnrequested}, false
}

// IsLoading reports whether a fetch for uri is in flight.
func (s *Store) IsLoading(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loading[uri]
	return ok
}

// Snapshot returns every known record ordered by URI.
func (s *Store) Snapshot() []models.EntityRecord {
	s.mu.RLock()
	out := make([]models.EntityRecord, 0, len(s.records)+len(s.loading))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	for uri := range s.loading {
		out = append(out, models.EntityRecord{URI: uri, State: models.StateLoading})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Subscribe registers obs and returns a function that removes it.
func (s *Store) Subscribe(obs Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(rec models.EntityRecord) {
	s.mu.RLock()
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.mu.RUnlock()

	for _, o := range obs {
		s.call(o, rec)
	}
}

// call runs one observer. A panicking observer must not leave uri marked as
// loading, so it is logged and skipped.
func (s *Store) call(o Observer, rec models.EntityRecord) {
	defer func() {
		if p := recover(); p != nil {
			s.log.WithFields(logrus.Fields{"uri": rec.URI, "state": rec.State}).Errorf("observer panic: %v", p)
		}
	}()
	o(rec)
}

func (s *Store) fetch(ctx context.Context, uri string) (rec models.EntityRecord) {
	start := s.now()
	s.metrics.fetchStarted()

	defer func() {
		if p := recover(); p != nil {
			rec = s.failed(uri, fmt.Errorf("%w: panic: %v", ErrNetworkOrParse, p))
		}
		result := "loaded"
		if rec.State == models.StateFailed {
			result = FailureKind(rec.Err)
		}
		s.metrics.fetchDone(result, s.now().Sub(start).Seconds())
	}()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	s.log.WithField("uri", uri).Debug("loading")

	resp, err := s.fetcher.Fetch(fctx, uri)
	if err != nil {
		return s.failed(uri, fmt.Errorf("%w: %w", ErrNetworkOrParse, err))
	}
	if !resp.OK {
		return s.failed(uri, &HTTPError{StatusCode: resp.StatusCode, Body: resp.Text()})
	}

	v, err := resp.JSON()
	if err != nil {
		return s.failed(uri, fmt.Errorf("%w: %w", ErrNetworkOrParse, err))
	}
	if falsy(v) {
		return s.failed(uri, ErrEmptyResponse)
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return s.failed(uri, fmt.Errorf("%w: document is a %T, not an object", ErrNetworkOrParse, v))
	}

	return models.EntityRecord{
		URI:         uri,
		State:       models.StateLoaded,
		Document:    models.Document(doc),
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		FetchedAt:   s.now(),
		Duration:    s.now().Sub(start),
	}
}

func (s *Store) failed(uri string, err error) models.EntityRecord {
	s.log.WithFields(logrus.Fields{"uri": uri, "kind": FailureKind(err)}).WithError(err).Warn("load failed")
	return models.EntityRecord{URI: uri, State: models.StateFailed, Err: err}
}

// falsy follows JSON truthiness: null, false, 0 and "" carry no document.
func falsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	}
	return false
}
