package navigation

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stacnav/internal/entity"
	"stacnav/pkg/models"
)

// DefaultConcurrency bounds simultaneous loads in one prefetch batch.
const DefaultConcurrency = 10

// Loader is the part of the entity store the prefetcher needs.
type Loader interface {
	Load(ctx context.Context, uri string)
	Get(uri string) (models.EntityRecord, bool)
}

type Prefetcher struct {
	store   Loader
	limit   int
	metrics *entity.Metrics
	log     logrus.FieldLogger
}

// NewPrefetcher returns a prefetcher allowing at most limit loads in flight;
// limit <= 0 means DefaultConcurrency. metrics may be nil.
func NewPrefetcher(store Loader, limit int, metrics *entity.Metrics, log logrus.FieldLogger) *Prefetcher {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Prefetcher{store: store, limit: limit, metrics: metrics, log: logger(log)}
}

// PrefetchResult holds the settled record of every URI in a batch, in
// dispatch order.
type PrefetchResult struct {
	Records []models.EntityRecord
}

func (r PrefetchResult) Failed() []models.EntityRecord {
	var out []models.EntityRecord
	for _, rec := range r.Records {
		if rec.State == models.StateFailed {
			out = append(out, rec)
		}
	}
	return out
}

// Err summarizes failed loads. It is informational: a batch with failures
// still lets navigation proceed.
func (r PrefetchResult) Err() error {
	var merr *multierror.Error
	for _, rec := range r.Failed() {
		merr = multierror.Append(merr, fmt.Errorf("%s: %w", rec.URI, rec.Err))
	}
	return merr.ErrorOrNil()
}

// Prefetch loads every URI, at most limit at a time, and returns once all of
// them have settled. A failed load never cancels the others.
func (p *Prefetcher) Prefetch(ctx context.Context, uris []string) PrefetchResult {
	uris = dedupe(uris)
	p.metrics.ObserveBatch(len(uris))

	var g errgroup.Group
	g.SetLimit(p.limit)
	for _, u := range uris {
		g.Go(func() error {
			p.store.Load(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	res := PrefetchResult{Records: make([]models.EntityRecord, 0, len(uris))}
	for _, u := range uris {
		rec, _ := p.store.Get(u)
		res.Records = append(res.Records, rec)
	}

	if err := res.Err(); err != nil {
		p.log.WithField("uris", len(uris)).WithError(err).Info("prefetch settled with failures")
	}
	return res
}

func dedupe(uris []string) []string {
	seen := make(map[string]struct{}, len(uris))
	out := make([]string, 0, len(uris))
	for _, u := range uris {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
