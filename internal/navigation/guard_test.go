package navigation

import (
	"context"
	"net/http"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacnav/internal/entity"
	"stacnav/pkg/models"
)

func newTestGuard(t *testing.T, f entity.Fetcher, persisted string) (*Guard, *Router, *entity.Store) {
	t.Helper()
	router, _ := newTestRouter(t, "")
	logger, _ := logtest.NewNullLogger()
	store := entity.NewStore(f, entity.Options{Logger: logger})
	prefetcher := NewPrefetcher(store, 0, nil, logger)
	var rec *Reconciler
	if persisted != "" {
		rec = NewReconciler(PersistedState{Path: persisted})
	}
	return NewGuard(prefetcher, rec, logger), router, store
}

func TestGuard_SamePathIsNoop(t *testing.T) {
	f := newTrackingFetcher(0)
	g, router, _ := newTestGuard(t, f, "")
	codec := router.codec

	route := router.Match("/"+codec.Slugify("https://catalog.example/root/a.json"), "")
	d := g.BeforeEach(context.Background(), route, route)

	assert.True(t, d.Proceed())
	assert.Equal(t, 0, f.total())
}

func TestGuard_PrefetchesChain(t *testing.T) {
	a := "https://catalog.example/root/a/catalog.json"
	b := "https://catalog.example/root/a/b/collection.json"
	c := "https://catalog.example/root/a/b/items/c.json"

	f := newTrackingFetcher(0)
	f.status[b] = http.StatusInternalServerError
	g, router, store := newTestGuard(t, f, "")

	from := router.Match("/", "")
	to := router.Match("/item/"+router.codec.Path(a, b, c), "")

	d := g.BeforeEach(context.Background(), to, from)
	require.True(t, d.Proceed())

	// deepest first
	require.Len(t, d.Prefetch.Records, 3)
	assert.Equal(t, c, d.Prefetch.Records[0].URI)
	assert.Equal(t, a, d.Prefetch.Records[2].URI)

	for uri, want := range map[string]models.EntityState{a: models.StateLoaded, b: models.StateFailed, c: models.StateLoaded} {
		rec, ok := store.Get(uri)
		require.True(t, ok)
		assert.Equal(t, want, rec.State, uri)
	}

	// root is not part of the guarded batch
	_, ok := store.Get(root)
	assert.False(t, ok)
}

func TestGuard_NoSegmentsProceeds(t *testing.T) {
	f := newTrackingFetcher(0)
	g, router, _ := newTestGuard(t, f, "")

	d := g.BeforeEach(context.Background(), router.Match("/collection", ""), router.Match("/x", ""))
	assert.True(t, d.Proceed())
	assert.Empty(t, d.Prefetch.Records)
	assert.Equal(t, 0, f.total())
}

func TestGuard_RedirectsOnCaseMismatch(t *testing.T) {
	f := newTrackingFetcher(0)
	g, router, _ := newTestGuard(t, f, "/Collection/AbC")

	d := g.BeforeEach(context.Background(), router.Match("/collection/abc/", ""), router.Match("/", ""))
	assert.False(t, d.Proceed())
	assert.Equal(t, "/Collection/AbC", d.Redirect)
	assert.Equal(t, 0, f.total())

	// the redirected transition itself goes through
	d = g.BeforeEach(context.Background(), router.Match("/Collection/AbC", ""), router.Match("/", ""))
	assert.True(t, d.Proceed())
}
