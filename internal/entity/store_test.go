package entity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacnav/pkg/models"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(uri string) (*Response, error)
	gate    chan struct{} // when set, fetches block until it is closed
}

func newFakeFetcher(respond func(uri string) (*Response, error)) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), respond: respond}
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri string) (*Response, error) {
	f.mu.Lock()
	f.calls[uri]++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return f.respond(uri)
}

func (f *fakeFetcher) count(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[uri]
}

func okJSON(body string) (*Response, error) {
	return &Response{OK: true, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func newTestStore(f Fetcher) *Store {
	logger, _ := logtest.NewNullLogger()
	return NewStore(f, Options{Logger: logger})
}

func TestLoad_Loaded(t *testing.T) {
	f := newFakeFetcher(func(string) (*Response, error) {
		return okJSON(`{"id":"root","stac_version":"1.0.0"}`)
	})
	s := newTestStore(f)

	_, ok := s.Get("https://c.example/catalog.json")
	assert.False(t, ok)

	s.Load(context.Background(), "https://c.example/catalog.json")

	rec, ok := s.Get("https://c.example/catalog.json")
	require.True(t, ok)
	assert.Equal(t, models.StateLoaded, rec.State)
	assert.Equal(t, "root", rec.Document.String("id"))
	assert.NoError(t, rec.Err)
	assert.False(t, s.IsLoading("https://c.example/catalog.json"))
}

func TestLoad_FailureKinds(t *testing.T) {
	tests := []struct {
		name    string
		respond func(string) (*Response, error)
		kind    string
		message string
	}{
		{
			name: "http error keeps body text",
			respond: func(string) (*Response, error) {
				return &Response{StatusCode: 500, Body: []byte("upstream exploded")}, nil
			},
			kind:    "http_error",
			message: "upstream exploded",
		},
		{
			name:    "null body",
			respond: func(string) (*Response, error) { return okJSON("null") },
			kind:    "empty_response",
			message: ErrEmptyResponse.Error(),
		},
		{
			name:    "empty body",
			respond: func(string) (*Response, error) { return okJSON("") },
			kind:    "empty_response",
		},
		{
			name:    "false body",
			respond: func(string) (*Response, error) { return okJSON("false") },
			kind:    "empty_response",
		},
		{
			name:    "broken json",
			respond: func(string) (*Response, error) { return okJSON("{nope") },
			kind:    "network_or_parse",
		},
		{
			name:    "array document",
			respond: func(string) (*Response, error) { return okJSON("[1,2]") },
			kind:    "network_or_parse",
		},
		{
			name:    "transport error",
			respond: func(string) (*Response, error) { return nil, errors.New("connection refused") },
			kind:    "network_or_parse",
		},
		{
			name:    "fetcher panic",
			respond: func(string) (*Response, error) { panic("boom") },
			kind:    "network_or_parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(newFakeFetcher(tt.respond))

			assert.NotPanics(t, func() { s.Load(context.Background(), "u") })

			rec, ok := s.Get("u")
			require.True(t, ok)
			assert.Equal(t, models.StateFailed, rec.State)
			require.Error(t, rec.Err)
			assert.Equal(t, tt.kind, FailureKind(rec.Err))
			if tt.message != "" {
				assert.Equal(t, tt.message, rec.ErrorText())
			}
			assert.Nil(t, rec.Document)
		})
	}
}

func TestLoad_IdempotentOnTerminalRecords(t *testing.T) {
	f := newFakeFetcher(func(uri string) (*Response, error) {
		if uri == "bad" {
			return &Response{StatusCode: 404, Body: []byte("missing")}, nil
		}
		return okJSON(`{"id":"a"}`)
	})
	s := newTestStore(f)
	ctx := context.Background()

	s.Load(ctx, "good")
	s.Load(ctx, "bad")
	first, _ := s.Get("good")
	failed, _ := s.Get("bad")

	s.Load(ctx, "good")
	s.Load(ctx, "bad")

	assert.Equal(t, 1, f.count("good"))
	assert.Equal(t, 1, f.count("bad"))

	again, _ := s.Get("good")
	assert.Equal(t, first, again)
	stillFailed, _ := s.Get("bad")
	assert.Equal(t, failed, stillFailed)
}

func TestLoad_ConcurrentCallsShareOneRequest(t *testing.T) {
	f := newFakeFetcher(func(string) (*Response, error) { return okJSON(`{"id":"shared"}`) })
	f.gate = make(chan struct{})
	s := newTestStore(f)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]models.EntityRecord, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Load(context.Background(), "u")
			results[i], _ = s.Get("u")
		}(i)
	}

	require.Eventually(t, func() bool { return s.IsLoading("u") }, time.Second, time.Millisecond)
	rec, ok := s.Get("u")
	require.True(t, ok)
	assert.Equal(t, models.StateLoading, rec.State)

	close(f.gate)
	wg.Wait()

	assert.Equal(t, 1, f.count("u"))
	for _, r := range results {
		assert.Equal(t, models.StateLoaded, r.State)
		assert.Equal(t, results[0], r)
	}
}

func TestLoad_WaiterHonoursContext(t *testing.T) {
	f := newFakeFetcher(func(string) (*Response, error) { return okJSON(`{"id":"slow"}`) })
	f.gate = make(chan struct{})
	s := newTestStore(f)

	go s.Load(context.Background(), "u")
	require.Eventually(t, func() bool { return s.IsLoading("u") }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Load(ctx, "u")
	assert.True(t, s.IsLoading("u"))

	close(f.gate)
	require.Eventually(t, func() bool { return !s.IsLoading("u") }, time.Second, time.Millisecond)
	assert.Equal(t, 1, f.count("u"))
}

func TestLoad_SurvivesCallerCancellation(t *testing.T) {
	f := newFakeFetcher(func(string) (*Response, error) { return okJSON(`{"id":"late"}`) })
	s := newTestStore(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Load(ctx, "u")

	rec, _ := s.Get("u")
	assert.Equal(t, models.StateLoaded, rec.State)
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(newFakeFetcher(func(string) (*Response, error) { return okJSON(`{"id":"x"}`) }))

	var mu sync.Mutex
	var states []models.EntityState
	unsubscribe := s.Subscribe(func(rec models.EntityRecord) {
		mu.Lock()
		states = append(states, rec.State)
		mu.Unlock()
	})

	s.Load(context.Background(), "a")
	unsubscribe()
	s.Load(context.Background(), "b")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.EntityState{models.StateLoading, models.StateLoaded}, states)
}

func TestSnapshot(t *testing.T) {
	s := newTestStore(newFakeFetcher(func(string) (*Response, error) { return okJSON(`{"id":"x"}`) }))
	s.Load(context.Background(), "b")
	s.Load(context.Background(), "a")

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].URI)
	assert.Equal(t, "b", snap[1].URI)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	logger, _ := logtest.NewNullLogger()

	f := newFakeFetcher(func(uri string) (*Response, error) {
		if uri == "bad" {
			return &Response{StatusCode: 502, Body: []byte("bad gateway")}, nil
		}
		return okJSON(`{"id":"x"}`)
	})
	s := NewStore(f, Options{Metrics: m, Logger: logger})

	s.Load(context.Background(), "good")
	s.Load(context.Background(), "bad")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("http_error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalog.json":
			assert.Equal(t, "stacnav-test", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"root"}`))
		case "/big.json":
			_, _ = w.Write([]byte(`{"padding":"` + strings.Repeat("x", 64) + `"}`))
		default:
			http.Error(w, "no such catalog", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "stacnav-test", 32)
	ctx := context.Background()

	resp, err := f.Fetch(ctx, srv.URL+"/catalog.json")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "application/json", resp.ContentType)
	v, err := resp.JSON()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "root"}, v)

	resp, err = f.Fetch(ctx, srv.URL+"/missing.json")
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Text(), "no such catalog")

	_, err = f.Fetch(ctx, srv.URL+"/big.json")
	assert.Error(t, err)
}

func TestStoreWithHTTPFetcher_CountsRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"id":"root"}`))
	}))
	defer srv.Close()

	s := newTestStore(NewHTTPFetcher(5*time.Second, "", 0))
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Load(context.Background(), srv.URL+"/catalog.json")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	rec, _ := s.Get(srv.URL + "/catalog.json")
	assert.Equal(t, models.StateLoaded, rec.State)
}

func TestLoad_PanickingObserverDoesNotWedgeURI(t *testing.T) {
	f := newFakeFetcher(func(string) (*Response, error) { return okJSON(`{"id":"x"}`) })
	logger, hook := logtest.NewNullLogger()
	s := NewStore(f, Options{Logger: logger})

	s.Subscribe(func(rec models.EntityRecord) {
		if rec.State == models.StateLoading {
			panic("observer exploded")
		}
	})
	var seen atomic.Int32
	s.Subscribe(func(models.EntityRecord) { seen.Add(1) })

	assert.NotPanics(t, func() { s.Load(context.Background(), "u") })

	rec, ok := s.Get("u")
	require.True(t, ok)
	assert.Equal(t, models.StateLoaded, rec.State)
	assert.False(t, s.IsLoading("u"))
	assert.Equal(t, int32(2), seen.Load())
	assert.NotEmpty(t, hook.AllEntries())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Load(ctx, "u")
	assert.NoError(t, ctx.Err())
	assert.Equal(t, 1, f.count("u"))
}
