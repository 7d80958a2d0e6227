package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// Manager keeps the live sessions of one process.
type Manager struct {
	cfg  Config
	deps Deps
	idle time.Duration
	log  logrus.FieldLogger

	// OnCreate runs for every new session before it is started.
	OnCreate func(*Session)

	active prometheus.Gauge

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds a manager. idle <= 0 disables sweeping. reg may be nil.
func NewManager(cfg Config, deps Deps, idle time.Duration, reg prometheus.Registerer) *Manager {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		cfg:      cfg,
		deps:     deps,
		idle:     idle,
		log:      log.WithField("component", "session"),
		sessions: make(map[string]*Session),
	}
	if reg != nil {
		m.active = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "stacnav_sessions_active",
			Help: "Browsing sessions currently held in memory.",
		})
	}
	return m
}

// Create starts a new session and loads its root catalog.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	s, err := New(uuid.NewString(), m.cfg, m.deps)
	if err != nil {
		return nil, err
	}
	if m.OnCreate != nil {
		m.OnCreate(s)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.setActive(n)
	m.log.WithField("session_id", s.ID).Info("session created")

	s.Start(ctx)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep discards sessions idle for longer than the idle timeout and returns
// how many were removed.
func (m *Manager) Sweep() int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-m.idle)

	var stale []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		m.setActive(n)
		m.log.WithField("count", len(stale)).Info("swept idle sessions")
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

// Close discards every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	m.setActive(0)
}

func (m *Manager) setActive(n int) {
	if m.active != nil {
		m.active.Set(float64(n))
	}
}
