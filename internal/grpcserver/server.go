// Package grpcserver exposes the standard gRPC health service. The process
// reports SERVING while its root catalog loads and NOT_SERVING after the
// latest probe failed.
package grpcserver

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"stacnav/internal/entity"
	"stacnav/pkg/models"
)

// ServiceName is the health service name reported next to the overall "".
const ServiceName = "stacnav.Navigator"

type Server struct {
	fetcher entity.Fetcher
	root    string
	timeout time.Duration
	log     logrus.FieldLogger

	health *health.Server

	mu   sync.RWMutex
	last models.EntityRecord
}

func NewServer(fetcher entity.Fetcher, root string, timeout time.Duration, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		fetcher: fetcher,
		root:    root,
		timeout: timeout,
		log:     log.WithField("component", "health"),
		health:  health.NewServer(),
		last:    models.EntityRecord{URI: root, State: models.StateUnrequested},
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register adds the health service to g.
func (s *Server) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.health)
}

// Health is the underlying health service.
func (s *Server) Health() healthpb.HealthServer { return s.health }

// Probe loads the root catalog into a throwaway store and updates the
// serving status from the outcome.
func (s *Server) Probe(ctx context.Context) models.EntityRecord {
	store := entity.NewStore(s.fetcher, entity.Options{FetchTimeout: s.timeout, Logger: s.log})
	store.Load(ctx, s.root)
	rec, _ := store.Get(s.root)

	s.mu.Lock()
	prev := s.last.State
	s.last = rec
	s.mu.Unlock()

	if rec.State == models.StateLoaded {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if prev != rec.State {
		s.log.WithFields(logrus.Fields{"uri": s.root, "state": rec.State}).Info("root catalog probed")
	}
	return rec
}

// Run probes immediately and then every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Probe(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Probe(ctx)
		}
	}
}

// Root returns the latest probe result and whether it loaded.
func (s *Server) Root() (models.EntityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last.State == models.StateLoaded
}

// Shutdown marks every service NOT_SERVING for good.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}
