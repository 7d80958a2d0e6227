package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"stacnav/internal/browse"
	"stacnav/internal/entity"
	"stacnav/internal/events"
	"stacnav/internal/grpcserver"
	"stacnav/internal/history"
	"stacnav/internal/session"
	"stacnav/internal/validate"
	"stacnav/pkg/database"
	"stacnav/pkg/utils"
)

func main() {
	configPath := flag.String("config", os.Getenv("STACNAV_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := utils.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log, err := utils.NewLogger(cfg.Log)
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := entity.NewMetrics(reg)

	fetcher := entity.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent, cfg.Fetch.MaxBodyBytes)

	var (
		db       *sql.DB
		repo     *history.Repo
		recorder session.Recorder
		lister   browse.HistoryLister
	)
	if cfg.History.Path != "" {
		db = database.MustOpen(database.Config{Path: cfg.History.Path})
		defer db.Close()
		if err := database.Migrate(db); err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
		repo = history.NewRepo(db)
		recorder, lister = repo, repo
	}

	hub := events.NewHub(log)
	manager := session.NewManager(
		session.Config{
			RootURL:             cfg.Catalog.URL,
			IndexPath:           cfg.Catalog.IndexPath,
			FetchTimeout:        cfg.Fetch.Timeout,
			PrefetchConcurrency: cfg.Prefetch.Concurrency,
		},
		session.Deps{
			Fetcher:  fetcher,
			Provider: validate.NewSchemaProvider(cfg.Schema.URLTemplate, log),
			Metrics:  metrics,
			History:  recorder,
			Logger:   log,
		},
		cfg.Session.IdleTimeout,
		reg,
	)
	manager.OnCreate = hub.Attach

	probe := grpcserver.NewServer(fetcher, cfg.Catalog.URL, cfg.Fetch.Timeout, log)
	tokens := session.TokenService{
		Secret:   []byte(cfg.Session.Secret),
		Issuer:   cfg.Session.Issuer,
		Duration: cfg.Session.TTL,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	handler := browse.NewHandler(lister, probe, log)
	handler.RegisterProbes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	router.GET("/debug", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": manager.Len(),
			"events":   hub.Stats(),
			"history":  cfg.History.Path,
		})
	})

	start := session.Middleware(manager, tokens)
	handler.RegisterRoutes(router, start, session.Require(manager, tokens))
	router.GET("/ws", start, events.WSHandler(hub))

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcSrv *grpc.Server
	var grpcLis net.Listener
	if cfg.GRPC.Addr != "" {
		// bind early so address errors surface before serving HTTP
		grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			log.Fatalf("grpc listen failed: %v", err)
		}
		grpcSrv = grpc.NewServer()
		probe.Register(grpcSrv)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		probe.Run(ctx, 30*time.Second)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		manager.Run(ctx, time.Minute)
	}()

	if grpcSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("gRPC health server listening on %s", cfg.GRPC.Addr)
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithField("catalog", cfg.Catalog.URL).Infof("HTTP API server listening on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Errorf("server error: %v", err)
	}

	log.Info("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stop()
	probe.Shutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown error: %v", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	manager.Close()

	wg.Wait()
	log.Info("servers stopped")
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	}
}
