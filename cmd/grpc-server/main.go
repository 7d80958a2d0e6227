package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"stacnav/internal/entity"
	"stacnav/internal/grpcserver"
	"stacnav/pkg/utils"
)

// grpc-server runs only the catalog health probe, for deployments that
// check the upstream catalog separately from the API.
func main() {
	configPath := flag.String("config", os.Getenv("STACNAV_CONFIG"), "path to a YAML config file")
	interval := flag.Duration("interval", 30*time.Second, "probe interval")
	flag.Parse()

	cfg, err := utils.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log, err := utils.NewLogger(cfg.Log)
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}
	if cfg.GRPC.Addr == "" {
		log.Fatal("grpc.addr is empty")
	}

	listener, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatalf("grpc listen failed: %v", err)
	}

	fetcher := entity.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent, cfg.Fetch.MaxBodyBytes)
	probe := grpcserver.NewServer(fetcher, cfg.Catalog.URL, cfg.Fetch.Timeout, log)

	grpcServer := grpc.NewServer()
	probe.Register(grpcServer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go probe.Run(ctx, *interval)
	go func() {
		<-ctx.Done()
		probe.Shutdown()
		grpcServer.GracefulStop()
	}()

	log.Infof("gRPC health server listening on %s", cfg.GRPC.Addr)
	if err := grpcServer.Serve(listener); err != nil {
		log.Fatalf("grpc server stopped: %v", err)
	}
}
