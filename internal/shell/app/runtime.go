// Package app wires the executor process: storage, execution backend, the
// claim loop, and the health endpoint orchestrators probe.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/logshell/logshell/internal/platform/timeouts"
	"github.com/logshell/logshell/internal/shell/backend"
	"github.com/logshell/logshell/internal/shell/executor"
	shellsqlite "github.com/logshell/logshell/internal/shell/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls executor startup and loop behavior.
type RuntimeConfig struct {
	Port           int
	DBPath         string
	Owner          string
	Channel        string
	PollInterval   time.Duration
	ClaimBatch     int
	CommandTimeout time.Duration
	MaxOutputBytes int
	StaleAfter     time.Duration
	SweepInterval  time.Duration
	MaxAttempts    int
}

const (
	defaultExecutorPort = 8090
	defaultExecutorDB   = "data/logshell.db"
)

// Run starts executor runtime dependencies and the claim loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultExecutorPort
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultExecutorDB
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = timeouts.Command
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = timeouts.StaleClaim
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := shellsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open shell sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close shell sqlite store: %v", closeErr)
		}
	}()

	loop, err := executor.New(store, backend.NewLocal(), nil, executor.Config{
		Owner:          cfg.Owner,
		Channel:        cfg.Channel,
		PollInterval:   cfg.PollInterval,
		ClaimBatch:     cfg.ClaimBatch,
		CommandTimeout: cfg.CommandTimeout,
		MaxOutputBytes: cfg.MaxOutputBytes,
		StaleAfter:     cfg.StaleAfter,
		SweepInterval:  cfg.SweepInterval,
		MaxAttempts:    cfg.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("build executor: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on executor port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("executor.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("executor %s listening at %v", loop.Owner(), listener.Addr())
	return loop.Run(ctx)
}
