// cmd/assignd/main.go
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "inspector-rotation/internal/api/http"
	"inspector-rotation/internal/config"
	"inspector-rotation/internal/domain"
	"inspector-rotation/internal/infra/etcd"
	"inspector-rotation/internal/infra/memory"
	"inspector-rotation/internal/infra/sqlite"
	"inspector-rotation/internal/scheduler"
	"inspector-rotation/internal/tracing"
	"inspector-rotation/internal/trigger"
	"inspector-rotation/internal/usecase"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// corsMiddleware wraps an http.Handler with CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backend bundles the storage and coordination pieces for one store_backend.
type backend struct {
	inspectors domain.InspectorRepository
	complaints domain.ComplaintRepository
	rotation   domain.RotationStore
	locker     domain.Locker
	leader     domain.LeaderElectionManager
	// watch builds the complaint watcher; nil when the store has no change feed.
	watch func(trigger.ComplaintAssigner) usecase.Watcher
	close func()
}

func main() {
	// 1. Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 2. Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 3. Tracer
	var traceOut io.Writer
	if cfg.TraceStdout {
		traceOut = os.Stdout
	}
	tracerShutdown, err := tracing.InitTracer("inspector-rotation", traceOut)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	nodeID := uuid.New().String()
	logger.Info("starting assignment node", "node_id", nodeID, "backend", cfg.StoreBackend)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel, logger)

	// 4. Storage and coordination
	b, err := openBackend(rootCtx, cfg, nodeID, logger)
	if err != nil {
		log.Fatalf("Failed to open %s backend: %v", cfg.StoreBackend, err)
	}
	defer b.close()

	// 5. Services
	assigner := usecase.NewAssignmentService(b.inspectors, b.complaints, b.rotation, b.locker, cfg.LockTimeout, cfg.HistoryLimit, logger)
	complaintService := usecase.NewComplaintService(b.complaints, assigner, logger)
	inspectorService := usecase.NewInspectorService(b.inspectors, logger)

	sweeper, err := scheduler.NewCronSweeper(cfg.SweepSchedule, complaintService, logger)
	if err != nil {
		log.Fatalf("Invalid sweep schedule: %v", err)
	}
	var watcher usecase.Watcher
	if b.watch != nil {
		watcher = b.watch(complaintService)
	}
	triggerService := usecase.NewTriggerService(b.leader, sweeper, watcher, nodeID, logger)

	go func() {
		if err := triggerService.Start(rootCtx); err != nil {
			logger.Error("trigger service stopped with error", "error", err)
			cancel()
		}
	}()

	// 6. HTTP API
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	http_api.NewHandler(complaintService, inspectorService, assigner, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.HttpListenAddr,
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting HTTP API server", "addr", cfg.HttpListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("application shut down")
}

func openBackend(ctx context.Context, cfg *config.Config, nodeID string, logger *slog.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendEtcd:
		client, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			return nil, err
		}
		registry := etcd.NewNodeRegistry(client, logger)
		regCtx, regCancel := context.WithTimeout(ctx, cfg.EtcdTimeout)
		defer regCancel()
		if err := registry.Register(regCtx, nodeID, cfg.HttpListenAddr, int64(cfg.LeaderElectionTTL.Seconds())); err != nil {
			_ = client.Close()
			return nil, err
		}
		if nodes, err := registry.Nodes(regCtx); err == nil {
			logger.Info("connected to etcd", "nodes", nodes)
		}

		return &backend{
			inspectors: etcd.NewEtcdInspectorRepository(client, logger),
			complaints: etcd.NewEtcdComplaintRepository(client, logger),
			rotation:   etcd.NewEtcdRotationStore(client, logger),
			locker:     etcd.NewEtcdLocker(client),
			leader:     etcd.NewEtcdLeaderElectionManager(client, nodeID, cfg.LeaderElectionTTL, logger),
			watch: func(a trigger.ComplaintAssigner) usecase.Watcher {
				return trigger.NewComplaintWatcher(client, a, logger)
			},
			close: func() {
				deregCtx, deregCancel := context.WithTimeout(context.Background(), cfg.EtcdTimeout)
				defer deregCancel()
				if err := registry.Deregister(deregCtx); err != nil {
					logger.Warn("failed to deregister node", "error", err)
				}
				_ = client.Close()
			},
		}, nil

	case config.BackendSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			inspectors: store.Inspectors(),
			complaints: store.Complaints(),
			rotation:   store.Rotation(),
			locker:     memory.NewLocker(),
			leader:     memory.NewLeaderElection(),
			close:      func() { _ = store.Close() },
		}, nil

	default:
		store := memory.NewStore()
		return &backend{
			inspectors: store.Inspectors(),
			complaints: store.Complaints(),
			rotation:   store.Rotation(),
			locker:     memory.NewLocker(),
			leader:     memory.NewLeaderElection(),
			close:      func() {},
		}, nil
	}
}

func setupGracefulShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()
}
