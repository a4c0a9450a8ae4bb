package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/dealroom/internal/adapter/auditlog"
	"github.com/xiaot623/dealroom/internal/config"
	"github.com/xiaot623/dealroom/internal/hub"
	"github.com/xiaot623/dealroom/internal/integrity"
	"github.com/xiaot623/dealroom/internal/logging"
	"github.com/xiaot623/dealroom/internal/metrics"
	"github.com/xiaot623/dealroom/internal/negotiation"
	"github.com/xiaot623/dealroom/internal/policy"
	"github.com/xiaot623/dealroom/internal/registry"
	store "github.com/xiaot623/dealroom/internal/repository"
	"github.com/xiaot623/dealroom/internal/service"
	"github.com/xiaot623/dealroom/internal/strategy"
	handler "github.com/xiaot623/dealroom/internal/transport/http"
	"github.com/xiaot623/dealroom/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dealroom: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting dealroom",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("database", cfg.DatabaseURL),
		zap.Int("max_rounds", cfg.MaxRounds),
		zap.Duration("round_delay", cfg.RoundDelay),
	)
	if cfg.AgentSigningKey == config.DefaultSigningKey {
		logger.Warn("AGENT_SIGNING_KEY not set, using the demo signing key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := store.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer db.Close()
		st = db
	} else {
		logger.Info("DATABASE_URL not set, sessions are kept in memory only")
	}

	reg := registry.New(st, logger)
	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	// Initialize audit log
	audit, closeAudit, err := auditlog.New(ctx, cfg.RedisURL, cfg.AuditKeyPrefix, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize audit log: %w", err)
	}
	defer func() { _ = closeAudit() }()

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	collector := metrics.NewCollector("dealroom")

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	eventHub := hub.New(logger)
	go eventHub.Run(hubCtx)

	orch := negotiation.New(negotiation.Config{
		MaxRounds:        cfg.MaxRounds,
		MaxCounterOffers: cfg.MaxCounterOffers,
		RoundDelay:       cfg.RoundDelay,
		SessionTimeout:   cfg.SessionTimeout,
	}, reg, integrity.NewSigner(cfg.AgentSigningKey), strategy.DefaultInventory(), audit, eventHub, collector, logger)

	// Initialize service
	svc := service.New(reg, orch, policyEngine, audit, cfg, logger)
	svc.SeedDemoAgents(ctx)

	wsServer := ws.NewServer(ws.Options{
		PingInterval: cfg.WSPingInterval,
		WriteTimeout: cfg.WSWriteTimeout,
		ReadTimeout:  cfg.WSReadTimeout,
	}, eventHub, svc, logger)
	server := handler.NewServer(svc, wsServer, collector, handler.Options{
		StartRateLimit: cfg.StartRateLimit,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("http api started", zap.String("addr", addr))
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down dealroom")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown http server gracefully", zap.Error(err))
		}
		if err := svc.Shutdown(shutdownCtx); err != nil {
			logger.Warn("negotiations still running at shutdown", zap.Error(err))
		}
		stopHub()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("dealroom stopped")
	return nil
}
