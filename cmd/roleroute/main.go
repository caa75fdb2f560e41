package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"roleroute/internal/adapter/audit"
	"roleroute/internal/adapter/gateway"
	"roleroute/internal/adapter/provider"
	"roleroute/internal/catalog"
	"roleroute/internal/domain"
	"roleroute/internal/infra/config"
	"roleroute/internal/infra/logger"
	"roleroute/internal/infra/middleware"
	"roleroute/internal/infra/tracer"
	"roleroute/internal/usecase"
	"roleroute/internal/usecase/health"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "config file path")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	// 1. Config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Providers, each behind its own circuit breaker
	providers, err := provider.BuildRegistry(cfg.Providers, cfg.CircuitBreaker, log)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	// Pre-load local models in the background so the first routed
	// request does not pay the load latency.
	go provider.WarmupAll(ctx, providers, log)

	// 4. Catalog: fail fast on any declaration error
	cat, err := catalog.Build(cfg.Roles, cfg.Detector.DefaultRole, cfg.ProviderNames())
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	registry := catalog.NewRegistry(cat)
	log.Info("catalog loaded", "roles", len(cat.Roles()), "default_role", cat.DefaultRole().ID)

	// 5. Audit log
	var sink domain.TelemetrySink
	var auditStore *audit.SQLiteStore
	if cfg.Audit.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0o755); err != nil {
			return fmt.Errorf("audit dir: %w", err)
		}
		auditStore, err = audit.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer auditStore.Close()
		sink = auditStore
	}

	// 6. Routing pipeline
	router := usecase.NewRouter(
		registry,
		usecase.NewDetector(cfg.Detector.MinScore),
		usecase.NewSelector(),
		usecase.NewInvoker(providers, usecase.InvokerConfig{
			AttemptTimeout: cfg.Invoker.AttemptTimeout,
			MaxTokens:      cfg.Invoker.MaxTokens,
		}, log),
		sink,
		log,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 7. Health monitor
	var monitor *health.Monitor
	if cfg.Health.Enabled {
		monitor = health.NewMonitor(providers, cfg.Health.ProbeTimeout, log)
		if err := monitor.Start(ctx, cfg.Health.Schedule); err != nil {
			return fmt.Errorf("health: %w", err)
		}
		defer monitor.Stop()
	}

	// 8. Gateway
	if !cfg.Gateway.Enabled {
		log.Info("gateway disabled, nothing to serve")
		<-ctx.Done()
		return nil
	}

	tokens := make([]gateway.TokenEntry, len(cfg.Gateway.Tokens))
	for i, t := range cfg.Gateway.Tokens {
		tokens[i] = gateway.TokenEntry{Name: t.Name, Token: t.Token}
	}

	var limiter *middleware.RateLimiter
	if cfg.Gateway.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(ctx, cfg.Gateway.RateLimit.RequestsPerMin, cfg.Gateway.RateLimit.Burst)
	}

	srv := gateway.NewServer(gateway.NewStaticTokenAuth(tokens), limiter, cfg.Gateway.Addr, log)
	deps := gateway.HandlerDeps{
		Router:      router,
		Registry:    registry,
		Audit:       auditStore,
		Health:      monitor,
		Reload:      reloadFunc(cfgPath, registry, log),
		Logger:      log,
		Concurrency: cfg.Aggregate.Concurrency,
	}
	gateway.RegisterDefaultHandlers(srv, deps)
	gateway.RegisterRESTHandlers(srv, deps)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// reloadFunc re-reads the config file, rebuilds the catalog, and swaps it
// atomically. Provider credentials and gateway settings stay as started;
// only the role catalog is hot-reloadable.
func reloadFunc(cfgPath string, registry *catalog.Registry, log *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("reload config: %w", err)
		}
		cat, err := catalog.Build(cfg.Roles, cfg.Detector.DefaultRole, cfg.ProviderNames())
		if err != nil {
			return fmt.Errorf("reload catalog: %w", err)
		}
		registry.Swap(cat)
		log.Info("catalog swapped", "roles", len(cat.Roles()))
		return nil
	}
}
