package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostgate/hostgate/internal/balancer"
	"github.com/hostgate/hostgate/internal/config"
	"github.com/hostgate/hostgate/internal/discovery"
	"github.com/hostgate/hostgate/internal/health"
	"github.com/hostgate/hostgate/internal/logging"
	"github.com/hostgate/hostgate/internal/metrics"
	"github.com/hostgate/hostgate/internal/proxy"
	"github.com/hostgate/hostgate/internal/ratelimit"
	"github.com/hostgate/hostgate/internal/registry"
	"github.com/hostgate/hostgate/internal/retry"
	"github.com/hostgate/hostgate/internal/routing"
	"github.com/hostgate/hostgate/internal/tlsconfig"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Create logger
	logger := logging.NewLogger("hostgate")
	logger.Info("starting_proxy")

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed_to_load_config", "error", err.Error())
		log.Fatal(err)
	}

	// Create metrics collector
	collector := metrics.NewCollector()

	// Create backend registry
	reg := registry.NewRegistry(logger.With("registry"))

	// Create context for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start health monitor before any endpoint registers so every endpoint
	// gets a probe loop from the moment it appears
	monitor := health.NewMonitor(reg, cfg.HealthCheck, collector, logger.With("health"))
	monitor.Start(ctx)

	// Seed or stream backends per the configured discovery mode
	if err := startDiscovery(ctx, cfg, reg, logger); err != nil {
		logger.Error("failed_to_start_discovery", "error", err.Error())
		log.Fatal(err)
	}

	// Create strategy based on config
	strategy := balancer.ForName(cfg.Strategy)
	if strategy == nil {
		logger.Warn("unknown_strategy_using_weighted_round_robin",
			"strategy", cfg.Strategy)
		strategy = balancer.NewWeightedRoundRobin()
	}
	logger.Info("strategy_selected",
		"strategy", strategy.Name())

	// Create passive tracker
	passiveTracker := health.NewPassiveTracker(reg, 5, logger.With("health"))

	// Create retry policy
	var retryPolicy *retry.Policy
	if cfg.Retry.Enabled {
		retryPolicy = retry.NewPolicy(cfg.Retry.BudgetPercent, cfg.Retry.MaxBodyBufferBytes)
		logger.Info("retry_enabled",
			"budget_percent", cfg.Retry.BudgetPercent,
			"max_body_buffer_bytes", cfg.Retry.MaxBodyBufferBytes)
	}

	logger.Info("request_timeout_configured",
		"timeout_seconds", cfg.RequestTimeout)

	// Create proxy engine
	requestTimeout := time.Duration(cfg.RequestTimeout) * time.Second
	engine := proxy.NewEngine(
		routing.New(buildRules(cfg)),
		reg,
		strategy,
		passiveTracker,
		retryPolicy,
		ratelimit.NewLimiter(),
		requestTimeout,
		collector,
		logger.With("proxy"),
	)

	// Start metrics exporter
	var budget *retry.Budget
	if retryPolicy != nil {
		budget = retryPolicy.GetBudget()
	}
	exporter := metrics.NewExporter(collector, reg, budget)
	go exporter.Start(ctx)

	// Start config watcher for hot reload
	configWatcher, err := config.NewWatcher(*configPath, logger.With("config"), func(newCfg *config.Config) error {
		logger.Info("applying_config_reload")

		// Swap the routing table atomically; in-flight requests keep the
		// table they resolved against
		engine.UpdateTable(routing.New(buildRules(newCfg)))

		// Re-seed static pools; Register is idempotent so surviving
		// endpoints keep their liveness state
		if newCfg.Discovery.Mode != "events" {
			pools, err := newCfg.ParsePools()
			if err != nil {
				return err
			}
			if err := discovery.NewStatic(reg, pools, logger.With("discovery")).Run(ctx); err != nil {
				return err
			}
		}

		logger.Info("routes_reloaded", "count", len(newCfg.Routes))
		return nil
	})
	if err != nil {
		logger.Error("failed_to_create_config_watcher", "error", err.Error())
	} else {
		go configWatcher.Start(ctx)
	}

	// Admin server: metrics and the proxy's own health, kept off the
	// proxied listener so they can never shadow a backend route
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/gate-health", func(w http.ResponseWriter, r *http.Request) {
		healthy := reg.HealthyCount()
		if healthy == 0 {
			http.Error(w, "No healthy backends", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","healthy_backends":%d}`, healthy)
	})

	adminServer := &http.Server{
		Addr:    cfg.AdminListen,
		Handler: adminMux,
	}
	go func() {
		logger.Info("admin_server_starting", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin_server_error", "error", err.Error())
		}
	}()

	// Main proxy server
	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: engine,
	}

	// Optional TLS listener sharing the same engine
	var tlsServer *http.Server
	if cfg.TLS.Listen != "" {
		store, err := tlsconfig.NewStore(cfg.TLS.Certificates)
		if err != nil {
			logger.Error("failed_to_load_certificates", "error", err.Error())
			log.Fatal(err)
		}
		tlsServer = &http.Server{
			Addr:      cfg.TLS.Listen,
			Handler:   engine,
			TLSConfig: store.Config(),
		}
		go func() {
			logger.Info("tls_server_starting", "addr", tlsServer.Addr)
			if err := tlsServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				logger.Error("tls_server_error", "error", err.Error())
				log.Fatal(err)
			}
		}()
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in background
	go func() {
		logger.Info("server_starting",
			"addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server_error", "error", err.Error())
			log.Fatal(err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info("shutdown_signal_received")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_error", "error", err.Error())
	}
	if tlsServer != nil {
		if err := tlsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("tls_shutdown_error", "error", err.Error())
		}
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin_shutdown_error", "error", err.Error())
	}

	// Cancel background contexts
	cancel()

	logger.Info("shutdown_complete")
}

// buildRules converts configured routes into routing rules
func buildRules(cfg *config.Config) []routing.Rule {
	rules := make([]routing.Rule, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		rule := routing.Rule{
			Host:       rc.Host,
			PathPrefix: rc.PathPrefix,
			PoolID:     rc.Pool,
		}
		if rc.RateLimit != nil {
			rule.RatePerSec = rc.RateLimit.RequestsPerSecond
			rule.RateBurst = rc.RateLimit.Burst
		}
		rules = append(rules, rule)
	}
	return rules
}

// startDiscovery wires the configured discovery adapter into the registry
func startDiscovery(ctx context.Context, cfg *config.Config, reg *registry.Registry, logger *logging.Logger) error {
	dlog := logger.With("discovery")

	switch cfg.Discovery.Mode {
	case "events":
		in := os.Stdin
		if cfg.Discovery.EventsFile != "-" {
			f, err := os.Open(cfg.Discovery.EventsFile)
			if err != nil {
				return fmt.Errorf("open events file: %w", err)
			}
			in = f
		}
		source := discovery.NewJSONSource(in, dlog)
		stream := discovery.NewStream(reg, source, dlog)
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				dlog.Error("event_discovery_failed", "error", err.Error())
			}
		}()
		return nil

	default: // static
		pools, err := cfg.ParsePools()
		if err != nil {
			return err
		}
		return discovery.NewStatic(reg, pools, dlog).Run(ctx)
	}
}
