package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/config"
	"weftlabs/weft/pkg/engine"
	"weftlabs/weft/pkg/facts"
	"weftlabs/weft/pkg/graph"
	"weftlabs/weft/pkg/identity"
	"weftlabs/weft/pkg/policy"
	"weftlabs/weft/pkg/syncer"
	"weftlabs/weft/pkg/telemetry/logging"
	"weftlabs/weft/pkg/telemetry/metrics"
	"weftlabs/weft/pkg/transport"
)

// sweepInterval drives the pending-command expiry check.
const sweepInterval = 30 * time.Second

var runFlags struct {
	initGraph bool
	logLevel  string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Weft daemon",
	Long: `Start the Weft daemon with the specified configuration.

The daemon loads the device signing key, opens the graph and fact stores,
replays the durable graph to rebuild fact state, and begins synchronizing
with the configured peers.

Examples:
  # Start and create a fresh graph on this device
  weft run --init

  # Start with a custom config
  weft run --config /etc/weft/config.yaml

  # Override log level
  weft run --log-level debug`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runFlags.initGraph, "init", false, "dispatch a graph-init command if no graph exists yet")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	keys, err := identity.LoadKeystore(cfg.Identity.KeyPath, cfg.Identity.TrustedKeysDir)
	if err != nil {
		return fmt.Errorf("failed to load device key (run \"weft keys generate\" first): %w", err)
	}
	logger.Info("device identity loaded",
		"device", cfg.Device.Name,
		"author", keys.CurrentAuthor())

	graphStore, err := openGraphStore(cfg.Storage.Graph)
	if err != nil {
		return err
	}
	defer graphStore.Close()

	factStore, err := openFactStore(cfg.Storage.Facts)
	if err != nil {
		return err
	}
	defer factStore.Close()

	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)

	eng, err := engine.New(engine.Options{
		Provider:            keys,
		Graph:               graph.New(graphStore, logger),
		Facts:               factStore,
		Logger:              logger,
		Metrics:             collector,
		UnknownAuthorBuffer: cfg.Identity.UnknownAuthorBuffer,
		PendingTimeout:      cfg.Sync.PendingTimeout,
		OnEffect:            logEffect(logger),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to replay graph: %w", err)
	}

	if runFlags.initGraph {
		if err := initGraph(ctx, eng, logger); err != nil {
			return err
		}
	}

	udp, err := transport.NewUDP(cfg.Sync.ListenAddress, logger)
	if err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}
	defer udp.Close()

	sync, err := syncer.New(syncer.Options{
		Config:    cfg.Sync,
		Transport: udp,
		Source:    eng,
		Ingest:    eng,
		Logger:    logger,
		Metrics:   collector,
	})
	if err != nil {
		return err
	}
	sync.Start(ctx)

	var watcher *identity.KeyWatcher
	if cfg.Identity.WatchTrustedKeys {
		if err := os.MkdirAll(cfg.Identity.TrustedKeysDir, 0o700); err != nil {
			return fmt.Errorf("failed to create trusted keys dir: %w", err)
		}
		watcher = identity.NewKeyWatcher(keys, cfg.Identity.TrustedKeysDir, logger)
		watcher.OnKeyLoaded = func(author identity.AuthorID) {
			eng.AuthorKeyLoaded(context.Background(), author)
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
	}

	metricsSrv := startMetricsServer(cfg.Telemetry.Metrics, collector, logger)

	go sweepLoop(ctx, eng)

	fmt.Printf("Weft %s\n", Version)
	fmt.Printf("✓ Device %s (%s)\n", cfg.Device.Name, keys.CurrentAuthor())
	fmt.Printf("✓ Listening on %s, syncing with %d peer(s)\n", udp.LocalAddr(), len(cfg.Sync.Peers))
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}
	if watcher != nil {
		watcher.Stop()
	}
	udp.Close()
	sync.Stop()

	fmt.Println("✓ Daemon stopped")
	return nil
}

// initGraph dispatches an init command unless the device already has a
// graph, so --init is safe on restart.
func initGraph(ctx context.Context, eng *engine.Engine, logger *slog.Logger) error {
	heads, err := eng.Heads(ctx)
	if err != nil {
		return err
	}
	if len(heads) > 0 {
		logger.Debug("graph already exists, skipping init")
		return nil
	}

	if _, err := eng.Dispatch(ctx, command.InitFields{Nonce: uuid.NewString()}); err != nil {
		return fmt.Errorf("failed to init graph: %w", err)
	}
	logger.Info("graph initialized")
	return nil
}

func openGraphStore(cfg config.BackendConfig) (graph.Store, error) {
	switch cfg.Backend {
	case "memory":
		return graph.NewMemoryStore(), nil
	case "sqlite":
		return graph.NewSQLiteStore(graph.SQLiteConfig{
			Path:        cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported graph backend: %s", cfg.Backend)
	}
}

func openFactStore(cfg config.BackendConfig) (facts.Store, error) {
	switch cfg.Backend {
	case "memory":
		return facts.NewMemoryStore(), nil
	case "sqlite":
		return facts.NewSQLiteStore(facts.SQLiteConfig{
			Path:        cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported fact backend: %s", cfg.Backend)
	}
}

// logEffect is the default effect handler: effects surface in the log until
// an application embeds the engine directly.
func logEffect(logger *slog.Logger) func(policy.Effect) {
	return func(effect policy.Effect) {
		switch e := effect.(type) {
		case policy.AmbientColorChanged:
			logger.Info("ambient color changed", "color", e.Color)
		case policy.MessagePosted:
			logger.Info("message posted", "author", e.Author, "text", e.Text)
		case policy.AuthorAdded:
			logger.Info("author added", "author", e.Author, "name", e.Name)
		default:
			logger.Info("effect", "kind", effect.EffectKind())
		}
	}
}

func startMetricsServer(cfg config.MetricsConfig, collector *metrics.Collector, logger *slog.Logger) *http.Server {
	if !cfg.Enabled || cfg.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: cfg.ListenAddress, Handler: mux}

	go func() {
		logger.Info("metrics endpoint listening", "address", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func sweepLoop(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			eng.SweepPending(now)
		}
	}
}
