package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/orbitdeck/catalog"
	"github.com/signalsfoundry/orbitdeck/config"
	"github.com/signalsfoundry/orbitdeck/core"
	"github.com/signalsfoundry/orbitdeck/engine"
	"github.com/signalsfoundry/orbitdeck/internal/api"
	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/internal/observability"
	"github.com/signalsfoundry/orbitdeck/timectrl"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config (defaults baked in when empty)")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "orbitdeck-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addrOverride string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingCfg := observability.TracingConfigFromEnv()
	tracingCfg.CatalogBaseURL = cfg.Catalog.BaseURL
	tracingCfg.TickInterval = cfg.Tick()
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	storeOpts := []catalog.StoreOption{
		catalog.WithTTL(cfg.CatalogTTL()),
		catalog.WithLogger(log),
		catalog.WithFetchRecorder(collector),
	}
	if cfg.Catalog.FallbackPath != "" {
		fallback, err := catalog.LoadFallbackFile(cfg.Catalog.FallbackPath)
		if err != nil {
			return fmt.Errorf("load fallback catalog: %w", err)
		}
		storeOpts = append(storeOpts, catalog.WithFallback(fallback))
	}

	provider := catalog.NewHTTPProvider(cfg.Catalog.BaseURL,
		catalog.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Catalog.FetchTimeoutSecs) * time.Second,
		}),
		catalog.WithHTTPLogger(log),
		catalog.WithMaxRetries(cfg.Catalog.FetchRetries),
	)
	store := catalog.NewStore(provider, storeOpts...)

	eng := engine.New(store, core.NewSGP4Propagator(), engine.Config{
		Criteria: cfg.Criteria(),
		Weights:  cfg.ScoreWeights(),
		Budget:   cfg.RenderBudget(),
		Debounce: cfg.Debounce(),
	}, engine.WithLogger(log), engine.WithMetrics(collector))

	// First population. Fetch failures degrade to stale/fallback data rather
	// than aborting startup; the status endpoint reports the condition.
	if err := eng.RefreshCatalog(ctx, cfg.Categories()); err != nil {
		log.Warn(ctx, "initial catalog refresh incomplete",
			logging.String("error", err.Error()),
		)
	}

	go refreshLoop(ctx, eng, cfg, log)

	clock := timectrl.NewFrameClock(time.Now().UTC(), cfg.Tick(), timectrl.RealTime)
	clock.AddListener(eng.Tick)
	clockDone := clock.Run(0)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(eng, log, collector).Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "server listening", logging.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		clock.Stop()
		<-clockDone
		return err
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down")
	clock.Stop()
	<-clockDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// refreshLoop re-fetches all configured categories on the refresh cadence so
// selection keeps tracking upstream catalog changes.
func refreshLoop(ctx context.Context, eng *engine.Engine, cfg *config.Config, log logging.Logger) {
	ticker := time.NewTicker(cfg.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.RefreshCatalog(ctx, cfg.Categories()); err != nil {
				log.Warn(ctx, "periodic catalog refresh incomplete",
					logging.String("error", err.Error()),
				)
			}
		}
	}
}
