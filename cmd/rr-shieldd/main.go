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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-shield/internal/shield/common/clock"
	"github.com/haukened/rr-shield/internal/shield/common/log"
	"github.com/haukened/rr-shield/internal/shield/config"
	"github.com/haukened/rr-shield/internal/shield/domain"
	"github.com/haukened/rr-shield/internal/shield/gateways/dataset"
	"github.com/haukened/rr-shield/internal/shield/gateways/nativecompiler"
	"github.com/haukened/rr-shield/internal/shield/infra/metrics"
	"github.com/haukened/rr-shield/internal/shield/repos/protection"
	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata"
	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata/bloom"
	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata/bolt"
	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata/lru"
	"github.com/haukened/rr-shield/internal/shield/services/rules"
	"github.com/haukened/rr-shield/internal/shield/services/scripts"
	"github.com/haukened/rr-shield/internal/shield/services/settings"
	"github.com/haukened/rr-shield/internal/shield/services/updating"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-shieldd"

	datasetExt             = ".json"
	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the content-blocking daemon.
type Application struct {
	config    *config.AppConfig
	logger    log.Logger
	registry  *prometheus.Registry
	bootstrap *dataset.Bootstrap

	trackerData *trackerdata.Manager
	store       trackerdata.Store
	protection  *protection.Repository
	rules       *rules.Manager
	bus         *settings.Bus
	settings    *settings.MemoryStore
	updating    *updating.Updating
	settingsSub *settings.Subscription

	datasets *dataset.Watcher
	lists    *dataset.Watcher
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.LogLevel,
		"rulesets":   cfg.Rulesets,
		"bootstrap":  cfg.Dataset.Bootstrap,
		"watch_dir":  cfg.Dataset.WatchDir,
		"protection": cfg.Protection.Dir,
	}, "Starting "+appName)

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				log.Info(nil, "Reload signal received")
				app.reloadProtection()
				app.rules.RequestUpdate(newToken())
				continue
			}
			log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
			cancel()
			return
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	app := &Application{
		config:    cfg,
		logger:    log.GetLogger(),
		registry:  prometheus.NewRegistry(),
		bootstrap: dataset.NewBootstrap(cfg.Dataset.Bootstrap, cfg.Dataset.MaxSize),
	}
	clk := clock.RealClock{}

	if err := app.buildTrackerData(clk); err != nil {
		return nil, fmt.Errorf("failed to build tracker data: %w", err)
	}

	app.protection = protection.NewRepository(cfg.Protection.Dir, log.Component("protection"))
	if _, err := app.protection.Reload(); err != nil {
		// previous (empty) lists stay in effect
		log.Warn(map[string]any{"dir": cfg.Protection.Dir, "error": err}, "Protection lists unavailable at startup")
	}

	if err := app.buildRules(clk); err != nil {
		app.closeStore()
		return nil, fmt.Errorf("failed to build rules manager: %w", err)
	}

	if err := app.buildUpdating(); err != nil {
		app.rules.Close()
		app.closeStore()
		return nil, fmt.Errorf("failed to build updating: %w", err)
	}

	if err := app.buildWatchers(); err != nil {
		app.shutdown()
		return nil, fmt.Errorf("failed to build watchers: %w", err)
	}

	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return app, nil
}

func (app *Application) buildTrackerData(clk clock.Clock) error {
	cfg := app.config
	opts := trackerdata.Options{
		Bloom:  bloom.NewFactory(),
		FPRate: cfg.Cache.BloomFPRate,
		Clock:  clk,
		Logger: log.Component("trackerdata"),
	}
	if cfg.Cache.LookupSize > 0 {
		cache, err := lru.New(cfg.Cache.LookupSize)
		if err != nil {
			return fmt.Errorf("failed to create lookup cache: %w", err)
		}
		opts.Cache = cache
	}
	if cfg.Dataset.DB != "" {
		st, err := bolt.New(cfg.Dataset.DB)
		if err != nil {
			return fmt.Errorf("failed to open dataset store: %w", err)
		}
		opts.Store = st
		app.store = st
	}

	app.trackerData = trackerdata.New(opts)
	if err := app.trackerData.Restore(app.bootstrap); err != nil {
		app.closeStore()
		return fmt.Errorf("failed to restore tracker data: %w", err)
	}
	if err := metrics.NewTrackerData(metrics.Namespace, app.registry, app.trackerData); err != nil {
		app.closeStore()
		return err
	}

	_, tag := app.trackerData.Current()
	log.Info(map[string]any{
		"tag":      tag,
		"db":       cfg.Dataset.DB,
		"lookup":   cfg.Cache.LookupSize,
		"fp_rate":  cfg.Cache.BloomFPRate,
		"fallback": app.trackerData.Stats().Fallback,
	}, "Tracker data restored")
	return nil
}

func (app *Application) buildRules(clk clock.Clock) error {
	cfg := app.config
	specs, err := cfg.RulesetSpecs()
	if err != nil {
		return err
	}
	sources := make([]rules.RulesetSource, 0, len(specs))
	for _, spec := range specs {
		src, err := rules.NewSource(spec.Name, spec.Selector)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}

	cache, err := rules.NewCache(cfg.Cache.RulesSize)
	if err != nil {
		return fmt.Errorf("failed to create rules cache: %w", err)
	}
	m, err := metrics.NewRules(metrics.Namespace, app.registry)
	if err != nil {
		return err
	}

	logger := log.Component("rules")
	app.rules, err = rules.New(rules.Options{
		Sources: sources,
		Compiler: nativecompiler.New(nativecompiler.Options{
			MaxRules: cfg.Compiler.MaxRules,
			Logger:   log.Component("nativecompiler"),
		}),
		TrackerData: app.trackerData,
		Protection:  app.protection,
		Cache:       cache,
		Metrics:     m,
		Clock:       clk,
		Logger:      logger,
		ErrorHandler: func(err error) {
			logger.Error(map[string]any{"error": err}, "Ruleset compile failed, keeping last good rules")
		},
	})
	if err != nil {
		return err
	}

	log.Info(map[string]any{
		"rulesets":   app.rules.Names(),
		"max_rules":  cfg.Compiler.MaxRules,
		"cache_size": cfg.Cache.RulesSize,
	}, "Rules manager configured")
	return nil
}

func (app *Application) buildUpdating() error {
	m, err := metrics.NewUpdating(metrics.Namespace, app.registry)
	if err != nil {
		return err
	}

	app.bus = settings.NewBus()
	app.settings = settings.NewMemoryStore(settings.DefaultSnapshot(), app.bus)
	app.settingsSub = app.bus.Subscribe()

	app.updating, err = updating.New(updating.Options{
		Rules:    app.rules,
		Settings: app.settingsSub.Changes(),
		Store:    app.settings,
		Scripts:  scripts.NewBuilder(scripts.Options{Logger: log.Component("scripts")}),
		Metrics:  m,
		Logger:   log.Component("updating"),
	})
	return err
}

func (app *Application) buildWatchers() error {
	cfg := app.config
	var err error

	if cfg.Dataset.WatchDir != "" {
		app.datasets, err = dataset.NewWatcher(dataset.WatcherOptions{
			Dir:    cfg.Dataset.WatchDir,
			Exts:   []string{datasetExt, datasetExt + dataset.EtagSuffix},
			Logger: log.Component("dataset"),
		})
		if err != nil {
			return err
		}
		// pick up a dataset fetched while the daemon was down
		if path, err := dataset.Latest(cfg.Dataset.WatchDir, datasetExt); err == nil && path != "" {
			dataset.DatasetHandler(cfg.Dataset.MaxSize, app.logger, app.loadDataset)(path)
		}
	}

	app.lists, err = dataset.NewWatcher(dataset.WatcherOptions{
		Dir:    cfg.Protection.Dir,
		Exts:   []string{".yaml", ".yml", ".json", ".toml"},
		Logger: log.Component("protection"),
	})
	return err
}

// loadDataset installs a dataset from the drop directory and schedules a
// recompile when the current dataset changed.
func (app *Application) loadDataset(ds dataset.Dataset) {
	changed, err := app.trackerData.Load(ds.Tag, ds.Raw, app.bootstrap)
	if err != nil {
		var perr *domain.DataParseError
		if !errors.As(err, &perr) || !changed {
			log.Error(map[string]any{"path": ds.Path, "tag": ds.Tag, "error": err}, "Dataset not installed")
			return
		}
		log.Warn(map[string]any{"path": ds.Path, "tag": ds.Tag, "error": err}, "Dataset rejected, fallback installed")
	}
	if !changed {
		return
	}
	log.Info(map[string]any{"path": ds.Path, "tag": ds.Tag}, "Dataset installed")
	app.rules.ScheduleRecompile("dataset_loaded")
}

// reloadProtection re-reads the protection lists and schedules a recompile
// when an identifier input changed.
func (app *Application) reloadProtection() {
	changed, err := app.protection.Reload()
	if err != nil || !changed {
		return
	}
	app.rules.ScheduleRecompile("protection_changed")
}

func newToken() domain.CompletionToken {
	return domain.CompletionToken(uuid.NewString())
}

// Run starts every loop and blocks until ctx is cancelled or a loop fails.
func (app *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	sub := app.updating.Subscribe()
	g.Go(func() error { return app.updating.Run(gctx) })
	g.Go(func() error { return logAssets(gctx, sub) })

	if app.datasets != nil {
		handler := dataset.DatasetHandler(app.config.Dataset.MaxSize, log.Component("dataset"), app.loadDataset)
		g.Go(func() error { return app.datasets.Run(gctx, handler) })
	}
	g.Go(func() error {
		return app.lists.Run(gctx, func(string) { app.reloadProtection() })
	})

	if addr := app.config.Metrics.Addr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsMux(app.registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info(map[string]any{"address": addr}, "Metrics endpoint started")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	token := newToken()
	log.Info(map[string]any{"token": token}, "Initial rules update requested")
	app.rules.RequestUpdate(token)

	err := g.Wait()
	log.Info(nil, "Shutdown initiated")
	app.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (app *Application) shutdown() {
	if app.datasets != nil {
		_ = app.datasets.Close()
	}
	if app.lists != nil {
		_ = app.lists.Close()
	}
	app.settingsSub.Unsubscribe()
	app.bus.Close()
	app.rules.Close()
	app.closeStore()
}

func (app *Application) closeStore() {
	if app.store == nil {
		return
	}
	if err := app.store.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Closing dataset store failed")
	}
	app.store = nil
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// logAssets reports every publish until the subscription ends.
func logAssets(ctx context.Context, sub *updating.Subscription) error {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-sub.Assets():
			if !ok {
				return nil
			}
			log.Info(map[string]any{
				"sequence": a.Sequence,
				"rulesets": len(a.RuleArtifacts),
				"changed":  a.SourceEvent.ChangedNames(),
				"tokens":   a.SourceEvent.CompletionTokens,
				"scripts":  len(a.Scripts.Scripts),
			}, "Content blocking assets published")
		}
	}
}
