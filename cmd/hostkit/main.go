// Command hostkit runs the plugin host daemon: it discovers installed
// plugins, mirrors the marketplace registry into a local catalog, and
// serves resolution and conflict-detection APIs over HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/inkwell/hostkit/pkg/api"
	"github.com/inkwell/hostkit/pkg/config"
	"github.com/inkwell/hostkit/pkg/conflict"
	"github.com/inkwell/hostkit/pkg/loader"
	"github.com/inkwell/hostkit/pkg/marketplace"
	"github.com/inkwell/hostkit/pkg/observability"
	"github.com/inkwell/hostkit/pkg/resolver"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogrusLogger(cfg.Observability.LogLevel)
	obsLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	// Resolution cache
	var (
		cache      resolver.ResultCache
		redisCache *resolver.RedisCache
	)
	switch cfg.Cache.Type {
	case "redis":
		redisCache, err = resolver.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		cache = redisCache
	default:
		cache = resolver.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
	}
	logger.WithField("type", cache.Type()).Info("Resolution cache initialized")

	// Local catalog mirror
	if cfg.Catalog.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Catalog.Path), 0o755); err != nil {
			logger.WithError(err).Fatal("Failed to create catalog directory")
		}
	}
	catalog, err := marketplace.OpenCatalog(cfg.Catalog.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open catalog")
	}
	logger.WithField("path", cfg.Catalog.Path).Info("Catalog opened")

	res := resolver.New(resolver.Options{
		Logger:          logger,
		Cache:           cache,
		Metrics:         metrics,
		PluginProvider:  catalog,
		VersionProvider: catalog,
		ProviderTimeout: cfg.Resolver.ProviderTimeout,
	})
	detector := conflict.NewDetector(conflict.Options{
		Logger:  logger,
		Metrics: metrics,
	})

	// Plugin discovery
	ld := loader.New(loader.Options{
		Dirs:     cfg.Plugins.Dirs,
		Logger:   logger,
		Resolver: res,
		Detector: detector,
		Metrics:  metrics,
	})
	watchCtx, stopWatching := context.WithCancel(context.Background())
	defer stopWatching()
	if cfg.Plugins.Watch {
		if err := ld.Watch(watchCtx); err != nil {
			logger.WithError(err).Warn("Plugin watching disabled, falling back to a single scan")
			if err := ld.Reload(); err != nil {
				logger.WithError(err).Fatal("Failed to scan plugin directories")
			}
		}
	} else {
		if err := ld.Reload(); err != nil {
			logger.WithError(err).Fatal("Failed to scan plugin directories")
		}
	}

	// Registry syncing
	var syncer *marketplace.Syncer
	if cfg.Catalog.RegistryURL != "" {
		client, err := marketplace.NewClient(cfg.Catalog.RegistryURL, cfg.Catalog.ClientTimeout, logger)
		if err != nil {
			logger.WithError(err).Fatal("Invalid registry URL")
		}
		syncer = marketplace.NewSyncer(marketplace.SyncerOptions{
			Catalog: catalog,
			Client:  client,
			Logger:  logger,
			Metrics: metrics,
			OnSync:  res.ClearCache,
		})
		if cfg.Catalog.SyncOnStart {
			go func() {
				if err := syncer.SyncNow(context.Background()); err != nil {
					logger.WithError(err).Warn("Initial catalog sync failed")
				}
			}()
		}
		if err := syncer.Start(cfg.Catalog.SyncSchedule); err != nil {
			logger.WithError(err).Fatal("Failed to schedule catalog sync")
		}
	}

	// HTTP server
	apiServer := api.NewServer(api.Options{
		Resolver:     res,
		Detector:     detector,
		Catalog:      catalog,
		Logger:       logger,
		Metrics:      metrics,
		MaxTreeDepth: cfg.Resolver.MaxTreeDepth,
	})
	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Handler())
	if registry != nil {
		observability.RegisterMetricsEndpoint(mux, registry)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("API server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(obsLogger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		stopWatching()
		if syncer != nil {
			syncer.Stop()
		}
		return ld.Close()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		if redisCache != nil {
			return redisCache.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return catalog.Close()
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		os.Exit(1)
	}
}

func newLogrusLogger(level observability.LogLevel) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	switch level {
	case observability.DebugLevel:
		logger.SetLevel(logrus.DebugLevel)
	case observability.WarnLevel:
		logger.SetLevel(logrus.WarnLevel)
	case observability.ErrorLevel:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}
