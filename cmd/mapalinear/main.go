// Command mapalinear is the MapaLinear pipeline's CLI entrypoint: it wires
// the provider registry, persistence layer and every domain engine, then
// runs one generate_linear_map pass per invocation (the HTTP/router surface
// that would otherwise drive this is out of scope, per spec.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/remintz/mapalinear/internal/asyncops"
	"github.com/remintz/mapalinear/internal/cache"
	"github.com/remintz/mapalinear/internal/config"
	"github.com/remintz/mapalinear/internal/enrichment"
	"github.com/remintz/mapalinear/internal/junction"
	"github.com/remintz/mapalinear/internal/maintenance"
	"github.com/remintz/mapalinear/internal/mapassembly"
	"github.com/remintz/mapalinear/internal/poipersist"
	"github.com/remintz/mapalinear/internal/poisearch"
	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/provider/here"
	"github.com/remintz/mapalinear/internal/provider/osm"
	"github.com/remintz/mapalinear/internal/ratelimit"
	"github.com/remintz/mapalinear/internal/roadservice"
	"github.com/remintz/mapalinear/internal/segment"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

var (
	debug            bool
	origin           string
	destination      string
	userID           string
	enableMonitoring bool
	monitoringAddr   string
	runMaintenance   bool
	maintenanceDry   bool
	versionSuffix    string
	forceNewSegments bool
)

func init() {
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.StringVar(&origin, "origin", "", "trip origin address")
	flag.StringVar(&destination, "destination", "", "trip destination address")
	flag.StringVar(&userID, "user-id", "", "owning user id for the generated map")
	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "enable the Prometheus metrics endpoint")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Prometheus metrics server address")
	flag.BoolVar(&runMaintenance, "run-maintenance", false, "run a full maintenance pass instead of generating a map")
	flag.BoolVar(&maintenanceDry, "dry-run", false, "when --run-maintenance, count orphan POIs/segments instead of deleting them and skip the is_referenced repair; stale-operation and expired-cache cleanup still run")
	flag.StringVar(&versionSuffix, "version-suffix", "", "mixed into each segment's content hash to distinguish this run's segments from a prior one")
	flag.BoolVar(&forceNewSegments, "force-new-segments", false, "skip the by-hash segment lookup and always create new RouteSegments")
}

func main() {
	flag.Parse()

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "dev")
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(ctx); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
	}

	cfg := config.Load()

	if enableMonitoring {
		startMonitoringServer(ctx, logger)
	}

	db, err := store.Connect(cfg.Postgres.DSN(), cfg.Postgres.PoolMinSize, cfg.Postgres.PoolMaxSize)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.Default()
	limiter.Configure("osm", cfg.RateLimitOSM, 1)
	limiter.Configure("here", cfg.RateLimitHERE, int(cfg.RateLimitHERE))

	cacheRepo := store.NewCacheRepository(db)
	unifiedCache, err := cache.New(cacheRepo, 1000)
	if err != nil {
		logger.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}

	providers := provider.NewRegistry(provider.KindOSM)
	providers.Register(provider.KindOSM, func() (provider.GeoProvider, error) {
		return osm.New(limiter, unifiedCache), nil
	})
	if cfg.HEREAPIKey != "" {
		providers.Register(provider.KindHERE, func() (provider.GeoProvider, error) {
			return here.New(cfg.HEREAPIKey, limiter, unifiedCache)
		})
	}

	routingProvider, err := providers.Get(provider.KindOSM)
	if err != nil {
		logger.Error("failed to construct OSM provider", "error", err)
		os.Exit(1)
	}

	poiProviderKind := provider.Kind(cfg.POIProvider)
	poiProvider, err := providers.Get(poiProviderKind)
	if err != nil {
		logger.Warn("configured poi provider unavailable, falling back to osm", "provider", poiProviderKind, "error", err)
		poiProviderKind = provider.KindOSM
		poiProvider = routingProvider
	}

	poiRepo := store.NewPOIRepository(db)
	segmentRepo := store.NewSegmentRepository(db)
	mapRepo := store.NewMapRepository(db)
	asyncRepo := store.NewAsyncOperationRepository(db)

	segments := segment.New(segmentRepo, poiRepo)
	search := poisearch.New(poiProvider)
	persist := poipersist.New(poiRepo)
	junctions := junction.New(routingProvider)
	assembly := mapassembly.New(mapRepo, poiRepo, junctions, routingProvider)
	ops := asyncops.New(asyncRepo)

	var enrich *enrichment.Engine
	if cfg.HEREEnrichmentEnabled {
		hereProvider, err := providers.Get(provider.KindHERE)
		if err != nil {
			logger.Warn("here enrichment enabled but here provider unavailable, disabling", "error", err)
			enrich = enrichment.New(nil, poiRepo)
		} else {
			enrich = enrichment.New(hereProvider, poiRepo)
		}
	} else {
		enrich = enrichment.New(nil, poiRepo)
	}

	pipeline := roadservice.New(routingProvider, poiProvider, poiProviderKind, segments, search, persist, enrich, assembly, mapRepo, poiRepo)

	if runMaintenance {
		m := maintenance.New(poiRepo, segmentRepo, cacheRepo, ops)
		result, err := m.RunFull(ctx, maintenanceDry)
		if err != nil {
			logger.Error("maintenance run failed", "error", err)
			os.Exit(1)
		}
		logger.Info("maintenance run complete",
			"dry_run", maintenanceDry,
			"orphan_pois_found", result.OrphanPOIsFound,
			"orphan_pois_deleted", result.OrphanPOIsDeleted,
			"is_referenced_fixed", result.IsReferencedFixed,
			"orphan_segments_deleted", result.OrphanSegmentsDeleted,
			"stale_operations_cleaned", result.StaleOperationsCleaned,
			"expired_cache_cleaned", result.ExpiredCacheCleaned,
			"duration_ms", result.ExecutionTime.Milliseconds(),
		)
		return
	}

	if origin == "" || destination == "" {
		logger.Error("--origin and --destination are required unless --run-maintenance is set")
		os.Exit(1)
	}

	op, err := ops.Create(ctx, "generate_linear_map", userID, nil, nil)
	if err != nil {
		logger.Error("failed to create async operation", "error", err)
		os.Exit(1)
	}
	reporter := asyncops.NewProgressReporter(ops, op.ID, "generate_linear_map")

	opts := roadservice.Options{UserID: userID, VersionSuffix: versionSuffix, ForceNewSegments: forceNewSegments}
	result, err := pipeline.GenerateLinearMap(ctx, origin, destination, opts, func(pct float64) {
		reporter.Report(ctx, pct)
	})
	if err != nil {
		logger.Error("map generation failed", "error", err)
		if failErr := ops.Fail(ctx, op.ID, "generate_linear_map", err.Error()); failErr != nil {
			logger.Error("failed to record operation failure", "error", failErr)
		}
		os.Exit(1)
	}

	if err := ops.Complete(ctx, op.ID, "generate_linear_map", map[string]any{"map_id": result.MapID}); err != nil {
		logger.Error("failed to record operation completion", "error", err)
	}

	logger.Info("map generated",
		"map_id", result.MapID,
		"total_length_km", result.TotalLengthKm,
		"segments", result.NumSegments,
		"pois", result.NumPOIs,
	)
	fmt.Println(result.MapID)
}

func startMonitoringServer(ctx context.Context, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              monitoringAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting prometheus metrics server", "addr", monitoringAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("monitoring server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down monitoring server", "error", err)
		}
	}()
}
