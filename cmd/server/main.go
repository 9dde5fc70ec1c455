// Command server runs the order synchronization backend: the HTTP API, the
// optional Kafka ingestion consumer, and the background cache-validation and
// history-retention schedulers. All collaborators are constructed here so
// the transports share one set of services.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/orderdesk/go-orders-backend/internal/config"
	httpapi "github.com/orderdesk/go-orders-backend/internal/http"
	"github.com/orderdesk/go-orders-backend/internal/ingest"
	"github.com/orderdesk/go-orders-backend/internal/observability"
	"github.com/orderdesk/go-orders-backend/internal/repo"
	"github.com/orderdesk/go-orders-backend/internal/services"
	"github.com/orderdesk/go-orders-backend/internal/sysutil"
	"github.com/orderdesk/go-orders-backend/internal/upstream"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	log := sysutil.NewLogger(cfg.LogPretty).With().Str("service", cfg.OTEL.ServiceName).Logger()

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing first so the DB plugin and HTTP middleware pick up the
	// global provider.
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("database ready")

	loc := time.Local
	if cfg.Sync.BusinessTZ != "" {
		l, err := time.LoadLocation(cfg.Sync.BusinessTZ)
		if err != nil {
			log.Fatal().Err(err).Str("tz", cfg.Sync.BusinessTZ).Msg("load business timezone")
		}
		loc = l
	}

	feed := upstream.NewHTTPClient(cfg.Upstream.BaseURL, cfg.Upstream.Token, cfg.Upstream.Timeout, log)

	store := services.RepoStore{}
	catalog := &services.DBCatalog{DB: db}

	syncSvc := services.NewSyncService(db, store, catalog, loc,
		cfg.Sync.VirtualWarehouseID, cfg.Sync.BatchSize, cfg.Sync.Concurrency, cfg.Sync.WavePause, log)
	cacheSvc := services.NewCacheService(db, store, catalog,
		cfg.Sync.VirtualWarehouseID, cfg.Sync.BatchSize, cfg.Sync.Concurrency, cfg.Sync.WavePause, log)
	orderSvc := services.NewOrderService(db, store, catalog, cfg.Sync.VirtualWarehouseID, feed, log)

	if cfg.Kafka.Enabled {
		consumer := ingest.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Group,
			syncSvc, cfg.Kafka.FlushSize, cfg.Kafka.FlushInterval, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("kafka consumer stopped")
			}
		}()
	}

	if cfg.Sync.ValidateInterval > 0 {
		go runCacheValidator(ctx, cacheSvc, cfg.Sync.ValidateInterval, log)
	}
	if cfg.Sync.HistoryRetention > 0 {
		go runHistoryPruner(ctx, db, cfg.Sync.HistoryRetention, log)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Sync:   syncSvc,
		Cache:  cacheSvc,
		Orders: orderSvc,
		Feed:   feed,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case "postgres":
		return repo.OpenPostgres(cfg.DBDSN)
	case "sqlite", "":
		return repo.OpenSQLite(cfg.DBPath)
	default:
		return nil, errors.New("unsupported DB_DRIVER: " + cfg.DBDriver)
	}
}

// runCacheValidator revalidates the whole derived cache on a fixed interval.
// Each pass scopes to all orders; the validator's stale-but-unchanged
// short-circuit keeps quiet periods cheap.
func runCacheValidator(ctx context.Context, svc *services.CacheService, every time.Duration, log zerolog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res, err := svc.Validate(ctx, services.CacheScope{}, false)
			if err != nil {
				log.Error().Err(err).Msg("scheduled cache validation")
				continue
			}
			log.Info().
				Int("processed", res.Processed).
				Int("hits", res.CacheHits).
				Int("updated", res.Updated).
				Int("errors", res.Errors).
				Msg("scheduled cache validation done")
		}
	}
}

// runHistoryPruner deletes audit entries older than the retention window
// once a day.
func runHistoryPruner(ctx context.Context, db *gorm.DB, retention time.Duration, log zerolog.Logger) {
	t := time.NewTicker(24 * time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PruneHistory(ctx, db, time.Now().Add(-retention))
			if err != nil {
				log.Error().Err(err).Msg("history prune")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("history pruned")
			}
		}
	}
}
