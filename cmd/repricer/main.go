package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/bm-repricer/internal/api"
	"github.com/rickgao/bm-repricer/internal/auth"
	"github.com/rickgao/bm-repricer/internal/competitor"
	"github.com/rickgao/bm-repricer/internal/config"
	"github.com/rickgao/bm-repricer/internal/control"
	"github.com/rickgao/bm-repricer/internal/database"
	"github.com/rickgao/bm-repricer/internal/database/memstore"
	"github.com/rickgao/bm-repricer/internal/events"
	"github.com/rickgao/bm-repricer/internal/history"
	"github.com/rickgao/bm-repricer/internal/listing"
	"github.com/rickgao/bm-repricer/internal/metrics"
	"github.com/rickgao/bm-repricer/internal/model"
	"github.com/rickgao/bm-repricer/internal/pricing"
	"github.com/rickgao/bm-repricer/internal/ratelimit"
	"github.com/rickgao/bm-repricer/internal/scheduler"
	"github.com/rickgao/bm-repricer/internal/version"
)

// Scheduled job names.
const (
	jobSyncListings = "sync_listings"
	jobSyncOrders   = "sync_orders"
	jobRepriceSweep = "reprice_sweep"
)

// store is satisfied by both *database.DB and *memstore.Store.
type store interface {
	pricing.ListingStore
	pricing.ParamsStore
	pricing.HistoryWriter
	competitor.TestOfferStore
	listing.Store
	control.ParamsStore
	control.BucketStore
	history.Store
	scheduler.StatusStore
	ListBuckets(ctx context.Context) ([]model.RateLimitBucket, error)
	Ping(ctx context.Context) error
}

// eventSink is satisfied by *events.Publisher and events.Discard.
type eventSink interface {
	pricing.EventPublisher
	listing.OrderPublisher
	Close() error
}

func main() {
	configPath := flag.String("config", config.ResolvePath("configs/repricer.local.yaml"),
		"path to config file (default from "+config.EnvConfigPath+")")
	flag.Parse()

	// A missing .env is fine; the config file can reference any ${VAR}.
	if err := config.LoadEnvFiles(".env"); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	path := *configPath
	cfg, err := config.LoadAndValidate(path)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", path)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting repricer",
		"version", version.Version,
		"commit", version.Commit,
		"config", path,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("repricer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("repricer stopped")
}

func run(cfg *config.RepricerConfig, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Persistence
	st, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Rate limiter: config seeds, persisted overrides win.
	limiter := ratelimit.New(ratelimit.WithLogger(logger), ratelimit.WithObserver(m))
	if err := seedLimiter(ctx, limiter, cfg.RateLimits, st, logger); err != nil {
		return err
	}

	// Marketplace client
	creds, err := auth.FromToken(cfg.API.Token)
	if err != nil {
		return fmt.Errorf("load api credentials: %w", err)
	}
	client := api.NewClient(cfg.API.BaseURL, creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithLimiter(limiter, cfg.API.AcquireTimeout),
		api.WithBuybackPath(cfg.API.BuybackPath),
		api.WithLanguage(cfg.API.Language),
		api.WithObserver(m),
	)

	// Events
	var sink eventSink = events.Discard{}
	if len(cfg.Kafka.Brokers) > 0 {
		sink = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.PriceTopic, cfg.Kafka.OrderTopic, logger)
		logger.Info("kafka publishing enabled", "brokers", strings.Join(cfg.Kafka.Brokers, ","))
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("failed to close event publisher", "error", err)
		}
	}()

	// Competitor snapshots
	// A shared competitor fetch may wait for a token and then retry.
	fetchTimeout := cfg.API.AcquireTimeout + cfg.API.Timeout*time.Duration(cfg.API.MaxRetries+1)
	snapOpts := []competitor.Option{competitor.WithLogger(logger), competitor.WithFetchTimeout(fetchTimeout)}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, offer cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			snapOpts = append(snapOpts, competitor.WithCache(competitor.NewRedisCache(rdb, cfg.Redis.OfferTTL)))
			logger.Info("offer cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.OfferTTL)
		}
	}
	snapshots := competitor.NewService(client, st, st, snapOpts...)

	// Pricing
	engine := pricing.NewEngine(
		pricing.Config{Concurrency: cfg.Pricing.SweepConcurrency, Currency: cfg.Pricing.Currency},
		st, st, st, snapshots, client,
		pricing.WithEvents(sink),
		pricing.WithObserver(m),
		pricing.WithLogger(logger),
	)

	// Jobs
	jobs := scheduler.New(
		scheduler.WithLogger(logger),
		scheduler.WithStatusStore(st),
		scheduler.WithObserver(m),
	)
	if err := scheduleJobs(jobs, cfg.Jobs, client, st, sink, engine, logger); err != nil {
		return err
	}
	if err := jobs.Restore(ctx); err != nil {
		logger.Warn("failed to restore job statuses", "error", err)
	}

	// Control surface
	handler := control.NewHandler(control.Services{
		Listings:    st,
		Params:      st,
		Buckets:     st,
		Limiter:     limiter,
		Jobs:        jobs,
		Pricer:      engine,
		Competitors: snapshots,
		History:     history.NewService(st),
		Database:    st,
	},
		control.WithLogger(logger),
		control.WithParameterDefaults(model.PricingMode(cfg.Pricing.Mode), model.FallbackRule(cfg.Pricing.FallbackRule)),
	)

	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := control.NewRouter(handler)
	router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting control server", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := jobs.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		logger.Info("repricer running",
			"jobs", jobs.Len(),
			"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.HTTP.Port),
		)

		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("control server shutdown", "error", err)
		}
		return jobs.Stop(shutdownCtx)
	})

	return g.Wait()
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openStore returns the configured store and its close function.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (store, func(), error) {
	if cfg.Memory {
		logger.Warn("using in-memory store; state is lost on exit")
		return memstore.New(), func() {}, nil
	}

	if cfg.Migrate {
		if err := database.Migrate(database.MigrationURL(cfg.Postgres), logger); err != nil {
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	logger.Info("connecting to database",
		"host", cfg.Postgres.Host,
		"port", cfg.Postgres.Port,
		"database", cfg.Postgres.Name,
	)
	db, err := database.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connected")
	return db, db.Close, nil
}

// seedLimiter configures buckets from config, then applies persisted overrides.
func seedLimiter(ctx context.Context, limiter *ratelimit.Limiter, seeds []config.RateLimitConfig, st store, logger *slog.Logger) error {
	for _, rl := range seeds {
		if err := limiter.Configure(rl.Name, rl.MaxTokens, rl.RefillInterval); err != nil {
			return fmt.Errorf("configure bucket %s: %w", rl.Name, err)
		}
	}

	persisted, err := st.ListBuckets(ctx)
	if err != nil {
		return fmt.Errorf("load rate limit buckets: %w", err)
	}
	for _, b := range persisted {
		if err := limiter.Configure(b.Name, b.MaxTokens, b.RefillInterval); err != nil {
			logger.Warn("ignoring persisted bucket", "bucket", b.Name, "error", err)
			continue
		}
	}

	logger.Info("rate limiter configured", "seeded", len(seeds), "persisted", len(persisted))
	return nil
}

func scheduleJobs(jobs *scheduler.JobRegistry, cfg config.JobsConfig, client *api.Client, st store,
	sink eventSink, engine *pricing.Engine, logger *slog.Logger) error {
	defs := []struct {
		name string
		job  config.JobConfig
		h    scheduler.Handler
	}{
		{jobSyncListings, cfg.SyncListings, listing.NewListingSyncer(client, st, logger)},
		{jobSyncOrders, cfg.SyncOrders, listing.NewOrderSyncer(client, sink, logger)},
		{jobRepriceSweep, cfg.RepriceSweep, scheduler.HandlerFunc(engine.Sweep)},
	}

	for _, s := range defs {
		var opts []scheduler.JobOption
		if s.job.RunOnStart {
			opts = append(opts, scheduler.WithRunOnStart())
		}
		if err := jobs.Schedule(s.name, s.job.Cadence, s.h, opts...); err != nil {
			return fmt.Errorf("schedule %s: %w", s.name, err)
		}
	}
	return nil
}
