package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/history"
	"github.com/rickgao/bm-repricer/internal/model"
	"github.com/rickgao/bm-repricer/internal/pricing"
)

// ListingStore reads listings.
type ListingStore interface {
	GetListing(ctx context.Context, id uuid.UUID) (model.Listing, error)
	ListListings(ctx context.Context) ([]model.Listing, error)
}

// ParamsStore reads and writes pricing parameters.
type ParamsStore interface {
	ListParameters(ctx context.Context) ([]model.PricingParameters, error)
	UpsertParameters(ctx context.Context, p model.PricingParameters) error
}

// BucketStore persists rate limit configuration.
type BucketStore interface {
	SaveBucket(ctx context.Context, b model.RateLimitBucket) error
}

// Limiter is the rate limiter surface. Implemented by *ratelimit.Limiter.
type Limiter interface {
	Configure(name string, maxTokens int, interval time.Duration) error
	Status(name string) (model.RateLimitBucket, error)
	Snapshot() []model.RateLimitBucket
}

// Jobs is the scheduler surface. Implemented by *scheduler.JobRegistry.
type Jobs interface {
	Trigger(name string) error
	TriggerAll() map[string]error
	Status(name string) (model.ScheduledJobStatus, error)
	Statuses() []model.ScheduledJobStatus
	Len() int
}

// Pricer is the pricing engine surface. Implemented by *pricing.Engine.
type Pricer interface {
	Evaluate(ctx context.Context, listingID uuid.UUID) (pricing.Result, error)
	Probe(ctx context.Context, listingID uuid.UUID, hypothetical decimal.Decimal) (pricing.Result, error)
	EmergencyRecover(ctx context.Context, listingID uuid.UUID, price decimal.Decimal) (pricing.Result, error)
	EmergencyRecoverBulk(ctx context.Context, items []pricing.Recovery) (int64, []pricing.Result, error)
}

// Competitors manages test competitors. Implemented by *competitor.Service.
type Competitors interface {
	AddTestCompetitor(ctx context.Context, listingID uuid.UUID, name string, price decimal.Decimal) (model.CompetitorOffer, error)
	ClearTestCompetitors(ctx context.Context, listingID uuid.UUID) (int, error)
}

// History queries the audit log. Implemented by *history.Service.
type History interface {
	List(ctx context.Context, listingID uuid.UUID, page, pageSize int) (history.Page, error)
	Aggregate(ctx context.Context, listingID *uuid.UUID, since, until time.Time) (model.PriceAggregate, error)
}

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the components behind the control surface.
type Services struct {
	Listings    ListingStore
	Params      ParamsStore
	Buckets     BucketStore
	Limiter     Limiter
	Jobs        Jobs
	Pricer      Pricer
	Competitors Competitors
	History     History
	Database    Pinger
}

// Handler serves the control API.
type Handler struct {
	svc             Services
	defaultMode     model.PricingMode
	defaultFallback model.FallbackRule
	logger          *slog.Logger
	now             func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithParameterDefaults sets the mode and fallback rule stored for parameter
// rows that leave them unset.
func WithParameterDefaults(mode model.PricingMode, rule model.FallbackRule) Option {
	return func(h *Handler) {
		h.defaultMode = mode
		h.defaultFallback = rule
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a Handler.
func NewHandler(svc Services, opts ...Option) *Handler {
	h := &Handler{
		svc:    svc,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts /health and the /api/v1 routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/parameters", h.listParameters)
		v1.PUT("/parameters", h.putParameters)

		v1.GET("/rate-limits", h.listRateLimits)
		v1.GET("/rate-limits/:name", h.getRateLimit)
		v1.PUT("/rate-limits/:name", h.putRateLimit)

		v1.GET("/jobs", h.listJobs)
		v1.POST("/jobs/trigger-all", h.triggerAll)
		v1.POST("/jobs/:name/trigger", h.triggerJob)

		v1.GET("/listings", h.listListings)
		v1.POST("/listings/recover", h.recoverBulk)
		v1.GET("/listings/:id", h.getListing)
		v1.POST("/listings/:id/evaluate", h.evaluate)
		v1.POST("/listings/:id/probe", h.probe)
		v1.POST("/listings/:id/recover", h.recoverPrice)
		v1.POST("/listings/:id/test-competitors", h.addTestCompetitor)
		v1.DELETE("/listings/:id/test-competitors", h.clearTestCompetitors)
		v1.GET("/listings/:id/history", h.listHistory)

		v1.GET("/history/aggregate", h.aggregateHistory)
	}
}

// NewRouter returns a gin engine with recovery, request logging and the
// control routes.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))
	h.RegisterRoutes(r)
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
		}
		if status >= 500 {
			logger.Error("control request failed", attrs...)
			return
		}
		logger.Debug("control request", attrs...)
	}
}
