package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-api/internal/handler/health"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const defaultMaxBodyBytes = 1 << 20

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers are the API route groups mounted under /api/v1 behind
// authentication.
type Handlers struct {
	Visit        Handler
	LabTest      Handler
	Prescription Handler
	Patient      Handler
	Appointment  Handler
	User         Handler
	Audit        Handler
}

// RouterConfig controls the global middleware. RateLimit and RateBurst are
// ignored unless RateLimitEnabled is set.
type RouterConfig struct {
	Mode             string
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	health   *health.Handler
	metrics  gin.HandlerFunc
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	handlers Handlers,
	healthH *health.Handler,
	metricsH gin.HandlerFunc,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config RouterConfig,
) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		health:   healthH,
		metrics:  metricsH,
	}

	maxBody := config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	engine.Use(
		middleware.RequestID(logger.With().Str("component", "http").Logger()),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(m),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(maxBody),
	)
	if config.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(config.RequestTimeout))
	}
	if config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	return r, nil
}

func (r *Router) Setup() {
	if r.health != nil {
		r.health.RegisterRoutes(r.engine)
	}
	if r.metrics != nil {
		r.engine.GET("/metrics", r.metrics)
	}

	api := r.engine.Group("/api/v1")
	api.Use(
		r.auth.Authenticate(),
		middleware.AuditContext(),
	)

	for _, h := range []Handler{
		r.handlers.Visit,
		r.handlers.LabTest,
		r.handlers.Prescription,
		r.handlers.Patient,
		r.handlers.Appointment,
		r.handlers.User,
		r.handlers.Audit,
	} {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
