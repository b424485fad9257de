// Package api serves the CloudSpy HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/aggregator"
	"github.com/lvonguyen/cloudspy/internal/anomaly"
	"github.com/lvonguyen/cloudspy/internal/config"
	"github.com/lvonguyen/cloudspy/internal/providers"
)

// Server wires the routes to request-scoped provider clients.
type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	logger   *zap.Logger
	factory  Factory
	agg      *aggregator.Aggregator
	detector *anomaly.Detector
	now      func() time.Time
}

// New creates a Server. cfg must have its defaults applied.
func New(cfg *config.Config, factory Factory, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = goJSONSerializer{}
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	s := &Server{
		echo:    e,
		cfg:     cfg,
		logger:  logger,
		factory: factory,
		agg:     aggregator.New(cfg.Providers.CallTimeout, logger),
		detector: anomaly.NewDetector(anomaly.DetectorConfig{
			Sensitivity: anomaly.Sensitivity(cfg.Anomaly.Sensitivity),
			RecentDays:  cfg.Anomaly.RecentDays,
			MinSpend:    *cfg.Anomaly.MinSpend,
		}),
		now: time.Now,
	}

	e.HTTPErrorHandler = s.handleError
	s.middleware()
	s.routes()
	return s
}

func (s *Server) middleware() {
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	s.echo.Use(processTime)
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				s.logger.Warn("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			s.logger.Info("Request", fields...)
			return nil
		},
	}))
	s.echo.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.logger.Error("Panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.cfg.Server.AllowedOrigins,
		AllowCredentials: true,
	}))
}

// processTime reports handler latency in seconds in X-Process-Time.
func processTime(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		c.Response().Before(func() {
			c.Response().Header().Set("X-Process-Time", strconv.FormatFloat(time.Since(start).Seconds(), 'f', 6, 64))
		})
		return next(c)
	}
}

func (s *Server) routes() {
	s.echo.GET("/", s.health)
	s.echo.GET("/health", s.health)

	v1 := s.echo.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.GET("/health", s.authHealth)
	auth.POST("/validate-token", s.validateToken)

	a := v1.Group("/aws")
	a.POST("/test-connection", s.testConnection(providers.AWS))
	a.GET("/costs", s.awsCosts)
	a.GET("/services", s.awsServices)
	a.GET("/forecast", s.awsForecast)

	z := v1.Group("/azure")
	z.POST("/test-connection", s.testConnection(providers.Azure))
	z.GET("/costs", s.azureCosts)
	z.GET("/subscriptions", s.azureSubscriptions)

	g := v1.Group("/gcp")
	g.POST("/test-connection", s.testConnection(providers.GCP))
	g.GET("/costs", s.gcpCosts)
	g.GET("/projects", s.gcpProjects)
	g.GET("/billing-accounts", s.gcpBillingAccounts)
	g.GET("/budgets", s.gcpBudgets)

	d := v1.Group("/dashboard")
	d.GET("/health", s.dashboardHealth)
	d.GET("/summary", s.dashboardSummary)
	d.GET("/costs/comparison", s.costComparison)
	d.GET("/anomalies", s.dashboardAnomalies)
	d.GET("/report", s.dashboardReport)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting CloudSpy API", zap.String("addr", s.cfg.Server.Addr))
	if err := s.echo.Start(s.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// callContext bounds a single provider call made directly by a handler.
func (s *Server) callContext(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request().Context()
	if s.cfg.Providers.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Providers.CallTimeout)
}
