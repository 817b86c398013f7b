// Package control exposes the station lifecycle over HTTP.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/carwash/pkg/observability/prometheus"
	"github.com/fluxorio/carwash/pkg/station"
	"github.com/fluxorio/carwash/pkg/web"
	"github.com/fluxorio/carwash/pkg/web/middleware"
	"github.com/fluxorio/carwash/pkg/web/middleware/auth"
	"github.com/fluxorio/carwash/pkg/web/middleware/security"
)

const (
	// MaxArrivalsPerRequest caps POST /arrivals?count=n.
	MaxArrivalsPerRequest = 1000

	DefaultTokenTTL = time.Hour
)

// Config configures the control server.
type Config struct {
	// Service is used by POST /start when the body names no duration.
	Service station.ServiceDuration

	// JWTSecret enables bearer auth on every POST endpoint when set.
	JWTSecret string

	// Operators, together with JWTSecret, enables POST /token.
	Operators auth.Operators

	// TokenTTL is the lifetime of tokens issued by POST /token. Default DefaultTokenTTL.
	TokenTTL time.Duration

	// ArrivalRate limits cars admitted through POST /arrivals per second.
	// When set, a single request may not ask for more than ArrivalBurst cars.
	ArrivalRate  float64
	ArrivalBurst int

	// Metrics, when set, serves GET /metrics and records request metrics.
	Metrics *prometheus.Metrics

	Logger *slog.Logger
}

// Server is the fasthttp control API.
type Server struct {
	station     *station.Station
	config      Config
	logger      *slog.Logger
	router      *web.Router
	srv         *fasthttp.Server
	maxArrivals int
}

// NewServer builds the routes for s.
func NewServer(s *station.Station, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Service == nil {
		config.Service = station.Fixed(station.DefaultServiceDuration)
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = DefaultTokenTTL
	}

	srv := &Server{
		station:     s,
		config:      config,
		logger:      logger,
		router:      web.NewRouter(logger),
		maxArrivals: MaxArrivalsPerRequest,
	}
	if config.ArrivalRate > 0 {
		srv.maxArrivals = min(MaxArrivalsPerRequest, max(config.ArrivalBurst, 1))
	}
	srv.routes()

	handler := srv.router.ServeFastHTTP
	if config.Metrics != nil {
		handler = config.Metrics.Middleware(handler)
	}
	srv.srv = &fasthttp.Server{
		Handler:      handler,
		Name:         "carwash",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) routes() {
	s.router.Use(middleware.Recovery(middleware.RecoveryConfig{Logger: s.logger}))

	var mutating []web.Middleware
	if s.config.JWTSecret != "" {
		mutating = append(mutating, auth.JWT(auth.DefaultJWTConfig(s.config.JWTSecret)))
	}
	arrivals := append(mutating[:len(mutating):len(mutating)], security.RateLimit(security.RateLimitConfig{
		PerSecond: s.config.ArrivalRate,
		Burst:     s.config.ArrivalBurst,
		Cost: func(ctx *web.RequestContext) int {
			n, err := s.arrivalCount(ctx)
			if err != nil {
				// The handler answers 400 without spending a token.
				return 0
			}
			return n
		},
	}))

	s.router.GET("/status", s.status)
	s.router.GET("/waiting", s.waiting)
	s.router.POST("/configure", s.configure, mutating...)
	s.router.POST("/start", s.start, mutating...)
	s.router.POST("/arrivals", s.arrivals, arrivals...)
	s.router.POST("/stop", s.stop, mutating...)
	s.router.POST("/reset", s.reset, mutating...)

	if s.config.JWTSecret != "" && len(s.config.Operators) > 0 {
		s.router.POST("/token", s.token)
	}

	if s.config.Metrics != nil {
		metrics := s.config.Metrics.Handler()
		s.router.GET("/metrics", func(ctx *web.RequestContext) error {
			metrics(ctx.RequestCtx)
			return nil
		})
	}
}

// Handler returns the server's request handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.srv.Handler
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// ListenAndServe listens on addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("control API listening", "addr", addr)
	return s.srv.ListenAndServe(addr)
}

// Shutdown stops accepting connections and waits for open requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

// statusResponse is the station snapshot plus the names of its live units.
type statusResponse struct {
	station.Snapshot
	Units []string `json:"units"`
}

func (s *Server) status(ctx *web.RequestContext) error {
	return ctx.JSON(fasthttp.StatusOK, statusResponse{
		Snapshot: s.station.Snapshot(),
		Units:    s.station.Units(),
	})
}

func (s *Server) waiting(ctx *web.RequestContext) error {
	return ctx.JSON(fasthttp.StatusOK, map[string][]int{"cars": s.station.Waiting()})
}

type configureRequest struct {
	WaitingCapacity *int `json:"waiting_capacity"`
	Pumps           *int `json:"pumps"`
}

func (s *Server) configure(ctx *web.RequestContext) error {
	var req configureRequest
	if err := ctx.BindJSON(&req); err != nil {
		return ctx.Fail(fasthttp.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
	}
	capacity, pumps := s.station.WaitingCapacity(), s.station.Pumps()
	if req.WaitingCapacity != nil {
		capacity = *req.WaitingCapacity
	}
	if req.Pumps != nil {
		pumps = *req.Pumps
	}

	if err := s.station.Configure(ctx.Context(), capacity, pumps); err != nil {
		return s.fail(ctx, err)
	}
	return ctx.JSON(fasthttp.StatusOK, s.station.Snapshot())
}

type startRequest struct {
	Fixed string `json:"fixed"`
	Min   string `json:"min"`
	Max   string `json:"max"`
}

func (r startRequest) duration(fallback station.ServiceDuration) (station.ServiceDuration, error) {
	switch {
	case r.Max != "":
		var lo time.Duration
		if r.Min != "" {
			d, err := time.ParseDuration(r.Min)
			if err != nil {
				return nil, fmt.Errorf("min: %w", err)
			}
			lo = d
		}
		hi, err := time.ParseDuration(r.Max)
		if err != nil {
			return nil, fmt.Errorf("max: %w", err)
		}
		return station.Between(lo, hi), nil
	case r.Fixed != "":
		d, err := time.ParseDuration(r.Fixed)
		if err != nil {
			return nil, fmt.Errorf("fixed: %w", err)
		}
		return station.Fixed(d), nil
	}
	return fallback, nil
}

type startResponse struct {
	RunID           string    `json:"run_id"`
	WaitingCapacity int       `json:"waiting_capacity"`
	Pumps           int       `json:"pumps"`
	Service         string    `json:"service"`
	Started         time.Time `json:"started"`
}

func (s *Server) start(ctx *web.RequestContext) error {
	var req startRequest
	if err := ctx.BindJSON(&req); err != nil {
		return ctx.Fail(fasthttp.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
	}
	d, err := req.duration(s.config.Service)
	if err != nil {
		return ctx.Fail(fasthttp.StatusBadRequest, "bad_request", "invalid service duration "+err.Error())
	}

	run, err := s.station.Start(d)
	if err != nil {
		return s.fail(ctx, err)
	}
	return ctx.JSON(fasthttp.StatusOK, startResponse{
		RunID:           run.ID.String(),
		WaitingCapacity: run.WaitingCapacity,
		Pumps:           run.Pumps,
		Service:         run.Service.String(),
		Started:         run.Started,
	})
}

// arrivalCount reads ?count=n. With a rate limit in place n is capped at
// the burst, since a larger request could never be admitted.
func (s *Server) arrivalCount(ctx *web.RequestContext) (int, error) {
	raw := ctx.Query("count")
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > s.maxArrivals {
		return 0, fmt.Errorf("count must be between 1 and %d", s.maxArrivals)
	}
	return n, nil
}

func (s *Server) arrivals(ctx *web.RequestContext) error {
	n, err := s.arrivalCount(ctx)
	if err != nil {
		return ctx.Fail(fasthttp.StatusBadRequest, "bad_request", err.Error())
	}

	cars := make([]int, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.station.AddArrival()
		if err != nil {
			if len(cars) == 0 {
				return s.fail(ctx, err)
			}
			// Stopped part way: report what was admitted.
			break
		}
		cars = append(cars, id)
	}
	return ctx.JSON(fasthttp.StatusAccepted, map[string][]int{"cars": cars})
}

type tokenRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) token(ctx *web.RequestContext) error {
	var req tokenRequest
	if err := ctx.BindJSON(&req); err != nil {
		return ctx.Fail(fasthttp.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
	}
	if err := s.config.Operators.Verify(req.Operator, req.Password); err != nil {
		s.logger.Warn("operator login rejected", "request_id", ctx.RequestID(), "operator", req.Operator)
		return ctx.Fail(fasthttp.StatusUnauthorized, "unauthorized", "invalid operator or password")
	}

	expires := time.Now().Add(s.config.TokenTTL)
	token, err := auth.NewToken(s.config.JWTSecret, req.Operator, s.config.TokenTTL)
	if err != nil {
		return err
	}
	s.logger.Info("operator token issued", "request_id", ctx.RequestID(), "operator", req.Operator)
	return ctx.JSON(fasthttp.StatusOK, tokenResponse{Token: token, ExpiresAt: expires})
}

func (s *Server) stop(ctx *web.RequestContext) error {
	s.station.Stop()
	return ctx.JSON(fasthttp.StatusOK, s.station.Snapshot())
}

func (s *Server) reset(ctx *web.RequestContext) error {
	if err := s.station.Reset(ctx.Context()); err != nil {
		return s.fail(ctx, err)
	}
	return ctx.JSON(fasthttp.StatusOK, s.station.Snapshot())
}

// fail maps station errors to HTTP responses.
func (s *Server) fail(ctx *web.RequestContext, err error) error {
	var cfgErr *station.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return ctx.Fail(fasthttp.StatusBadRequest, "invalid_configuration", cfgErr.Error())
	case errors.Is(err, station.ErrAlreadyRunning):
		return ctx.Fail(fasthttp.StatusConflict, "already_running", err.Error())
	case errors.Is(err, station.ErrNotRunning):
		return ctx.Fail(fasthttp.StatusConflict, "not_running", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.logger.Warn("station operation timed out", "request_id", ctx.RequestID(), "error", err)
		return ctx.Fail(fasthttp.StatusServiceUnavailable, "timeout", err.Error())
	}
	return err
}
