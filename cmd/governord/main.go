// governord runs a resource governor behind a small ops HTTP surface.
// It exists for load testing and integration work: the governor itself
// is a library, this binary makes it observable and pokeable.
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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"dev.mobile.governor/internal/config"
	"dev.mobile.governor/internal/coordinator"
	"dev.mobile.governor/internal/governor"
	"dev.mobile.governor/internal/observability"
)

var (
	configFile = flag.String("config", "", "Path to configuration file (YAML)")
	watch      = flag.Bool("watch", false, "Reload tunables when the config file changes")
)

type server struct {
	cfg    *config.Config
	logger *logrus.Logger
	gov    *governor.Governor
	reg    *prometheus.Registry
}

func newServer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*server, error) {
	gov, err := governor.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(observability.NewExporter(gov)); err != nil {
		gov.Stop()
		return nil, fmt.Errorf("register exporter: %w", err)
	}

	return &server{cfg: cfg, logger: logger, gov: gov, reg: reg}, nil
}

func (s *server) routes() *gin.Engine {
	gin.SetMode(s.cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(observability.Handler(s.reg)))

	v1 := r.Group("/v1")
	{
		v1.GET("/stats", s.handleStats)
		v1.POST("/execute", s.handleExecute)
		v1.POST("/lifecycle/foreground", s.handleForeground)
		v1.POST("/lifecycle/background", s.handleBackground)
	}

	return r
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"state":     s.gov.Scheduler.CurrentState().String(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.gov.Snapshot())
}

// handleExecute drives the coordinator with synthetic work. The delay
// simulates the backend call, "fail" forces the retry path.
func (s *server) handleExecute(c *gin.Context) {
	var req struct {
		Key        string `json:"key" binding:"required"`
		DelayMs    int    `json:"delay_ms"`
		Fail       bool   `json:"fail"`
		Priority   int    `json:"priority"`
		UseCache   bool   `json:"use_cache"`
		CacheTTLMs int    `json:"cache_ttl_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := coordinator.ExecOptions{
		UseCache: req.UseCache,
		CacheTTL: time.Duration(req.CacheTTLMs) * time.Millisecond,
		Priority: coordinator.Priority(req.Priority),
	}

	start := time.Now()
	value, err := s.gov.Coordinator.Execute(c.Request.Context(), req.Key, func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(time.Duration(req.DelayMs) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if req.Fail {
			return nil, fmt.Errorf("synthetic failure for %s", req.Key)
		}
		return gin.H{"key": req.Key, "produced_at": time.Now().Unix()}, nil
	}, opts)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "elapsed": time.Since(start).String()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"value": value, "elapsed": time.Since(start).String()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, coordinator.ErrLoadShed):
		return http.StatusServiceUnavailable
	case errors.Is(err, coordinator.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *server) handleForeground(c *gin.Context) {
	s.gov.Scheduler.OnForeground()
	c.JSON(http.StatusOK, gin.H{"state": s.gov.Scheduler.CurrentState().String()})
}

func (s *server) handleBackground(c *gin.Context) {
	s.gov.Scheduler.OnBackground()
	c.JSON(http.StatusOK, gin.H{"state": s.gov.Scheduler.CurrentState().String()})
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "governord: %v\n", err)
		os.Exit(1)
	}
	logger := setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build governor")
	}

	if err := srv.gov.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start governor")
	}

	if *watch && *configFile != "" {
		w, err := config.NewWatcher(*configFile, logger, func(next *config.Config) {
			// Only live-tunable knobs are applied; structural changes
			// (capacity, mirror backend) need a restart.
			srv.gov.Scheduler.SetMultipliers(next.Scheduler.Multipliers)
			if lvl, err := logrus.ParseLevel(next.LogLevel); err == nil {
				logger.SetLevel(lvl)
			}
			logger.Info("Applied reloaded tunables")
		})
		if err != nil {
			logger.WithError(err).Warn("Config watcher unavailable")
		} else {
			defer func() { _ = w.Close() }()
		}
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting governord")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown incomplete")
	}
	srv.gov.Stop()
}
