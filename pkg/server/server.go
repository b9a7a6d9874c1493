// Package server assembles the HTTP surface: middleware, routes, metrics
// and tracing. Dependency wiring happens at deployment bootstrap; this
// package only needs the pieces handed to it.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/middleware"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/Ramsey-B/stem/pkg/tracing/exporters"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/sage/config"
	entityroutes "github.com/Ramsey-B/sage/pkg/routes/entity"
	healthroutes "github.com/Ramsey-B/sage/pkg/routes/health"
)

// InitTracing sets up the OTLP trace pipeline. Returns a shutdown function
// for the tracer provider; a no-op when tracing is disabled.
func InitTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.TracingEnabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.TracingEndpoint,
		Protocol: cfg.TracingProtocol,
		Insecure: cfg.TracingInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

// New builds the echo instance with middleware and routes registered.
func New(cfg *config.Config, logger ectologger.Logger, checker *healthroutes.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(otelecho.Middleware(cfg.AppName))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)

	papers := e.Group("/api/v1/papers")
	entityroutes.Register(papers)

	return e
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func Run(e *echo.Echo, cfg *config.Config, logger ectologger.Logger, checker *healthroutes.Checker) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on port %d", cfg.Port)
		checker.SetReady(true)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Infof("Received signal %s, shutting down", sig)
	}

	checker.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}
