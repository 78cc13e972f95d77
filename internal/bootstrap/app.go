package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	apphttp "gitlab.com/timkado/api/post-loader-service/internal/adapters/http"
	"gitlab.com/timkado/api/post-loader-service/internal/adapters/middleware"
	"gitlab.com/timkado/api/post-loader-service/internal/application"
	"gitlab.com/timkado/api/post-loader-service/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.

type readinessResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// checkReadiness probes every store and, when configured, the NATS connection.
func (a *App) checkReadiness(ctx context.Context) (bool, map[string]string) {
	ready := true
	deps := make(map[string]string)

	if a.stores != nil {
		for _, c := range a.stores.Checks {
			if err := c.Check(ctx); err != nil {
				deps[c.Name] = "disconnected"
				ready = false
				a.logger.Warn(ctx, "Readiness check failed", "dependency", c.Name, "error", err.Error())
				continue
			}
			deps[c.Name] = "connected"
		}
	}

	if a.configProvider.Get().NATS.URL == "" {
		deps["nats"] = "not_configured"
	} else if a.validationConsumer.Connected() {
		deps["nats"] = "connected"
	} else {
		deps["nats"] = "disconnected"
		ready = false
		a.logger.Warn(ctx, "Readiness check failed: NATS disconnected")
	}

	if a.grpcServer != nil {
		a.grpcServer.SetServing(ready)
	}
	return ready, deps
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug(r.Context(), "Health check endpoint hit")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"OK"}`)
}

func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready, deps := a.checkReadiness(ctx)
	response := readinessResponse{Status: "READY", Dependencies: deps}
	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		response.Status = "NOT_READY"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err)
	}
}

// registerRoutes mounts probes, metrics and the API. Everything served by the
// API mux goes through request id tagging and access logging.
func (a *App) registerRoutes() {
	a.httpServeMux.Handle("GET /health", middleware.RequestIDMiddleware(http.HandlerFunc(a.healthHandler)))
	a.httpServeMux.Handle("GET /ready", middleware.RequestIDMiddleware(http.HandlerFunc(a.readyHandler)))
	a.httpServeMux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()
	apphttp.RegisterRoutes(api, apphttp.Routes{
		Feed:        a.feed,
		Users:       a.users,
		Images:      a.images,
		Maintenance: a.maintenance,
		AdminAuth:   a.adminAuth,
	}, a.logger)
	a.httpServeMux.Handle("/", middleware.Chain(api, middleware.RequestIDMiddleware, middleware.AccessLogMiddleware(a.logger)))
}

// Run starts the application, listens for HTTP requests, and handles graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	cfg := a.configProvider.Get()
	version := "unknown"
	if cfg.App.Version != "" {
		version = cfg.App.Version
	}
	a.logger.Info(ctx, "Starting application", "service_name", cfg.App.ServiceName, "version", version)

	a.registerRoutes()

	if a.grpcServer != nil {
		if err := a.grpcServer.Start(); err != nil {
			a.logger.Warn(ctx, "gRPC health server not started", "error", err.Error())
		}
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	a.maintenance.Start(runCtx)

	shutdownDone := make(chan struct{})
	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		defer close(shutdownDone)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second
		if s := a.configProvider.Get().App.ShutdownTimeoutSeconds; s > 0 {
			shutdownTimeout = time.Duration(s) * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if a.grpcServer != nil {
			a.grpcServer.SetServing(false)
		}
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")

		stopRun()
		a.maintenance.Stop()
		if err := a.maintenance.Validate(shutdownCtx, application.TriggerShutdown); err != nil {
			a.logger.Warn(context.Background(), "Final cache validation failed", "error", err.Error())
		}
		if a.grpcServer != nil {
			a.grpcServer.GracefulStop()
		}
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", cfg.Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	<-shutdownDone

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}
