package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	logger "github.com/sirupsen/logrus"

	"limitbot/src/auth"
	"limitbot/src/handler"
	"limitbot/src/repository"
)

// Deps are the collaborators the HTTP API is built on.
type Deps struct {
	Orders    handler.OrderService
	Search    *repository.OrderRepository
	Monitor   handler.MonitorControl
	TokenHash string
	// Browser origins allowed by CORS. Empty disables the CORS layer.
	AllowedOrigins []string
}

func NewRouter(deps Deps) http.Handler {
	// Router with middleware
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(deps.TokenHash))

		r.Get("/orders", handler.ListOrdersHandler(deps.Orders))
		r.Post("/orders", handler.CreateOrderHandler(deps.Orders))
		if deps.Search != nil {
			r.Get("/orders/search", handler.SearchOrdersHandler(deps.Search))
		}
		r.Get("/orders/{id}", handler.GetOrderHandler(deps.Orders))
		r.Post("/orders/{id}/cancel", handler.CancelOrderHandler(deps.Orders))
		r.Get("/stats", handler.StatsHandler(deps.Orders))

		if deps.Monitor != nil {
			r.Get("/monitor", handler.MonitorStatusHandler(deps.Monitor))
			r.Post("/monitor/start", handler.StartMonitorHandler(deps.Monitor))
			r.Post("/monitor/stop", handler.StopMonitorHandler(deps.Monitor))
			r.Post("/monitor/check", handler.CheckNowHandler(deps.Monitor))
		}
	})

	if len(deps.AllowedOrigins) == 0 {
		return r
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// StartServer serves h on port until ctx is done or the process receives
// SIGINT or SIGTERM, then shuts down gracefully.
func StartServer(ctx context.Context, port string, h http.Handler) error {
	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
			return err
		}
		return nil
	case <-stop:
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
