// Пакет server — HTTP-сервер сервиса открыток с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zidans-Haare/postcard/internal/api/handlers"
	"github.com/Zidans-Haare/postcard/internal/api/middleware"
	"github.com/Zidans-Haare/postcard/internal/config"
)

// Handlers — набор доменных обработчиков, монтируемых на роутер.
type Handlers struct {
	Upload *handlers.UploadHandler
	Status *handlers.StatusHandler
	Auth   *handlers.AuthHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
}

// Server — HTTP-сервер сервиса открыток.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
	limiters   []*middleware.RateLimiter
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// session управляет доступом к /api/admin; лимитеры — трёхтирные:
// загрузка дорогая и редкая, проверка статуса дешёвая и частая.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, session *middleware.SessionAuth) *Server {
	router, limiters := NewRouter(cfg, logger, h, session)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
		limiters:   limiters,
	}
}

// NewRouter собирает chi-роутер со всеми маршрутами сервиса.
// Вынесен отдельно, чтобы тесты могли поднять роутер без сервера.
// Возвращает также лимитеры: владелец роутера обязан остановить их
// через Stop при завершении.
func NewRouter(cfg *config.Config, logger *slog.Logger, h Handlers, session *middleware.SessionAuth) (chi.Router, []*middleware.RateLimiter) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	uploadLimiter := middleware.NewRateLimiter(cfg.UploadRatePerMin, cfg.TrustProxy, logger)
	loginLimiter := middleware.NewRateLimiter(cfg.LoginRatePerMin, cfg.TrustProxy, logger)
	statusLimiter := middleware.NewRateLimiter(cfg.StatusRatePerMin, cfg.TrustProxy, logger)

	router.Route("/api", func(r chi.Router) {
		r.With(uploadLimiter.Middleware()).Post("/upload", h.Upload.Upload)

		r.Route("/status", func(r chi.Router) {
			r.Use(statusLimiter.Middleware())
			r.Get("/recent", h.Status.Recent)
			r.Get("/{ref}", h.Status.GetStatus)
			r.Get("/{ref}/postcard", h.Status.DownloadPostcard)
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimiter.Middleware()).Post("/login", h.Auth.Login)
			r.Post("/logout", h.Auth.Logout)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(session.Middleware())
			r.Use(middleware.NoCache())

			r.Get("/entries", h.Admin.ListEntries)
			r.Get("/entries/{ref}", h.Admin.GetEntry)
			r.Get("/entries/{ref}/files/{file}", h.Admin.GetFile)
			r.Get("/entries/{ref}/download/zip", h.Admin.DownloadZIP)
			r.Patch("/entries/{ref}/status", h.Admin.UpdateStatus)
			r.Get("/export.csv", h.Admin.ExportCSV)
			r.Get("/export.json", h.Admin.ExportJSON)
			r.Get("/stats", h.Admin.Stats)
		})
	})

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	return router, []*middleware.RateLimiter{uploadLimiter, loginLimiter, statusLimiter}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с настраиваемым
// таймаутом.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	// Фоновые горутины лимитеров завершаются вместе с сервером
	defer func() {
		for _, rl := range s.limiters {
			rl.Stop()
		}
	}()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
