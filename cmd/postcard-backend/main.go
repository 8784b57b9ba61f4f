// Точка входа postcard-backend — сервиса приёма и модерации
// открыток outgoing-студентов.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Zidans-Haare/postcard/internal/api/handlers"
	"github.com/Zidans-Haare/postcard/internal/api/middleware"
	"github.com/Zidans-Haare/postcard/internal/auth"
	"github.com/Zidans-Haare/postcard/internal/config"
	"github.com/Zidans-Haare/postcard/internal/domain/model"
	"github.com/Zidans-Haare/postcard/internal/query"
	"github.com/Zidans-Haare/postcard/internal/server"
	"github.com/Zidans-Haare/postcard/internal/service"
	"github.com/Zidans-Haare/postcard/internal/storage/recordstore"
	"github.com/Zidans-Haare/postcard/internal/storage/refalloc"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("postcard-backend запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("upload_dir", cfg.UploadDir),
		slog.Int("retention_months", cfg.RetentionMonths),
	)

	// --- Инициализация компонентов ---

	// 1. LRU-кэш точечных чтений (опционален)
	var cache *recordstore.Cache
	if cfg.CacheSize > 0 {
		cache = recordstore.NewCache(cfg.CacheSize, cfg.CacheTTL)
		logger.Info("Кэш заявок включён",
			slog.Int("size", cfg.CacheSize),
			slog.String("ttl", cfg.CacheTTL.String()),
		)
	}

	// 2. Файловое хранилище заявок
	store, err := recordstore.New(cfg.UploadDir, cache, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Prometheus метрики заявок по статусам
	if err := updateEntryMetrics(store); err != nil {
		logger.Warn("Не удалось посчитать метрики заявок", slog.String("error", err.Error()))
	}

	// 3. Аллокатор референсов поверх хранилища
	alloc := refalloc.New(func(ref string) (bool, error) {
		_, err := store.Find(ref)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	})

	// 4. Сервисы
	engine := query.NewEngine(store)
	ingestSvc := service.NewIngestService(cfg, store, alloc, logger)
	sessionManager := auth.NewManager(cfg.SessionSecret, cfg.SessionTTL, cfg.AdminUser, cfg.AdminPass, logger)

	// 5. Retention — фоновая физическая очистка помеченных на удаление
	retentionSvc := service.NewRetentionService(store, cfg.RetentionMonths, cfg.RetentionInterval, logger)
	retentionSvc.Start(context.Background())

	// 6. Handlers
	h := server.Handlers{
		Upload: handlers.NewUploadHandler(cfg, ingestSvc, logger),
		Status: handlers.NewStatusHandler(store, engine, logger),
		Auth:   handlers.NewAuthHandler(sessionManager, logger),
		Admin:  handlers.NewAdminHandler(store, engine, logger),
		Health: handlers.NewHealthHandler(cfg.UploadDir),
	}
	session := middleware.NewSessionAuth(sessionManager, logger)

	// 7. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, session)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	retentionSvc.Stop()

	logger.Info("postcard-backend остановлен")
}

// updateEntryMetrics устанавливает стартовые значения gauge заявок
// по статусам из полного скана хранилища.
func updateEntryMetrics(store *recordstore.Store) error {
	entries, err := store.Scan()
	if err != nil {
		return err
	}

	counts := make(map[model.EntryStatus]int, len(model.AllStatuses))
	for _, entry := range entries {
		counts[entry.Status]++
	}
	for _, status := range model.AllStatuses {
		middleware.EntriesTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	return nil
}
