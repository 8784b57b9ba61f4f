// retention.go — сервис фоновой очистки помеченных на удаление заявок.
//
// Ядро заявки не удаляет: статус deleted — только пометка. Физическую
// очистку выполняет этот сервис: заявки со статусом deleted, чья метка
// deletedAt старше срока хранения, удаляются с диска целиком.
//
// Запускается как горутина с периодическим тикером (PK_RETENTION_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
	"github.com/Zidans-Haare/postcard/internal/storage/recordstore"
)

// Prometheus метрики retention job
var (
	// retentionRunsTotal — количество запусков очистки.
	retentionRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pk_retention_runs_total",
		Help: "Общее количество запусков retention job",
	})

	// retentionPurgedTotal — количество физически удалённых заявок.
	retentionPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pk_retention_purged_total",
		Help: "Общее количество заявок, удалённых retention job",
	})

	// retentionDurationSeconds — длительность выполнения очистки.
	retentionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pk_retention_duration_seconds",
		Help:    "Длительность выполнения retention job в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// RetentionResult — результат одного запуска очистки.
type RetentionResult struct {
	// PurgedCount — количество физически удалённых заявок
	PurgedCount int
	// Errors — количество ошибок при удалении
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// RetentionService — сервис физической очистки удалённых заявок.
type RetentionService struct {
	store    *recordstore.Store
	months   int
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewRetentionService создаёт сервис очистки.
// months — срок хранения deleted заявок в месяцах, 0 отключает очистку.
func NewRetentionService(
	store *recordstore.Store,
	months int,
	interval time.Duration,
	logger *slog.Logger,
) *RetentionService {
	return &RetentionService{
		store:    store,
		months:   months,
		interval: interval,
		logger:   logger.With(slog.String("component", "retention")),
	}
}

// Enabled сообщает, активна ли очистка.
func (r *RetentionService) Enabled() bool {
	return r.months > 0
}

// Start запускает фоновую горутину очистки с периодическим тикером.
// Вызывается один раз при старте приложения. При отключённой очистке
// ничего не делает.
func (r *RetentionService) Start(ctx context.Context) {
	if !r.Enabled() {
		r.logger.Info("Retention job отключён (срок хранения 0)")
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.run(jobCtx)

	r.logger.Info("Retention job запущен",
		slog.Int("months", r.months),
		slog.String("interval", r.interval.String()),
	)
}

// Stop останавливает фоновый процесс очистки.
func (r *RetentionService) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.logger.Info("Retention job остановлен")
}

// run — основной цикл фоновой горутины.
func (r *RetentionService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	r.RunOnce(time.Now().UTC())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(time.Now().UTC())
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (r *RetentionService) RunOnce(now time.Time) *RetentionResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	result := &RetentionResult{}

	if !r.Enabled() {
		return result
	}

	cutoff := now.AddDate(0, -r.months, 0)

	entries, err := r.store.Scan()
	if err != nil {
		r.logger.Error("Retention: ошибка скана хранилища",
			slog.String("error", err.Error()),
		)
		result.Errors++
		return result
	}

	for _, entry := range entries {
		if entry.Status != model.StatusDeleted || entry.DeletedAt == nil {
			continue
		}
		if entry.DeletedAt.After(cutoff) {
			continue
		}

		if err := r.store.Purge(entry); err != nil {
			r.logger.Error("Retention: ошибка удаления заявки",
				slog.String("ref", entry.Ref),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		r.logger.Info("Retention: заявка удалена с диска",
			slog.String("ref", entry.Ref),
			slog.Time("deletedAt", *entry.DeletedAt),
		)
		result.PurgedCount++
	}

	result.Duration = time.Since(start)

	retentionRunsTotal.Inc()
	retentionPurgedTotal.Add(float64(result.PurgedCount))
	retentionDurationSeconds.Observe(result.Duration.Seconds())

	r.logger.Info("Retention завершён",
		slog.Int("purged", result.PurgedCount),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
