// metrics.go — Prometheus HTTP метрики сервиса открыток.
// Регистрирует метрики: pk_http_requests_total, pk_http_request_duration_seconds.
// Бизнес-метрики (pk_entries_total, pk_operations_total) регистрируются здесь же
// и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pk_http_requests_total",
			Help: "Общее количество HTTP-запросов к сервису открыток",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pk_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к сервису открыток в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// EntriesTotal — текущее количество заявок по статусам (gauge).
	EntriesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pk_entries_total",
			Help: "Текущее количество заявок в хранилище",
		},
		[]string{"status"},
	)

	// OperationsTotal — общее количество операций над заявками.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pk_operations_total",
			Help: "Общее количество операций над заявками",
		},
		[]string{"operation", "result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем референсы и имена файлов на плейсхолдеры)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет референсы заявок и имена файлов в пути
// на плейсхолдеры для предотвращения взрывного роста кардинальности метрик.
// /api/admin/entries/AB12CD34/files/Postkarte_1.pdf → /api/admin/entries/{ref}/files/{file}
func normalizePath(path string) string {
	switch {
	case path == "/health/live", path == "/health/ready", path == "/metrics":
		return path
	case path == "/api/upload", path == "/api/status/recent",
		path == "/api/auth/login", path == "/api/auth/logout":
		return path
	case path == "/api/admin/entries", path == "/api/admin/stats",
		path == "/api/admin/export.csv", path == "/api/admin/export.json":
		return path
	case strings.HasPrefix(path, "/api/status/"):
		rest := path[len("/api/status/"):]
		if ref, suffix, _ := strings.Cut(rest, "/"); isRefSegment(ref) {
			if suffix == "postcard" {
				return "/api/status/{ref}/postcard"
			}
			if suffix == "" {
				return "/api/status/{ref}"
			}
		}
	case strings.HasPrefix(path, "/api/admin/entries/"):
		rest := path[len("/api/admin/entries/"):]
		if ref, suffix, _ := strings.Cut(rest, "/"); isRefSegment(ref) {
			switch {
			case suffix == "":
				return "/api/admin/entries/{ref}"
			case suffix == "status":
				return "/api/admin/entries/{ref}/status"
			case suffix == "download/zip":
				return "/api/admin/entries/{ref}/download/zip"
			case strings.HasPrefix(suffix, "files/"):
				return "/api/admin/entries/{ref}/files/{file}"
			}
		}
	}
	return path
}

// isRefSegment проверяет, выглядит ли сегмент пути как референс заявки
// (8 шестнадцатеричных символов в верхнем регистре).
func isRefSegment(segment string) bool {
	if len(segment) != 8 {
		return false
	}
	for _, c := range segment {
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
