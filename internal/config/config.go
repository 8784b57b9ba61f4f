// Пакет config — загрузка и валидация конфигурации сервиса открыток
// из переменных окружения.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Путь к корневой директории хранилища заявок
	UploadDir string
	// Логин администратора
	AdminUser string
	// Пароль администратора
	AdminPass string
	// Секрет подписи сессионных токенов (hex). Если не задан,
	// генерируется случайный: сессии не переживают рестарт
	SessionSecret []byte
	// Время жизни сессии
	SessionTTL time.Duration
	// Максимальный размер PDF-открытки в байтах
	MaxPostcardSize int64
	// Максимальный размер одного изображения в байтах
	MaxImageSize int64
	// Максимальный суммарный размер заявки в байтах
	MaxTotalSize int64
	// Максимальное число изображений в заявке
	MaxImages int
	// Срок хранения помеченных на удаление заявок в месяцах (0 = не удалять)
	RetentionMonths int
	// Интервал запуска retention job
	RetentionInterval time.Duration
	// Размер LRU-кэша точечных поисков (0 = без кэша)
	CacheSize int
	// TTL записи кэша
	CacheTTL time.Duration
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Лимиты запросов в минуту на IP по тирам: загрузка, логин, статус
	UploadRatePerMin int
	LoginRatePerMin  int
	StatusRatePerMin int
	// Доверять заголовку X-Forwarded-For при определении клиентского IP.
	// Включается только когда сервис стоит за reverse proxy
	TrustProxy bool
}

// Load загружает конфигурацию из переменных окружения (и .env файла,
// если он есть), валидирует обязательные поля и возвращает Config.
func Load() (*Config, error) {
	// .env — удобство локальной разработки, в проде переменные задаёт окружение
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	// PK_PORT — порт HTTP-сервера (по умолчанию 4000)
	cfg.Port, err = getEnvInt("PK_PORT", 4000)
	if err != nil {
		return nil, fmt.Errorf("PK_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PK_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	// PK_UPLOAD_DIR — обязательный
	cfg.UploadDir, err = getEnvRequired("PK_UPLOAD_DIR")
	if err != nil {
		return nil, err
	}

	// PK_ADMIN_USER / PK_ADMIN_PASS — обязательные
	cfg.AdminUser, err = getEnvRequired("PK_ADMIN_USER")
	if err != nil {
		return nil, err
	}
	cfg.AdminPass, err = getEnvRequired("PK_ADMIN_PASS")
	if err != nil {
		return nil, err
	}

	// PK_SESSION_SECRET — hex-секрет подписи токенов (опционально)
	if raw := getEnvDefault("PK_SESSION_SECRET", ""); raw != "" {
		secret, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("PK_SESSION_SECRET: некорректная hex-строка")
		}
		if len(secret) < 32 {
			return nil, fmt.Errorf("PK_SESSION_SECRET: минимум 32 байта, получено %d", len(secret))
		}
		cfg.SessionSecret = secret
	} else {
		cfg.SessionSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.SessionSecret); err != nil {
			return nil, fmt.Errorf("ошибка генерации сессионного секрета: %w", err)
		}
	}

	// PK_SESSION_TTL — время жизни сессии (по умолчанию 8h)
	cfg.SessionTTL, err = getEnvDuration("PK_SESSION_TTL", 8*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PK_SESSION_TTL: %w", err)
	}

	// PK_MAX_POSTCARD_SIZE — лимит PDF (по умолчанию 10 MB)
	cfg.MaxPostcardSize, err = getEnvInt64("PK_MAX_POSTCARD_SIZE", 10*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("PK_MAX_POSTCARD_SIZE: %w", err)
	}

	// PK_MAX_IMAGE_SIZE — лимит одного изображения (по умолчанию 8 MB)
	cfg.MaxImageSize, err = getEnvInt64("PK_MAX_IMAGE_SIZE", 8*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("PK_MAX_IMAGE_SIZE: %w", err)
	}

	// PK_MAX_TOTAL_SIZE — суммарный лимит заявки (по умолчанию 30 MB)
	cfg.MaxTotalSize, err = getEnvInt64("PK_MAX_TOTAL_SIZE", 30*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("PK_MAX_TOTAL_SIZE: %w", err)
	}
	if cfg.MaxTotalSize < cfg.MaxPostcardSize {
		return nil, fmt.Errorf("PK_MAX_TOTAL_SIZE: значение %d должно быть >= PK_MAX_POSTCARD_SIZE (%d)",
			cfg.MaxTotalSize, cfg.MaxPostcardSize)
	}

	// PK_MAX_IMAGES — число изображений (по умолчанию 5)
	cfg.MaxImages, err = getEnvInt("PK_MAX_IMAGES", 5)
	if err != nil {
		return nil, fmt.Errorf("PK_MAX_IMAGES: %w", err)
	}
	if cfg.MaxImages < 0 {
		return nil, fmt.Errorf("PK_MAX_IMAGES: значение не может быть отрицательным")
	}

	// PK_RETENTION_MONTHS — срок хранения удалённых заявок (0 = отключено)
	cfg.RetentionMonths, err = getEnvInt("PK_RETENTION_MONTHS", 0)
	if err != nil {
		return nil, fmt.Errorf("PK_RETENTION_MONTHS: %w", err)
	}
	if cfg.RetentionMonths < 0 {
		return nil, fmt.Errorf("PK_RETENTION_MONTHS: значение не может быть отрицательным")
	}

	// PK_RETENTION_INTERVAL — интервал retention job (по умолчанию 24h)
	cfg.RetentionInterval, err = getEnvDuration("PK_RETENTION_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PK_RETENTION_INTERVAL: %w", err)
	}

	// PK_CACHE_SIZE — размер LRU-кэша (по умолчанию 512, 0 = без кэша)
	cfg.CacheSize, err = getEnvInt("PK_CACHE_SIZE", 512)
	if err != nil {
		return nil, fmt.Errorf("PK_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("PK_CACHE_SIZE: значение не может быть отрицательным")
	}

	// PK_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("PK_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PK_CACHE_TTL: %w", err)
	}

	// PK_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PK_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PK_LOG_LEVEL: %w", err)
	}

	// PK_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PK_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PK_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// PK_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("PK_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PK_SHUTDOWN_TIMEOUT: %w", err)
	}

	// Лимиты запросов на IP в минуту по тирам
	cfg.UploadRatePerMin, err = getEnvInt("PK_RATE_UPLOAD_PER_MIN", 5)
	if err != nil {
		return nil, fmt.Errorf("PK_RATE_UPLOAD_PER_MIN: %w", err)
	}
	cfg.LoginRatePerMin, err = getEnvInt("PK_RATE_LOGIN_PER_MIN", 10)
	if err != nil {
		return nil, fmt.Errorf("PK_RATE_LOGIN_PER_MIN: %w", err)
	}
	cfg.StatusRatePerMin, err = getEnvInt("PK_RATE_STATUS_PER_MIN", 60)
	if err != nil {
		return nil, fmt.Errorf("PK_RATE_STATUS_PER_MIN: %w", err)
	}

	// PK_TRUSTED_PROXY — доверять X-Forwarded-For (по умолчанию false)
	if raw := getEnvDefault("PK_TRUSTED_PROXY", "false"); raw != "" {
		cfg.TrustProxy, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("PK_TRUSTED_PROXY: некорректное булево значение %q", raw)
		}
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	if n <= 0 {
		return 0, fmt.Errorf("значение должно быть положительным, получено %d", n)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
