// ratelimit.go — ограничение частоты запросов на клиентский IP.
// Три тира лимитов (загрузка, логин, статус) повторяют разные профили
// нагрузки: загрузка дорогая и редкая, проверка статуса дешёвая и частая.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/Zidans-Haare/postcard/internal/api/errors"
)

// limiterTTL — время жизни неактивной записи лимитера.
const limiterTTL = 10 * time.Minute

// clientLimiter — токен-бакет одного клиентского IP.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter — per-IP ограничитель частоты запросов.
type RateLimiter struct {
	perMinute  int
	burst      int
	trustProxy bool
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRateLimiter создаёт ограничитель: perMinute запросов в минуту
// на IP, кратковременные всплески до burst. trustProxy разрешает брать
// клиентский IP из X-Forwarded-For; включается только за доверенным
// reverse proxy — прямой клиент может подставить в заголовок любое
// значение и вращением адресов обойти лимит.
func NewRateLimiter(perMinute int, trustProxy bool, logger *slog.Logger) *RateLimiter {
	burst := perMinute
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		perMinute:  perMinute,
		burst:      burst,
		trustProxy: trustProxy,
		logger:     logger.With(slog.String("component", "ratelimit")),
		clients:    make(map[string]*clientLimiter),
		stop:       make(chan struct{}),
	}

	// Фоновая очистка давно не появлявшихся IP, иначе карта растёт бесконечно
	go rl.cleanupLoop()

	return rl
}

// Stop останавливает фоновую очистку. Повторные вызовы безопасны.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}

// Middleware возвращает HTTP middleware, отклоняющий запросы сверх лимита
// со статусом 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, rl.trustProxy)
			if !rl.allow(ip) {
				rl.logger.Warn("Запрос отклонён лимитером",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				apierrors.TooManyRequests(w, "Zu viele Anfragen. Bitte später erneut versuchen.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allow проверяет и расходует токен для IP.
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[ip]
	if !ok {
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60.0), rl.burst),
		}
		rl.clients[ip] = client
	}
	client.lastSeen = time.Now()

	return client.limiter.Allow()
}

// cleanupLoop периодически удаляет записи IP, не появлявшихся дольше TTL.
// Завершается по Stop.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterTTL)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterTTL)
			rl.mu.Lock()
			for ip, client := range rl.clients {
				if client.lastSeen.Before(cutoff) {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// clientIP извлекает клиентский IP из запроса. X-Forwarded-For
// учитывается только при trustForwarded, иначе заголовок игнорируется
// и берётся адрес соединения.
func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			// Первый адрес в списке — исходный клиент
			for i := 0; i < len(forwarded); i++ {
				if forwarded[i] == ',' {
					return forwarded[:i]
				}
			}
			return forwarded
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
