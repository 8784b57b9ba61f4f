// auth.go — middleware сессионной аутентификации администратора.
// Сессия — самоподписанный HS256 JWT в HttpOnly-cookie (пакет auth).
// Валидная сессия продлевается на каждом запросе (скользящее окно).
// Публичные endpoints (upload, status, health, metrics) — без аутентификации.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/Zidans-Haare/postcard/internal/api/errors"
	"github.com/Zidans-Haare/postcard/internal/auth"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyUser — ключ имени аутентифицированного пользователя в контексте.
const ContextKeyUser contextKey = "session_user"

// SessionAuth — middleware проверки админской сессии.
type SessionAuth struct {
	manager *auth.Manager
	logger  *slog.Logger
}

// NewSessionAuth создаёт middleware сессионной аутентификации.
func NewSessionAuth(manager *auth.Manager, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		manager: manager,
		logger:  logger.With(slog.String("component", "session_auth")),
	}
}

// Middleware возвращает HTTP middleware, пропускающий только запросы
// с валидной сессионной cookie. Имя пользователя помещается в контекст,
// сессия продлевается свежим токеном.
func (s *SessionAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookieName)
			if err != nil || cookie.Value == "" {
				apierrors.Unauthorized(w, "Anmeldung erforderlich.")
				return
			}

			now := time.Now().UTC()
			username, err := s.manager.Verify(cookie.Value, now)
			if err != nil {
				s.logger.Debug("Сессионный токен не прошёл проверку",
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("error", err.Error()),
				)
				http.SetCookie(w, auth.ClearedCookie())
				apierrors.Unauthorized(w, "Sitzung abgelaufen. Bitte erneut anmelden.")
				return
			}

			// Скользящая сессия: каждый запрос продлевает её
			if refreshed, err := s.manager.Refresh(username, now); err == nil {
				http.SetCookie(w, s.manager.SessionCookie(refreshed))
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext извлекает имя аутентифицированного пользователя
// из контекста запроса. Возвращает пустую строку, если его нет.
func UserFromContext(ctx context.Context) string {
	username, _ := ctx.Value(ContextKeyUser).(string)
	return username
}

// NoCache возвращает middleware, запрещающий кэширование ответов.
// Админские данные не должны оседать в промежуточных кэшах и
// истории браузера.
func NoCache() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}
