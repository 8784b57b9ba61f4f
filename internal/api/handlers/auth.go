// auth.go — вход и выход администратора.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Zidans-Haare/postcard/internal/api/errors"
	"github.com/Zidans-Haare/postcard/internal/auth"
)

// maxLoginBodySize — лимит тела запроса логина.
const maxLoginBodySize = 4 << 10

// AuthHandler обрабатывает аутентификацию администратора.
type AuthHandler struct {
	manager *auth.Manager
	logger  *slog.Logger
}

// NewAuthHandler создаёт обработчик аутентификации.
func NewAuthHandler(manager *auth.Manager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		manager: manager,
		logger:  logger.With(slog.String("component", "auth_handler")),
	}
}

// loginRequest — тело запроса POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login обрабатывает POST /api/auth/login.
// Успех устанавливает сессионную cookie. Блокировка после серии
// неудачных попыток отвечает 429 с числом минут до разблокировки.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodySize))
	if err := dec.Decode(&req); err != nil {
		errors.ValidationError(w, "Ungültige Anfrage.")
		return
	}

	now := time.Now().UTC()
	token, err := h.manager.Login(req.Username, req.Password, now)
	if err != nil {
		var locked *auth.LockedError
		if stderrors.As(err, &locked) {
			minutes := locked.RetryAfterMinutes(now)
			w.Header().Set("Retry-After", strconv.Itoa(minutes*60))
			errors.TooManyRequests(w,
				fmt.Sprintf("Zu viele Fehlversuche. Bitte in %d Minuten erneut probieren.", minutes))
			return
		}
		if stderrors.Is(err, auth.ErrInvalidCredentials) {
			errors.Unauthorized(w, "Benutzername oder Passwort ist falsch.")
			return
		}
		h.logger.Error("Ошибка входа", slog.String("error", err.Error()))
		errors.InternalError(w, "Interner Fehler.")
		return
	}

	http.SetCookie(w, h.manager.SessionCookie(token))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Logout обрабатывает POST /api/auth/logout: стирает сессионную cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, auth.ClearedCookie())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
