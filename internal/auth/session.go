// Пакет auth — сессии администратора.
//
// Сессия — самоподписанный HS256 JWT в HttpOnly-cookie. Внешнего
// провайдера нет: единственная учётная запись задаётся конфигурацией.
// Повторные неудачные попытки входа блокируют учётную запись
// на фиксированный интервал.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName — имя сессионной cookie.
const SessionCookieName = "pk_session"

// Параметры блокировки после неудачных попыток входа.
const (
	maxFailedAttempts = 10
	lockoutDuration   = 15 * time.Minute
)

// Ошибки аутентификации.
var (
	// ErrInvalidCredentials — неверная пара логин/пароль.
	ErrInvalidCredentials = errors.New("неверные учётные данные")
	// ErrInvalidToken — токен отсутствует, просрочен или не прошёл проверку подписи.
	ErrInvalidToken = errors.New("невалидный сессионный токен")
)

// LockedError — учётная запись заблокирована после серии неудач.
type LockedError struct {
	// Until — момент окончания блокировки
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("учётная запись заблокирована до %s", e.Until.Format(time.RFC3339))
}

// RetryAfterMinutes возвращает округлённое вверх число минут до разблокировки.
func (e *LockedError) RetryAfterMinutes(now time.Time) int {
	minutes := int((e.Until.Sub(now) + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// attemptRecord — счётчик неудачных попыток входа для имени пользователя.
type attemptRecord struct {
	count       int
	lockedUntil time.Time
}

// Manager — выпуск и проверка сессионных токенов плюс учёт блокировок.
type Manager struct {
	secret    []byte
	ttl       time.Duration
	adminUser string
	adminPass string
	logger    *slog.Logger

	mu       sync.Mutex
	attempts map[string]*attemptRecord
}

// NewManager создаёт менеджер сессий.
func NewManager(secret []byte, ttl time.Duration, adminUser, adminPass string, logger *slog.Logger) *Manager {
	return &Manager{
		secret:    secret,
		ttl:       ttl,
		adminUser: adminUser,
		adminPass: adminPass,
		logger:    logger.With(slog.String("component", "auth")),
		attempts:  make(map[string]*attemptRecord),
	}
}

// Login проверяет учётные данные и при успехе выпускает сессионный токен.
// Ошибки: *LockedError при активной блокировке, ErrInvalidCredentials
// при неверной паре логин/пароль.
func (m *Manager) Login(username, password string, now time.Time) (string, error) {
	if lockedUntil, ok := m.lockedUntil(username, now); ok {
		return "", &LockedError{Until: lockedUntil}
	}

	userMatch := timingSafeEqual(m.adminUser, username)
	passMatch := timingSafeEqual(m.adminPass, password)
	if !userMatch || !passMatch {
		m.registerFailure(username, now)
		m.logger.Warn("Неудачная попытка входа", slog.String("username", username))
		return "", ErrInvalidCredentials
	}

	m.resetAttempts(username)

	token, err := m.issueToken(username, now)
	if err != nil {
		return "", fmt.Errorf("ошибка выпуска токена: %w", err)
	}

	m.logger.Info("Администратор вошёл в систему", slog.String("username", username))
	return token, nil
}

// Verify проверяет сессионный токен и возвращает имя пользователя.
// Просроченный или повреждённый токен даёт ErrInvalidToken.
func (m *Manager) Verify(tokenString string, now time.Time) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)

	claims := &jwt.RegisteredClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}

// Refresh выпускает свежий токен для уже проверенной сессии.
// Сессия скользящая: каждый обращающийся admin-запрос продлевает её.
func (m *Manager) Refresh(username string, now time.Time) (string, error) {
	return m.issueToken(username, now)
}

// issueToken подписывает HS256 JWT с временем жизни ttl.
func (m *Manager) issueToken(username string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// SessionCookie формирует HttpOnly-cookie с сессионным токеном.
func (m *Manager) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearedCookie формирует cookie, удаляющую сессию у клиента.
func ClearedCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// lockedUntil возвращает момент окончания активной блокировки.
func (m *Manager) lockedUntil(username string, now time.Time) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.attempts[username]
	if !ok || record.lockedUntil.IsZero() || !record.lockedUntil.After(now) {
		return time.Time{}, false
	}
	return record.lockedUntil, true
}

// registerFailure увеличивает счётчик неудач и при достижении порога
// включает блокировку.
func (m *Manager) registerFailure(username string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.attempts[username]
	if !ok {
		record = &attemptRecord{}
		m.attempts[username] = record
	}
	record.count++
	if record.count >= maxFailedAttempts {
		record.lockedUntil = now.Add(lockoutDuration)
		m.logger.Warn("Учётная запись заблокирована после серии неудач",
			slog.String("username", username),
			slog.Time("locked_until", record.lockedUntil),
		)
	}
}

// resetAttempts сбрасывает счётчик после успешного входа.
func (m *Manager) resetAttempts(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, username)
}

// timingSafeEqual сравнивает строки за постоянное время.
// Сравниваются SHA-256 дайджесты, чтобы не раскрывать длину секрета.
func timingSafeEqual(expected, actual string) bool {
	expectedSum := sha256.Sum256([]byte(expected))
	actualSum := sha256.Sum256([]byte(actual))
	return subtle.ConstantTimeCompare(expectedSum[:], actualSum[:]) == 1
}
