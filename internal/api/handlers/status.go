// status.go — публичные endpoints проверки статуса заявки.
package handlers

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Zidans-Haare/postcard/internal/api/errors"
	"github.com/Zidans-Haare/postcard/internal/domain/model"
	"github.com/Zidans-Haare/postcard/internal/query"
	"github.com/Zidans-Haare/postcard/internal/storage/recordstore"
)

// recentLimit — число заявок в публичной ленте последних открыток.
const recentLimit = 6

// StatusHandler обрабатывает публичные запросы статуса.
type StatusHandler struct {
	store  *recordstore.Store
	engine *query.Engine
	logger *slog.Logger
}

// NewStatusHandler создаёт обработчик статусных endpoints.
func NewStatusHandler(store *recordstore.Store, engine *query.Engine, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		store:  store,
		engine: engine,
		logger: logger.With(slog.String("component", "status_handler")),
	}
}

// recentItem — публичная проекция заявки для ленты последних открыток.
// Персональные данные (имя, email) наружу не отдаются.
type recentItem struct {
	Ref               string    `json:"ref"`
	ReceivedAt        time.Time `json:"receivedAt"`
	Location          string    `json:"location"`
	PostcardAvailable bool      `json:"postcardAvailable"`
}

// Recent обрабатывает GET /api/status/recent.
// Публично показываются только одобренные заявки.
func (h *StatusHandler) Recent(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.engine.List(query.Filter{Status: string(model.StatusApproved)})
	if err != nil {
		h.logger.Error("Ошибка листинга последних заявок", slog.String("error", err.Error()))
		errors.InternalError(w, "Interner Fehler.")
		return
	}

	if len(entries) > recentLimit {
		entries = entries[:recentLimit]
	}

	items := make([]recentItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, recentItem{
			Ref:               entry.Ref,
			ReceivedAt:        entry.ReceivedAt,
			Location:          entry.Fields.Location,
			PostcardAvailable: entry.Files.Postcard != "",
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"items": items,
	})
}

// statusResponse — публичный ответ проверки статуса по референсу.
type statusResponse struct {
	OK         bool              `json:"ok"`
	Ref        string            `json:"ref"`
	Status     model.EntryStatus `json:"status"`
	ReceivedAt time.Time         `json:"receivedAt"`
	ApprovedAt *time.Time        `json:"approvedAt"`
	DeletedAt  *time.Time        `json:"deletedAt"`
}

// GetStatus обрабатывает GET /api/status/{ref}.
// Референс нормализуется к верхнему регистру.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ref := strings.ToUpper(chi.URLParam(r, "ref"))

	entry, err := h.store.Find(ref)
	if err != nil {
		if stderrors.Is(err, model.ErrNotFound) {
			errors.NotFound(w, "Referenz wurde nicht gefunden.")
			return
		}
		h.logger.Error("Ошибка поиска заявки", slog.String("ref", ref), slog.String("error", err.Error()))
		errors.InternalError(w, "Interner Fehler.")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		OK:         true,
		Ref:        entry.Ref,
		Status:     entry.Status,
		ReceivedAt: entry.ReceivedAt,
		ApprovedAt: entry.ApprovedAt,
		DeletedAt:  entry.DeletedAt,
	})
}

// DownloadPostcard обрабатывает GET /api/status/{ref}/postcard.
// Отдаёт PDF-открытку заявки inline.
func (h *StatusHandler) DownloadPostcard(w http.ResponseWriter, r *http.Request) {
	ref := strings.ToUpper(chi.URLParam(r, "ref"))

	entry, err := h.store.Find(ref)
	if err != nil {
		if stderrors.Is(err, model.ErrNotFound) {
			errors.NotFound(w, "Referenz wurde nicht gefunden.")
			return
		}
		h.logger.Error("Ошибка поиска заявки", slog.String("ref", ref), slog.String("error", err.Error()))
		errors.InternalError(w, "Interner Fehler.")
		return
	}

	f, _, err := h.store.ReadFile(ref, entry.Files.Postcard)
	if err != nil {
		if stderrors.Is(err, model.ErrNotFound) {
			errors.NotFound(w, "Postkarte wurde nicht gefunden.")
			return
		}
		h.logger.Error("Ошибка открытия открытки", slog.String("ref", ref), slog.String("error", err.Error()))
		errors.InternalError(w, "Interner Fehler.")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", entry.Files.Postcard))
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("Передача открытки прервана",
			slog.String("ref", ref),
			slog.String("error", err.Error()),
		)
	}
}
