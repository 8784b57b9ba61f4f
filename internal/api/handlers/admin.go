// admin.go — админские endpoints модерации и выгрузки заявок.
// Все маршруты за сессионной аутентификацией и NoCache middleware.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Zidans-Haare/postcard/internal/api/errors"
	"github.com/Zidans-Haare/postcard/internal/api/middleware"
	"github.com/Zidans-Haare/postcard/internal/domain/model"
	"github.com/Zidans-Haare/postcard/internal/export"
	"github.com/Zidans-Haare/postcard/internal/query"
	"github.com/Zidans-Haare/postcard/internal/storage/recordstore"
)

// defaultPageSize — размер страницы листинга по умолчанию.
const defaultPageSize = 25

// AdminHandler обрабатывает админские запросы.
type AdminHandler struct {
	store  *recordstore.Store
	engine *query.Engine
	logger *slog.Logger
}

// NewAdminHandler создаёт админский обработчик.
func NewAdminHandler(store *recordstore.Store, engine *query.Engine, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:  store,
		engine: engine,
		logger: logger.With(slog.String("component", "admin_handler")),
	}
}

// parseFilter собирает query.Filter из query-параметров запроса.
// Даты принимаются как RFC3339 или YYYY-MM-DD.
func parseFilter(r *http.Request) query.Filter {
	q := r.URL.Query()
	filter := query.Filter{
		Query:   strings.TrimSpace(q.Get("query")),
		Faculty: strings.TrimSpace(q.Get("faculty")),
		Status:  strings.TrimSpace(q.Get("status")),
	}
	if t, ok := parseTimeParam(q.Get("from")); ok {
		filter.From = &t
	}
	if t, ok := parseTimeParam(q.Get("to")); ok {
		filter.To = &t
	}
	return filter
}

func parseTimeParam(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// entryCounts — счётчики файлов заявки для листинга.
type entryCounts struct {
	Images int `json:"images"`
	NFiles int `json:"nFiles"`
}

// entryListItem — проекция заявки в листинге.
type entryListItem struct {
	Ref        string            `json:"ref"`
	ReceivedAt time.Time         `json:"receivedAt"`
	Status     model.EntryStatus `json:"status"`
	Consent    bool              `json:"consent"`
	Fields     model.EntryFields `json:"fields"`
	Counts     entryCounts       `json:"counts"`
	HasPDF     bool              `json:"hasPdf"`
}

// ListEntries обрабатывает GET /api/admin/entries.
// Фильтрация по AND-условиям, сортировка receivedAt по убыванию,
// пагинация page/limit.
func (h *AdminHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit == 0 {
		limit = defaultPageSize
	}

	entries, listErr := h.engine.List(filter)
	if listErr != nil {
		h.logger.Error("Ошибка листинга заявок", slog.String("error", listErr.Error()))
		errors.InternalError(w, "Interner Fehler.")
		return
	}

	result := query.Paginate(entries, page, limit)

	items := make([]entryListItem, 0, len(result.Items))
	for _, entry := range result.Items {
		items = append(items, entryListItem{
			Ref:        entry.Ref,
			ReceivedAt: entry.ReceivedAt,
			Status:     entry.Status,
			Consent:    entry.Consent,
			Fields:     entry.Fields,
			Counts: entryCounts{
				Images: len(entry.Files.Images),
				NFiles: len(entry.Files.Images) + 1,
			},
			HasPDF: entry.Files.Postcard != "",
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"items": items,
		"total": result.Total,
		"page":  result.PageNum,
		"pages": result.Pages,
	})
}

// GetEntry обрабатывает GET /api/admin/entries/{ref}.
// Возвращает полный документ метаданных.
func (h *AdminHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	ref := strings.ToUpper(chi.URLParam(r, "ref"))

	entry, err := h.store.Find(ref)
	if err != nil {
		h.respondFindError(w, ref, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"meta":  entry,
		"files": entry.Files,
	})
}

// GetFile обрабатывает GET /api/admin/entries/{ref}/files/{file}.
// Отдаются только файлы из набора files заявки; MIME определяется
// по расширению сохранённого имени.
func (h *AdminHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	ref := strings.ToUpper(chi.URLParam(r, "ref"))
	fileName := chi.URLParam(r, "file")

	f, _, err := h.store.ReadFile(ref, fileName)
	if err != nil {
		if stderrors.Is(err, model.ErrNotFound) {
			errors.NotFound(w, "Datei nicht gefunden.")
			return
		}
		h.logger.Error("Ошибка открытия файла заявки",
			slog.String("ref", ref),
			slog.String("file", fileName),
			slog.String("error", err.Error()),
		)
		errors.InternalError(w, "Interner Fehler.")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", detectMime(fileName))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", fileName))
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("Передача файла прервана",
			slog.String("ref", ref),
			slog.String("file", fileName),
			slog.String("error", err.Error()),
		)
	}
}

// DownloadZIP обрабатывает GET /api/admin/entries/{ref}/download/zip.
// Архив: meta.json + открытка + изображения, потоково.
func (h *AdminHandler) DownloadZIP(w http.ResponseWriter, r *http.Request) {
	ref := strings.ToUpper(chi.URLParam(r, "ref"))

	entry, err := h.store.Find(ref)
	if err != nil {
		h.respondFindError(w, ref, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", entry.Ref+"_postkarte.zip"))

	if err := export.WriteZIP(w, entry, h.store); err != nil {
		// Заголовки уже отправлены, остаётся только залогировать
		h.logger.Error("Ошибка формирования архива",
			slog.String("ref", ref),
			slog.String("error", err.Error()),
		)
	}
}

// statusRequest — тело запроса PATCH /api/admin/entries/{ref}/status.
type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus обрабатывает PATCH /api/admin/entries/{ref}/status.
// Разрешён переход из любого статуса в любой; временные метки
// approvedAt/deletedAt обслуживает lifecycle.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ref := strings.ToUpper(chi.URLParam(r, "ref"))

	var req statusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodySize)).Decode(&req); err != nil {
		errors.ValidationError(w, "Ungültige Anfrage.")
		return
	}

	status := model.EntryStatus(req.Status)
	if !status.Valid() {
		errors.ValidationError(w, "Ungültiger Status.")
		return
	}

	previous, err := h.store.Find(ref)
	if err != nil {
		h.respondFindError(w, ref, err)
		return
	}
	previousStatus := previous.Status

	entry, err := h.store.UpdateStatus(ref, status, time.Now().UTC())
	if err != nil {
		var validationErr *model.ValidationError
		if stderrors.As(err, &validationErr) {
			errors.ValidationError(w, "Ungültiger Status.")
			return
		}
		h.respondFindError(w, ref, err)
		return
	}

	if previousStatus != entry.Status {
		middleware.EntriesTotal.WithLabelValues(string(previousStatus)).Dec()
		middleware.EntriesTotal.WithLabelValues(string(entry.Status)).Inc()
	}
	middleware.OperationsTotal.WithLabelValues("status_update", "success").Inc()

	h.logger.Info("Статус заявки изменён оператором",
		slog.String("ref", ref),
		slog.String("from", string(previousStatus)),
		slog.String("to", string(entry.Status)),
		slog.String("user", middleware.UserFromContext(r.Context())),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"meta": entry,
	})
}

// ExportCSV обрабатывает GET /api/admin/export.csv.
// Выгрузка отфильтрованной выборки целиком, без пагинации.
func (h *AdminHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.List(parseFilter(r))
	if err != nil {
		h.logger.Error("Ошибка листинга для экспорта CSV", slog.String("error", err.Error()))
		errors.InternalError(w, "Interner Fehler.")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="postkarten.csv"`)

	if err := export.WriteCSV(w, entries); err != nil {
		h.logger.Error("Ошибка записи CSV", slog.String("error", err.Error()))
	}
}

// ExportJSON обрабатывает GET /api/admin/export.json.
func (h *AdminHandler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.List(parseFilter(r))
	if err != nil {
		h.logger.Error("Ошибка листинга для экспорта JSON", slog.String("error", err.Error()))
		errors.InternalError(w, "Interner Fehler.")
		return
	}

	if entries == nil {
		entries = []*model.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"items": entries,
	})
}

// statsDisk — сведения о диске хранилища.
type statsDisk struct {
	TotalBytes     int64 `json:"totalBytes"`
	UsedBytes      int64 `json:"usedBytes"`
	AvailableBytes int64 `json:"availableBytes"`
}

// Stats обрабатывает GET /api/admin/stats: счётчики заявок по статусам
// и ёмкость диска под корнем хранилища.
func (h *AdminHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.store.Scan()
	if err != nil {
		h.logger.Error("Ошибка скана хранилища", slog.String("error", err.Error()))
		errors.InternalError(w, "Interner Fehler.")
		return
	}

	counts := make(map[string]int, len(model.AllStatuses))
	for _, status := range model.AllStatuses {
		counts[string(status)] = 0
	}
	for _, entry := range entries {
		counts[string(entry.Status)]++
	}

	resp := map[string]any{
		"ok":     true,
		"total":  len(entries),
		"counts": counts,
	}

	total, used, available, diskErr := diskUsage(h.store.Root())
	if diskErr != nil {
		h.logger.Warn("Ёмкость диска недоступна", slog.String("error", diskErr.Error()))
	} else {
		resp["disk"] = statsDisk{
			TotalBytes:     total,
			UsedBytes:      used,
			AvailableBytes: available,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// respondFindError отображает ошибки поиска заявки на HTTP-ответ.
func (h *AdminHandler) respondFindError(w http.ResponseWriter, ref string, err error) {
	if stderrors.Is(err, model.ErrNotFound) {
		errors.NotFound(w, "Eintrag wurde nicht gefunden.")
		return
	}
	h.logger.Error("Ошибка доступа к заявке",
		slog.String("ref", ref),
		slog.String("error", err.Error()),
	)
	errors.InternalError(w, "Interner Fehler.")
}

// detectMime определяет Content-Type по расширению сохранённого имени.
func detectMime(fileName string) string {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	}
	return "application/octet-stream"
}
