// upload.go — приём публичных заявок (POST /api/upload).
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/Zidans-Haare/postcard/internal/api/errors"
	"github.com/Zidans-Haare/postcard/internal/config"
	"github.com/Zidans-Haare/postcard/internal/domain/model"
	"github.com/Zidans-Haare/postcard/internal/service"
	"github.com/Zidans-Haare/postcard/internal/storage/recordstore"
)

// multipartOverhead — запас к лимиту тела на заголовки частей и поля формы.
const multipartOverhead = 1 << 20

// UploadHandler обрабатывает приём заявок.
type UploadHandler struct {
	cfg    *config.Config
	ingest *service.IngestService
	logger *slog.Logger
}

// NewUploadHandler создаёт обработчик приёма заявок.
func NewUploadHandler(cfg *config.Config, ingest *service.IngestService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		cfg:    cfg,
		ingest: ingest,
		logger: logger.With(slog.String("component", "upload_handler")),
	}
}

// uploadResponse — ответ успешного приёма.
type uploadResponse struct {
	OK    bool             `json:"ok"`
	Ref   string           `json:"ref"`
	Files model.EntryFiles `json:"files"`
}

// Upload обрабатывает POST /api/upload.
// Multipart-форма: текстовые поля + файл postcard + до N файлов images.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Жёсткий лимит тела: суммарный лимит файлов плюс запас на форму
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxTotalSize+multipartOverhead)

	if err := r.ParseMultipartForm(h.cfg.MaxTotalSize + multipartOverhead); err != nil {
		var maxBytesErr *http.MaxBytesError
		if stderrors.As(err, &maxBytesErr) {
			errors.FileTooLarge(w, fmt.Sprintf("Gesamtgröße von %d MB überschritten.", h.cfg.MaxTotalSize/(1024*1024)))
			return
		}
		errors.ValidationError(w, "Die Anfrage konnte nicht verarbeitet werden.")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	params := service.IngestParams{
		FullName: r.FormValue("fullName"),
		Email:    r.FormValue("email"),
		Faculty:  r.FormValue("faculty"),
		Location: r.FormValue("location"),
		Term:     r.FormValue("term"),
		Message:  r.FormValue("message"),
		Agree:    r.FormValue("agree"),
		Raffle:   r.FormValue("raffle"),
	}

	if headers := r.MultipartForm.File["postcard"]; len(headers) > 0 {
		postcard, err := readUploadedFile(headers[0])
		if err != nil {
			h.logger.Warn("Ошибка чтения файла открытки", slog.String("error", err.Error()))
			errors.ValidationError(w, "Die PDF-Datei konnte nicht gelesen werden.")
			return
		}
		params.Postcard = postcard
	}

	for _, header := range r.MultipartForm.File["images"] {
		img, err := readUploadedFile(header)
		if err != nil {
			h.logger.Warn("Ошибка чтения изображения", slog.String("error", err.Error()))
			errors.ValidationError(w, "Eine Bilddatei konnte nicht gelesen werden.")
			return
		}
		params.Images = append(params.Images, *img)
	}

	entry, ingErr := h.ingest.Ingest(params, time.Now().UTC())
	if ingErr != nil {
		errors.WriteError(w, ingErr.StatusCode, ingErr.Code, ingErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		OK:    true,
		Ref:   entry.Ref,
		Files: entry.Files,
	})
}

// readUploadedFile вычитывает часть multipart-формы в память.
// Размеры ограничены MaxBytesReader на уровне запроса.
func readUploadedFile(header *multipart.FileHeader) (*recordstore.UploadedFile, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия части формы: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения части формы: %w", err)
	}

	return &recordstore.UploadedFile{
		OriginalName: header.Filename,
		Data:         data,
		MIMEType:     header.Header.Get("Content-Type"),
	}, nil
}

// writeJSON сериализует успешный ответ.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
