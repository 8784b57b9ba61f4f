// Пакет service — бизнес-логика сервиса открыток.
// ingest.go — приём и валидация заявок.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	apierrors "github.com/Zidans-Haare/postcard/internal/api/errors"
	"github.com/Zidans-Haare/postcard/internal/api/middleware"
	"github.com/Zidans-Haare/postcard/internal/config"
	"github.com/Zidans-Haare/postcard/internal/domain/model"
	"github.com/Zidans-Haare/postcard/internal/storage/recordstore"
	"github.com/Zidans-Haare/postcard/internal/storage/refalloc"
	"github.com/Zidans-Haare/postcard/internal/storage/sniff"
)

// Ограничения полей формы.
const (
	maxFullNameLen = 200
	// maxEmailLen — предел длины адреса по RFC 5321
	maxEmailLen    = 254
	maxLocationLen = 200
	maxTermLen     = 100
	maxMessageLen  = 1000
)

// emailPattern — нестрогая проверка адреса: непустые локальная часть
// и домен с точкой. Подтверждение адреса не выполняется, переусложнять
// незачем.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// createRetries — число повторов создания при проигрыше гонки за ref.
const createRetries = 3

// IngestParams — сырые значения формы загрузки до валидации.
type IngestParams struct {
	FullName string
	Email    string
	Faculty  string
	Location string
	Term     string
	Message  string
	// Agree — строковое значение чекбокса согласия, должно быть "true"
	Agree string
	// Raffle — участие в розыгрыше ("true"/"false", опционально)
	Raffle string
	// Postcard — PDF-открытка; nil, если файл не передан
	Postcard *recordstore.UploadedFile
	// Images — изображения (возможно пусто)
	Images []recordstore.UploadedFile
}

// IngestError — ошибка приёма заявки с HTTP-кодом.
// Message — на немецком, показывается клиенту как есть.
type IngestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IngestService — сервис приёма заявок.
type IngestService struct {
	cfg    *config.Config
	store  *recordstore.Store
	alloc  *refalloc.Allocator
	logger *slog.Logger
}

// NewIngestService создаёт сервис приёма заявок.
func NewIngestService(
	cfg *config.Config,
	store *recordstore.Store,
	alloc *refalloc.Allocator,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		cfg:    cfg,
		store:  store,
		alloc:  alloc,
		logger: logger.With(slog.String("component", "ingest_service")),
	}
}

// Ingest валидирует заявку и сохраняет её в хранилище.
//
// Поток:
//  1. Валидация полей формы
//  2. Валидация файлов (MIME, размеры, сигнатуры содержимого)
//  3. Выделение референса
//  4. recordstore.Create (директория заявки — атомарный гейт уникальности)
//
// При проигрыше гонки за референс создание повторяется со свежим ref.
func (s *IngestService) Ingest(params IngestParams, now time.Time) (*model.Entry, *IngestError) {
	fields, ingErr := s.validateFields(params)
	if ingErr != nil {
		middleware.OperationsTotal.WithLabelValues("ingest", "rejected").Inc()
		return nil, ingErr
	}

	if ingErr := s.validateFiles(params); ingErr != nil {
		middleware.OperationsTotal.WithLabelValues("ingest", "rejected").Inc()
		return nil, ingErr
	}

	createParams := recordstore.CreateParams{
		ReceivedAt: now,
		Fields:     *fields,
		Consent:    true, // валидация выше требует Agree == "true"
		Raffle:     params.Raffle == "true",
		Postcard:   *params.Postcard,
		Images:     params.Images,
	}

	var entry *model.Entry
	for attempt := 0; ; attempt++ {
		ref, err := s.alloc.Allocate()
		if err != nil {
			if errors.Is(err, model.ErrAllocationExhausted) {
				s.logger.Error("Свободный референс не найден после всех попыток")
				middleware.OperationsTotal.WithLabelValues("ingest", "error").Inc()
				return nil, &IngestError{
					StatusCode: 503,
					Code:       apierrors.CodeAllocationExhausted,
					Message:    "Referenz konnte nicht erzeugt werden.",
				}
			}
			s.logger.Error("Ошибка выделения референса", slog.String("error", err.Error()))
			middleware.OperationsTotal.WithLabelValues("ingest", "error").Inc()
			return nil, internalIngestError()
		}

		createParams.Ref = ref
		entry, err = s.store.Create(createParams)
		if err == nil {
			break
		}
		// Гонка двух параллельных заявок за один ref: проигравший
		// пробует ещё раз со свежим референсом
		if errors.Is(err, model.ErrRefExists) && attempt < createRetries {
			s.logger.Warn("Референс занят конкурентной заявкой, повтор",
				slog.String("ref", ref),
				slog.Int("attempt", attempt+1),
			)
			continue
		}

		s.logger.Error("Ошибка сохранения заявки",
			slog.String("ref", ref),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("ingest", "error").Inc()
		return nil, internalIngestError()
	}

	middleware.OperationsTotal.WithLabelValues("ingest", "success").Inc()
	middleware.EntriesTotal.WithLabelValues(string(model.StatusReceived)).Inc()

	s.logger.Info("Заявка принята",
		slog.String("ref", entry.Ref),
		slog.String("faculty", entry.Fields.Faculty),
		slog.Int("images", len(entry.Files.Images)),
	)

	return entry, nil
}

// validateFields проверяет текстовые поля формы и возвращает
// нормализованные атрибуты заявки.
func (s *IngestService) validateFields(params IngestParams) (*model.EntryFields, *IngestError) {
	fullName := strings.TrimSpace(params.FullName)
	if fullName == "" {
		return nil, validationError("Voller Name ist erforderlich.")
	}
	if len([]rune(fullName)) > maxFullNameLen {
		return nil, validationError("Name ist zu lang.")
	}

	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" {
		return nil, validationError("E-Mail ist erforderlich.")
	}
	if len(email) > maxEmailLen {
		return nil, validationError("E-Mail-Adresse ist zu lang.")
	}
	if !emailPattern.MatchString(email) {
		return nil, validationError("Bitte eine gültige E-Mail-Adresse angeben.")
	}

	faculty := strings.TrimSpace(params.Faculty)
	if faculty != "" && !model.ValidFaculty(faculty) {
		return nil, validationError("Ungültige Fakultät.")
	}

	location := strings.TrimSpace(params.Location)
	if len([]rune(location)) > maxLocationLen {
		return nil, validationError("Ort/Uni ist zu lang.")
	}

	term := strings.TrimSpace(params.Term)
	if len([]rune(term)) > maxTermLen {
		return nil, validationError("Zeitraum ist zu lang.")
	}

	message := strings.TrimSpace(params.Message)
	if len([]rune(message)) > maxMessageLen {
		return nil, validationError("Kurztext darf höchstens 1000 Zeichen enthalten.")
	}

	if params.Agree != "true" {
		return nil, validationError("Einwilligung erforderlich.")
	}

	return &model.EntryFields{
		FullName: fullName,
		Email:    email,
		Faculty:  faculty,
		Role:     model.RoleOutgoing,
		Location: location,
		Term:     term,
		Message:  message,
	}, nil
}

// validateFiles проверяет открытку и изображения: заявленный MIME,
// лимиты размеров и сигнатуры содержимого.
func (s *IngestService) validateFiles(params IngestParams) *IngestError {
	if params.Postcard == nil {
		return validationError("PDF-Datei ist erforderlich.")
	}
	if params.Postcard.MIMEType != "application/pdf" {
		return &IngestError{
			StatusCode: 415,
			Code:       apierrors.CodeValidationError,
			Message:    "Die Postkarte muss als PDF hochgeladen werden.",
		}
	}
	if int64(len(params.Postcard.Data)) > s.cfg.MaxPostcardSize {
		return validationError(fmt.Sprintf("PDF darf maximal %d MB groß sein.", s.cfg.MaxPostcardSize/(1024*1024)))
	}
	if sniff.Classify(params.Postcard.MIMEType, params.Postcard.Data) != sniff.Document {
		return &IngestError{
			StatusCode: 415,
			Code:       apierrors.CodeValidationError,
			Message:    "Die PDF-Datei ist ungültig oder beschädigt.",
		}
	}

	if len(params.Images) > s.cfg.MaxImages {
		return validationError(fmt.Sprintf("Es sind höchstens %d Bilder erlaubt.", s.cfg.MaxImages))
	}

	totalSize := int64(len(params.Postcard.Data))
	for _, img := range params.Images {
		if !strings.HasPrefix(img.MIMEType, "image/") {
			return validationError("Bilder müssen ein gültiges Bildformat besitzen.")
		}
		if int64(len(img.Data)) > s.cfg.MaxImageSize {
			return validationError(fmt.Sprintf("Jedes Bild darf höchstens %d MB haben.", s.cfg.MaxImageSize/(1024*1024)))
		}
		if sniff.Classify(img.MIMEType, img.Data) != sniff.Image {
			return &IngestError{
				StatusCode: 415,
				Code:       apierrors.CodeValidationError,
				Message:    "Bilddatei konnte nicht verifiziert werden.",
			}
		}
		totalSize += int64(len(img.Data))
	}

	if totalSize > s.cfg.MaxTotalSize {
		return &IngestError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Gesamtgröße von %d MB überschritten.", s.cfg.MaxTotalSize/(1024*1024)),
		}
	}

	return nil
}

func validationError(message string) *IngestError {
	return &IngestError{
		StatusCode: 400,
		Code:       apierrors.CodeValidationError,
		Message:    message,
	}
}

func internalIngestError() *IngestError {
	return &IngestError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    "Interner Fehler beim Speichern der Einsendung.",
	}
}
