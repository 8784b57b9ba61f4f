// Пакет recordstore — файловое хранилище заявок.
//
// Раскладка на диске: <root>/<YYYYMMDD>/<REF>/meta.json плюс файлы
// заявки (открытка и изображения) рядом с meta.json. Директория заявки
// и её meta.json — единственный источник истины: каждый листинг и поиск
// заново выводят состояние чтением документов метаданных.
//
// Заявка становится видимой для сканов только после атомарной записи
// meta.json; директория без валидного meta.json пропускается как
// «временно недоступная» (возможна параллельная запись).
package recordstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Zidans-Haare/postcard/internal/domain/lifecycle"
	"github.com/Zidans-Haare/postcard/internal/domain/model"
	"github.com/Zidans-Haare/postcard/internal/storage/names"
)

// dateSegmentLayout — формат сегмента директории дня.
const dateSegmentLayout = "20060102"

// Фоллбэк-имена файлов, если отправитель не передал оригинальное имя.
const (
	defaultPostcardName = "Postkarte.pdf"
	postcardFallback    = "Postkarte"
)

// UploadedFile — файл, прошедший валидацию и готовый к записи.
type UploadedFile struct {
	// OriginalName — имя файла у отправителя (до санитизации)
	OriginalName string
	// Data — содержимое файла
	Data []byte
	// MIMEType — заявленный MIME-тип
	MIMEType string
}

// CreateParams — параметры создания заявки.
type CreateParams struct {
	// Ref — предварительно выделенный референс
	Ref string
	// ReceivedAt — момент приёма (определяет директорию дня)
	ReceivedAt time.Time
	// Fields — валидированные атрибуты отправителя
	Fields model.EntryFields
	// Consent — согласие на публикацию
	Consent bool
	// Raffle — участие в розыгрыше
	Raffle bool
	// Postcard — PDF-открытка (обязательна)
	Postcard UploadedFile
	// Images — изображения (0–5)
	Images []UploadedFile
}

// Store — файловое хранилище заявок.
type Store struct {
	root   string
	cache  *Cache // опционален, nil — без кэша
	logger *slog.Logger
}

// New создаёт Store. Проверяет и создаёт корневую директорию,
// если она не существует. cache может быть nil.
func New(root string, cache *Cache, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища %s: %w", root, err)
	}

	return &Store{
		root:   root,
		cache:  cache,
		logger: logger.With(slog.String("component", "recordstore")),
	}, nil
}

// Root возвращает путь к корневой директории хранилища.
func (s *Store) Root() string {
	return s.root
}

// entryDir возвращает директорию заявки. Путь выводится только из
// календарной даты ReceivedAt (UTC) и ref — никогда из пользовательского
// ввода.
func (s *Store) entryDir(receivedAt time.Time, ref string) string {
	return filepath.Join(s.root, receivedAt.UTC().Format(dateSegmentLayout), ref)
}

// Create записывает новую заявку: файлы + meta.json в свежей директории
// <YYYYMMDD>/<REF>. Создание директории заявки через os.Mkdir — атомарный
// гейт уникальности ref: при гонке проигравший получает ErrRefExists.
// При любой ошибке записи директория заявки удаляется целиком.
func (s *Store) Create(params CreateParams) (*model.Entry, error) {
	dayDir := filepath.Join(s.root, params.ReceivedAt.UTC().Format(dateSegmentLayout))
	if err := os.MkdirAll(dayDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: не удалось создать директорию дня: %w", model.ErrStoreUnavailable, err)
	}

	dir := filepath.Join(dayDir, params.Ref)
	if err := os.Mkdir(dir, 0o750); err != nil {
		if os.IsExist(err) {
			return nil, model.ErrRefExists
		}
		return nil, fmt.Errorf("%w: не удалось создать директорию заявки: %w", model.ErrStoreUnavailable, err)
	}

	rollback := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Error("Ошибка отката директории заявки",
				slog.String("ref", params.Ref),
				slog.String("error", rmErr.Error()),
			)
		}
	}

	epoch := params.ReceivedAt.Unix()

	// Открытка
	postcardOriginal := params.Postcard.OriginalName
	if postcardOriginal == "" {
		postcardOriginal = defaultPostcardName
	}
	postcardName := names.WithTimestamp(postcardOriginal, epoch, postcardFallback)
	if err := writeDataFile(filepath.Join(dir, postcardName), params.Postcard.Data); err != nil {
		rollback()
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}

	// Изображения: смещение метки времени гарантирует уникальность имён
	// даже при одинаковых исходных именах
	imageNames := make([]string, 0, len(params.Images))
	for i, img := range params.Images {
		original := img.OriginalName
		if original == "" {
			original = fmt.Sprintf("Bild_%d.jpg", i+1)
		}
		imageName := names.WithTimestamp(original, epoch+int64(i)+1, fmt.Sprintf("Bild_%d", i+1))
		if err := writeDataFile(filepath.Join(dir, imageName), img.Data); err != nil {
			rollback()
			return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
		}
		imageNames = append(imageNames, imageName)
	}

	entry := &model.Entry{
		Ref:        params.Ref,
		ReceivedAt: params.ReceivedAt.UTC(),
		Status:     model.StatusReceived,
		Consent:    params.Consent,
		Raffle:     params.Raffle,
		Fields:     params.Fields,
		Files: model.EntryFiles{
			Postcard: postcardName,
			Images:   imageNames,
		},
	}

	// Атомарная запись meta.json делает заявку видимой для сканов
	if err := writeMeta(dir, entry); err != nil {
		rollback()
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}

	if s.cache != nil {
		s.cache.Set(entry.Ref, entry)
	}

	s.logger.Info("Заявка сохранена",
		slog.String("ref", entry.Ref),
		slog.String("postcard", postcardName),
		slog.Int("images", len(imageNames)),
	)

	return entry, nil
}

// Scan перечисляет все заявки хранилища чтением meta.json документов.
// Нечитаемые или недописанные meta.json пропускаются (заявка временно
// недоступна), скан никогда не прерывается из-за одной записи.
// Порядок не определён — сортировка на стороне Query Engine.
func (s *Store) Scan() ([]*model.Entry, error) {
	days, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: ошибка чтения корня хранилища: %w", model.ErrStoreUnavailable, err)
	}

	var entries []*model.Entry
	for _, day := range days {
		if !day.IsDir() {
			continue
		}
		dayDir := filepath.Join(s.root, day.Name())

		refs, err := os.ReadDir(dayDir)
		if err != nil {
			s.logger.Warn("Директория дня недоступна, пропускаем",
				slog.String("dir", day.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, refDir := range refs {
			if !refDir.IsDir() {
				continue
			}
			entry, err := readMeta(filepath.Join(dayDir, refDir.Name()))
			if err != nil {
				// Недописанный или повреждённый meta.json — не фатально
				s.logger.Debug("meta.json нечитаем, заявка пропущена",
					slog.String("ref", refDir.Name()),
					slog.String("error", err.Error()),
				)
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// Find возвращает заявку по ref. Точечный поиск поверх полного скана;
// LRU-кэш (если включён) ускоряет повторные обращения, но не является
// авторитетным. Возвращает ErrNotFound для неизвестного ref.
func (s *Store) Find(ref string) (*model.Entry, error) {
	if s.cache != nil {
		if entry, ok := s.cache.Get(ref); ok {
			return entry, nil
		}
	}

	entries, err := s.Scan()
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.Ref == ref {
			if s.cache != nil {
				s.cache.Set(ref, entry)
			}
			return entry, nil
		}
	}

	return nil, model.ErrNotFound
}

// UpdateStatus применяет переход статуса через Lifecycle Manager и
// перезаписывает meta.json (last-write-wins, однопроцессная дисциплина).
// Возвращает обновлённую заявку или ErrNotFound.
func (s *Store) UpdateStatus(ref string, status model.EntryStatus, now time.Time) (*model.Entry, error) {
	entry, err := s.Find(ref)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.Apply(entry, status, now); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ref)
	}

	dir := s.entryDir(entry.ReceivedAt, entry.Ref)
	if err := writeMeta(dir, entry); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}

	if s.cache != nil {
		s.cache.Set(ref, entry)
	}

	s.logger.Info("Статус заявки обновлён",
		slog.String("ref", ref),
		slog.String("status", string(status)),
	)

	return entry, nil
}

// ReadFile открывает файл заявки для чтения. Отдаются только имена,
// записанные в files набор заявки — любое другое имя (включая попытки
// path traversal) отклоняется с ErrNotFound до обращения к диску.
// Вызывающий код обязан закрыть ReadCloser.
func (s *Store) ReadFile(ref, fileName string) (io.ReadCloser, *model.Entry, error) {
	entry, err := s.Find(ref)
	if err != nil {
		return nil, nil, err
	}

	// Проверка принадлежности до любой работы с путями
	if !entry.Files.Contains(fileName) {
		return nil, nil, model.ErrNotFound
	}

	// Защита в глубину: записанное имя обязано быть простым именем файла
	if fileName != filepath.Base(fileName) || strings.ContainsAny(fileName, "/\\") {
		return nil, nil, model.ErrNotFound
	}

	path := filepath.Join(s.entryDir(entry.ReceivedAt, entry.Ref), fileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, model.ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: ошибка открытия файла %s: %w", model.ErrStoreUnavailable, fileName, err)
	}

	return f, entry, nil
}

// Purge физически удаляет директорию заявки со всем содержимым.
// Используется только retention job, ядро заявки не удаляет.
func (s *Store) Purge(entry *model.Entry) error {
	dir := s.entryDir(entry.ReceivedAt, entry.Ref)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: ошибка удаления директории заявки: %w", model.ErrStoreUnavailable, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(entry.Ref)
	}
	return nil
}

// writeDataFile записывает файл данных с fsync.
// Директория заявки невидима до записи meta.json, поэтому temp+rename
// для файлов содержимого не требуется.
func writeDataFile(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ошибка создания файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	return nil
}
