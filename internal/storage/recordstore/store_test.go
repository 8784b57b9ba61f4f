package recordstore

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), nil, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}
	return store
}

func sampleParams(ref string, receivedAt time.Time) CreateParams {
	return CreateParams{
		Ref:        ref,
		ReceivedAt: receivedAt,
		Consent:    true,
		Raffle:     true,
		Fields: model.EntryFields{
			FullName: "Max Mustermann",
			Email:    "max@example.org",
			Faculty:  "Informatik/Mathematik",
			Role:     model.RoleOutgoing,
			Location: "Lissabon",
			Term:     "WS 2025/26",
			Message:  "Viele Grüße!",
		},
		Postcard: UploadedFile{
			OriginalName: "Meine Postkarte.pdf",
			Data:         []byte("%PDF-1.7 ... %%EOF"),
			MIMEType:     "application/pdf",
		},
		Images: []UploadedFile{
			{OriginalName: "strand.jpg", Data: []byte("jpegdata"), MIMEType: "image/jpeg"},
			{OriginalName: "strand.jpg", Data: []byte("jpegdata2"), MIMEType: "image/jpeg"},
		},
	}
}

func TestCreate_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	receivedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	params := sampleParams("AB12CD34", receivedAt)

	created, err := store.Create(params)
	if err != nil {
		t.Fatalf("ошибка создания заявки: %v", err)
	}

	if created.Status != model.StatusReceived {
		t.Errorf("новая заявка должна иметь статус received, получено %s", created.Status)
	}
	if created.Files.Postcard == "" {
		t.Fatal("у заявки обязана быть открытка")
	}
	if len(created.Files.Images) != 2 {
		t.Fatalf("ожидалось 2 изображения, получено %d", len(created.Files.Images))
	}
	if created.Files.Images[0] == created.Files.Images[1] {
		t.Error("совпадающие исходные имена должны получать разные имена на диске")
	}

	// Повторное чтение возвращает идентичные данные
	for i := 0; i < 2; i++ {
		found, err := store.Find("AB12CD34")
		if err != nil {
			t.Fatalf("ошибка поиска: %v", err)
		}
		if found.Fields != params.Fields {
			t.Errorf("fields: ожидалось %+v, получено %+v", params.Fields, found.Fields)
		}
		if found.Consent != params.Consent || found.Raffle != params.Raffle {
			t.Error("consent/raffle должны совпадать с входом")
		}
		if !found.ReceivedAt.Equal(receivedAt) {
			t.Errorf("receivedAt: ожидалось %v, получено %v", receivedAt, found.ReceivedAt)
		}
	}
}

func TestCreate_DirectoryLayout(t *testing.T) {
	store := newTestStore(t)
	receivedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	if _, err := store.Create(sampleParams("AB12CD34", receivedAt)); err != nil {
		t.Fatalf("ошибка создания: %v", err)
	}

	metaPath := filepath.Join(store.Root(), "20260315", "AB12CD34", MetaFileName)
	if _, err := os.Stat(metaPath); err != nil {
		t.Errorf("meta.json не найден по ожидаемому пути %s: %v", metaPath, err)
	}

	// Временный файл meta.json.tmp не должен оставаться
	if _, err := os.Stat(metaPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("временный файл meta.json.tmp не должен существовать")
	}
}

func TestCreate_RefCollision(t *testing.T) {
	store := newTestStore(t)
	receivedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	if _, err := store.Create(sampleParams("AB12CD34", receivedAt)); err != nil {
		t.Fatalf("первое создание: %v", err)
	}

	_, err := store.Create(sampleParams("AB12CD34", receivedAt))
	if !errors.Is(err, model.ErrRefExists) {
		t.Fatalf("повторный ref должен давать ErrRefExists, получено %v", err)
	}
}

func TestFind_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Find("FFFFFFFF")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestScan_SkipsCorruptMeta(t *testing.T) {
	store := newTestStore(t)
	receivedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	if _, err := store.Create(sampleParams("AB12CD34", receivedAt)); err != nil {
		t.Fatalf("ошибка создания: %v", err)
	}

	// Недописанная заявка: директория с повреждённым meta.json
	brokenDir := filepath.Join(store.Root(), "20260315", "BROKEN01")
	if err := os.MkdirAll(brokenDir, 0o750); err != nil {
		t.Fatalf("ошибка подготовки: %v", err)
	}
	if err := os.WriteFile(filepath.Join(brokenDir, MetaFileName), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("ошибка подготовки: %v", err)
	}

	entries, err := store.Scan()
	if err != nil {
		t.Fatalf("скан не должен прерываться из-за одной записи: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("повреждённая запись должна пропускаться, получено %d заявок", len(entries))
	}
	if entries[0].Ref != "AB12CD34" {
		t.Errorf("ожидалась AB12CD34, получено %s", entries[0].Ref)
	}
}

func TestUpdateStatus_TimestampSequence(t *testing.T) {
	store := newTestStore(t)
	receivedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	if _, err := store.Create(sampleParams("AB12CD34", receivedAt)); err != nil {
		t.Fatalf("ошибка создания: %v", err)
	}

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	updated, err := store.UpdateStatus("AB12CD34", model.StatusApproved, now)
	if err != nil {
		t.Fatalf("переход в approved: %v", err)
	}
	if updated.ApprovedAt == nil {
		t.Fatal("approvedAt должен быть установлен")
	}

	if _, err := store.UpdateStatus("AB12CD34", model.StatusDeleted, now.Add(time.Hour)); err != nil {
		t.Fatalf("переход в deleted: %v", err)
	}

	final, err := store.UpdateStatus("AB12CD34", model.StatusReceived, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("переход в received: %v", err)
	}
	if final.ApprovedAt != nil || final.DeletedAt != nil {
		t.Error("после возврата в received обе метки должны быть сброшены")
	}

	// Изменения персистентны: повторный Find читает обновлённый meta.json
	found, err := store.Find("AB12CD34")
	if err != nil {
		t.Fatalf("ошибка поиска: %v", err)
	}
	if found.Status != model.StatusReceived {
		t.Errorf("статус после перечитывания: ожидалось received, получено %s", found.Status)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpdateStatus("FFFFFFFF", model.StatusApproved, time.Now())
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestReadFile_AllowedOnly(t *testing.T) {
	store := newTestStore(t)
	receivedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	created, err := store.Create(sampleParams("AB12CD34", receivedAt))
	if err != nil {
		t.Fatalf("ошибка создания: %v", err)
	}

	// Легитимный файл читается
	rc, entry, err := store.ReadFile("AB12CD34", created.Files.Postcard)
	if err != nil {
		t.Fatalf("ошибка чтения открытки: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-1.7 ... %%EOF" {
		t.Error("содержимое открытки не совпадает")
	}
	if entry.Ref != "AB12CD34" {
		t.Errorf("ReadFile должен возвращать заявку, получено %s", entry.Ref)
	}

	// Path traversal и посторонние имена — NotFound, к диску не обращаемся
	for _, name := range []string{
		"../../etc/passwd",
		"..\\..\\meta.json",
		"fremde_datei.pdf",
		MetaFileName,
		"",
	} {
		if _, _, err := store.ReadFile("AB12CD34", name); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("ReadFile(%q) должен возвращать ErrNotFound, получено %v", name, err)
		}
	}
}

func TestPurge_RemovesEntry(t *testing.T) {
	store := newTestStore(t)
	receivedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	created, err := store.Create(sampleParams("AB12CD34", receivedAt))
	if err != nil {
		t.Fatalf("ошибка создания: %v", err)
	}

	if err := store.Purge(created); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}

	if _, err := store.Find("AB12CD34"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("после Purge заявка не должна находиться, получено %v", err)
	}
}

func TestStore_WithCache(t *testing.T) {
	cache := NewCache(16, time.Minute)
	store, err := New(t.TempDir(), cache, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	receivedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	if _, err := store.Create(sampleParams("AB12CD34", receivedAt)); err != nil {
		t.Fatalf("ошибка создания: %v", err)
	}

	// Кэш не должен отдавать устаревший статус после записи
	if _, err := store.UpdateStatus("AB12CD34", model.StatusApproved, time.Now().UTC()); err != nil {
		t.Fatalf("ошибка обновления: %v", err)
	}

	found, err := store.Find("AB12CD34")
	if err != nil {
		t.Fatalf("ошибка поиска: %v", err)
	}
	if found.Status != model.StatusApproved {
		t.Errorf("кэш вернул устаревший статус %s", found.Status)
	}

	// Мутация результата Find не должна менять состояние кэша
	found.Fields.FullName = "изменено"
	again, _ := store.Find("AB12CD34")
	if again.Fields.FullName == "изменено" {
		t.Error("Find должен возвращать копию, а не разделяемый объект")
	}
}
