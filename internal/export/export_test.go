package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
)

func sampleEntry() *model.Entry {
	return &model.Entry{
		Ref:        "AB12CD34",
		ReceivedAt: time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
		Status:     model.StatusApproved,
		Consent:    true,
		Fields: model.EntryFields{
			FullName: "Max Mustermann",
			Email:    "max@example.org",
			Faculty:  "Design",
			Role:     model.RoleOutgoing,
			Location: "Lissabon",
			Term:     "WS 2025/26",
			Message:  "Hi; there\n\"quoted\"",
		},
		Files: model.EntryFiles{
			Postcard: "Postkarte_1773412200.pdf",
			Images:   []string{"Bild_1773412201.jpg", "Bild_1773412202.jpg"},
		},
	}
}

func TestWriteCSV_EscapingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, []*model.Entry{sampleEntry()}); err != nil {
		t.Fatalf("ошибка записи CSV: %v", err)
	}

	r := csv.NewReader(&buf)
	r.Comma = ';'
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("выгрузка не парсится обратно: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("ожидались заголовок и одна строка, получено %d", len(records))
	}
	if len(records[0]) != 13 {
		t.Errorf("схема должна содержать 13 колонок, получено %d", len(records[0]))
	}

	row := records[1]
	// Сообщение с разделителем, переводом строки и кавычками
	// обязано пройти через квотирование без потерь
	if got := row[9]; got != "Hi; there\n\"quoted\"" {
		t.Errorf("message повреждён квотированием: %q", got)
	}
	if row[0] != "AB12CD34" {
		t.Errorf("ref: получено %q", row[0])
	}
	if row[10] != "true" {
		t.Errorf("consent: получено %q", row[10])
	}
	if row[12] != "Bild_1773412201.jpg,Bild_1773412202.jpg" {
		t.Errorf("изображения должны сплющиваться через запятую: %q", row[12])
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("ошибка записи CSV: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Errorf("пустая выборка должна давать только заголовок, получено %d строк", len(lines))
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, []*model.Entry{sampleEntry()}); err != nil {
		t.Fatalf("ошибка записи JSON: %v", err)
	}

	var decoded []*model.Entry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("выгрузка не парсится обратно: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Ref != "AB12CD34" {
		t.Fatalf("неожиданное содержимое выгрузки: %+v", decoded)
	}
	if decoded[0].Fields.Message != "Hi; there\n\"quoted\"" {
		t.Error("message должен сохраняться дословно")
	}
}

func TestWriteJSON_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("ошибка записи JSON: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("пустая выборка должна давать [], получено %q", got)
	}
}

// stubFiles — FileReader с фиксированным содержимым вместо диска.
type stubFiles struct {
	entry   *model.Entry
	content map[string]string
}

func (s *stubFiles) ReadFile(ref, fileName string) (io.ReadCloser, *model.Entry, error) {
	if ref != s.entry.Ref || !s.entry.Files.Contains(fileName) {
		return nil, nil, model.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(s.content[fileName])), s.entry, nil
}

func TestWriteZIP(t *testing.T) {
	entry := sampleEntry()
	files := &stubFiles{
		entry: entry,
		content: map[string]string{
			entry.Files.Postcard:  "%PDF-1.7 pdfdata %%EOF",
			entry.Files.Images[0]: "jpeg-eins",
			entry.Files.Images[1]: "jpeg-zwei",
		},
	}

	var buf bytes.Buffer
	if err := WriteZIP(&buf, entry, files); err != nil {
		t.Fatalf("ошибка формирования архива: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("архив не читается: %v", err)
	}

	want := map[string]string{
		"meta.json":            "", // проверяется отдельно
		entry.Files.Postcard:   "%PDF-1.7 pdfdata %%EOF",
		entry.Files.Images[0]:  "jpeg-eins",
		entry.Files.Images[1]:  "jpeg-zwei",
	}
	if len(zr.File) != len(want) {
		t.Fatalf("ожидалось %d файлов в архиве, получено %d", len(want), len(zr.File))
	}

	got := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("ошибка открытия %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		got[f.Name] = string(data)
	}

	for name, content := range want {
		if name == "meta.json" {
			continue
		}
		if got[name] != content {
			t.Errorf("файл %s: содержимое не совпадает", name)
		}
	}

	var meta model.Entry
	if err := json.Unmarshal([]byte(got["meta.json"]), &meta); err != nil {
		t.Fatalf("meta.json в архиве не парсится: %v", err)
	}
	if meta.Ref != entry.Ref || meta.Status != entry.Status {
		t.Errorf("meta.json в архиве не совпадает с заявкой: %+v", meta)
	}
}

func TestWriteZIP_MissingFile(t *testing.T) {
	entry := sampleEntry()
	files := &stubFiles{entry: &model.Entry{Ref: "OTHER123"}}

	var buf bytes.Buffer
	if err := WriteZIP(&buf, entry, files); err == nil {
		t.Fatal("недоступный файл заявки должен приводить к ошибке")
	}
}
