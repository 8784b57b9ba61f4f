// Пакет export — выгрузка отфильтрованных заявок в CSV, JSON и ZIP.
//
// Все три формата пишутся потоково в переданный io.Writer, поэтому
// потребление памяти ограничено одной заявкой (ZIP — одним файлом),
// а не всем результатом выборки.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
)

// CSVHeader — фиксированная схема из 13 колонок.
// Список изображений сплющивается в одну ячейку через запятую.
var CSVHeader = []string{
	"ref", "receivedAt", "status",
	"fullName", "email", "faculty", "role", "location", "term", "message",
	"consent", "postcard", "images",
}

// WriteCSV записывает заявки в CSV с разделителем «;».
// Квотирование по RFC 4180: значения с разделителем, переводом строки
// или кавычкой оборачиваются в кавычки, внутренние кавычки удваиваются.
func WriteCSV(w io.Writer, entries []*model.Entry) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("ошибка записи заголовка CSV: %w", err)
	}

	for _, entry := range entries {
		record := []string{
			entry.Ref,
			entry.ReceivedAt.UTC().Format(time.RFC3339),
			string(entry.Status),
			entry.Fields.FullName,
			entry.Fields.Email,
			entry.Fields.Faculty,
			entry.Fields.Role,
			entry.Fields.Location,
			entry.Fields.Term,
			entry.Fields.Message,
			strconv.FormatBool(entry.Consent),
			entry.Files.Postcard,
			strings.Join(entry.Files.Images, ","),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("ошибка записи строки CSV (ref %s): %w", entry.Ref, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("ошибка сброса буфера CSV: %w", err)
	}
	return nil
}

// WriteJSON записывает заявки как JSON-массив полных документов
// метаданных. Пустая выборка даёт «[]», не «null».
func WriteJSON(w io.Writer, entries []*model.Entry) error {
	if entries == nil {
		entries = []*model.Entry{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("ошибка сериализации JSON: %w", err)
	}
	return nil
}

// FileReader открывает файл заявки по записанному имени.
// Реализуется Record Store; имена вне набора files отклоняются там же.
type FileReader interface {
	ReadFile(ref, fileName string) (io.ReadCloser, *model.Entry, error)
}

// WriteZIP формирует архив одной заявки: meta.json (пересериализованный)
// плюс открытка и изображения под их сохранёнными именами. Файлы
// копируются в архив по одному, содержимое заявки целиком в память
// не загружается.
func WriteZIP(w io.Writer, entry *model.Entry, files FileReader) error {
	zw := zip.NewWriter(w)

	meta, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		zw.Close()
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}
	mf, err := zw.Create("meta.json")
	if err != nil {
		zw.Close()
		return fmt.Errorf("ошибка создания meta.json в архиве: %w", err)
	}
	if _, err := mf.Write(meta); err != nil {
		zw.Close()
		return fmt.Errorf("ошибка записи meta.json в архив: %w", err)
	}

	names := append([]string{entry.Files.Postcard}, entry.Files.Images...)
	for _, name := range names {
		if err := copyFileToZip(zw, entry.Ref, name, files); err != nil {
			zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("ошибка завершения архива: %w", err)
	}
	return nil
}

func copyFileToZip(zw *zip.Writer, ref, name string, files FileReader) error {
	rc, _, err := files.ReadFile(ref, name)
	if err != nil {
		return fmt.Errorf("ошибка открытия файла %s заявки %s: %w", name, ref, err)
	}
	defer rc.Close()

	zf, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("ошибка создания файла %s в архиве: %w", name, err)
	}
	if _, err := io.Copy(zf, rc); err != nil {
		return fmt.Errorf("ошибка копирования файла %s в архив: %w", name, err)
	}
	return nil
}
