// meta.go — чтение и запись документа метаданных заявки (meta.json).
// meta.json в директории заявки — единственный источник истины.
// Все операции записи выполняются атомарно: temp → fsync → rename.
package recordstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
)

// MetaFileName — имя документа метаданных в директории заявки.
const MetaFileName = "meta.json"

// maxMetaFileSize — максимальный допустимый размер meta.json (16 КБ).
// Рассчитан на худший случай, который пропускает валидация полей:
// многобайтовые и экранируемые символы во всех текстовых полях плюс
// имена файлов — суммарно заметно меньше 16 КБ. Превышение означает
// ошибку в коде, а не ввод пользователя.
const maxMetaFileSize = 16384

// writeMeta атомарно записывает метаданные заявки в meta.json.
// Паттерн: JSON → temp файл → fsync → atomic rename.
func writeMeta(dir string, entry *model.Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	if len(data) > maxMetaFileSize {
		return fmt.Errorf("размер meta.json (%d байт) превышает максимум (%d байт)", len(data), maxMetaFileSize)
	}

	path := filepath.Join(dir, MetaFileName)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// readMeta читает и десериализует meta.json из директории заявки.
// Возвращает ошибку, если файл не найден или содержит невалидный JSON
// (например, заявка в процессе записи).
func readMeta(dir string) (*model.Entry, error) {
	path := filepath.Join(dir, MetaFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения meta.json %s: %w", path, err)
	}

	var entry model.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("ошибка десериализации meta.json %s: %w", path, err)
	}

	return &entry, nil
}
