// Пакет names — нормализация пользовательских имён файлов
// для безопасного хранения на диске. Детерминированный, без I/O.
package names

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FallbackBase — базовое имя, если после санитизации не осталось символов.
const FallbackBase = "datei"

// maxBaseLen — предел длины базового имени после санитизации.
// Держит имена на диске в пределах лимита файловой системы (255 байт
// вместе с суффиксом метки времени и расширением) и ограничивает
// вклад имён файлов в размер meta.json.
const maxBaseLen = 100

// stripDiacritics — NFKD-декомпозиция с удалением комбинируемых знаков
// (диакритика: ü → u, é → e).
var stripDiacritics = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Sanitize нормализует имя файла: убирает диакритику, заменяет всё
// вне [A-Za-z0-9._-] на "_", схлопывает повторы, обрезает крайние "_",
// приводит расширение к нижнему регистру. Пустой результат заменяется
// на FallbackBase.
func Sanitize(rawName string) string {
	cleaned, _, err := transform.String(stripDiacritics, rawName)
	if err != nil {
		// Непреобразуемый ввод — работаем с исходной строкой,
		// небезопасные символы всё равно будут заменены ниже.
		cleaned = rawName
	}

	base, ext := splitExt(cleaned)
	base = sanitizeBase(base)
	if base == "" {
		base = FallbackBase
	}
	return base + strings.ToLower(ext)
}

// WithTimestamp добавляет числовой суффикс (секунды epoch) перед
// расширением. Гарантирует уникальность имён внутри директории заявки
// даже при совпадении санитизированных базовых имён.
// fallbackBase используется, если базовое имя оказалось пустым.
func WithTimestamp(rawName string, epochSeconds int64, fallbackBase string) string {
	cleaned, _, err := transform.String(stripDiacritics, rawName)
	if err != nil {
		cleaned = rawName
	}

	base, ext := splitExt(cleaned)
	base = sanitizeBase(base)
	if base == "" {
		base = fallbackBase
	}
	return fmt.Sprintf("%s_%d%s", base, epochSeconds, strings.ToLower(ext))
}

// splitExt отделяет расширение (последний сегмент после точки).
// Имена без точки или с единственной ведущей точкой расширения не имеют.
func splitExt(name string) (base, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}

// sanitizeBase заменяет недопустимые символы, схлопывает и обрезает "_".
func sanitizeBase(base string) string {
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	result := b.String()
	for strings.Contains(result, "__") {
		result = strings.ReplaceAll(result, "__", "_")
	}
	// После замен строка состоит из ASCII, срез по байтам безопасен
	if len(result) > maxBaseLen {
		result = result[:maxBaseLen]
	}
	return strings.Trim(result, "_")
}
