// errors.go — типизированные ошибки доменного слоя.
// Хранилище и сервисы возвращают только эти ошибки (обёрнутые через %w),
// сырые ошибки файловой системы наружу не выходят.
package model

import "errors"

var (
	// ErrNotFound — заявка или файл не найдены (или имя файла не принадлежит заявке).
	ErrNotFound = errors.New("запись не найдена")

	// ErrAllocationExhausted — не удалось выделить уникальный ref
	// за отведённое число попыток.
	ErrAllocationExhausted = errors.New("исчерпаны попытки выделения референса")

	// ErrRefExists — директория заявки с таким ref уже существует.
	// Создание директории — атомарный гейт уникальности: проигравший
	// гонку получает эту ошибку вместо молчаливой перезаписи.
	ErrRefExists = errors.New("референс уже занят")

	// ErrStoreUnavailable — ошибка ввода-вывода или повреждённые метаданные.
	// Логируется внутри, наружу уходит как generic server error.
	ErrStoreUnavailable = errors.New("хранилище недоступно")
)

// ValidationError — ошибка валидации пользовательского ввода.
// Всегда исправима клиентом, сообщение показывается как есть.
type ValidationError struct {
	// Message — человекочитаемое сообщение для клиента (на языке продукта).
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation создаёт ValidationError с заданным сообщением.
func Validation(message string) *ValidationError {
	return &ValidationError{Message: message}
}
