// Пакет refalloc — выделение коротких уникальных референсов заявок.
//
// Референс: 4 случайных байта в hex, верхний регистр (8 символов,
// ~4.3 млрд значений). Проверка занятости через хранилище — быстрый
// фильтр; атомарной гарантией остаётся создание директории заявки
// (см. recordstore.Create), поэтому TOCTOU-окно между проверкой и
// записью не приводит к перезаписи.
package refalloc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
)

// RefLength — длина референса в символах.
const RefLength = 8

// maxAttempts — число попыток до ErrAllocationExhausted.
const maxAttempts = 5

// ExistsFunc сообщает, занят ли референс в хранилище.
type ExistsFunc func(ref string) (bool, error)

// Allocator — генератор уникальных референсов.
type Allocator struct {
	exists ExistsFunc
}

// New создаёт Allocator с заданной проверкой занятости.
func New(exists ExistsFunc) *Allocator {
	return &Allocator{exists: exists}
}

// Generate возвращает случайный референс без проверки занятости.
func Generate() (string, error) {
	buf := make([]byte, RefLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации случайных байт: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// Allocate возвращает свободный референс или ErrAllocationExhausted
// после maxAttempts коллизий подряд.
func (a *Allocator) Allocate() (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ref, err := Generate()
		if err != nil {
			return "", err
		}

		taken, err := a.exists(ref)
		if err != nil {
			return "", err
		}
		if !taken {
			return ref, nil
		}
	}
	return "", model.ErrAllocationExhausted
}
