// Пакет query — фильтрация и пагинация заявок.
//
// Каждый вызов List заново сканирует хранилище — кэширующего слоя нет,
// базовая модель корректности «скан как единственный индекс» сохраняется.
// Приемлемо для целевого масштаба (тысячи заявок, не миллионы).
package query

import (
	"sort"
	"strings"
	"time"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
)

// StatusAll — wildcard-значение фильтра статуса.
const StatusAll = "all"

// Границы размера страницы.
const (
	MinPageSize = 1
	MaxPageSize = 100
)

// Filter — составной предикат листинга. Все заданные условия
// объединяются по AND.
type Filter struct {
	// Query — подстрочный поиск без учёта регистра по полям:
	// ref, fullName, email, location, term, message
	Query string
	// Faculty — равенство факультета без учёта регистра
	Faculty string
	// Status — статус заявки, StatusAll или пусто (без фильтра)
	Status string
	// From, To — включительные границы по receivedAt
	From *time.Time
	To   *time.Time
}

// Scanner — источник полного перечня заявок.
type Scanner interface {
	Scan() ([]*model.Entry, error)
}

// Engine — движок листинга поверх Record Store.
type Engine struct {
	store Scanner
}

// NewEngine создаёт Engine.
func NewEngine(store Scanner) *Engine {
	return &Engine{store: store}
}

// List возвращает заявки, удовлетворяющие фильтру, отсортированные
// по receivedAt по убыванию (новые первые). Порядок стабилен:
// при равных метках сохраняется порядок скана.
func (e *Engine) List(filter Filter) ([]*model.Entry, error) {
	entries, err := e.store.Scan()
	if err != nil {
		return nil, err
	}

	filtered := entries[:0:0]
	for _, entry := range entries {
		if Matches(entry, filter) {
			filtered = append(filtered, entry)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].ReceivedAt.After(filtered[j].ReceivedAt)
	})

	return filtered, nil
}

// Matches проверяет заявку против фильтра (AND-семантика).
func Matches(entry *model.Entry, filter Filter) bool {
	if filter.Status != "" && filter.Status != StatusAll &&
		string(entry.Status) != filter.Status {
		return false
	}

	if filter.Faculty != "" &&
		!strings.EqualFold(entry.Fields.Faculty, filter.Faculty) {
		return false
	}

	if filter.Query != "" && !matchesQuery(entry, filter.Query) {
		return false
	}

	if filter.From != nil && entry.ReceivedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.ReceivedAt.After(*filter.To) {
		return false
	}

	return true
}

// matchesQuery ищет подстроку в фиксированном наборе полей.
// Первое совпадение выигрывает, ранжирования нет.
func matchesQuery(entry *model.Entry, q string) bool {
	needle := strings.ToLower(q)
	haystack := []string{
		entry.Ref,
		entry.Fields.FullName,
		entry.Fields.Email,
		entry.Fields.Location,
		entry.Fields.Term,
		entry.Fields.Message,
	}
	for _, value := range haystack {
		if value == "" {
			continue
		}
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

// Page — результат пагинации.
type Page struct {
	// Items — срез текущей страницы
	Items []*model.Entry
	// Total — общее число заявок после фильтрации
	Total int
	// PageNum — номер страницы (1-индексация, после нормализации)
	PageNum int
	// PageSize — размер страницы после ограничения [1, 100]
	PageSize int
	// Pages — общее число страниц, минимум 1 даже при Total == 0
	Pages int
}

// Paginate нарезает отсортированный результат листинга.
// page — 1-индексированный номер (значения < 1 поднимаются до 1),
// pageSize ограничивается диапазоном [1, 100].
func Paginate(entries []*model.Entry, page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < MinPageSize {
		pageSize = MinPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	total := len(entries)
	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}

	offset := (page - 1) * pageSize
	if offset >= total {
		return Page{Items: nil, Total: total, PageNum: page, PageSize: pageSize, Pages: pages}
	}

	end := offset + pageSize
	if end > total {
		end = total
	}

	return Page{
		Items:    entries[offset:end],
		Total:    total,
		PageNum:  page,
		PageSize: pageSize,
		Pages:    pages,
	}
}
