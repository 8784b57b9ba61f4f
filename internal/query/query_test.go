package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
)

// stubScanner — фиксированный набор заявок вместо файлового хранилища.
type stubScanner struct {
	entries []*model.Entry
}

func (s *stubScanner) Scan() ([]*model.Entry, error) {
	return s.entries, nil
}

func entry(ref string, status model.EntryStatus, faculty string, receivedAt time.Time) *model.Entry {
	return &model.Entry{
		Ref:        ref,
		ReceivedAt: receivedAt,
		Status:     status,
		Fields: model.EntryFields{
			FullName: "Erika Musterfrau",
			Email:    "erika@example.org",
			Faculty:  faculty,
			Role:     model.RoleOutgoing,
		},
		Files: model.EntryFiles{Postcard: "Postkarte_1.pdf"},
	}
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC)
}

func testEntries() []*model.Entry {
	return []*model.Entry{
		entry("AAAA0001", model.StatusReceived, "Design", day(1)),
		entry("BBBB0002", model.StatusApproved, "Informatik/Mathematik", day(2)),
		entry("CCCC0003", model.StatusApproved, "Design", day(3)),
		entry("DDDD0004", model.StatusDeleted, "Informatik/Mathematik", day(4)),
		entry("EEEE0005", model.StatusWinner, "Elektrotechnik", day(5)),
	}
}

func TestList_OrderDescending(t *testing.T) {
	engine := NewEngine(&stubScanner{entries: testEntries()})

	result, err := engine.List(Filter{})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if len(result) != 5 {
		t.Fatalf("ожидалось 5 заявок, получено %d", len(result))
	}
	for i := 1; i < len(result); i++ {
		if result[i].ReceivedAt.After(result[i-1].ReceivedAt) {
			t.Errorf("нарушен порядок убывания receivedAt на позиции %d", i)
		}
	}
	if result[0].Ref != "EEEE0005" {
		t.Errorf("первой должна быть самая свежая заявка, получено %s", result[0].Ref)
	}
}

func TestList_StableOnTies(t *testing.T) {
	same := day(7)
	entries := []*model.Entry{
		entry("TIE00001", model.StatusReceived, "", same),
		entry("TIE00002", model.StatusReceived, "", same),
		entry("TIE00003", model.StatusReceived, "", same),
	}
	engine := NewEngine(&stubScanner{entries: entries})

	result, err := engine.List(Filter{})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	for i, want := range []string{"TIE00001", "TIE00002", "TIE00003"} {
		if result[i].Ref != want {
			t.Errorf("позиция %d: ожидалось %s, получено %s (порядок скана должен сохраняться)", i, want, result[i].Ref)
		}
	}
}

func TestList_FilterComposition(t *testing.T) {
	engine := NewEngine(&stubScanner{entries: testEntries()})

	result, err := engine.List(Filter{
		Status:  string(model.StatusApproved),
		Faculty: "Informatik/Mathematik",
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if len(result) != 1 || result[0].Ref != "BBBB0002" {
		t.Fatalf("ожидалась только BBBB0002, получено %d заявок", len(result))
	}
}

func TestList_StatusAllEqualsUnion(t *testing.T) {
	engine := NewEngine(&stubScanner{entries: testEntries()})

	all, err := engine.List(Filter{Status: StatusAll})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	union := 0
	for _, status := range model.AllStatuses {
		result, err := engine.List(Filter{Status: string(status)})
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		union += len(result)
	}

	if len(all) != union {
		t.Errorf("status=all (%d) должен совпадать с объединением по статусам (%d)", len(all), union)
	}
}

func TestMatches_Query(t *testing.T) {
	e := entry("REF12345", model.StatusReceived, "Design", day(1))
	e.Fields.Location = "Universidad de Sevilla"
	e.Fields.Message = "Grüße aus Spanien!"

	tests := []struct {
		query string
		want  bool
	}{
		{"ref12345", true},  // ref без учёта регистра
		{"erika", true},     // имя
		{"EXAMPLE.ORG", true},
		{"sevilla", true},   // локация
		{"spanien", true},   // сообщение
		{"nicht-da", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := Matches(e, Filter{Query: tt.query}); got != tt.want {
				t.Errorf("Matches(query=%q) = %v, ожидалось %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestMatches_DateBoundsInclusive(t *testing.T) {
	e := entry("REF00001", model.StatusReceived, "", day(10))

	from := day(10)
	to := day(10)
	if !Matches(e, Filter{From: &from, To: &to}) {
		t.Error("границы диапазона дат должны быть включительными")
	}

	after := day(11)
	if Matches(e, Filter{From: &after}) {
		t.Error("заявка раньше from не должна проходить фильтр")
	}
	before := day(9)
	if Matches(e, Filter{To: &before}) {
		t.Error("заявка позже to не должна проходить фильтр")
	}
}

func TestMatches_FacultyCaseInsensitive(t *testing.T) {
	e := entry("REF00002", model.StatusReceived, "Informatik/Mathematik", day(1))
	if !Matches(e, Filter{Faculty: "informatik/mathematik"}) {
		t.Error("сравнение факультета должно игнорировать регистр")
	}
}

func TestPaginate_EmptyResult(t *testing.T) {
	page := Paginate(nil, 1, 25)

	if page.Pages != 1 {
		t.Errorf("при 0 совпадений pages == 1, получено %d", page.Pages)
	}
	if len(page.Items) != 0 {
		t.Errorf("срез должен быть пустым, получено %d", len(page.Items))
	}
	if page.Total != 0 {
		t.Errorf("total должен быть 0, получено %d", page.Total)
	}
}

func TestPaginate_ExactMultiple(t *testing.T) {
	var entries []*model.Entry
	for i := 0; i < 50; i++ {
		entries = append(entries, entry(fmt.Sprintf("REF%05d", i), model.StatusReceived, "", day(1)))
	}

	page := Paginate(entries, 2, 25)
	if page.Pages != 2 {
		t.Errorf("ожидалось 2 страницы, получено %d", page.Pages)
	}
	// total == pageSize*k: последняя страница заполнена целиком
	if len(page.Items) != 25 {
		t.Errorf("последняя страница должна содержать ровно 25 элементов, получено %d", len(page.Items))
	}
}

func TestPaginate_Clamping(t *testing.T) {
	var entries []*model.Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, entry(fmt.Sprintf("REF%05d", i), model.StatusReceived, "", day(1)))
	}

	page := Paginate(entries, 0, 1000)
	if page.PageNum != 1 {
		t.Errorf("page < 1 должен подниматься до 1, получено %d", page.PageNum)
	}
	if page.PageSize != MaxPageSize {
		t.Errorf("pageSize должен ограничиваться %d, получено %d", MaxPageSize, page.PageSize)
	}

	page = Paginate(entries, 1, -5)
	if page.PageSize != MinPageSize {
		t.Errorf("pageSize должен подниматься до %d, получено %d", MinPageSize, page.PageSize)
	}
}

func TestPaginate_BeyondLastPage(t *testing.T) {
	entries := []*model.Entry{entry("REF00001", model.StatusReceived, "", day(1))}

	page := Paginate(entries, 99, 25)
	if len(page.Items) != 0 {
		t.Errorf("страница за пределами результата должна быть пустой, получено %d", len(page.Items))
	}
	if page.Total != 1 || page.Pages != 1 {
		t.Errorf("total/pages должны отражать результат: total=%d pages=%d", page.Total, page.Pages)
	}
}
