// Пакет model — доменные модели сервиса открыток.
// Entry — единая структура метаданных заявки, используется
// как in-memory представление и как формат meta.json на диске.
package model

import (
	"time"
)

// EntryStatus — статус заявки в жизненном цикле модерации.
type EntryStatus string

const (
	// StatusReceived — заявка принята, ожидает модерации
	StatusReceived EntryStatus = "received"
	// StatusApproved — заявка одобрена модератором
	StatusApproved EntryStatus = "approved"
	// StatusDeleted — помечена на удаление (физическая очистка — retention job)
	StatusDeleted EntryStatus = "deleted"
	// StatusWinner — победитель розыгрыша (маркер без временных меток)
	StatusWinner EntryStatus = "winner"
)

// AllStatuses — все допустимые статусы заявки.
var AllStatuses = []EntryStatus{StatusReceived, StatusApproved, StatusDeleted, StatusWinner}

// Valid проверяет, является ли значение допустимым статусом.
func (s EntryStatus) Valid() bool {
	switch s {
	case StatusReceived, StatusApproved, StatusDeleted, StatusWinner:
		return true
	}
	return false
}

// RoleOutgoing — фиксированная роль отправителя.
// Сервис принимает открытки только от outgoing-студентов.
const RoleOutgoing = "Outgoing"

// Faculties — допустимые значения поля faculty.
var Faculties = []string{
	"Informatik/Mathematik",
	"Wirtschaftswissenschaften",
	"Maschinenbau/Verfahrenstechnik",
	"Elektrotechnik",
	"Design",
	"Andere",
}

// ValidFaculty проверяет, входит ли значение в список факультетов.
func ValidFaculty(f string) bool {
	for _, v := range Faculties {
		if v == f {
			return true
		}
	}
	return false
}

// EntryFields — атрибуты, заполненные отправителем.
// Неизменяемы после создания заявки.
type EntryFields struct {
	// FullName — полное имя отправителя
	FullName string `json:"fullName"`
	// Email — адрес в нижнем регистре
	Email string `json:"email"`
	// Faculty — факультет из списка Faculties (опционально)
	Faculty string `json:"faculty,omitempty"`
	// Role — всегда RoleOutgoing
	Role string `json:"role"`
	// Location — город/университет пребывания (опционально)
	Location string `json:"location,omitempty"`
	// Term — семестр/период (опционально)
	Term string `json:"term,omitempty"`
	// Message — свободный текст до 1000 символов (опционально)
	Message string `json:"message,omitempty"`
}

// EntryFiles — файлы заявки: ровно одна открытка (PDF) и до пяти изображений.
// Имена — санитизированные, уникальные внутри директории заявки.
type EntryFiles struct {
	Postcard string   `json:"postcard"`
	Images   []string `json:"images"`
}

// Contains проверяет, принадлежит ли имя файла заявке.
// Единственная легитимная проверка перед обращением к диску:
// любое имя вне этого набора (включая path traversal) отклоняется.
func (f *EntryFiles) Contains(name string) bool {
	if name == "" {
		return false
	}
	if name == f.Postcard {
		return true
	}
	for _, img := range f.Images {
		if name == img {
			return true
		}
	}
	return false
}

// Entry — метаданные заявки. Соответствует содержимому meta.json.
// Директория заявки и её meta.json — единственный источник истины;
// никакой отдельный индекс не является авторитетным.
type Entry struct {
	// Ref — короткий публичный идентификатор (8 hex-символов, верхний регистр)
	Ref string `json:"ref"`

	// ReceivedAt — момент приёма заявки (ISO-8601)
	ReceivedAt time.Time `json:"receivedAt"`

	// Status — текущий статус модерации
	Status EntryStatus `json:"status"`

	// Consent — согласие на публикацию, зафиксировано при отправке
	Consent bool `json:"consent"`

	// Raffle — участие в розыгрыше (опционально)
	Raffle bool `json:"raffle,omitempty"`

	// Fields — атрибуты отправителя
	Fields EntryFields `json:"fields"`

	// Files — открытка и изображения
	Files EntryFiles `json:"files"`

	// ApprovedAt — момент одобрения (устанавливается при → approved)
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`

	// DeletedAt — момент пометки на удаление (устанавливается при → deleted)
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Clone возвращает глубокую копию Entry.
// Используется кэшем и сканером, чтобы вызывающий код
// не мог изменить разделяемое состояние.
func (e *Entry) Clone() *Entry {
	copied := *e
	copied.Files.Images = append([]string(nil), e.Files.Images...)
	if e.ApprovedAt != nil {
		t := *e.ApprovedAt
		copied.ApprovedAt = &t
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		copied.DeletedAt = &t
	}
	return &copied
}
