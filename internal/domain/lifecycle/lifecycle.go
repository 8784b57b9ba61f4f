// Пакет lifecycle — переходы статусов заявки и сопутствующие
// временные метки.
//
// Автомат намеренно разрешающий: любой статус достижим из любого
// (ручная коррекция модератором, включая winner → received).
// Ограничивающую политику можно подставить, не трогая хранилище —
// все переходы проходят только через Apply.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
)

// Apply применяет переход статуса к заявке in-place.
// Побочные эффекты едины для любого исходного статуса:
//   - → approved: approvedAt = now, deletedAt сбрасывается
//   - → deleted:  deletedAt = now (approvedAt не трогается)
//   - → received: обе метки сбрасываются
//   - → winner:   только статус, меток нет
//
// Недопустимое значение статуса — ошибка валидации; сам переход
// не ограничивается.
func Apply(entry *model.Entry, status model.EntryStatus, now time.Time) error {
	if !status.Valid() {
		return model.Validation(fmt.Sprintf("Ungültiger Status: %q.", status))
	}

	entry.Status = status

	switch status {
	case model.StatusApproved:
		ts := now.UTC()
		entry.ApprovedAt = &ts
		entry.DeletedAt = nil
	case model.StatusDeleted:
		ts := now.UTC()
		entry.DeletedAt = &ts
	case model.StatusReceived:
		entry.ApprovedAt = nil
		entry.DeletedAt = nil
	case model.StatusWinner:
		// Маркер победителя: временные метки не меняются
	}

	return nil
}
