// cache.go — LRU-кэш метаданных заявок с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable. Опциональное ускорение
// точечного поиска (Find): полный скан остаётся базовой моделью
// корректности, кэш инвалидируется при каждой записи.
package recordstore

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Zidans-Haare/postcard/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pk_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pk_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных.",
	})
)

// Cache — LRU-кэш ref → Entry с автоматическим TTL.
type Cache struct {
	cache *expirable.LRU[string, *model.Entry]
}

// NewCache создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	return &Cache{
		cache: expirable.NewLRU[string, *model.Entry](maxSize, nil, ttl),
	}
}

// Get возвращает копию Entry из кэша по ref.
// Обновляет Prometheus-метрики hit/miss.
func (c *Cache) Get(ref string) (*model.Entry, bool) {
	val, ok := c.cache.Get(ref)
	if ok {
		cacheHitsTotal.Inc()
		return val.Clone(), true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
// Хранится копия, чтобы внешние изменения не попадали в кэш.
func (c *Cache) Set(ref string, entry *model.Entry) {
	c.cache.Add(ref, entry.Clone())
}

// Invalidate удаляет запись из кэша (при перезаписи метаданных).
func (c *Cache) Invalidate(ref string) {
	c.cache.Remove(ref)
}
