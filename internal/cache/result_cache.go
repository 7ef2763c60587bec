// Package cache holds the paginated result cache used by the keyword-only
// search path.
package cache

import (
	"fmt"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/geo"
	"github.com/samber/lo"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const unknownTotal = -1

type entry[T any] struct {
	items     []T
	filled    []bool
	total     int
	expiresAt time.Time
}

// ResultCache keeps the accumulated result set of a query. Entries are
// evicted least-recently-used once capacity is reached and expire lazily:
// an expired entry is only dropped when it is next touched.
type ResultCache[T any] struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *entry[T]]
	ttl     time.Duration
	now     func() time.Time
}

func New[T any](capacity int, ttl time.Duration) (*ResultCache[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %v", ttl)
	}
	entries, err := lru.New[string, *entry[T]](capacity)
	if err != nil {
		return nil, err
	}
	return &ResultCache[T]{entries: entries, ttl: ttl, now: time.Now}, nil
}

// Page returns items [offset, offset+limit) of the cached result set. It is a
// hit only when every requested position up to the known total is filled.
func (c *ResultCache[T]) Page(key string, offset, limit int) ([]T, bool) {
	if offset < 0 || limit <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.get(key)
	if !ok {
		return nil, false
	}

	end := offset + limit
	if e.total != unknownTotal {
		if offset >= e.total {
			return []T{}, true
		}
		end = min(end, e.total)
	}
	if end > len(e.items) {
		return nil, false
	}
	for i := offset; i < end; i++ {
		if !e.filled[i] {
			return nil, false
		}
	}

	page := make([]T, end-offset)
	copy(page, e.items[offset:end])
	return page, true
}

// PutPage writes items at offset into the result set of key. Positions before
// offset that were never written stay placeholders. complete fixes the total
// to offset+len(items).
func (c *ResultCache[T]) PutPage(key string, offset int, items []T, complete bool) {
	if offset < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.get(key)
	if !ok {
		e = &entry[T]{total: unknownTotal, expiresAt: c.now().Add(c.ttl)}
		c.entries.Add(key, e)
	}

	end := offset + len(items)
	if end > len(e.items) {
		e.items = append(e.items, make([]T, end-len(e.items))...)
		e.filled = append(e.filled, make([]bool, end-len(e.filled))...)
	}
	for i, item := range items {
		e.items[offset+i] = item
		e.filled[offset+i] = true
	}

	if complete {
		e.total = end
		e.items = e.items[:end]
		e.filled = e.filled[:end]
	}
}

// Total reports the known size of the result set for key.
func (c *ResultCache[T]) Total(key string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	if !ok || e.total == unknownTotal {
		return 0, false
	}
	return e.total, true
}

func (c *ResultCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len counts stored entries, including expired ones not yet touched.
func (c *ResultCache[T]) Len() int {
	return c.entries.Len()
}

func (c *ResultCache[T]) get(key string) (*entry[T], bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return e, true
}

// Key normalizes the query parameters of a search, leaving pagination out.
func Key(query models.SearchContext) string {
	clean := func(values []string) []string {
		normalized := lo.Uniq(lo.FilterMap(values, func(v string, _ int) (string, bool) {
			v = strings.Join(strings.Fields(strings.ToLower(v)), " ")
			return v, v != ""
		}))
		sort.Strings(normalized)
		return normalized
	}

	location := geo.Parse(query.Location)
	return strings.Join([]string{
		"k=" + strings.Join(clean(query.Keywords), ","),
		"s=" + strings.Join(clean(query.Skills), ","),
		"l=" + location.City + "/" + location.Country,
		"e=" + string(query.ExperienceLevel),
		"r=" + string(query.RemotePreference),
		"u=" + query.UserID,
		"t=" + strconv.FormatBool(query.ExactTitle),
	}, ";")
}
