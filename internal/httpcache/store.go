// Package httpcache caches GET responses and revalidates them with the
// origin server using ETag and Last-Modified validators.
package httpcache

import (
	"context"
	"net/http"
	"time"

	"github.com/brizzai/postman/internal/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Entry is a stored response
type Entry struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`
	// Expires is the end of the freshness window. A zero value means the
	// entry must be revalidated before every use.
	Expires time.Time `json:"expires"`
}

func (e *Entry) fresh(now time.Time) bool {
	return !e.Expires.IsZero() && now.Before(e.Expires)
}

func (e *Entry) hasValidators() bool {
	return e.Header.Get("ETag") != "" || e.Header.Get("Last-Modified") != ""
}

// Store persists cache entries
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
}

// defaultMaxEntries bounds a MemoryStore created without a size
const defaultMaxEntries = 256

// MemoryStore is a bounded in-process Store that evicts the least recently
// used entry when full.
type MemoryStore struct {
	cache *lru.Cache[string, *Entry]
}

// NewMemoryStore creates a MemoryStore holding up to maxEntries responses.
// maxEntries <= 0 uses the default size.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	cache, err := lru.NewWithEvict(maxEntries, func(key string, _ *Entry) {
		logger.Debug("Evicted cached response", zap.String("key", key))
	})
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &MemoryStore{cache: cache}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	entry, ok := m.cache.Get(key)
	return entry, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	m.cache.Add(key, entry)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

// Len returns the number of stored entries
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
