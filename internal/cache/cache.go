package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/learntube/learntube/internal/metrics"
)

// DefaultTTL is how long a written entry stays servable.
const DefaultTTL = 24 * time.Hour

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Entry is the persisted envelope. Timestamp is Unix milliseconds at write time.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Cache stores JSON values with a write-time TTL on top of a Store. Read and
// write failures are logged and treated as misses; the cache never fails a caller.
type Cache struct {
	store Store
	ttl   time.Duration
	clock Clock
}

// New creates a Cache over store. ttl <= 0 selects DefaultTTL.
func New(store Store, ttl time.Duration) *Cache {
	return NewWithClock(store, ttl, realClock{})
}

// NewWithClock creates a Cache with a custom clock (for testing).
func NewWithClock(store Store, ttl time.Duration, clock Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, clock: clock}
}

// TTL returns the validity window of entries.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Lookup decodes the entry for key into v when one exists and was written
// less than TTL ago.
func (c *Cache) Lookup(ctx context.Context, key string, v any) bool {
	e, ok := c.entry(ctx, key)
	if !ok {
		return false
	}
	if !c.fresh(e, c.ttl) {
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return false
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		slog.Warn("cache entry has unexpected shape", "key", key, "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return true
}

// Put stores v under key stamped with the current time.
func (c *Cache) Put(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache value not serializable", "key", key, "error", err)
		return
	}
	raw, err := json.Marshal(Entry{Data: data, Timestamp: c.clock.Now().UnixMilli()})
	if err != nil {
		slog.Warn("encoding cache entry", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, raw); err != nil {
		slog.Warn("writing cache entry", "key", key, "error", err)
	}
}

// Clear removes every entry whose key starts with prefix. An empty prefix
// clears everything.
func (c *Cache) Clear(ctx context.Context, prefix string) (int, error) {
	return c.store.DeletePrefix(ctx, prefix)
}

func (c *Cache) entry(ctx context.Context, key string) (Entry, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("reading cache entry", "key", key, "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return Entry{}, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		slog.Warn("corrupt cache entry", "key", key, "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return Entry{}, false
	}
	return e, true
}

func (c *Cache) fresh(e Entry, validity time.Duration) bool {
	age := c.clock.Now().Sub(time.UnixMilli(e.Timestamp))
	return age < validity
}

// Flag is a timestamped boolean that expires on its own after validity.
type Flag struct {
	c        *Cache
	key      string
	validity time.Duration
}

// Flag returns a handle to the flag stored under key.
func (c *Cache) Flag(key string, validity time.Duration) *Flag {
	return &Flag{c: c, key: key, validity: validity}
}

// IsSet reports whether the flag was set less than validity ago. An expired
// flag is removed.
func (f *Flag) IsSet(ctx context.Context) bool {
	e, ok := f.c.entry(ctx, f.key)
	if !ok {
		return false
	}
	if f.c.fresh(e, f.validity) {
		return true
	}
	f.Clear(ctx)
	return false
}

// SetAt returns when the flag was set, if it is set.
func (f *Flag) SetAt(ctx context.Context) (time.Time, bool) {
	e, ok := f.c.entry(ctx, f.key)
	if !ok || !f.c.fresh(e, f.validity) {
		return time.Time{}, false
	}
	return time.UnixMilli(e.Timestamp), true
}

func (f *Flag) Set(ctx context.Context) {
	f.c.Put(ctx, f.key, true)
}

func (f *Flag) Clear(ctx context.Context) {
	if err := f.c.store.Delete(ctx, f.key); err != nil {
		slog.Warn("clearing flag", "key", f.key, "error", err)
	}
}
