// Handles TTL caching of JSON values on top of a shared key-value store
package cache

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/kiosk-dashboard/internal/storage"
)

const (
	DefaultPrefix = "cache_"
	// ProbeKey is written and removed again by IsAvailable. It lives outside
	// the cache namespace so it never shows up in Stats or Clear.
	ProbeKey = "__cache_probe__"
)

// Cache stores JSON values with a time-to-live in a storage.Storage.
// Every entry lives under a key prefix, so the store can be shared with
// unrelated data. Expired entries are evicted lazily when read.
//
// No operation returns an error: failures are logged and reported as a
// false or missing result.
type Cache struct {
	store   storage.Storage
	prefix  string
	now     func() time.Time
	metrics Metrics
}

type Option func(*Cache)

// WithPrefix sets the namespace prefix, DefaultPrefix if unset
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithMetrics reports cache events to m
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a cache on top of store
func New(store storage.Storage, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		prefix:  DefaultPrefix,
		now:     time.Now,
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prefix returns the namespace prefix of stored keys
func (c *Cache) Prefix() string {
	return c.prefix
}

func (c *Cache) storeKey(key string) string {
	return c.prefix + key
}

// Set stores data under key for ttl. It returns false if the key is empty,
// the ttl is negative, data cannot be encoded as JSON, or the store rejects
// the write; in that case whatever was stored under key before is kept.
// The ttl is stored in milliseconds, a sub-millisecond remainder rounds up.
func (c *Cache) Set(key string, data any, ttl time.Duration) bool {
	log := logrus.WithField("key", key)

	if key == "" {
		log.Warn("Refusing to cache an entry with an empty key")
		return false
	}
	if ttl < 0 {
		log.Warnf("Refusing to cache an entry with negative TTL %s", ttl)
		return false
	}

	b, err := Serialize(data, c.now(), ttl)
	if err != nil {
		log.WithError(err).Warn("Failed to serialize cache entry")
		c.metrics.WriteFailed()
		return false
	}

	if err := c.store.Set(c.storeKey(key), b); err != nil {
		log.WithError(err).Warn("Failed to write cache entry")
		c.metrics.WriteFailed()
		return false
	}

	log.Debugf("Cached entry for %s", ttl)
	return true
}

// Get returns the value stored under key if it is still live.
// JSON numbers come back as float64, objects as map[string]any, so integers
// beyond 2^53 lose precision; GetInto with an integer or json.RawMessage
// destination reads them exactly.
func (c *Cache) Get(key string) (any, bool) {
	entry, ok := c.load(key)
	if !ok {
		return nil, false
	}

	var data any
	if err := json.Unmarshal(entry.Data, &data); err != nil {
		// Deserialize already validated the JSON
		logrus.WithField("key", key).WithError(err).Error("Failed to decode cached data")
		return nil, false
	}
	return data, true
}

// GetInto decodes the live value stored under key into dst.
// A value that does not fit dst is reported as missing but kept in the cache.
func (c *Cache) GetInto(key string, dst any) bool {
	entry, ok := c.load(key)
	if !ok {
		return false
	}

	if err := json.Unmarshal(entry.Data, dst); err != nil {
		logrus.WithField("key", key).WithError(err).Debug("Cached data does not match the requested type")
		return false
	}
	return true
}

// Lookup returns the live value stored under key decoded as T
func Lookup[T any](c *Cache, key string) (T, bool) {
	var v T
	if !c.GetInto(key, &v) {
		var zero T
		return zero, false
	}
	return v, true
}

// load reads the entry for key, evicting it if it is corrupt or expired
func (c *Cache) load(key string) (*Entry, bool) {
	log := logrus.WithField("key", key)
	storeKey := c.storeKey(key)

	b, err := c.store.Get(storeKey)
	if err != nil {
		log.WithError(err).Warn("Failed to read cache entry")
		c.metrics.Miss()
		return nil, false
	}
	if b == nil {
		log.Debug("Cache miss")
		c.metrics.Miss()
		return nil, false
	}

	entry, err := Deserialize(b)
	if err != nil {
		log.WithError(err).Warn("Evicting corrupt cache entry")
		c.evict(storeKey)
		c.metrics.Corrupt()
		c.metrics.Miss()
		return nil, false
	}

	if !entry.Live(c.now()) {
		log.Debug("Evicting expired cache entry")
		c.evict(storeKey)
		c.metrics.Expired()
		c.metrics.Miss()
		return nil, false
	}

	log.Debug("Cache hit")
	c.metrics.Hit()
	return entry, true
}

func (c *Cache) evict(storeKey string) {
	if err := c.store.Delete(storeKey); err != nil {
		logrus.WithField("key", storeKey).WithError(err).Warn("Failed to evict cache entry")
	}
}

// Remove deletes the entry stored under key, if any
func (c *Cache) Remove(key string) {
	if err := c.store.Delete(c.storeKey(key)); err != nil {
		logrus.WithField("key", key).WithError(err).Warn("Failed to remove cache entry")
	}
}

// Clear deletes every entry of the cache namespace and leaves other keys of
// the store alone
func (c *Cache) Clear() {
	keys, err := c.namespaceKeys()
	if err != nil {
		logrus.WithError(err).Warn("Failed to list cache entries")
		return
	}

	removed := 0
	for _, k := range keys {
		if err := c.store.Delete(k); err != nil {
			logrus.WithField("key", k).WithError(err).Warn("Failed to remove cache entry")
			continue
		}
		removed++
	}
	logrus.Debugf("Cleared %d cache entries", removed)
}

// IsAvailable reports whether the store accepts writes, by writing and
// deleting ProbeKey. The probe key is removed on every path.
func (c *Cache) IsAvailable() (available bool) {
	defer func() {
		if err := c.store.Delete(ProbeKey); err != nil {
			logrus.WithError(err).Debug("Storage probe could not be removed")
			available = false
		}
	}()

	if err := c.store.Set(ProbeKey, []byte(ProbeKey)); err != nil {
		logrus.WithError(err).Debug("Storage probe could not be written")
		return false
	}
	return true
}

// namespaceKeys lists the store keys belonging to this cache
func (c *Cache) namespaceKeys() ([]string, error) {
	keys, err := c.store.Keys()
	if err != nil {
		return nil, err
	}

	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, c.prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
