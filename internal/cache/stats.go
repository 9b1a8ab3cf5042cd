package cache

import (
	"math"
	"strings"

	"github.com/sirupsen/logrus"
)

// Stats summarises the entries of a cache namespace
type Stats struct {
	TotalEntries   int     `json:"totalEntries" yaml:"totalEntries"`
	ValidEntries   int     `json:"validEntries" yaml:"validEntries"`
	ExpiredEntries int     `json:"expiredEntries" yaml:"expiredEntries"`
	TotalSizeBytes int64   `json:"totalSizeBytes" yaml:"totalSizeBytes"`
	TotalSizeKB    float64 `json:"totalSizeKB" yaml:"totalSizeKB"`
}

// Stats classifies every entry of the namespace as valid or expired without
// evicting anything. Entries that cannot be read or decoded only count toward
// TotalEntries. It returns false if the store cannot be enumerated.
func (c *Cache) Stats() (Stats, bool) {
	keys, err := c.namespaceKeys()
	if err != nil {
		logrus.WithError(err).Warn("Failed to list cache entries")
		return Stats{}, false
	}

	now := c.now()
	var stats Stats
	for _, k := range keys {
		stats.TotalEntries++

		b, err := c.store.Get(k)
		if err != nil {
			logrus.WithField("key", strings.TrimPrefix(k, c.prefix)).WithError(err).Debug("Skipping unreadable cache entry")
			continue
		}
		if b == nil {
			// Removed since Keys
			continue
		}
		stats.TotalSizeBytes += int64(len(b))

		entry, err := Deserialize(b)
		if err != nil {
			continue
		}
		if entry.Live(now) {
			stats.ValidEntries++
		} else {
			stats.ExpiredEntries++
		}
	}

	stats.TotalSizeKB = math.Round(float64(stats.TotalSizeBytes)/1024*100) / 100
	return stats, true
}
