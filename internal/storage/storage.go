// Persistent key-value substrates the cache is stored in
package storage

import (
	"errors"
	"fmt"

	"github.com/iTrooz/kiosk-dashboard/internal/config"
)

var (
	// ErrQuotaExceeded is returned by Set when the write would take the store above its quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrUnavailable is returned when the store cannot be used at all.
	ErrUnavailable = errors.New("storage unavailable")
)

// Storage is a flat key-value store shared by every user of the substrate
type Storage interface {
	// prepares the store (e.g., creates necessary directories)
	Init() error
	// returns the raw value stored under key.
	// returns nil, nil when not found
	Get(key string) ([]byte, error)
	// replaces the value stored under key. Either the new value is fully
	// written or the previous one is left untouched.
	Set(key string, value []byte) error
	// removes key. Removing a missing key is not an error
	Delete(key string) error
	// lists every key currently in the store, in no particular order
	Keys() ([]string, error)
}

// New builds the store described by cfg
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemory(cfg.QuotaBytes), nil
	case config.BackendDisk:
		return NewDisk(cfg.Folder, cfg.QuotaBytes), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

// entrySize is the number of bytes an entry is charged against a quota
func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
