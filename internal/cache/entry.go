package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

var errCorrupt = errors.New("corrupt cache entry")

// Entry is the record persisted for every cached value
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // write time, Unix milliseconds
	TTL       int64           `json:"ttl"`       // milliseconds
}

// Live reports whether the entry is still valid at now.
// An entry read exactly at timestamp+ttl is still live.
func (e *Entry) Live(now time.Time) bool {
	if e.TTL < 0 {
		return false
	}
	// Expiry past the int64 range never comes
	if e.Timestamp > math.MaxInt64-e.TTL {
		return true
	}
	return now.UnixMilli() <= e.Timestamp+e.TTL
}

// ttlMillis converts ttl to whole milliseconds, rounding any remainder up so
// a positive ttl never becomes 0
func ttlMillis(ttl time.Duration) int64 {
	ms := ttl.Milliseconds()
	if ttl%time.Millisecond > 0 {
		ms++
	}
	return ms
}

// wireEntry mirrors Entry with pointers so missing fields can be told apart from zero values
type wireEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp *int64          `json:"timestamp"`
	TTL       *int64          `json:"ttl"`
}

// Serialize encodes data into an entry written at now
func Serialize(data any, now time.Time, ttl time.Duration) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}

	b, err := json.Marshal(Entry{
		Data:      raw,
		Timestamp: now.UnixMilli(),
		TTL:       ttlMillis(ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	return b, nil
}

// Deserialize decodes a stored entry. Anything that is not exactly the
// {data, timestamp, ttl} object is reported as corrupt.
func Deserialize(b []byte) (*Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()

	var w wireEntry
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", errCorrupt)
	}

	switch {
	case w.Data == nil:
		return nil, fmt.Errorf("%w: missing data", errCorrupt)
	case w.Timestamp == nil:
		return nil, fmt.Errorf("%w: missing timestamp", errCorrupt)
	case w.TTL == nil:
		return nil, fmt.Errorf("%w: missing ttl", errCorrupt)
	case *w.TTL < 0:
		return nil, fmt.Errorf("%w: negative ttl", errCorrupt)
	}

	return &Entry{
		Data:      w.Data,
		Timestamp: *w.Timestamp,
		TTL:       *w.TTL,
	}, nil
}
