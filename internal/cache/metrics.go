package cache

// Metrics receives one call per cache event
type Metrics interface {
	// a live entry was returned
	Hit()
	// nothing usable was stored under the key
	Miss()
	// an expired entry was found and evicted
	Expired()
	// an entry that could not be decoded was found and evicted
	Corrupt()
	// Set could not persist an entry
	WriteFailed()
}

// NoopMetrics ignores every event
type NoopMetrics struct{}

func (NoopMetrics) Hit()         {}
func (NoopMetrics) Miss()        {}
func (NoopMetrics) Expired()     {}
func (NoopMetrics) Corrupt()     {}
func (NoopMetrics) WriteFailed() {}
