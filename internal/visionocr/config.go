package visionocr

import "time"

// ClientConfig configures the HTTP transport, retry, breaker, cache, and
// concurrency knobs of the decode path (§4.2, §6 configuration surface).
type ClientConfig struct {
	Enabled              bool
	ServiceURL           string
	APIKey               string
	Timeout              time.Duration
	MaxRegionsPerRequest int
	DefaultFidelity      string

	CacheTTL time.Duration
	CacheSize int

	MaxConcurrentDecodes int

	RetryAttempts int           // additional attempts beyond the first, per §4.2 step 5
	RetryBackoff  time.Duration // base of exponential backoff: backoff * 2^(attempt-1)

	CircuitFailureThreshold int
	CircuitResetTimeout     time.Duration
}
