package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// KeyPrefix namespaces every key the store touches
	KeyPrefix string

	// TTL maps a top-level path segment (e.g. "rooms") to the expiry applied
	// to its documents on every write. Missing or zero means no expiry.
	TTL map[string]time.Duration

	// HeartbeatInterval is how often this client refreshes its session
	HeartbeatInterval time.Duration
	// SessionTimeout is how long a session may go without a heartbeat before
	// its disconnect actions are applied
	SessionTimeout time.Duration
	// SweepInterval is how often this client looks for dead sessions.
	// Zero disables in-process sweeping (run the janitor instead).
	SweepInterval time.Duration

	// MaxTxRetries bounds optimistic transaction retries
	MaxTxRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "gamesync",
		TTL: map[string]time.Duration{
			"rooms":       24 * time.Hour,
			"matchmaking": time.Hour,
		},
		HeartbeatInterval: 5 * time.Second,
		SessionTimeout:    30 * time.Second,
		SweepInterval:     15 * time.Second,
		MaxTxRetries:      32,
	}
}
