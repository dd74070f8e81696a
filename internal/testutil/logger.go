package testutil

import (
	"io"
	"log/slog"
	"time"
)

// WaitTimeout bounds how long tests wait for asynchronous deliveries
const WaitTimeout = 2 * time.Second

// PollInterval is how often tests re-check asynchronous conditions
const PollInterval = 5 * time.Millisecond

// NopLogger returns a logger that discards all output.
// Use this in tests to avoid log noise.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
