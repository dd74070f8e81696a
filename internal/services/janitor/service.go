// Package janitor applies the disconnect actions of clients that stopped
// heartbeating. Backends that learn about lost connections directly (the
// in-memory store) never need it.
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/gamesync/internal/dependencies/clock"
)

// Sweeper finds dead sessions and applies their pending actions
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Config holds janitor settings
type Config struct {
	// Interval between sweeps
	Interval time.Duration
}

// DefaultConfig returns sensible defaults for the janitor
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Second}
}

// Stats summarises the sweeps run so far
type Stats struct {
	Sweeps    int       `json:"sweeps"`
	Applied   int       `json:"applied"`
	Failures  int       `json:"failures"`
	LastSweep time.Time `json:"lastSweep,omitzero"`
	LastError string    `json:"lastError,omitempty"`
}

// Service runs sweeps on a fixed interval
type Service struct {
	sweeper  Sweeper
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration

	mu    sync.Mutex
	stats Stats
}

// New creates a new janitor Service
func New(sweeper Sweeper, clk clock.Clock, logger *slog.Logger, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Service{
		sweeper:  sweeper,
		clock:    clk,
		logger:   logger.With(slog.String("component", "janitor")),
		interval: cfg.Interval,
	}
}

// SweepOnce runs a single sweep and records its outcome
func (s *Service) SweepOnce(ctx context.Context) (int, error) {
	applied, err := s.sweeper.Sweep(ctx)

	s.mu.Lock()
	s.stats.Sweeps++
	s.stats.Applied += applied
	s.stats.LastSweep = s.clock.Now()
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
	} else {
		s.stats.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("sweep failed", slog.String("error", err.Error()))
		return applied, err
	}
	if applied > 0 {
		s.logger.Info("applied disconnect actions", slog.Int("sessions", applied))
	}
	return applied, nil
}

// Run sweeps immediately and then every interval until ctx is done.
// Sweep failures are recorded and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("janitor started", slog.Duration("interval", s.interval))
	for {
		_, _ = s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("janitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Stats returns a copy of the sweep counters
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
