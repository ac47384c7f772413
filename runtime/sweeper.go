// Package runtime runs the gateway's background maintenance jobs.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// IdleSweeper drops sessions that have not been used for maxIdle.
// *mcp.Manager implements it.
type IdleSweeper interface {
	SweepIdle(maxIdle time.Duration) []string
}

// Sweeper periodically closes idle tool server sessions.
type Sweeper struct {
	sessions IdleSweeper
	schedule Schedule
	maxIdle  time.Duration
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper that runs on the schedule expr (see ParseSchedule) and
// closes sessions idle for longer than maxIdle.
func NewSweeper(sessions IdleSweeper, expr string, maxIdle time.Duration, logger zerolog.Logger) (*Sweeper, error) {
	if maxIdle <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive")
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	return &Sweeper{
		sessions: sessions,
		schedule: schedule,
		maxIdle:  maxIdle,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}, nil
}

// Start runs sweeps on schedule until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("maxIdle", s.maxIdle).Msg("Starting session sweeper")

	for {
		now := time.Now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("Session sweeper stopped: context cancelled")
			return
		case <-timer.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass and returns the callers whose sessions were closed.
func (s *Sweeper) Sweep() []string {
	swept := s.sessions.SweepIdle(s.maxIdle)
	if len(swept) > 0 {
		s.logger.Info().Int("numSessions", len(swept)).Strs("callers", swept).Msg("Closed idle sessions")
	} else {
		s.logger.Debug().Msg("No idle sessions")
	}
	return swept
}
