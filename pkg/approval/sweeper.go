package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper runs the coordinator's expiry pass on a cron schedule.
type Sweeper struct {
	coordinator *Coordinator
	runner      *cron.Cron
	expr        string
}

// NewSweeper creates a sweeper. expr is a standard five-field cron
// expression; empty means every minute.
func NewSweeper(coordinator *Coordinator, expr string) *Sweeper {
	if expr == "" {
		expr = "* * * * *"
	}
	return &Sweeper{
		coordinator: coordinator,
		runner:      cron.New(),
		expr:        expr,
	}
}

// Start schedules the sweep and begins running it.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.runner.AddFunc(s.expr, func() {
		if _, err := s.coordinator.SweepExpired(ctx); err != nil {
			log.Error().Err(err).Msg("Approval expiry sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.expr, err)
	}
	s.runner.Start()
	log.Info().Str("schedule", s.expr).Msg("Approval expiry sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	stopCtx := s.runner.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Timed out waiting for approval sweep to stop")
	}
}
