package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cutoutly/internal/domain"
	"cutoutly/internal/infra"
)

// StalledMessage is the error recorded on jobs failed by the sweeper.
const StalledMessage = "stalled"

// Sweeper fails processing jobs that have not advanced within a threshold.
type Sweeper struct {
	jobs      domain.JobRepository
	threshold time.Duration
	logger    infra.Logger
	now       func() time.Time
}

func NewSweeper(jobs domain.JobRepository, threshold time.Duration, logger *infra.Logger) *Sweeper {
	s := &Sweeper{
		jobs:      jobs,
		threshold: threshold,
		logger:    zerolog.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if logger != nil {
		s.logger = *logger
	}
	return s
}

// Sweep runs one pass and returns the ids it failed.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	cutoff := s.now().Add(-s.threshold)
	ids, err := s.jobs.FailStalled(ctx, cutoff, StalledMessage)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.logger.Warn().Str("job_id", id).Dur("threshold", s.threshold).Msg("sweeper: job stalled")
	}
	return ids, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info().Dur("interval", interval).Dur("threshold", s.threshold).Msg("sweeper: started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("sweeper: pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
