package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultReclaimInterval = 10 * time.Second
	DefaultClaimTimeout    = 15 * time.Minute
)

// Sweeper periodically returns abandoned claims to the waiting pool.
type Sweeper struct {
	cron     *cron.Cron
	d        *Dispatcher
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewSweeper(d *Dispatcher, interval, claimTimeout time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultReclaimInterval
	}
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sweeper{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		d:        d,
		interval: interval,
		timeout:  claimTimeout,
		logger:   logger.With("component", "reclaim-sweeper"),
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.tick); err != nil {
		return nil, fmt.Errorf("schedule reclaim sweep: %w", err)
	}
	return s, nil
}

// Start runs the schedule until ctx is done, then waits for an in-flight sweep.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("reclaim sweeper started", "interval", s.interval.String(), "claim_timeout", s.timeout.String())
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("reclaim sweeper stopped")
	return nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) ([]string, error) {
	return s.d.ReclaimStale(ctx, s.timeout)
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	ids, err := s.RunOnce(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.Error("reclaim sweep failed", "err", err)
		return
	}
	if len(ids) > 0 {
		s.logger.Info("reclaim sweep", "reclaimed", len(ids), "call_ids", ids)
	}
}
