package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"plant-monitor-backend/config"
	"plant-monitor-backend/internal/metrics"
)

// Expirer expires overdue commands.
type Expirer interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Reaper marks silent devices offline.
type Reaper interface {
	ReapStale(ctx context.Context) (int64, error)
}

// Sweeper periodically expires overdue commands and reaps stale device presence.
type Sweeper struct {
	cfg     config.SweeperConfig
	expirer Expirer
	reaper  Reaper
}

// New creates a sweeper. reaper may be nil.
func New(cfg config.SweeperConfig, expirer Expirer, reaper Reaper) *Sweeper {
	return &Sweeper{cfg: cfg, expirer: expirer, reaper: reaper}
}

// Run sweeps once immediately and then on every interval until ctx is done.
// A failed cycle is retried after the shorter retry interval.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Sweeper is disabled. Not starting.")
		return
	}
	log.Printf("Starting sweeper (interval %s, retry %s)...", s.cfg.Interval, s.cfg.RetryInterval)

	timer := time.NewTimer(s.next(s.SweepOnce(ctx)))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweeper shutting down.")
			return
		case <-timer.C:
			timer.Reset(s.next(s.SweepOnce(ctx)))
		}
	}
}

func (s *Sweeper) next(err error) time.Duration {
	if err != nil {
		return s.cfg.RetryInterval
	}
	return s.cfg.Interval
}

// SweepOnce runs a single cycle. Both steps run even if the first fails.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	start := time.Now()

	var errs []error
	if _, err := s.expirer.SweepExpired(ctx); err != nil {
		errs = append(errs, fmt.Errorf("expire commands: %w", err))
	}
	if s.reaper != nil {
		if _, err := s.reaper.ReapStale(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reap stale devices: %w", err))
		}
	}

	err := errors.Join(errs...)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		if ctx.Err() == nil {
			log.Printf("Sweep cycle failed, retrying in %s: %v", s.cfg.RetryInterval, err)
		}
	}
	metrics.ObserveSweep(result, time.Since(start))
	return err
}
