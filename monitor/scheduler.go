package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mfriesen/newswatch/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler drives periodic scans through a cron timer. It has two states,
// stopped and running; Start and Stop are idempotent.
type Scheduler struct {
	monitor  *Monitor
	interval time.Duration
	log      logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a Scheduler that triggers a scan every interval.
func NewScheduler(m *Monitor, interval time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		monitor:  m,
		interval: interval,
		log:      log,
	}
}

// Start arms the recurring timer. The first scan fires after one full
// interval, not immediately. Starting an already-running scheduler is a
// no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Debug("scheduler already running")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.tick); err != nil {
		return fmt.Errorf("failed to schedule scan every %s: %w", s.interval, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.Info("monitoring started", logger.Duration("interval", s.interval))
	return nil
}

// Stop cancels the timer. An in-flight scan keeps running to completion;
// mutual exclusion lives in the Monitor, not here. Stopping an
// already-stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.log.Debug("scheduler already stopped")
		return
	}

	s.cron.Stop()
	s.cron = nil
	s.running = false
	s.log.Info("monitoring stopped")
}

// Running reports whether the periodic timer is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerNow starts a scan in the background, independent of the timer and
// of the scheduler state. The timer is not reset. Returns ErrScanInFlight
// when a scan is already running.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.monitor.ScanAsync(ctx)
}

// tick is the cron callback. A tick that lands while a scan is still
// running is dropped.
func (s *Scheduler) tick() {
	if err := s.monitor.Scan(context.Background()); err != nil && !errors.Is(err, ErrScanInFlight) {
		s.log.Error("scheduled scan failed", logger.Error(err))
	}
}
