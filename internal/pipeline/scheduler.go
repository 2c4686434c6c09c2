package pipeline

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Scheduler runs scans on a fixed interval and on manual triggers. Scans
// are serialized by the Service; the scheduler just decides when to ask.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   log.Logger

	trigger chan struct{}
}

// NewScheduler creates a scheduler that fires a scan every interval.
func NewScheduler(service *Service, interval time.Duration, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Scheduler{
		service:  service,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a scan outside the regular interval. It never blocks;
// while a manual scan is already queued, further triggers coalesce into it.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, scanning each interval tick and on
// every manual trigger. Scan errors are already logged and recorded by the
// service, so the loop just keeps going.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "scheduler started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(context.WithoutCancel(ctx), "scheduler stopped")
			return
		case <-ticker.C:
			_, _ = s.service.RunScan(ctx, "interval")
		case <-s.trigger:
			_, _ = s.service.RunScan(ctx, "manual")
		}
	}
}
