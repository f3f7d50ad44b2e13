package matching

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs ExpireStale and ReconcileMatches on an interval. It is a
// suture service: a failed sweep is logged and retried on the next tick, a
// panic restarts it.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{svc: svc, interval: interval, log: svc.log.With("task", "expiry-sweep")}
}

func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	start := time.Now()
	n, err := s.svc.ExpireStale(ctx, s.svc.Now())
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("expiry sweep failed", "err", err, "expired", n)
		}
		return
	}
	s.log.Debug("expiry sweep done", "expired", n, "took", time.Since(start))

	recovered, err := s.svc.ReconcileMatches(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("match reconcile failed", "err", err, "recovered", recovered)
		}
		return
	}
	if recovered > 0 {
		s.log.Info("match reconcile done", "recovered", recovered)
	}
}

func (s *Sweeper) String() string { return "match-expiry-sweeper" }
