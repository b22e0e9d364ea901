// Package poller re-fetches full snapshots while the push stream is down.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"waitboard/internal/metrics"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 20 * time.Second

// Source exposes the connectivity flag and a channel closed on its next
// transition.
type Source interface {
	Connectivity() (connected bool, changed <-chan struct{})
}

// Refresher fetches and applies one full snapshot.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Service runs the fallback loop.
type Service struct {
	source    Source
	refresher Refresher
	interval  time.Duration
	log       *zap.Logger
}

// New creates a polling fallback.
func New(source Source, refresher Refresher, interval time.Duration, logger *zap.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:    source,
		refresher: refresher,
		interval:  interval,
		log:       logger.Named("poller"),
	}
}

// Run blocks until ctx is done. While connected it only waits for the next
// transition; while disconnected it fetches, then waits for the interval or a
// transition, whichever comes first.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("starting polling fallback", zap.Duration("interval", s.interval))
	for {
		connected, changed := s.source.Connectivity()
		if connected {
			select {
			case <-ctx.Done():
				s.log.Info("polling fallback shutting down")
				return
			case <-changed:
				continue
			}
		}

		s.PollOnce(ctx)

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("polling fallback shutting down")
			return
		case <-changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// PollOnce performs one snapshot fetch.
func (s *Service) PollOnce(ctx context.Context) {
	err := s.refresher.Refresh(ctx)
	metrics.PollCycles.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("snapshot fetch failed, retrying after interval", zap.Error(err))
		}
		return
	}
	s.log.Debug("snapshot fetched while stream is down")
}
