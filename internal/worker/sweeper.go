package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/vending-service/internal/store"
)

// Sweeper periodically removes expired token records. Best-effort
// cleanup: an expired token that outlives the sweep is still rejected by
// signature verification on the confirmation path.
type Sweeper struct {
	store    store.Store
	logger   *zap.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a sweeper. An interval of 0 or less defaults to one
// minute.
func NewSweeper(st store.Store, logger *zap.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    st,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (s *Sweeper) Start() {
	go s.run()
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
}

// Stop shuts the loop down and waits for any in-progress sweep.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("expiry sweeper stopped")
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	removed, err := s.store.SweepExpired(context.Background(), time.Now())
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("swept expired tokens", zap.Int("removed", removed))
	}
}
