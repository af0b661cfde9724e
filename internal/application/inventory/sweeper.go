package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically releases reservations abandoned by crashed or stalled checkouts.
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
	log      observability.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewSweeper(ledger *Ledger, interval time.Duration, logger observability.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Sweeper{
		ledger:   ledger,
		interval: interval,
		log:      logger.With(observability.F("component", "reservation_sweeper")),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx = logctx.With(ctx, s.log)
		go s.loop(ctx)
		s.log.Info("sweeper_started", observability.F("interval", s.interval.String()))
	})
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		started := true
		s.startOnce.Do(func() { started = false })
		if started {
			<-s.done
		}
		s.log.Info("sweeper_stopped")
	})
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.ledger.SweepExpired(ctx); n > 0 {
				s.log.Info("reservations_expired", observability.F("released", n))
			}
		}
	}
}
