/*
scheduler.go - Periodic reconciliation sweep

PURPOSE:
  Periodically reconciles every card's record against its label set so
  badges stay accurate even when no request has touched a card.

DESIGN:
  - Runs a background goroutine with a configurable tick interval
  - Each tick runs to COMPLETION before the next is considered:
    ticks never overlap-stack
  - Per-card failures are swallowed by the sweep (logged inside
    Service.ReconcileAll) and the next tick proceeds regardless

USAGE:
  sweep := NewSweeper(service, 10*time.Minute, log)
  sweep.Start()
  // ... later
  sweep.Stop()
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/billing-engine/billing"
)

// Sweeper runs the periodic board-wide reconciliation.
type Sweeper struct {
	Service  *billing.Service
	Interval time.Duration
	Log      *zap.Logger

	ticker  *time.Ticker
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewSweeper creates a sweeper. A zero interval disables it.
func NewSweeper(service *billing.Service, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		Service:  service,
		Interval: interval,
		Log:      log,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.Log.Info("sweeper disabled")
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()
	s.Log.Info("sweeper started", zap.Duration("interval", s.Interval))
}

// Stop stops the sweep loop and waits for an in-flight tick to finish.
// In-flight work runs to completion; nothing is abandoned mid-flight.
// Safe to call more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil || s.stopped {
		return
	}
	s.stopped = true
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.Log.Info("sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// Run immediately on start.
	s.tick()

	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) tick() {
	changed, err := s.Service.ReconcileAll(context.Background())
	if err != nil {
		s.Log.Warn("sweep failed", zap.Error(err))
		return
	}
	sweepRuns.Inc()
	sweepChanged.Add(float64(changed))
	if changed > 0 {
		s.Log.Info("sweep reconciled records", zap.Int("changed", changed))
	}
}
