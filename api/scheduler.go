/*
scheduler.go - Background recalculation sweeper

PURPOSE:
  Reassignments flag payroll records as needing recalculation but the flags
  are only cleared when something triggers the calculator. The sweeper
  periodically picks up flagged periods and recomputes their records, so
  aggregates converge even when no further API traffic arrives.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each pass asks the store for the distinct periods holding flagged records
  - Per-period failures are logged and skipped; the sweep continues

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 minute)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewRecalculationSweeper(store, calc, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - freight/calculator.go: RecalculateFlagged
  - engine/reassign.go: where the flags come from
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetops/payroll-engine/engine"
	"github.com/fleetops/payroll-engine/freight"
)

const defaultSweepInterval = time.Minute

// RecalculationSweeper drains needs_recalculation flags in the background.
type RecalculationSweeper struct {
	Store         engine.TxStore
	Calculator    *freight.Calculator
	CheckInterval time.Duration
	Enabled       bool

	log    *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewRecalculationSweeper(store engine.TxStore, calc *freight.Calculator, log *slog.Logger) *RecalculationSweeper {
	if log == nil {
		log = slog.Default()
	}
	return &RecalculationSweeper{
		Store:         store,
		Calculator:    calc,
		CheckInterval: defaultSweepInterval,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start launches the background sweep loop. No-op when disabled.
func (s *RecalculationSweeper) Start() {
	if !s.Enabled {
		s.log.Info("recalculation sweeper disabled")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("recalculation sweeper started", "interval", s.CheckInterval)
		for {
			select {
			case <-s.ticker.C:
				if err := s.RunOnce(context.Background()); err != nil {
					s.log.Error("recalculation sweep failed", "error", err)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-flight pass to finish.
func (s *RecalculationSweeper) Stop() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.log.Info("recalculation sweeper stopped")
}

// RunOnce performs a single sweep over all flagged periods. Exported so the
// scenario loader and tests can force a pass synchronously.
func (s *RecalculationSweeper) RunOnce(ctx context.Context) error {
	periods, err := s.Store.ListFlaggedPeriods(ctx)
	if err != nil {
		return err
	}

	for _, periodID := range periods {
		if err := s.Calculator.RecalculateFlagged(ctx, periodID); err != nil {
			s.log.Warn("sweep skipped period", "period_id", periodID, "error", err)
			continue
		}
		s.log.Debug("sweep recalculated period", "period_id", periodID)
	}
	return nil
}
