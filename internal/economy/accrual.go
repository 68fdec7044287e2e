package economy

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	DefaultAccrualEvery = 300 * time.Second
	DefaultAccrualRate  = 0.05
)

// AccrualScheduler pays investment returns on a fixed period. The return is
// taken out of the principal itself, so principal decays geometrically.
type AccrualScheduler struct {
	engine  *Engine
	every   time.Duration
	rate    float64
	log     *slog.Logger
	started atomic.Bool

	// snapshotTaken runs between listing investors and paying them; tests
	// use it to land writes inside a tick.
	snapshotTaken func()
}

type TickReport struct {
	Investors      int   `json:"investors"`
	Failed         int   `json:"failed"`
	CreditedMicros int64 `json:"credited_micros"`
}

func NewAccrualScheduler(engine *Engine, every time.Duration, rate float64) (*AccrualScheduler, error) {
	if every <= 0 {
		every = DefaultAccrualEvery
	}
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("%w: accrual rate %v outside [0, 1]", ErrInvalidAmount, rate)
	}
	return &AccrualScheduler{
		engine: engine,
		every:  every,
		rate:   rate,
		log:    engine.log.With("component", "accrual"),
	}, nil
}

// Run ticks until ctx is done. A scheduler runs at most once; later calls
// return ErrSchedulerStarted. A tick in progress always completes.
func (s *AccrualScheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSchedulerStarted
	}
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.log.Info("accrual scheduler started", "every", s.every.String(), "rate", s.rate)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("accrual scheduler stopped")
			return nil
		case <-ticker.C:
			report := s.Tick()
			s.log.Info("accrual tick complete",
				"investors", report.Investors,
				"failed", report.Failed,
				"credited_micros", report.CreditedMicros,
			)
		}
	}
}

// Tick applies one round of returns to the investors present when it starts.
// Investments made during the tick are picked up by the next one.
func (s *AccrualScheduler) Tick() TickReport {
	var report TickReport
	investors := s.engine.ledger.Investors()
	if s.snapshotTaken != nil {
		s.snapshotTaken()
	}
	report.Investors = len(investors)
	for _, userID := range investors {
		credited, err := s.accrue(userID)
		if err != nil {
			report.Failed++
			s.log.Error("accrual failed", "user_id", userID, "err", err)
			continue
		}
		report.CreditedMicros += credited
	}
	return report
}

func (s *AccrualScheduler) accrue(userID string) (credited int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic accruing %s: %v", userID, r)
		}
	}()
	_, err = s.engine.ledger.update(userID, func(a *account) (change, error) {
		returns, ok := scaleMicros(a.principalMicros, s.rate)
		if !ok {
			return change{}, fmt.Errorf("%w: returns on principal %d overflow", ErrInvariant, a.principalMicros)
		}
		credited = returns
		return change{balance: returns, principal: -returns}, nil
	})
	if err != nil {
		return 0, err
	}
	if credited > 0 {
		s.engine.record(userID, "accrual", credited, "", 0)
		s.engine.achievements.Evaluate(userID)
	}
	return credited, nil
}
