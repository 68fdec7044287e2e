package economy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const AchievementRichest = "the_richest"

// RichSink is told once per user when the user first reaches the rich
// threshold. The host wires it to whatever platform action fits.
type RichSink interface {
	OnRichThresholdCrossed(ctx context.Context, userID string) error
}

type RichSinkFunc func(ctx context.Context, userID string) error

func (f RichSinkFunc) OnRichThresholdCrossed(ctx context.Context, userID string) error {
	return f(ctx, userID)
}

type AchievementEvaluator struct {
	ledger          *Ledger
	thresholdMicros int64
	sink            RichSink
	timeout         time.Duration
	log             *slog.Logger
	wg              sync.WaitGroup
}

func NewAchievementEvaluator(ledger *Ledger, thresholdMicros int64, sink RichSink, logger *slog.Logger) *AchievementEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if thresholdMicros <= 0 {
		thresholdMicros = DefaultRichThresholdMicros
	}
	return &AchievementEvaluator{
		ledger:          ledger,
		thresholdMicros: thresholdMicros,
		sink:            sink,
		timeout:         15 * time.Second,
		log:             logger,
	}
}

// Evaluate grants the rich achievement if the user's balance is at or above
// the threshold and reports whether this call granted it. The sink runs on
// its own goroutine.
func (e *AchievementEvaluator) Evaluate(userID string) bool {
	if !e.ledger.grantIfBalanceAtLeast(userID, AchievementRichest, e.thresholdMicros) {
		return false
	}
	e.log.Info("achievement granted", "user_id", userID, "achievement", AchievementRichest)
	if e.sink != nil {
		e.dispatch(userID)
	}
	return true
}

func (e *AchievementEvaluator) dispatch(userID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in rich sink: %v", r)
				}
			}()
			return e.sink.OnRichThresholdCrossed(ctx, userID)
		}()
		if err != nil {
			e.log.Error("rich threshold signal failed", "user_id", userID, "err", err)
		}
	}()
}

// Wait blocks until every dispatched signal has returned.
func (e *AchievementEvaluator) Wait() {
	e.wg.Wait()
}
