package economy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccrualGeometricDecay(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Earn("u1", coins(1000))
	require.NoError(t, err)
	_, err = e.Invest("u1", coins(1000))
	require.NoError(t, err)
	require.Zero(t, e.Balance("u1"))

	s, err := NewAccrualScheduler(e.Engine, time.Minute, 0.05)
	require.NoError(t, err)

	first := s.Tick()
	assert.Equal(t, TickReport{Investors: 1, CreditedMicros: coins(50)}, first)
	assert.Equal(t, coins(950), e.Ledger().Principal("u1"))

	s.Tick()
	s.Tick()
	assert.Equal(t, int64(857_375_000), e.Ledger().Principal("u1"))
	assert.Equal(t, int64(142_625_000), e.Balance("u1"))
}

func TestInvestDuringTickWaitsForNextTick(t *testing.T) {
	e := newTestEngine(t)
	for _, u := range []string{"u1", "u2"} {
		_, err := e.Earn(u, coins(100))
		require.NoError(t, err)
	}
	_, err := e.Invest("u1", coins(100))
	require.NoError(t, err)

	s, err := NewAccrualScheduler(e.Engine, time.Minute, 0.1)
	require.NoError(t, err)
	s.snapshotTaken = func() {
		_, err := e.Invest("u2", coins(100))
		require.NoError(t, err)
	}

	report := s.Tick()
	assert.Equal(t, TickReport{Investors: 1, CreditedMicros: coins(10)}, report)
	assert.Zero(t, e.Balance("u2"))
	assert.Equal(t, coins(100), e.Ledger().Principal("u2"))

	s.snapshotTaken = nil
	report = s.Tick()
	assert.Equal(t, 2, report.Investors)
	assert.Equal(t, coins(10), e.Balance("u2"))
	assert.Equal(t, coins(90), e.Ledger().Principal("u2"))
}

func TestAccrualIsolatesFailingUser(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Earn("good", coins(100))
	require.NoError(t, err)
	_, err = e.Invest("good", coins(100))
	require.NoError(t, err)

	_, err = e.Ledger().update("bad", func(*account) (change, error) {
		return change{balance: math.MaxInt64 - 10, principal: coins(100)}, nil
	})
	require.NoError(t, err)

	s, err := NewAccrualScheduler(e.Engine, time.Minute, 0.05)
	require.NoError(t, err)
	report := s.Tick()

	assert.Equal(t, 2, report.Investors)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, coins(5), e.Balance("good"))
	assert.Equal(t, coins(100), e.Ledger().Principal("bad"))
	assert.Equal(t, int64(math.MaxInt64-10), e.Balance("bad"))
}

func TestAccrualCanGrantAchievement(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Earn("u1", coins(29_990))
	require.NoError(t, err)
	_, err = e.Ledger().update("u1", func(*account) (change, error) {
		return change{principal: coins(1000)}, nil
	})
	require.NoError(t, err)

	s, err := NewAccrualScheduler(e.Engine, time.Minute, 0.05)
	require.NoError(t, err)
	s.Tick()

	e.Achievements().Wait()
	assert.Equal(t, []string{AchievementRichest}, e.ListAchievements("u1"))
	assert.Equal(t, int64(1), e.sink.calls.Load())
}

func TestAccrualRunStartsOnce(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Earn("u1", coins(100))
	require.NoError(t, err)
	_, err = e.Invest("u1", coins(100))
	require.NoError(t, err)

	s, err := NewAccrualScheduler(e.Engine, 5*time.Millisecond, 0.05)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return e.Balance("u1") > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.ErrorIs(t, s.Run(ctx), ErrSchedulerStarted)

	cancel()
	require.NoError(t, <-done)
}

func TestNewAccrualSchedulerRejectsBadRate(t *testing.T) {
	e := newTestEngine(t)
	_, err := NewAccrualScheduler(e.Engine, time.Minute, 1.5)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = NewAccrualScheduler(e.Engine, time.Minute, -0.1)
	require.ErrorIs(t, err, ErrInvalidAmount)
}
