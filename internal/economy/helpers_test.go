package economy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memJournal struct {
	mu      sync.Mutex
	entries []Entry
}

func (j *memJournal) Record(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func (j *memJournal) actions() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.Action)
	}
	return out
}

type countingSink struct {
	calls atomic.Int64
	users sync.Map
}

func (s *countingSink) OnRichThresholdCrossed(_ context.Context, userID string) error {
	s.calls.Add(1)
	s.users.Store(userID, true)
	return nil
}

type testEngine struct {
	*Engine
	clock   *fakeClock
	journal *memJournal
	sink    *countingSink
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	clock := newFakeClock()
	journal := &memJournal{}
	sink := &countingSink{}
	e, err := NewEngine(Options{
		Clock:   clock,
		Journal: journal,
		Sink:    sink,
		Seed:    42,
	})
	require.NoError(t, err)
	return &testEngine{Engine: e, clock: clock, journal: journal, sink: sink}
}

func coins(v int64) int64 { return v * MicrosPerCoin }
