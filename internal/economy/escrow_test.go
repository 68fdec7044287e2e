package economy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stock(t *testing.T, l *Ledger, user, item string, qty int64) {
	t.Helper()
	require.NoError(t, l.AddItem(user, item, qty))
}

func TestTradeMovesItemsAndClearsProposal(t *testing.T) {
	e := newTestEngine(t)
	stock(t, e.Ledger(), "alice", "apple", 5)
	stock(t, e.Ledger(), "bob", "apple", 1)

	_, err := e.ProposeTrade("alice", "bob", "apple", 3)
	require.NoError(t, err)
	require.Len(t, e.PendingTrades("bob"), 1)

	tr, err := e.AcceptTrade("bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", tr.Initiator)
	assert.Equal(t, int64(3), tr.Quantity)

	assert.Equal(t, map[string]int64{"apple": 2}, e.Inventory("alice"))
	assert.Equal(t, map[string]int64{"apple": 4}, e.Inventory("bob"))
	assert.Empty(t, e.PendingTrades("bob"))

	_, err = e.AcceptTrade("bob")
	require.ErrorIs(t, err, ErrNoPendingTrade)
	assert.Equal(t, []string{"trade_out", "trade_in"}, e.journal.actions())
}

func TestProposeValidation(t *testing.T) {
	e := newTestEngine(t)
	stock(t, e.Ledger(), "alice", "apple", 2)

	_, err := e.ProposeTrade("alice", "bob", "apple", 3)
	require.ErrorIs(t, err, ErrInsufficientInventory)
	_, err = e.ProposeTrade("alice", "bob", "carrot", 1)
	require.ErrorIs(t, err, ErrInsufficientInventory)
	_, err = e.ProposeTrade("alice", "bob", "apple", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.ProposeTrade("alice", "alice", "apple", 1)
	require.ErrorIs(t, err, ErrInvalidAmount)

	assert.Empty(t, e.PendingTrades("bob"))
}

func TestProposalOverwritesPrevious(t *testing.T) {
	e := newTestEngine(t)
	stock(t, e.Ledger(), "alice", "apple", 2)
	stock(t, e.Ledger(), "alice", "banana", 2)

	_, err := e.ProposeTrade("alice", "bob", "apple", 1)
	require.NoError(t, err)
	_, err = e.ProposeTrade("alice", "carol", "banana", 2)
	require.NoError(t, err)

	assert.Empty(t, e.PendingTrades("bob"))
	pending := e.PendingTrades("carol")
	require.Len(t, pending, 1)
	assert.Equal(t, "banana", pending[0].Item)
}

func TestAcceptRevalidatesInitiatorHolding(t *testing.T) {
	e := newTestEngine(t)
	stock(t, e.Ledger(), "alice", "apple", 3)

	_, err := e.ProposeTrade("alice", "bob", "apple", 3)
	require.NoError(t, err)
	require.NoError(t, e.Ledger().RemoveItem("alice", "apple", 2))

	_, err = e.AcceptTrade("bob")
	require.ErrorIs(t, err, ErrInsufficientInventory)
	assert.Equal(t, map[string]int64{"apple": 1}, e.Inventory("alice"))
	assert.Empty(t, e.Inventory("bob"))
	assert.Len(t, e.PendingTrades("bob"), 1, "proposal stays pending")
}

func TestAcceptPicksOldestProposal(t *testing.T) {
	e := newTestEngine(t)
	stock(t, e.Ledger(), "zed", "apple", 1)
	stock(t, e.Ledger(), "amy", "carrot", 1)

	_, err := e.ProposeTrade("zed", "bob", "apple", 1)
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	_, err = e.ProposeTrade("amy", "bob", "carrot", 1)
	require.NoError(t, err)

	tr, err := e.AcceptTrade("bob")
	require.NoError(t, err)
	assert.Equal(t, "zed", tr.Initiator)
	tr, err = e.AcceptTrade("bob")
	require.NoError(t, err)
	assert.Equal(t, "amy", tr.Initiator)
	assert.Equal(t, map[string]int64{"apple": 1, "carrot": 1}, e.Inventory("bob"))
}

func TestCancelTrade(t *testing.T) {
	e := newTestEngine(t)
	stock(t, e.Ledger(), "alice", "apple", 1)

	_, err := e.CancelTrade("alice")
	require.ErrorIs(t, err, ErrNoPendingTrade)

	_, err = e.ProposeTrade("alice", "bob", "apple", 1)
	require.NoError(t, err)
	_, err = e.CancelTrade("alice")
	require.NoError(t, err)

	_, err = e.AcceptTrade("bob")
	require.ErrorIs(t, err, ErrNoPendingTrade)
}

func TestTradeTTL(t *testing.T) {
	clock := newFakeClock()
	l := NewLedger()
	esc := NewEscrow(l, clock, time.Hour)
	stock(t, l, "alice", "apple", 1)

	_, err := esc.Propose("alice", "bob", "apple", 1)
	require.NoError(t, err)
	clock.Advance(59 * time.Minute)
	require.Len(t, esc.PendingFor("bob"), 1)

	clock.Advance(time.Minute)
	assert.Empty(t, esc.PendingFor("bob"))
	_, err = esc.Accept("bob")
	require.ErrorIs(t, err, ErrNoPendingTrade)
	_, ok := esc.Outgoing("alice")
	assert.False(t, ok)
}

func TestCrossingTradesDoNotDeadlock(t *testing.T) {
	e := newTestEngine(t)
	const rounds = 100
	stock(t, e.Ledger(), "alice", "apple", rounds)
	stock(t, e.Ledger(), "bob", "banana", rounds)

	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := e.ProposeTrade("alice", "bob", "apple", 1); err == nil {
				_, _ = e.AcceptTrade("bob")
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := e.ProposeTrade("bob", "alice", "banana", 1); err == nil {
				_, _ = e.AcceptTrade("alice")
			}
		}()
	}
	wg.Wait()

	alice, bob := e.Inventory("alice"), e.Inventory("bob")
	assert.Equal(t, int64(rounds), alice["apple"]+bob["apple"])
	assert.Equal(t, int64(rounds), alice["banana"]+bob["banana"])
}
