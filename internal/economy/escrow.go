package economy

import (
	"fmt"
	"sort"
	"time"
)

type PendingTrade struct {
	Initiator string    `json:"initiator"`
	Target    string    `json:"target"`
	Item      string    `json:"item"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// Escrow runs the two-step trade protocol over the ledger's trade table. A
// zero ttl keeps proposals until they are accepted or replaced.
type Escrow struct {
	ledger *Ledger
	clock  Clock
	ttl    time.Duration
}

func NewEscrow(ledger *Ledger, clock Clock, ttl time.Duration) *Escrow {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Escrow{ledger: ledger, clock: clock, ttl: ttl}
}

func (e *Escrow) Propose(initiator, target, item string, qty int64) (PendingTrade, error) {
	item = NormalizeName(item)
	if err := requirePositive("quantity", qty); err != nil {
		return PendingTrade{}, err
	}
	if initiator == target {
		return PendingTrade{}, fmt.Errorf("%w: cannot trade with yourself", ErrInvalidAmount)
	}

	l := e.ledger
	l.tradesMu.Lock()
	defer l.tradesMu.Unlock()

	var have int64
	l.read(initiator, func(a *account) { have = a.inventory[item] })
	if have < qty {
		return PendingTrade{}, fmt.Errorf("%w: have %d %s, offered %d", ErrInsufficientInventory, have, item, qty)
	}
	t := PendingTrade{
		Initiator: initiator,
		Target:    target,
		Item:      item,
		Quantity:  qty,
		CreatedAt: e.clock.Now(),
	}
	l.trades[initiator] = t
	return t, nil
}

// Accept executes the oldest live proposal addressed to target. The
// initiator's holding is re-checked under both account locks; on shortfall
// nothing moves and the proposal stays pending.
func (e *Escrow) Accept(target string) (PendingTrade, error) {
	l := e.ledger
	l.tradesMu.Lock()
	defer l.tradesMu.Unlock()

	e.pruneLocked(e.clock.Now())
	pending := e.pendingForLocked(target)
	if len(pending) == 0 {
		return PendingTrade{}, ErrNoPendingTrade
	}
	t := pending[0]

	from, to, unlock := l.lockPair(t.Initiator, t.Target)
	defer unlock()

	if have := from.inventory[t.Item]; have < t.Quantity {
		return t, fmt.Errorf("%w: %s now holds %d %s, trade needs %d", ErrInsufficientInventory, t.Initiator, have, t.Item, t.Quantity)
	}
	out := change{items: map[string]int64{t.Item: -t.Quantity}}
	in := change{items: map[string]int64{t.Item: t.Quantity}}
	if err := from.check(out); err != nil {
		return t, err
	}
	if err := to.check(in); err != nil {
		return t, err
	}
	from.commit(out)
	to.commit(in)
	delete(l.trades, t.Initiator)
	return t, nil
}

// Cancel withdraws the initiator's outstanding proposal.
func (e *Escrow) Cancel(initiator string) (PendingTrade, error) {
	l := e.ledger
	l.tradesMu.Lock()
	defer l.tradesMu.Unlock()

	e.pruneLocked(e.clock.Now())
	t, ok := l.trades[initiator]
	if !ok {
		return PendingTrade{}, ErrNoPendingTrade
	}
	delete(l.trades, initiator)
	return t, nil
}

// PendingFor lists live proposals addressed to target, oldest first.
func (e *Escrow) PendingFor(target string) []PendingTrade {
	l := e.ledger
	l.tradesMu.Lock()
	defer l.tradesMu.Unlock()
	e.pruneLocked(e.clock.Now())
	return e.pendingForLocked(target)
}

// Outgoing returns the initiator's live proposal, if any.
func (e *Escrow) Outgoing(initiator string) (PendingTrade, bool) {
	l := e.ledger
	l.tradesMu.Lock()
	defer l.tradesMu.Unlock()
	e.pruneLocked(e.clock.Now())
	t, ok := l.trades[initiator]
	return t, ok
}

func (e *Escrow) pendingForLocked(target string) []PendingTrade {
	var out []PendingTrade
	for _, t := range e.ledger.trades {
		if t.Target == target {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Initiator < out[j].Initiator
	})
	return out
}

func (e *Escrow) pruneLocked(now time.Time) {
	if e.ttl <= 0 {
		return
	}
	for initiator, t := range e.ledger.trades {
		if now.Sub(t.CreatedAt) >= e.ttl {
			delete(e.ledger.trades, initiator)
		}
	}
}
