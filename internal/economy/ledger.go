package economy

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

type ActionKind string

const (
	ActionDaily ActionKind = "daily"
	// ActionWork is shared by job and collect.
	ActionWork ActionKind = "work"
)

type account struct {
	mu              sync.Mutex
	id              string
	balanceMicros   int64
	principalMicros int64
	inventory       map[string]int64
	achievements    []string
	lastAction      map[ActionKind]time.Time
}

// change is the full set of writes an operation makes to one account. It is
// validated as a whole before any field is touched.
type change struct {
	balance   int64
	principal int64
	items     map[string]int64
	action    ActionKind
	actionAt  time.Time
}

func (a *account) check(c change) error {
	if c.balance > 0 && a.balanceMicros > math.MaxInt64-c.balance {
		return fmt.Errorf("%w: balance of %s overflows", ErrInvariant, a.id)
	}
	if a.balanceMicros+c.balance < 0 {
		return fmt.Errorf("%w: balance of %s would go negative", ErrInvariant, a.id)
	}
	if c.principal > 0 && a.principalMicros > math.MaxInt64-c.principal {
		return fmt.Errorf("%w: principal of %s overflows", ErrInvariant, a.id)
	}
	if a.principalMicros+c.principal < 0 {
		return fmt.Errorf("%w: principal of %s would go negative", ErrInvariant, a.id)
	}
	for item, d := range c.items {
		have := a.inventory[item]
		if d > 0 && have > math.MaxInt64-d {
			return fmt.Errorf("%w: %s quantity of %s overflows", ErrInvariant, item, a.id)
		}
		if have+d < 0 {
			return fmt.Errorf("%w: %s quantity of %s would go negative", ErrInvariant, item, a.id)
		}
	}
	return nil
}

func (a *account) commit(c change) {
	a.balanceMicros += c.balance
	a.principalMicros += c.principal
	for item, d := range c.items {
		next := a.inventory[item] + d
		if next == 0 {
			delete(a.inventory, item)
			continue
		}
		a.inventory[item] = next
	}
	if c.action != "" {
		a.lastAction[c.action] = c.actionAt
	}
}

func (a *account) apply(c change) error {
	if err := a.check(c); err != nil {
		return err
	}
	a.commit(c)
	return nil
}

func (a *account) hasAchievement(id string) bool {
	for _, have := range a.achievements {
		if have == id {
			return true
		}
	}
	return false
}

func (a *account) inventoryCopy() map[string]int64 {
	out := make(map[string]int64, len(a.inventory))
	for item, qty := range a.inventory {
		out[item] = qty
	}
	return out
}

// Ledger is the in-memory store of every user's economic state. Each account
// has its own mutex; the store mutex only guards the id -> account map and the
// pending trade table.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account

	tradesMu sync.Mutex
	trades   map[string]PendingTrade
}

func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		trades:   make(map[string]PendingTrade),
	}
}

func (l *Ledger) lookup(userID string) (*account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[userID]
	return a, ok
}

func (l *Ledger) acquire(userID string) *account {
	if a, ok := l.lookup(userID); ok {
		return a
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.accounts[userID]; ok {
		return a
	}
	a := &account{
		id:         userID,
		inventory:  make(map[string]int64),
		lastAction: make(map[ActionKind]time.Time),
	}
	l.accounts[userID] = a
	return a
}

// update runs plan under the account lock and applies the change it returns.
// It returns the balance after the call, whether or not it succeeded.
func (l *Ledger) update(userID string, plan func(a *account) (change, error)) (int64, error) {
	a := l.acquire(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	c, err := plan(a)
	if err != nil {
		return a.balanceMicros, err
	}
	if err := a.apply(c); err != nil {
		return a.balanceMicros, err
	}
	return a.balanceMicros, nil
}

func (l *Ledger) read(userID string, fn func(a *account)) bool {
	a, ok := l.lookup(userID)
	if !ok {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
	return true
}

// lockPair locks two distinct accounts in id order.
func (l *Ledger) lockPair(first, second string) (*account, *account, func()) {
	a := l.acquire(first)
	b := l.acquire(second)
	if a == b {
		a.mu.Lock()
		return a, b, a.mu.Unlock
	}
	lo, hi := a, b
	if hi.id < lo.id {
		lo, hi = hi, lo
	}
	lo.mu.Lock()
	hi.mu.Lock()
	return a, b, func() {
		hi.mu.Unlock()
		lo.mu.Unlock()
	}
}

func (l *Ledger) GetBalance(userID string) int64 {
	var out int64
	l.read(userID, func(a *account) { out = a.balanceMicros })
	return out
}

func (l *Ledger) Principal(userID string) int64 {
	var out int64
	l.read(userID, func(a *account) { out = a.principalMicros })
	return out
}

func (l *Ledger) Credit(userID string, amountMicros int64) (int64, error) {
	if amountMicros < 0 {
		return l.GetBalance(userID), fmt.Errorf("%w: credit must be >= 0", ErrInvalidAmount)
	}
	return l.update(userID, func(*account) (change, error) {
		return change{balance: amountMicros}, nil
	})
}

func (l *Ledger) Debit(userID string, amountMicros int64) (int64, error) {
	if amountMicros < 0 {
		return l.GetBalance(userID), fmt.Errorf("%w: debit must be >= 0", ErrInvalidAmount)
	}
	return l.update(userID, func(a *account) (change, error) {
		if a.balanceMicros < amountMicros {
			return change{}, ErrInsufficientFunds
		}
		return change{balance: -amountMicros}, nil
	})
}

func (l *Ledger) AddItem(userID, item string, qty int64) error {
	if qty < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", ErrInvalidAmount)
	}
	_, err := l.update(userID, func(*account) (change, error) {
		return change{items: map[string]int64{item: qty}}, nil
	})
	return err
}

func (l *Ledger) RemoveItem(userID, item string, qty int64) error {
	if qty < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", ErrInvalidAmount)
	}
	_, err := l.update(userID, func(a *account) (change, error) {
		if a.inventory[item] < qty {
			return change{}, fmt.Errorf("%w: have %d %s, need %d", ErrInsufficientInventory, a.inventory[item], item, qty)
		}
		return change{items: map[string]int64{item: -qty}}, nil
	})
	return err
}

func (l *Ledger) GetInventory(userID string) map[string]int64 {
	out := map[string]int64{}
	l.read(userID, func(a *account) { out = a.inventoryCopy() })
	return out
}

// GrantAchievement records id for the user and reports whether it was new.
func (l *Ledger) GrantAchievement(userID, id string) bool {
	a := l.acquire(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.grant(id)
}

func (a *account) grant(id string) bool {
	if a.hasAchievement(id) {
		return false
	}
	a.achievements = append(a.achievements, id)
	return true
}

// grantIfBalanceAtLeast checks the balance and grants id under one lock.
func (l *Ledger) grantIfBalanceAtLeast(userID, id string, thresholdMicros int64) bool {
	a, ok := l.lookup(userID)
	if !ok {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balanceMicros < thresholdMicros {
		return false
	}
	return a.grant(id)
}

func (l *Ledger) ListAchievements(userID string) []string {
	var out []string
	l.read(userID, func(a *account) { out = append([]string(nil), a.achievements...) })
	return out
}

func (l *Ledger) RecordAction(userID string, kind ActionKind, at time.Time) {
	a := l.acquire(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAction[kind] = at
}

func (l *Ledger) LastAction(userID string, kind ActionKind) (time.Time, bool) {
	var (
		at time.Time
		ok bool
	)
	l.read(userID, func(a *account) { at, ok = a.lastAction[kind] })
	return at, ok
}

// Investors returns the ids holding principal at the time of the call.
func (l *Ledger) Investors() []string {
	l.mu.RLock()
	accounts := make([]*account, 0, len(l.accounts))
	for _, a := range l.accounts {
		accounts = append(accounts, a)
	}
	l.mu.RUnlock()

	var out []string
	for _, a := range accounts {
		a.mu.Lock()
		if a.principalMicros > 0 {
			out = append(out, a.id)
		}
		a.mu.Unlock()
	}
	sort.Strings(out)
	return out
}

type BalanceRow struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	BalanceMicros int64  `json:"balance_micros"`
}

// Leaderboard returns the top balances, highest first, ties broken by id.
func (l *Ledger) Leaderboard(limit int) []BalanceRow {
	l.mu.RLock()
	accounts := make([]*account, 0, len(l.accounts))
	for _, a := range l.accounts {
		accounts = append(accounts, a)
	}
	l.mu.RUnlock()

	rows := make([]BalanceRow, 0, len(accounts))
	for _, a := range accounts {
		a.mu.Lock()
		rows = append(rows, BalanceRow{UserID: a.id, BalanceMicros: a.balanceMicros})
		a.mu.Unlock()
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BalanceMicros != rows[j].BalanceMicros {
			return rows[i].BalanceMicros > rows[j].BalanceMicros
		}
		return rows[i].UserID < rows[j].UserID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
