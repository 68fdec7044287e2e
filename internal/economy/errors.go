package economy

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrUnknownItem           = errors.New("unknown item")
	ErrUnknownJob            = errors.New("unknown job")
	ErrUnknownGame           = errors.New("unknown game")
	ErrCooldownActive        = errors.New("cooldown active")
	ErrNoPendingTrade        = errors.New("no pending trade")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrSchedulerStarted      = errors.New("accrual scheduler already started")

	// ErrInvariant marks a ledger invariant violation. The operation that hit it
	// is aborted before any field is written.
	ErrInvariant = errors.New("ledger invariant violated")
)

// CooldownError reports how long a gated action must still wait.
type CooldownError struct {
	Kind      ActionKind
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s cooldown active: %s remaining", e.Kind, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	if target == ErrCooldownActive {
		return true
	}
	_, ok := target.(*CooldownError)
	return ok
}
