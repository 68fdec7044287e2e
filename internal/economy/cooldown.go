package economy

import "time"

const (
	DefaultDailyCooldown = 24 * time.Hour
	DefaultWorkCooldown  = 30 * time.Minute
)

// CooldownGate answers whether a gated action may run now. It never writes;
// callers stamp the action after its side effects are applied.
type CooldownGate struct {
	ledger    *Ledger
	durations map[ActionKind]time.Duration
}

func NewCooldownGate(ledger *Ledger, durations map[ActionKind]time.Duration) *CooldownGate {
	d := map[ActionKind]time.Duration{
		ActionDaily: DefaultDailyCooldown,
		ActionWork:  DefaultWorkCooldown,
	}
	for kind, v := range durations {
		if v > 0 {
			d[kind] = v
		}
	}
	return &CooldownGate{ledger: ledger, durations: d}
}

func (g *CooldownGate) Duration(kind ActionKind) time.Duration {
	return g.durations[kind]
}

func (g *CooldownGate) Eligible(userID string, kind ActionKind, now time.Time) (bool, time.Duration) {
	last, seen := g.ledger.LastAction(userID, kind)
	return g.check(kind, last, seen, now)
}

func (g *CooldownGate) check(kind ActionKind, last time.Time, seen bool, now time.Time) (bool, time.Duration) {
	if !seen {
		return true, 0
	}
	elapsed := now.Sub(last)
	cooldown := g.durations[kind]
	if elapsed >= cooldown {
		return true, 0
	}
	return false, cooldown - elapsed
}

// gate is check against an account already locked by the caller.
func (g *CooldownGate) gate(a *account, kind ActionKind, now time.Time) error {
	last, seen := a.lastAction[kind]
	if ok, remaining := g.check(kind, last, seen, now); !ok {
		return &CooldownError{Kind: kind, Remaining: remaining}
	}
	return nil
}
