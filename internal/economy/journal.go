package economy

import "time"

// Entry is one audit record of a committed ledger mutation.
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Action      string    `json:"action"`
	DeltaMicros int64     `json:"delta_micros"`
	Item        string    `json:"item,omitempty"`
	Quantity    int64     `json:"quantity,omitempty"`
	At          time.Time `json:"at"`
}

// Journal receives entries after the ledger has committed them. Record must
// not block.
type Journal interface {
	Record(Entry)
}

type nopJournal struct{}

func (nopJournal) Record(Entry) {}
