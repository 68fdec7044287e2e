package economy

import (
	"fmt"
	"sort"
)

type ShopItem struct {
	Name        string `json:"name"`
	PriceMicros int64  `json:"price_micros"`
}

// Shop is the read-only price list. Only listed items can be bought.
type Shop struct {
	prices map[string]int64
}

func DefaultShopPrices() map[string]int64 {
	return map[string]int64{
		"apple":  10 * MicrosPerCoin,
		"banana": 15 * MicrosPerCoin,
		"carrot": 5 * MicrosPerCoin,
	}
}

func NewShop(prices map[string]int64) (*Shop, error) {
	out := make(map[string]int64, len(prices))
	for name, price := range prices {
		name = NormalizeName(name)
		if err := validateName("item", name); err != nil {
			return nil, err
		}
		if price <= 0 {
			return nil, fmt.Errorf("%w: price of %s must be > 0", ErrInvalidAmount, name)
		}
		out[name] = price
	}
	return &Shop{prices: out}, nil
}

func (s *Shop) Price(item string) (int64, error) {
	price, ok := s.prices[NormalizeName(item)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownItem, item)
	}
	return price, nil
}

func (s *Shop) Items() []ShopItem {
	out := make([]ShopItem, 0, len(s.prices))
	for name, price := range s.prices {
		out = append(out, ShopItem{Name: name, PriceMicros: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type JobRange struct {
	Name      string
	MinMicros int64
	MaxMicros int64
}

type Job struct {
	Name         string `json:"name"`
	PayoutMicros int64  `json:"payout_micros"`
}

func DefaultJobRanges() []JobRange {
	coins := func(name string, lo, hi int64) JobRange {
		return JobRange{Name: name, MinMicros: lo * MicrosPerCoin, MaxMicros: hi * MicrosPerCoin}
	}
	return []JobRange{
		coins("fisherman", 100, 200),
		coins("programmer", 150, 300),
		coins("artist", 200, 350),
		coins("musician", 250, 400),
		coins("delivery_driver", 300, 450),
		coins("doctor", 350, 500),
		coins("teacher", 400, 550),
		coins("chef", 450, 600),
		coins("lawyer", 500, 650),
		coins("pilot", 550, 700),
		coins("engineer", 600, 750),
	}
}

// JobBoard holds the payout of every job. Payouts are drawn once when the
// board is built and do not change for the life of the process.
type JobBoard struct {
	jobs    []Job
	payouts map[string]int64
}

func NewJobBoard(ranges []JobRange, draw func(lo, hi int64) int64) (*JobBoard, error) {
	b := &JobBoard{payouts: make(map[string]int64, len(ranges))}
	for _, r := range ranges {
		name := NormalizeName(r.Name)
		if err := validateName("job", name); err != nil {
			return nil, err
		}
		if r.MinMicros <= 0 || r.MaxMicros < r.MinMicros {
			return nil, fmt.Errorf("%w: payout range of %s", ErrInvalidAmount, name)
		}
		if _, dup := b.payouts[name]; dup {
			return nil, fmt.Errorf("duplicate job %q", name)
		}
		payout := draw(r.MinMicros, r.MaxMicros)
		b.payouts[name] = payout
		b.jobs = append(b.jobs, Job{Name: name, PayoutMicros: payout})
	}
	return b, nil
}

func (b *JobBoard) Payout(name string) (int64, error) {
	payout, ok := b.payouts[NormalizeName(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return payout, nil
}

// Total is what collect pays: the sum of every job's payout.
func (b *JobBoard) Total() int64 {
	var sum int64
	for _, j := range b.jobs {
		sum += j.PayoutMicros
	}
	return sum
}

func (b *JobBoard) Jobs() []Job {
	return append([]Job(nil), b.jobs...)
}
