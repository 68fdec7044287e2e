package economy

import (
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Options struct {
	Clock   Clock
	Journal Journal
	Sink    RichSink
	Logger  *slog.Logger
	Seed    int64

	ShopPrices          map[string]int64
	JobRanges           []JobRange
	DailyRewardMicros   int64
	RichThresholdMicros int64
	DailyCooldown       time.Duration
	WorkCooldown        time.Duration
	TradeTTL            time.Duration
}

// Engine is the entry point the command layer calls. Every mutation goes
// through the ledger's per-account locks.
type Engine struct {
	ledger       *Ledger
	gate         *CooldownGate
	escrow       *Escrow
	achievements *AchievementEvaluator
	shop         *Shop
	jobs         *JobBoard
	clock        Clock
	journal      Journal
	log          *slog.Logger

	dailyRewardMicros int64

	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Journal == nil {
		opts.Journal = nopJournal{}
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.ShopPrices == nil {
		opts.ShopPrices = DefaultShopPrices()
	}
	if opts.JobRanges == nil {
		opts.JobRanges = DefaultJobRanges()
	}
	if opts.DailyRewardMicros <= 0 {
		opts.DailyRewardMicros = DefaultDailyRewardMicros
	}

	e := &Engine{
		ledger:            NewLedger(),
		clock:             opts.Clock,
		journal:           opts.Journal,
		log:               opts.Logger,
		dailyRewardMicros: opts.DailyRewardMicros,
		rand:              mathrand.New(mathrand.NewSource(opts.Seed)),
	}
	shop, err := NewShop(opts.ShopPrices)
	if err != nil {
		return nil, fmt.Errorf("build shop: %w", err)
	}
	jobs, err := NewJobBoard(opts.JobRanges, e.drawCoins)
	if err != nil {
		return nil, fmt.Errorf("build job board: %w", err)
	}
	e.shop = shop
	e.jobs = jobs
	e.gate = NewCooldownGate(e.ledger, map[ActionKind]time.Duration{
		ActionDaily: opts.DailyCooldown,
		ActionWork:  opts.WorkCooldown,
	})
	e.escrow = NewEscrow(e.ledger, e.clock, opts.TradeTTL)
	e.achievements = NewAchievementEvaluator(e.ledger, opts.RichThresholdMicros, opts.Sink, e.log)
	return e, nil
}

func (e *Engine) Ledger() *Ledger                     { return e.ledger }
func (e *Engine) Gate() *CooldownGate                 { return e.gate }
func (e *Engine) Escrow() *Escrow                     { return e.escrow }
func (e *Engine) Achievements() *AchievementEvaluator { return e.achievements }

type Payout struct {
	Source        string `json:"source"`
	AmountMicros  int64  `json:"amount_micros"`
	BalanceMicros int64  `json:"balance_micros"`
}

type PurchaseResult struct {
	Item          string `json:"item"`
	Quantity      int64  `json:"quantity"`
	CostMicros    int64  `json:"cost_micros"`
	BalanceMicros int64  `json:"balance_micros"`
}

type InvestResult struct {
	AmountMicros    int64 `json:"amount_micros"`
	PrincipalMicros int64 `json:"principal_micros"`
	BalanceMicros   int64 `json:"balance_micros"`
}

type Portfolio struct {
	UserID          string           `json:"user_id"`
	BalanceMicros   int64            `json:"balance_micros"`
	PrincipalMicros int64            `json:"principal_micros"`
	Inventory       map[string]int64 `json:"inventory"`
	Achievements    []string         `json:"achievements"`
}

func (e *Engine) Balance(userID string) int64 {
	return e.ledger.GetBalance(userID)
}

func (e *Engine) Inventory(userID string) map[string]int64 {
	return e.ledger.GetInventory(userID)
}

func (e *Engine) ListAchievements(userID string) []string {
	return e.ledger.ListAchievements(userID)
}

func (e *Engine) LastAction(userID string, kind ActionKind) (time.Time, bool) {
	return e.ledger.LastAction(userID, kind)
}

// Cooldown reports whether kind is claimable now and, if not, how long is left.
func (e *Engine) Cooldown(userID string, kind ActionKind) (bool, time.Duration) {
	return e.gate.Eligible(userID, kind, e.clock.Now())
}

func (e *Engine) Portfolio(userID string) Portfolio {
	out := Portfolio{UserID: userID, Inventory: map[string]int64{}}
	e.ledger.read(userID, func(a *account) {
		out.BalanceMicros = a.balanceMicros
		out.PrincipalMicros = a.principalMicros
		out.Inventory = a.inventoryCopy()
		out.Achievements = append([]string(nil), a.achievements...)
	})
	return out
}

func (e *Engine) Leaderboard(limit int) []BalanceRow {
	if limit <= 0 {
		limit = 10
	}
	return e.ledger.Leaderboard(limit)
}

func (e *Engine) Shop() []ShopItem { return e.shop.Items() }
func (e *Engine) Jobs() []Job      { return e.jobs.Jobs() }

func (e *Engine) Earn(userID string, amountMicros int64) (int64, error) {
	if err := requirePositive("amount", amountMicros); err != nil {
		return e.ledger.GetBalance(userID), err
	}
	balance, err := e.ledger.update(userID, func(a *account) (change, error) {
		if err := requireRoom("balance", a.balanceMicros, amountMicros); err != nil {
			return change{}, err
		}
		return change{balance: amountMicros}, nil
	})
	if err != nil {
		return balance, err
	}
	e.record(userID, "earn", amountMicros, "", 0)
	e.achievements.Evaluate(userID)
	return balance, nil
}

// Purchase debits price × qty and adds qty of item in one step.
func (e *Engine) Purchase(userID, item string, qty int64) (PurchaseResult, error) {
	item = NormalizeName(item)
	out := PurchaseResult{Item: item, Quantity: qty}
	price, err := e.shop.Price(item)
	if err != nil {
		return out, err
	}
	if err := requirePositive("quantity", qty); err != nil {
		return out, err
	}
	cost, err := mulMicros(price, qty)
	if err != nil {
		return out, err
	}
	out.CostMicros = cost
	out.BalanceMicros, err = e.ledger.update(userID, func(a *account) (change, error) {
		if a.balanceMicros < cost {
			return change{}, fmt.Errorf("%w: need %d micros, have %d", ErrInsufficientFunds, cost, a.balanceMicros)
		}
		if err := requireRoom("quantity of "+item, a.inventory[item], qty); err != nil {
			return change{}, err
		}
		return change{balance: -cost, items: map[string]int64{item: qty}}, nil
	})
	if err != nil {
		return out, err
	}
	e.record(userID, "purchase", -cost, item, qty)
	return out, nil
}

func (e *Engine) ClaimDaily(userID string) (Payout, error) {
	return e.gatedCredit(userID, ActionDaily, "daily", e.dailyRewardMicros)
}

func (e *Engine) WorkJob(userID, jobName string) (Payout, error) {
	name := NormalizeName(jobName)
	payout, err := e.jobs.Payout(name)
	if err != nil {
		return Payout{Source: name}, err
	}
	return e.gatedCredit(userID, ActionWork, "job:"+name, payout)
}

func (e *Engine) CollectAllJobs(userID string) (Payout, error) {
	return e.gatedCredit(userID, ActionWork, "collect", e.jobs.Total())
}

// gatedCredit checks the cooldown, credits and stamps the action under one
// account lock, so two concurrent claims cannot both pass the gate.
func (e *Engine) gatedCredit(userID string, kind ActionKind, source string, amountMicros int64) (Payout, error) {
	out := Payout{Source: source, AmountMicros: amountMicros}
	now := e.clock.Now()
	balance, err := e.ledger.update(userID, func(a *account) (change, error) {
		if err := e.gate.gate(a, kind, now); err != nil {
			return change{}, err
		}
		if err := requireRoom("balance", a.balanceMicros, amountMicros); err != nil {
			return change{}, err
		}
		return change{balance: amountMicros, action: kind, actionAt: now}, nil
	})
	out.BalanceMicros = balance
	if err != nil {
		return out, err
	}
	e.record(userID, source, amountMicros, "", 0)
	e.achievements.Evaluate(userID)
	return out, nil
}

// Invest moves amount from balance into principal.
func (e *Engine) Invest(userID string, amountMicros int64) (InvestResult, error) {
	out := InvestResult{AmountMicros: amountMicros}
	if err := requirePositive("amount", amountMicros); err != nil {
		return out, err
	}
	var err error
	out.BalanceMicros, err = e.ledger.update(userID, func(a *account) (change, error) {
		if a.balanceMicros < amountMicros {
			return change{}, ErrInsufficientFunds
		}
		if err := requireRoom("principal", a.principalMicros, amountMicros); err != nil {
			return change{}, err
		}
		out.PrincipalMicros = a.principalMicros + amountMicros
		return change{balance: -amountMicros, principal: amountMicros}, nil
	})
	if err != nil {
		out.PrincipalMicros = e.ledger.Principal(userID)
		return out, err
	}
	e.record(userID, "invest", -amountMicros, "", 0)
	return out, nil
}

func (e *Engine) ProposeTrade(initiator, target, item string, qty int64) (PendingTrade, error) {
	return e.escrow.Propose(initiator, target, item, qty)
}

func (e *Engine) AcceptTrade(target string) (PendingTrade, error) {
	t, err := e.escrow.Accept(target)
	if err != nil {
		return t, err
	}
	e.record(t.Initiator, "trade_out", 0, t.Item, -t.Quantity)
	e.record(t.Target, "trade_in", 0, t.Item, t.Quantity)
	return t, nil
}

func (e *Engine) CancelTrade(initiator string) (PendingTrade, error) {
	return e.escrow.Cancel(initiator)
}

func (e *Engine) PendingTrades(target string) []PendingTrade {
	return e.escrow.PendingFor(target)
}

func (e *Engine) PlayMiniGame(userID, game string) (GameResult, error) {
	g, err := LookupGame(game)
	if err != nil {
		return GameResult{Game: NormalizeName(game)}, err
	}
	e.mu.Lock()
	faceRoll := e.rand.Intn(2)
	e.mu.Unlock()
	res := g.roll(faceRoll, e.drawCoins)
	res.BalanceMicros, err = e.ledger.update(userID, func(a *account) (change, error) {
		if err := requireRoom("balance", a.balanceMicros, res.PayoutMicros); err != nil {
			return change{}, err
		}
		return change{balance: res.PayoutMicros}, nil
	})
	if err != nil {
		return res, err
	}
	if res.PayoutMicros > 0 {
		e.record(userID, g.Name, res.PayoutMicros, "", 0)
		e.achievements.Evaluate(userID)
	}
	return res, nil
}

// drawCoins returns a whole number of coins in [lo, hi], as micros.
func (e *Engine) drawCoins(lo, hi int64) int64 {
	loCoins := lo / MicrosPerCoin
	hiCoins := hi / MicrosPerCoin
	if hiCoins <= loCoins {
		return lo
	}
	e.mu.Lock()
	n := e.rand.Int63n(hiCoins - loCoins + 1)
	e.mu.Unlock()
	return (loCoins + n) * MicrosPerCoin
}

func (e *Engine) record(userID, action string, delta int64, item string, qty int64) {
	e.journal.Record(Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Action:      action,
		DeltaMicros: delta,
		Item:        item,
		Quantity:    qty,
		At:          e.clock.Now(),
	})
}
