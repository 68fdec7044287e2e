package bot

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"coinbot/internal/economy"
)

type reply struct {
	Title       string
	Description string
	Color       int
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func say(title, format string, a ...any) reply {
	return reply{Title: title, Description: fmt.Sprintf(format, a...), Color: embedColor}
}

// dispatch runs one slash command for userID and builds the reply. It never
// touches the gateway.
func (b *Bot) dispatch(userID, name string, in args) reply {
	who := mention(userID)
	switch name {
	case "balance":
		return say("Balance", "%s, your balance is %s coins.", who, economy.FormatMicros(b.engine.Balance(userID)))

	case "earn":
		amount, ok := in.int("amount")
		micros, valid := coins(amount)
		if !ok || !valid {
			return say("Earned Coins", "%s, please enter a valid amount.", who)
		}
		balance, err := b.engine.Earn(userID, micros)
		if err != nil {
			return b.failure("Earned Coins", userID, err)
		}
		return say("Earned Coins", "%s, you earned %d coins! Your new balance is %s coins.", who, amount, economy.FormatMicros(balance))

	case "buy":
		qty, _ := in.int("quantity")
		res, err := b.engine.Purchase(userID, in.str("item"), qty)
		if err != nil {
			return b.failure("Shop", userID, err)
		}
		return say("Shop", "%s, you bought %d %s(s) for %s coins.", who, res.Quantity, res.Item, economy.FormatMicros(res.CostMicros))

	case "inventory":
		inv := b.engine.Inventory(userID)
		if len(inv) == 0 {
			return say("Inventory", "%s, your inventory is empty.", who)
		}
		items := make([]string, 0, len(inv))
		for item := range inv {
			items = append(items, item)
		}
		sort.Strings(items)
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, fmt.Sprintf("%s: %d", item, inv[item]))
		}
		return say("Inventory", "%s, your inventory:\n%s", who, strings.Join(lines, "\n"))

	case "shop":
		lines := make([]string, 0)
		for _, item := range b.engine.Shop() {
			lines = append(lines, fmt.Sprintf("%s: %s coins", item.Name, economy.FormatMicros(item.PriceMicros)))
		}
		return say("Shop", "%s", strings.Join(lines, "\n"))

	case "trade":
		target := in.str("target")
		qty, _ := in.int("quantity")
		if target == "" {
			return say("Trade", "%s, pick someone to trade with.", who)
		}
		t, err := b.engine.ProposeTrade(userID, target, in.str("item"), qty)
		if err != nil {
			return b.failure("Trade", userID, err)
		}
		return say("Trade", "%s, trade request for %d %s(s) sent to %s.", who, t.Quantity, t.Item, mention(t.Target))

	case "accept_trade":
		t, err := b.engine.AcceptTrade(userID)
		if err != nil {
			return b.failure("Trade", userID, err)
		}
		return say("Trade", "%s, trade accepted. You received %d %s(s) from %s.", who, t.Quantity, t.Item, mention(t.Initiator))

	case "cancel_trade":
		t, err := b.engine.CancelTrade(userID)
		if err != nil {
			return b.failure("Trade", userID, err)
		}
		return say("Trade", "%s, your offer of %d %s(s) to %s was withdrawn.", who, t.Quantity, t.Item, mention(t.Target))

	case "pending_trades":
		pending := b.engine.PendingTrades(userID)
		if len(pending) == 0 {
			return say("Trade", "%s, no trade request found.", who)
		}
		lines := make([]string, 0, len(pending))
		for _, t := range pending {
			lines = append(lines, fmt.Sprintf("%s offers %d %s(s)", mention(t.Initiator), t.Quantity, t.Item))
		}
		return say("Trade", "%s, offers waiting for you (oldest is accepted first):\n%s", who, strings.Join(lines, "\n"))

	case "daily":
		p, err := b.engine.ClaimDaily(userID)
		if err != nil {
			return b.failure("Daily Reward", userID, err)
		}
		return say("Daily Reward", "%s, you claimed your daily reward of %s coins.", who, economy.FormatMicros(p.AmountMicros))

	case "leaderboard":
		rows := b.engine.Leaderboard(10)
		if len(rows) == 0 {
			return say("Leaderboard", "**Leaderboard**\nNobody has any coins yet.")
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, fmt.Sprintf("%d. %s: %s coins", row.Rank, mention(row.UserID), economy.FormatMicros(row.BalanceMicros)))
		}
		return say("Leaderboard", "**Leaderboard**\n%s", strings.Join(lines, "\n"))

	case "job":
		job := in.str("job_name")
		if job == "" {
			lines := make([]string, 0)
			for _, j := range b.engine.Jobs() {
				lines = append(lines, fmt.Sprintf("%s: %s coins", j.Name, economy.FormatMicros(j.PayoutMicros)))
			}
			return say("Available Jobs", "%s", strings.Join(lines, "\n"))
		}
		p, err := b.engine.WorkJob(userID, job)
		if err != nil {
			return b.failure("Job", userID, err)
		}
		return say("Job", "%s, you worked as a %s and earned %s coins!", who, economy.NormalizeName(job), economy.FormatMicros(p.AmountMicros))

	case "collect":
		p, err := b.engine.CollectAllJobs(userID)
		if err != nil {
			return b.failure("Collect Income", userID, err)
		}
		return say("Collect Income", "%s, you collected your income of %s coins!", who, economy.FormatMicros(p.AmountMicros))

	case "invest":
		amount, ok := in.int("amount")
		micros, valid := coins(amount)
		if !ok || !valid {
			return say("Invest", "%s, please enter a valid amount to invest.", who)
		}
		res, err := b.engine.Invest(userID, micros)
		if err != nil {
			return b.failure("Invest", userID, err)
		}
		return say("Invest", "%s, you have invested %d coins. Your principal is now %s coins.", who, amount, economy.FormatMicros(res.PrincipalMicros))

	case "achievements":
		list := b.engine.ListAchievements(userID)
		if len(list) == 0 {
			return say("Achievements", "%s, your achievements: No achievements yet.", who)
		}
		names := make([]string, 0, len(list))
		for _, id := range list {
			names = append(names, achievementTitle(id))
		}
		return say("Achievements", "%s, your achievements: %s", who, strings.Join(names, ", "))

	case economy.GameMiniGame, economy.GameCoinFlip, economy.GameBlackjack:
		res, err := b.engine.PlayMiniGame(userID, name)
		if err != nil {
			return b.failure(gameTitle(name), userID, err)
		}
		return say(gameTitle(name), "%s, %s! You earned %s coins.", who, gameOutcome(res), economy.FormatMicros(res.PayoutMicros))

	case "bot_help":
		return reply{Title: "Command Help", Description: b.helpText(), Color: helpColor}
	}
	return say("Unknown Command", "%s, I do not know /%s.", who, name)
}

// failure turns an engine error into a user-facing message.
func (b *Bot) failure(title, userID string, err error) reply {
	who := mention(userID)
	var cd *economy.CooldownError
	switch {
	case errors.As(err, &cd):
		return say(title, "%s, you can only do that once every %s. Please wait for %s.",
			who, humanDuration(b.engine.Gate().Duration(cd.Kind)), humanDuration(cd.Remaining))
	case errors.Is(err, economy.ErrInsufficientFunds):
		return say(title, "%s, you do not have enough coins.", who)
	case errors.Is(err, economy.ErrInsufficientInventory):
		return say(title, "%s, you do not have enough of that item.", who)
	case errors.Is(err, economy.ErrUnknownItem):
		return say(title, "%s, that item is not available in the shop.", who)
	case errors.Is(err, economy.ErrUnknownJob):
		return say(title, "%s, that job does not exist.", who)
	case errors.Is(err, economy.ErrNoPendingTrade):
		return say(title, "%s, no trade request found.", who)
	case errors.Is(err, economy.ErrInvalidAmount):
		return say(title, "%s, please enter a valid amount.", who)
	}
	b.log.Error("command failed", "title", title, "user_id", userID, "err", err)
	return say(title, "%s, something went wrong. Please try again later.", who)
}

func humanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Second {
		d = time.Second
	}
	return d.String()
}

func achievementTitle(id string) string {
	if id == economy.AchievementRichest {
		return "The Richest"
	}
	return id
}

func gameTitle(name string) string {
	switch name {
	case economy.GameMiniGame:
		return "Mini-Game"
	case economy.GameCoinFlip:
		return "Coin Flip"
	case economy.GameBlackjack:
		return "Blackjack"
	}
	return name
}

func gameOutcome(res economy.GameResult) string {
	switch res.Game {
	case economy.GameCoinFlip:
		return "you flipped a coin and it landed on " + res.Face
	case economy.GameBlackjack:
		return "you played a game of blackjack and " + res.Face
	}
	return "you played a mini-game and " + res.Face
}
