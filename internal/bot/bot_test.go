package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"coinbot/internal/economy"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBot(t *testing.T) (*Bot, *economy.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := economy.NewEngine(economy.Options{Seed: 3, Logger: logger})
	require.NoError(t, err)
	return New(nil, engine, nil, "", logger), engine
}

func TestDispatchBalanceAndEarn(t *testing.T) {
	b, engine := newTestBot(t)

	r := b.dispatch("42", "earn", args{"amount": int64(250)})
	assert.Equal(t, "Earned Coins", r.Title)
	assert.Contains(t, r.Description, "<@42>, you earned 250 coins")
	assert.Equal(t, 250*economy.MicrosPerCoin, engine.Balance("42"))

	r = b.dispatch("42", "balance", args{})
	assert.Equal(t, "<@42>, your balance is 250.00 coins.", r.Description)
	assert.Equal(t, embedColor, r.Color)
}

func TestDispatchEarnRejectsBadAmount(t *testing.T) {
	b, engine := newTestBot(t)
	r := b.dispatch("42", "earn", args{"amount": int64(-5)})
	assert.Contains(t, r.Description, "valid amount")
	assert.Zero(t, engine.Balance("42"))

	_, err := engine.Earn("42", math.MaxInt64)
	require.NoError(t, err)
	r = b.dispatch("42", "earn", args{"amount": int64(1)})
	assert.Contains(t, r.Description, "valid amount")
	assert.Equal(t, int64(math.MaxInt64), engine.Balance("42"))
}

func TestDispatchBuyAndInventory(t *testing.T) {
	b, engine := newTestBot(t)

	r := b.dispatch("7", "buy", args{"item": "apple", "quantity": int64(1)})
	assert.Contains(t, r.Description, "do not have enough coins")

	_, err := engine.Earn("7", 100*economy.MicrosPerCoin)
	require.NoError(t, err)
	r = b.dispatch("7", "buy", args{"item": "banana", "quantity": int64(2)})
	assert.Contains(t, r.Description, "you bought 2 banana(s) for 30.00 coins")

	r = b.dispatch("7", "buy", args{"item": "durian", "quantity": int64(1)})
	assert.Contains(t, r.Description, "not available in the shop")

	r = b.dispatch("7", "inventory", args{})
	assert.Contains(t, r.Description, "banana: 2")
}

func TestDispatchTradeFlow(t *testing.T) {
	b, engine := newTestBot(t)
	require.NoError(t, engine.Ledger().AddItem("1", "carrot", 4))

	r := b.dispatch("1", "trade", args{"target": "2", "item": "carrot", "quantity": int64(3)})
	assert.Contains(t, r.Description, "sent to <@2>")

	r = b.dispatch("2", "pending_trades", args{})
	assert.Contains(t, r.Description, "<@1> offers 3 carrot(s)")

	r = b.dispatch("2", "accept_trade", args{})
	assert.Contains(t, r.Description, "You received 3 carrot(s) from <@1>")
	assert.Equal(t, map[string]int64{"carrot": 3}, engine.Inventory("2"))

	r = b.dispatch("2", "accept_trade", args{})
	assert.Contains(t, r.Description, "no trade request found")
}

func TestDispatchDailyCooldown(t *testing.T) {
	b, _ := newTestBot(t)

	r := b.dispatch("9", "daily", args{})
	assert.Contains(t, r.Description, "daily reward of 100.00 coins")

	r = b.dispatch("9", "daily", args{})
	assert.Contains(t, r.Description, "once every 24h0m0s")
	assert.Contains(t, r.Description, "Please wait")
}

func TestDispatchJobListsWhenNoName(t *testing.T) {
	b, _ := newTestBot(t)
	r := b.dispatch("9", "job", args{})
	assert.Equal(t, "Available Jobs", r.Title)
	assert.Contains(t, r.Description, "fisherman")
	assert.Contains(t, r.Description, "engineer")

	r = b.dispatch("9", "job", args{"job_name": "astronaut"})
	assert.Contains(t, r.Description, "that job does not exist")
}

func TestDispatchGamesAndHelp(t *testing.T) {
	b, _ := newTestBot(t)
	r := b.dispatch("5", economy.GameCoinFlip, args{})
	assert.Equal(t, "Coin Flip", r.Title)
	assert.Contains(t, r.Description, "landed on")

	r = b.dispatch("5", "bot_help", args{})
	assert.Equal(t, helpColor, r.Color)
	for _, cmd := range b.Commands() {
		assert.Contains(t, r.Description, "**"+cmd.Name+"**")
	}

	r = b.dispatch("5", "nope", args{})
	assert.Equal(t, "Unknown Command", r.Title)
}

func TestArgsFromOptions(t *testing.T) {
	in := argsFrom([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "quantity", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
		{Name: "item", Type: discordgo.ApplicationCommandOptionString, Value: " apple "},
		{Name: "target", Type: discordgo.ApplicationCommandOptionUser, Value: "1234"},
	})
	qty, ok := in.int("quantity")
	require.True(t, ok)
	assert.Equal(t, int64(3), qty)
	assert.Equal(t, "apple", in.str("item"))
	assert.Equal(t, "1234", in.str("target"))
	_, ok = in.int("missing")
	assert.False(t, ok)
}

type fakeRoles struct {
	mu    sync.Mutex
	calls [][3]string
	err   error
}

func (f *fakeRoles) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [3]string{guildID, userID, roleID})
	return f.err
}

func TestRoleGranterUsesRememberedGuild(t *testing.T) {
	api := &fakeRoles{}
	g := NewRoleGranter(api, "fallback", "role-1", slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, g.OnRichThresholdCrossed(context.Background(), "u1"))
	g.Remember("u2", "guild-2")
	require.NoError(t, g.OnRichThresholdCrossed(context.Background(), "u2"))

	assert.Equal(t, [][3]string{
		{"fallback", "u1", "role-1"},
		{"guild-2", "u2", "role-1"},
	}, api.calls)
}

func TestRoleGranterErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	noRole := NewRoleGranter(&fakeRoles{}, "g", "", logger)
	require.NoError(t, noRole.OnRichThresholdCrossed(context.Background(), "u"))

	noGuild := NewRoleGranter(&fakeRoles{}, "", "role", logger)
	require.Error(t, noGuild.OnRichThresholdCrossed(context.Background(), "u"))

	boom := errors.New("forbidden")
	failing := NewRoleGranter(&fakeRoles{err: boom}, "g", "role", logger)
	require.ErrorIs(t, failing.OnRichThresholdCrossed(context.Background(), "u"), boom)
}

func TestRichThresholdGrantsRole(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &fakeRoles{}
	roles := NewRoleGranter(api, "g", "rich", logger)
	engine, err := economy.NewEngine(economy.Options{Seed: 1, Logger: logger, Sink: roles})
	require.NoError(t, err)
	b := New(nil, engine, roles, "g", logger)

	b.dispatch("rich-user", "earn", args{"amount": int64(30_000)})
	engine.Achievements().Wait()

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.calls, 1)
	assert.Equal(t, "rich-user", api.calls[0][1])

	r := b.dispatch("rich-user", "achievements", args{})
	assert.Contains(t, r.Description, "The Richest")
}
