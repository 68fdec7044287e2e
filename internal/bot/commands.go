package bot

import (
	"strings"

	"coinbot/internal/economy"

	"github.com/bwmarrin/discordgo"
)

const (
	embedColor = 0x9B59B6
	helpColor  = 0x3498DB
)

func floatPtr(v float64) *float64 { return &v }

// Commands returns the slash commands the bot registers. Shop items and
// jobs are offered as choices so users pick from what exists.
func (b *Bot) Commands() []*discordgo.ApplicationCommand {
	minOne := floatPtr(1)

	itemChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0)
	for _, item := range b.engine.Shop() {
		itemChoices = append(itemChoices, &discordgo.ApplicationCommandOptionChoice{Name: item.Name, Value: item.Name})
	}
	jobChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0)
	for _, job := range b.engine.Jobs() {
		jobChoices = append(jobChoices, &discordgo.ApplicationCommandOptionChoice{Name: job.Name, Value: job.Name})
	}

	return []*discordgo.ApplicationCommand{
		{Name: "balance", Description: "Check your current balance."},
		{
			Name:        "earn",
			Description: "Earn a specified amount of coins.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Coins to earn", Required: true, MinValue: minOne},
			},
		},
		{
			Name:        "buy",
			Description: "Purchase items from the shop.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "item", Description: "Item to buy", Required: true, Choices: itemChoices},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "quantity", Description: "How many", Required: true, MinValue: minOne},
			},
		},
		{Name: "inventory", Description: "View your inventory."},
		{Name: "shop", Description: "List the items for sale."},
		{
			Name:        "trade",
			Description: "Offer items to another user.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "target", Description: "Who receives the items", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "item", Description: "Item to give", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "quantity", Description: "How many", Required: true, MinValue: minOne},
			},
		},
		{Name: "accept_trade", Description: "Accept a pending trade request."},
		{Name: "cancel_trade", Description: "Withdraw your outstanding trade offer."},
		{Name: "pending_trades", Description: "List trade offers waiting for you."},
		{Name: "daily", Description: "Claim your daily reward."},
		{Name: "leaderboard", Description: "View the top users by balance."},
		{
			Name:        "job",
			Description: "Choose a job and earn income.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "job_name", Description: "Job to work", Choices: jobChoices},
			},
		},
		{Name: "collect", Description: "Collect income from every job."},
		{
			Name:        "invest",
			Description: "Invest a certain amount of coins.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Coins to invest", Required: true, MinValue: minOne},
			},
		},
		{Name: "achievements", Description: "View your unlocked achievements."},
		{Name: "mini_game", Description: "Play a mini-game to earn coins."},
		{Name: "coin_flip", Description: "Play a game of coin flip to earn coins."},
		{Name: "blackjack", Description: "Play a game of blackjack to earn coins."},
		{Name: "bot_help", Description: "Show available commands and their descriptions."},
	}
}

func (b *Bot) helpText() string {
	var sb strings.Builder
	for i, cmd := range b.Commands() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("**" + cmd.Name + "**: " + cmd.Description)
	}
	return sb.String()
}

// args holds decoded slash command options by name.
type args map[string]any

func argsFrom(opts []*discordgo.ApplicationCommandInteractionDataOption) args {
	out := args{}
	for _, opt := range opts {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionInteger:
			out[opt.Name] = opt.IntValue()
		case discordgo.ApplicationCommandOptionNumber:
			out[opt.Name] = opt.FloatValue()
		case discordgo.ApplicationCommandOptionString:
			out[opt.Name] = opt.StringValue()
		case discordgo.ApplicationCommandOptionUser:
			out[opt.Name] = opt.UserValue(nil).ID
		case discordgo.ApplicationCommandOptionBoolean:
			out[opt.Name] = opt.BoolValue()
		}
	}
	return out
}

func (a args) int(name string) (int64, bool) {
	v, ok := a[name].(int64)
	return v, ok
}

func (a args) str(name string) string {
	v, _ := a[name].(string)
	return strings.TrimSpace(v)
}

// coins converts a whole-coin option to micros, refusing values that would
// overflow.
func coins(v int64) (int64, bool) {
	if v <= 0 || v > (1<<63-1)/economy.MicrosPerCoin {
		return 0, false
	}
	return v * economy.MicrosPerCoin, true
}
