// Package bot exposes the economy as Discord slash commands.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	"coinbot/internal/economy"

	"github.com/bwmarrin/discordgo"
)

type Bot struct {
	session *discordgo.Session
	engine  *economy.Engine
	roles   *RoleGranter
	guildID string
	log     *slog.Logger
}

// New wires a bot to an open-able session. guildID scopes command
// registration; empty registers them globally.
func New(session *discordgo.Session, engine *economy.Engine, roles *RoleGranter, guildID string, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		session: session,
		engine:  engine,
		roles:   roles,
		guildID: guildID,
		log:     logger.With("component", "bot"),
	}
}

// Run connects to the gateway, registers commands and serves interactions
// until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	remove := b.session.AddHandler(b.onInteraction)
	defer remove()

	b.session.Identify.Intents = discordgo.IntentsGuilds
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer b.session.Close()

	appID := b.session.State.User.ID
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, b.Commands(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	b.log.Info("discord bot ready", "user", b.session.State.User.Username, "commands", len(registered), "guild_id", b.guildID)

	<-ctx.Done()
	b.log.Info("discord bot stopping")
	return nil
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	user := interactionUser(i)
	if user == nil {
		return
	}
	if i.GuildID != "" && b.roles != nil {
		b.roles.Remember(user.ID, i.GuildID)
	}
	data := i.ApplicationCommandData()
	r := b.dispatch(user.ID, data.Name, argsFrom(data.Options))

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       r.Title,
				Description: r.Description,
				Color:       r.Color,
			}},
		},
	})
	if err != nil {
		b.log.Error("interaction respond failed", "command", data.Name, "user_id", user.ID, "err", err)
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
