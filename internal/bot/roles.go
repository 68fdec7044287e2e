package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// roleAdder is the part of *discordgo.Session the granter needs.
type roleAdder interface {
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// RoleGranter gives the rich role to users who cross the rich threshold. It
// adds the role in the guild the user last used a command in, falling back
// to the configured guild.
type RoleGranter struct {
	api           roleAdder
	roleID        string
	fallbackGuild string
	guilds        sync.Map
	log           *slog.Logger
}

func NewRoleGranter(api roleAdder, guildID, roleID string, logger *slog.Logger) *RoleGranter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleGranter{
		api:           api,
		roleID:        roleID,
		fallbackGuild: guildID,
		log:           logger.With("component", "roles"),
	}
}

func (g *RoleGranter) Remember(userID, guildID string) {
	g.guilds.Store(userID, guildID)
}

func (g *RoleGranter) OnRichThresholdCrossed(ctx context.Context, userID string) error {
	if g.roleID == "" {
		g.log.Debug("no rich role configured", "user_id", userID)
		return nil
	}
	guildID := g.fallbackGuild
	if v, ok := g.guilds.Load(userID); ok {
		guildID = v.(string)
	}
	if guildID == "" {
		return fmt.Errorf("no guild known for user %s", userID)
	}
	if err := g.api.GuildMemberRoleAdd(guildID, userID, g.roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add role %s to %s in %s: %w", g.roleID, userID, guildID, err)
	}
	g.log.Info("rich role granted", "user_id", userID, "guild_id", guildID, "role_id", g.roleID)
	return nil
}
