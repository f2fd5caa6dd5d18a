package bot

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Intents are the gateway events every shard subscribes to.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// NewSession creates a Discord session with automatic rate limit handling.
// Sessions that are never opened serve REST calls only.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	s.ShouldRetryOnRateLimit = true
	s.MaxRestRetries = 3
	s.Identify.Intents = Intents
	return s, nil
}

// NewShardSession creates the gateway session of one shard.
func NewShardSession(token string, id, total int) (*discordgo.Session, error) {
	s, err := NewSession(token)
	if err != nil {
		return nil, err
	}
	s.ShardID = id
	s.ShardCount = total
	return s, nil
}

// CommandSyncer abstracts slash command publication for testing.
type CommandSyncer interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// SyncCommands replaces the published slash commands of the application,
// in one guild when guildID is set and globally otherwise. Passing no
// commands clears them.
func SyncCommands(s CommandSyncer, appID, guildID string, commands []*discordgo.ApplicationCommand) error {
	if appID == "" {
		return fmt.Errorf("DISCORD_APP_ID is required to sync commands")
	}
	if commands == nil {
		commands = []*discordgo.ApplicationCommand{}
	}
	created, err := s.ApplicationCommandBulkOverwrite(appID, guildID, commands)
	if err != nil {
		return fmt.Errorf("failed to overwrite commands: %w", err)
	}
	slog.Info("synced slash commands", "count", len(created), "guild_id", guildID)
	return nil
}
