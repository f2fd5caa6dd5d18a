package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"

	"bento/internal/dispatch"
	"bento/internal/store"
)

// guild returns the settings of a guild, defaults when it has none yet.
func (s *Set) guild(ctx context.Context, guildID string) (store.Guild, error) {
	g, err := s.deps.Store.Guild(ctx, guildID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Guild{ID: guildID}, nil
	}
	return g, err
}

func (s *Set) onGuildCreate(ctx context.Context, g *discordgo.Guild) error {
	return s.deps.Store.EnsureGuild(ctx, g.ID)
}

func (s *Set) onGuildDelete(ctx context.Context, g *discordgo.Guild) error {
	if s.deps.Prefixes != nil {
		s.deps.Prefixes.Invalidate(g.ID)
	}
	s.log.Info("left guild", "guild_id", g.ID)
	return s.deps.Store.DeleteGuild(ctx, g.ID)
}

func (s *Set) onMemberAdd(ctx context.Context, m *discordgo.Member) error {
	g, err := s.guild(ctx, m.GuildID)
	if err != nil {
		return err
	}
	if g.WelcomeChannelID == "" || g.WelcomeMessage == "" {
		return nil
	}
	serverName := ""
	if s.deps.Directory != nil {
		serverName = s.deps.Directory.GuildName(m.GuildID)
	}
	msg := strings.NewReplacer("{user}", mention(m.User.ID), "{server}", serverName).Replace(g.WelcomeMessage)
	_, err = s.deps.Session.ChannelMessageSend(g.WelcomeChannelID, msg)
	return dispatch.Ignore(err)
}

// onMemberRemove forgets a departed member's mute; the role went with them.
func (s *Set) onMemberRemove(ctx context.Context, m *discordgo.Member) error {
	return s.deps.Store.DeleteMute(ctx, m.GuildID, m.User.ID)
}
