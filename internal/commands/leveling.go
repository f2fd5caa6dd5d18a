package commands

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/bwmarrin/discordgo"

	"bento/internal/dispatch"
	"bento/internal/permission"
)

const (
	minMessageXP = 15
	maxMessageXP = 25
)

func rollXP() int {
	return minMessageXP + rand.IntN(maxMessageXP-minMessageXP+1)
}

// xpForLevel is the total experience at which level is reached.
func xpForLevel(level int) int {
	return 100 * level * level
}

// AwardXP is a message hook granting experience for chatting, at most once
// per cooldown per member and guild.
func (s *Set) AwardXP(ctx context.Context, ev dispatch.Event, m *discordgo.Message) error {
	key := ev.GuildID + ":" + ev.Actor.ID
	if !s.xpCooldown.Begin(key) {
		return nil
	}
	level, up, err := s.deps.Store.AddXP(ctx, ev.GuildID, ev.Actor.ID, s.roll())
	if err != nil {
		// The award was not written, so the next message may try again.
		s.xpCooldown.Release(key)
		return err
	}
	if !up {
		return nil
	}
	_, err = s.deps.Session.ChannelMessageSend(m.ChannelID,
		fmt.Sprintf("🎉 %s reached level **%d**!", mention(ev.Actor.ID), level.Level))
	return dispatch.Ignore(err)
}

func (s *Set) rank() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "rank",
			Aliases:     []string{"level", "xp"},
			Description: "Show a member's level",
			Usage:       "rank [@user]",
			Category:    "leveling",
			Guards:      permission.Guards{RequireGuild: true},
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to look up",
			}},
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			userID := c.Actor.ID
			if len(c.Args) > 0 {
				id, ok := parseUserID(c.Args[0])
				if !ok {
					return c.Reply(ctx, usage("rank", "[@user]"))
				}
				userID = id
			}
			lvl, err := s.deps.Store.Level(ctx, c.GuildID, userID)
			if err != nil {
				return err
			}
			embed := authoredEmbed(c.Event, "Rank")
			embed.Description = mention(userID)
			embed.Fields = []*discordgo.MessageEmbedField{
				{Name: "Level", Value: fmt.Sprint(lvl.Level), Inline: true},
				{Name: "XP", Value: fmt.Sprintf("%d / %d", lvl.XP, xpForLevel(lvl.Level+1)), Inline: true},
			}
			return c.Reply(ctx, dispatch.Response{
				Embeds:     []*discordgo.MessageEmbed{embed},
				Components: []discordgo.MessageComponent{deleteRow("rank")},
			})
		},
	}
}
