package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"bento/internal/dispatch"
	"bento/internal/permission"
	"bento/internal/store"
)

const maxScheduleAhead = 365 * 24 * time.Hour

func durationOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: desc, Required: true,
	}
}

// scheduleAfter parses a duration argument into an absolute time, replying
// with a notice and returning false when it is unusable.
func (s *Set) scheduleAfter(ctx context.Context, r dispatch.Responder, arg string) (time.Time, bool, error) {
	d, err := parseDuration(arg)
	if err != nil {
		return time.Time{}, false, r.Reply(ctx, dispatch.Response{Content: "Durations look like `10m`, `2h` or `1d12h`.", Ephemeral: true})
	}
	if d > maxScheduleAhead {
		return time.Time{}, false, r.Reply(ctx, dispatch.Response{Content: "That is too far ahead; the limit is one year.", Ephemeral: true})
	}
	return s.deps.Now().Add(d), true, nil
}

func (s *Set) remind() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "remind",
			Aliases:     []string{"remindme", "reminder"},
			Description: "Get a reminder after a while",
			Usage:       "remind <duration> <message>",
			Category:    "utility",
			Defer:       dispatch.DeferHiddenReply,
			Options: []*discordgo.ApplicationCommandOption{
				durationOption("When to remind you, e.g. 10m or 1d"),
				{Type: discordgo.ApplicationCommandOptionString, Name: "message", Description: "What to remind you of", Required: true},
			},
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			if len(c.Args) < 2 {
				return c.Reply(ctx, usage("remind", "<duration> <message>"))
			}
			due, ok, err := s.scheduleAfter(ctx, c, c.Args[0])
			if !ok {
				return err
			}
			_, err = s.deps.Store.AddReminder(ctx, store.Reminder{
				UserID:    c.Actor.ID,
				ChannelID: c.ChannelID,
				Content:   strings.Join(c.Args[1:], " "),
				DueAt:     due,
			})
			if err != nil {
				return err
			}
			return c.Reply(ctx, dispatch.Response{
				Content:   fmt.Sprintf("I'll remind you <t:%d:R>.", due.Unix()),
				Ephemeral: true,
			})
		},
	}
}

func (s *Set) mute() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "mute",
			Description: "Give a member the mute role for a while",
			Usage:       "mute <@user> <duration>",
			Category:    "moderation",
			Guards:      permission.Guards{RequireGuild: true, Permissions: permission.ManageRoles},
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to mute", Required: true},
				durationOption("How long, e.g. 30m"),
			},
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			if len(c.Args) < 2 {
				return c.Reply(ctx, usage("mute", "<@user> <duration>"))
			}
			userID, ok := parseUserID(c.Args[0])
			if !ok {
				return c.Reply(ctx, usage("mute", "<@user> <duration>"))
			}
			g, err := s.guild(ctx, c.GuildID)
			if err != nil {
				return err
			}
			if g.MuteRoleID == "" {
				return c.Reply(ctx, dispatch.Response{Content: "No mute role is set. Set one with `muterole`.", Ephemeral: true})
			}
			until, ok, err := s.scheduleAfter(ctx, c, c.Args[1])
			if !ok {
				return err
			}
			if err := s.deps.Session.GuildMemberRoleAdd(c.GuildID, userID, g.MuteRoleID); err != nil {
				return fmt.Errorf("add mute role: %w", err)
			}
			if err := s.deps.Store.AddMute(ctx, store.Mute{GuildID: c.GuildID, UserID: userID, ExpiresAt: until}); err != nil {
				return err
			}
			return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("Muted %s until <t:%d:f>.", mention(userID), until.Unix())})
		},
	}
}

func (s *Set) announce() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "announce",
			Description: "Schedule an announcement in a channel",
			Usage:       "announce <#channel> <duration> <message>",
			Category:    "settings",
			Guards:      permission.Guards{RequireGuild: true, Permissions: permission.ManageGuild},
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Where to post", Required: true},
				durationOption("When to post, e.g. 2h"),
				{Type: discordgo.ApplicationCommandOptionString, Name: "message", Description: "Announcement text", Required: true},
			},
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			if len(c.Args) < 3 {
				return c.Reply(ctx, usage("announce", "<#channel> <duration> <message>"))
			}
			channelID, ok := parseChannelID(c.Args[0])
			if !ok {
				return c.Reply(ctx, usage("announce", "<#channel> <duration> <message>"))
			}
			due, ok, err := s.scheduleAfter(ctx, c, c.Args[1])
			if !ok {
				return err
			}
			id, err := s.deps.Store.AddAnnouncement(ctx, store.Announcement{
				GuildID:   c.GuildID,
				ChannelID: channelID,
				Content:   strings.Join(c.Args[2:], " "),
				DueAt:     due,
			})
			if err != nil {
				return err
			}
			return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("Announcement #%d will post in <#%s> <t:%d:R>.", id, channelID, due.Unix())})
		},
	}
}
