package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"bento/internal/dispatch"
	"bento/internal/permission"
)

const maxPrefixLen = 5

func (s *Set) prefix() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "prefix",
			Description: "Show or change the message command prefix",
			Usage:       "prefix [new prefix | reset]",
			Category:    "settings",
			Guards:      permission.Guards{RequireGuild: true, Permissions: permission.ManageGuild},
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "prefix",
				Description: "New prefix, or reset",
			}},
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			if len(c.Args) == 0 {
				g, err := s.guild(ctx, c.GuildID)
				if err != nil {
					return err
				}
				current := g.Prefix
				if current == "" {
					current = s.deps.Prefix
				}
				return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("The prefix here is `%s`.", current)})
			}

			next := c.Args[0]
			if strings.EqualFold(next, "reset") {
				next = ""
			}
			if len(next) > maxPrefixLen {
				return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("Prefixes can be at most %d characters.", maxPrefixLen), Ephemeral: true})
			}
			if err := s.deps.Store.SetPrefix(ctx, c.GuildID, next); err != nil {
				return err
			}
			if s.deps.Prefixes != nil {
				s.deps.Prefixes.Invalidate(c.GuildID)
			}
			if next == "" {
				return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("Prefix reset to `%s`.", s.deps.Prefix)})
			}
			return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("Prefix set to `%s`.", next)})
		},
	}
}

func (s *Set) welcome() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "welcome",
			Description: "Greet new members in a channel",
			Usage:       "welcome <#channel> <message> | welcome off",
			Category:    "settings",
			Guards:      permission.Guards{RequireGuild: true, Permissions: permission.ManageGuild},
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Channel to greet in", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "message", Description: "Greeting; {user} and {server} are replaced", Required: true},
			},
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			if len(c.Args) == 1 && strings.EqualFold(c.Args[0], "off") {
				if err := s.deps.Store.SetWelcome(ctx, c.GuildID, "", ""); err != nil {
					return err
				}
				return c.Reply(ctx, dispatch.Response{Content: "Welcome messages are off."})
			}
			if len(c.Args) < 2 {
				return c.Reply(ctx, usage("welcome", "<#channel> <message>"))
			}
			channelID, ok := parseChannelID(c.Args[0])
			if !ok {
				return c.Reply(ctx, usage("welcome", "<#channel> <message>"))
			}
			msg := strings.Join(c.Args[1:], " ")
			if err := s.deps.Store.SetWelcome(ctx, c.GuildID, channelID, msg); err != nil {
				return err
			}
			return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("New members will be greeted in <#%s>.", channelID)})
		},
	}
}

func (s *Set) muteRole() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "muterole",
			Description: "Set the role given to muted members",
			Usage:       "muterole <@role>",
			Category:    "moderation",
			Guards:      permission.Guards{RequireGuild: true, Permissions: permission.ManageRoles},
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Mute role", Required: true},
			},
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			if len(c.Args) == 0 {
				return c.Reply(ctx, usage("muterole", "<@role>"))
			}
			roleID, ok := parseRoleID(c.Args[0])
			if !ok {
				return c.Reply(ctx, usage("muterole", "<@role>"))
			}
			if err := s.deps.Store.SetMuteRole(ctx, c.GuildID, roleID); err != nil {
				return err
			}
			return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("Muted members will get <@&%s>.", roleID)})
		},
	}
}
