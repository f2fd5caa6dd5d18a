package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"bento/internal/dispatch"
	"bento/internal/permission"
	"bento/internal/store"
)

const maxTagName = 32

func (s *Set) tag() dispatch.Command {
	nameOpt := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: desc, Required: true,
		}
	}
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "tag",
			Aliases:     []string{"t"},
			Description: "Show, create or inspect server tags",
			Usage:       "tag <name> | tag create <name> <content> | tag info <name>",
			Category:    "tags",
			Guards:      permission.Guards{RequireGuild: true},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show a tag",
					Options: []*discordgo.ApplicationCommandOption{nameOpt("Tag to show")},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "create", Description: "Create or replace a tag",
					Options: []*discordgo.ApplicationCommandOption{
						nameOpt("Tag name"),
						{Type: discordgo.ApplicationCommandOptionString, Name: "content", Description: "Tag content", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "info", Description: "Show who made a tag",
					Options: []*discordgo.ApplicationCommandOption{nameOpt("Tag to inspect")},
				},
			},
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			if len(c.Args) == 0 {
				return c.Reply(ctx, usage("tag", "<name>"))
			}
			switch strings.ToLower(c.Args[0]) {
			case "create":
				return s.createTag(ctx, c, c.Args[1:])
			case "info":
				if len(c.Args) < 2 {
					return c.Reply(ctx, usage("tag info", "<name>"))
				}
				return s.tagInfo(ctx, c, c.Args[1])
			case "show":
				if len(c.Args) < 2 {
					return c.Reply(ctx, usage("tag", "<name>"))
				}
				return s.showTag(ctx, c, c.Args[1])
			}
			return s.showTag(ctx, c, c.Args[0])
		},
	}
}

func (s *Set) showTag(ctx context.Context, c *dispatch.CommandContext, name string) error {
	found, err := s.sendTag(ctx, c, name)
	if err != nil || found {
		return err
	}
	return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("No tag named `%s`.", name), Ephemeral: true})
}

func (s *Set) sendTag(ctx context.Context, c *dispatch.CommandContext, name string) (bool, error) {
	t, err := s.deps.Store.Tag(ctx, c.GuildID, name)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := c.Reply(ctx, dispatch.Response{Content: t.Content}); err != nil {
		return true, err
	}
	return true, s.deps.Store.IncrementTagUses(ctx, c.GuildID, t.Name)
}

func (s *Set) createTag(ctx context.Context, c *dispatch.CommandContext, args []string) error {
	if len(args) < 2 {
		return c.Reply(ctx, usage("tag create", "<name> <content>"))
	}
	name := strings.ToLower(args[0])
	if len(name) > maxTagName {
		return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("Tag names can be at most %d characters.", maxTagName), Ephemeral: true})
	}
	if _, taken := s.reg.Command(name); taken {
		return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("`%s` is already a command.", name), Ephemeral: true})
	}
	existing, err := s.deps.Store.Tag(ctx, c.GuildID, name)
	switch {
	case err == nil && existing.AuthorID != c.Actor.ID && !c.Permissions.Has(permission.ManageMessages):
		return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("Tag `%s` belongs to someone else.", name), Ephemeral: true})
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}

	err = s.deps.Store.CreateTag(ctx, store.Tag{
		GuildID:  c.GuildID,
		Name:     name,
		Content:  strings.Join(args[1:], " "),
		AuthorID: c.Actor.ID,
	})
	if err != nil {
		return err
	}
	return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("Saved tag `%s`.", name)})
}

func (s *Set) tagInfo(ctx context.Context, c *dispatch.CommandContext, name string) error {
	t, err := s.deps.Store.Tag(ctx, c.GuildID, name)
	if errors.Is(err, store.ErrNotFound) {
		return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("No tag named `%s`.", name), Ephemeral: true})
	}
	if err != nil {
		return err
	}
	embed := authoredEmbed(c.Event, "Tag: "+t.Name)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Owner", Value: mention(t.AuthorID), Inline: true},
		{Name: "Uses", Value: fmt.Sprint(t.Uses), Inline: true},
	}
	return c.Reply(ctx, dispatch.Response{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{deleteRow("tag")},
	})
}

// TagFallback answers an unknown message command with the guild tag of the
// same name, if there is one.
func (s *Set) TagFallback(ctx context.Context, c *dispatch.CommandContext) (bool, error) {
	if c.GuildID == "" {
		return false, nil
	}
	return s.sendTag(ctx, c, c.Name)
}
