package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"bento/internal/dispatch"
)

const helpMenuID = "help_category"

func (s *Set) ping() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "ping",
			Description: "Check that the bot is responsive",
			Category:    "general",
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			content := "🏓 Pong!"
			if sent, err := discordgo.SnowflakeTimestamp(c.ID); err == nil {
				content = fmt.Sprintf("🏓 Pong! `%dms`", s.deps.Now().Sub(sent).Milliseconds())
			}
			return c.Reply(ctx, dispatch.Response{Content: content})
		},
	}
}

func (s *Set) help() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "help",
			Aliases:     []string{"commands", "h"},
			Description: "List commands or show how to use one",
			Usage:       "help [command]",
			Category:    "general",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "command",
				Description: "Command to describe",
			}},
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			if len(c.Args) > 0 {
				return s.describeCommand(ctx, c, c.Args[0])
			}
			categories := s.categories()
			embed := authoredEmbed(c.Event, "Commands")
			embed.Description = "Pick a category below, or use `help <command>` for details."
			for _, cat := range categories {
				embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
					Name:  cat,
					Value: "`" + strings.Join(s.commandNames(cat), "`, `") + "`",
				})
			}
			return c.Reply(ctx, dispatch.Response{
				Embeds:     []*discordgo.MessageEmbed{embed},
				Components: []discordgo.MessageComponent{s.categoryMenu(categories), deleteRow("help")},
			})
		},
	}
}

func (s *Set) describeCommand(ctx context.Context, c *dispatch.CommandContext, name string) error {
	cmd, ok := s.reg.Command(name)
	if !ok {
		return c.Reply(ctx, dispatch.Response{Content: fmt.Sprintf("No command named `%s`.", name), Ephemeral: true})
	}
	embed := authoredEmbed(c.Event, cmd.Name)
	embed.Description = cmd.Description
	if cmd.Usage != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Usage", Value: "`" + cmd.Usage + "`"})
	}
	if len(cmd.Aliases) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Aliases", Value: strings.Join(cmd.Aliases, ", ")})
	}
	return c.Reply(ctx, dispatch.Response{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{deleteRow("help")},
	})
}

func (s *Set) helpCategoryMenu() dispatch.Component {
	return dispatch.Component{
		ComponentSpec: dispatch.ComponentSpec{
			IDs:                   []string{helpMenuID},
			RequireEmbedAuthorTag: true,
		},
		Run: func(ctx context.Context, c *dispatch.ComponentContext) error {
			if len(c.Values) == 0 {
				return nil
			}
			cat := c.Values[0]
			embed := authoredEmbed(c.Event, "Commands: "+cat)
			var lines []string
			for _, spec := range s.reg.Commands() {
				if spec.Category == cat && !spec.Guards.RequireDev {
					lines = append(lines, fmt.Sprintf("`%s` %s", spec.Name, spec.Description))
				}
			}
			embed.Description = strings.Join(lines, "\n")
			return c.Update(ctx, dispatch.Response{
				Embeds:     []*discordgo.MessageEmbed{embed},
				Components: []discordgo.MessageComponent{s.categoryMenu(s.categories()), deleteRow("help")},
			})
		},
	}
}

func (s *Set) categoryMenu(categories []string) discordgo.ActionsRow {
	options := make([]discordgo.SelectMenuOption, 0, len(categories))
	for _, cat := range categories {
		options = append(options, discordgo.SelectMenuOption{Label: cat, Value: cat})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{CustomID: helpMenuID, Placeholder: "Choose a category", Options: options},
	}}
}

// categories lists the categories of commands visible to everyone.
func (s *Set) categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, spec := range s.reg.Commands() {
		if spec.Guards.RequireDev || spec.Category == "" || seen[spec.Category] {
			continue
		}
		seen[spec.Category] = true
		out = append(out, spec.Category)
	}
	sort.Strings(out)
	return out
}

func (s *Set) commandNames(category string) []string {
	var out []string
	for _, spec := range s.reg.Commands() {
		if spec.Category == category && !spec.Guards.RequireDev {
			out = append(out, spec.Name)
		}
	}
	return out
}
