package dispatch

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// HandleMessage routes a created message to a message command, the
// fallback, or the message hooks.
func (d *Dispatcher) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil {
		return
	}
	actor := ActorFromUser(m.Author)
	if d.isFiltered(actor) {
		return
	}
	ev := Event{ID: m.ID, GuildID: m.GuildID, ChannelID: m.ChannelID, Actor: actor}

	rest, ok := d.stripPrefix(ctx, m)
	if !ok {
		if m.GuildID != "" {
			d.runHooks(ctx, ev, m)
		}
		return
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return
	}

	if !d.commandLimit.Allow(actor.ID) {
		d.log.Debug("rate limited", "family", "message_command", "user_id", actor.ID)
		return
	}

	if m.GuildID != "" && d.dir != nil {
		ev.Permissions = d.dir.Permissions(actor.ID, m.ChannelID, m.Member)
	}
	name := strings.ToLower(fields[0])
	responder := &channelResponder{s: d.session, guildID: m.GuildID, channelID: m.ChannelID, messageID: m.ID}
	c := &CommandContext{
		Event:     ev,
		Responder: responder,
		Name:      name,
		Args:      fields[1:],
		Message:   m,
	}

	cmd, found := d.registry.Command(name)
	if !found {
		if d.fallback == nil {
			return
		}
		d.run(ctx, "message_command", name, ev, responder, d.withActor(ev, func(ctx context.Context) error {
			_, err := d.fallback(ctx, c)
			return err
		}))
		return
	}

	if res := d.check(cmd.Guards, ev); !res.Allowed() {
		_ = responder.Reply(ctx, Response{Content: res.Message()})
		return
	}
	d.run(ctx, "message_command", cmd.Name, ev, responder, d.withActor(ev, func(ctx context.Context) error {
		return cmd.Run(ctx, c)
	}))
}

// stripPrefix removes the invocation prefix from m. A mention of the bot
// wins over the guild's custom prefix, which replaces the default prefix.
func (d *Dispatcher) stripPrefix(ctx context.Context, m *discordgo.Message) (string, bool) {
	content := strings.TrimSpace(m.Content)
	if d.dir != nil {
		if self := d.dir.SelfID(); self != "" {
			for _, mention := range []string{"<@" + self + ">", "<@!" + self + ">"} {
				if rest, ok := strings.CutPrefix(content, mention); ok {
					return strings.TrimSpace(rest), true
				}
			}
		}
	}

	prefix := d.prefix
	if m.GuildID != "" && d.prefixes != nil {
		custom, err := d.prefixes.Prefix(ctx, m.GuildID)
		if err != nil {
			d.log.Warn("failed to resolve guild prefix", "guild_id", m.GuildID, "error", err)
		} else if custom != "" {
			prefix = custom
		}
	}
	if prefix == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(content, prefix)
	if !ok {
		return "", false
	}
	return rest, true
}

func (d *Dispatcher) runHooks(ctx context.Context, ev Event, m *discordgo.Message) {
	for _, hook := range d.messageHooks {
		d.run(ctx, "message_hook", "message", ev, nil, func(ctx context.Context) error {
			return hook(ctx, ev, m)
		})
	}
}
