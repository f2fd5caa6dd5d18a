package dispatch

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"bento/internal/permission"
)

// HandleInteraction routes slash commands, buttons and select menus.
func (d *Dispatcher) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	if i == nil {
		return
	}
	ev := interactionEvent(i)
	if d.isFiltered(ev.Actor) {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		d.handleSlashCommand(ctx, i, ev)
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		if data.ComponentType == discordgo.ButtonComponent {
			d.handleComponent(ctx, i, ev, "button", d.buttonLimit, d.registry.Button)
		} else {
			d.handleComponent(ctx, i, ev, "select_menu", d.selectMenuLimit, d.registry.SelectMenu)
		}
	}
}

func interactionEvent(i *discordgo.Interaction) Event {
	ev := Event{ID: i.ID, GuildID: i.GuildID, ChannelID: i.ChannelID}
	switch {
	case i.Member != nil:
		ev.Actor = ActorFromUser(i.Member.User)
		ev.Permissions = permission.Set(i.Member.Permissions)
	case i.User != nil:
		ev.Actor = ActorFromUser(i.User)
	}
	return ev
}

func (d *Dispatcher) handleSlashCommand(ctx context.Context, i *discordgo.Interaction, ev Event) {
	if !d.commandLimit.Allow(ev.Actor.ID) {
		d.log.Debug("rate limited", "family", "command", "user_id", ev.Actor.ID)
		return
	}
	data := i.ApplicationCommandData()
	cmd, found := d.registry.Command(data.Name)
	if !found {
		return
	}

	responder := newInteractionResponder(d.session, i)
	if res := d.check(cmd.Guards, ev); !res.Allowed() {
		_ = responder.Reply(ctx, Response{Content: res.Message(), Ephemeral: true})
		return
	}

	c := &CommandContext{
		Event:       ev,
		Responder:   responder,
		Name:        data.Name,
		Args:        flattenOptions(data.Options),
		Interaction: i,
	}
	d.deferAndRun(ctx, "command", cmd.Name, ev, responder, cmd.Defer, func(ctx context.Context) error {
		return cmd.Run(ctx, c)
	})
}

func (d *Dispatcher) handleComponent(
	ctx context.Context,
	i *discordgo.Interaction,
	ev Event,
	family string,
	limiter interface{ Allow(string) bool },
	lookup func(string) (*Component, bool),
) {
	if !limiter.Allow(ev.Actor.ID) {
		d.log.Debug("rate limited", "family", family, "user_id", ev.Actor.ID)
		return
	}
	data := i.MessageComponentData()
	comp, found := lookup(data.CustomID)
	if !found {
		return
	}

	responder := newInteractionResponder(d.session, i)
	if res := d.check(comp.Guards, ev); !res.Allowed() {
		if res.Reason == permission.ReasonMissingPermissions {
			_ = responder.Reply(ctx, Response{Content: res.Message(), Ephemeral: true})
		}
		return
	}
	if comp.RequireEmbedAuthorTag && !embedAuthorIs(i.Message, ev.Actor.Tag) {
		return
	}

	c := &ComponentContext{
		Event:       ev,
		Responder:   responder,
		CustomID:    data.CustomID,
		Values:      data.Values,
		Interaction: i,
		Message:     i.Message,
	}
	d.deferAndRun(ctx, family, data.CustomID, ev, responder, comp.Defer, func(ctx context.Context) error {
		return comp.Run(ctx, c)
	})
}

// deferAndRun acknowledges the interaction before running action. A failed
// acknowledgement abandons the event: the interaction token is unusable.
func (d *Dispatcher) deferAndRun(ctx context.Context, family, key string, ev Event, r *interactionResponder, mode DeferType, action func(context.Context) error) {
	if err := r.Defer(mode); err != nil {
		if !IsIgnorable(err) {
			d.log.Warn("failed to defer interaction", "family", family, "key", key, "event_id", ev.ID, "defer", mode.String(), "error", err)
		}
		return
	}
	d.run(ctx, family, key, ev, r, d.withActor(ev, action))
}

// embedAuthorIs reports whether the first embed of m names tag as its author.
func embedAuthorIs(m *discordgo.Message, tag string) bool {
	if m == nil || len(m.Embeds) == 0 || m.Embeds[0].Author == nil {
		return false
	}
	return m.Embeds[0].Author.Name == tag
}

// flattenOptions lists subcommand names and option values depth first, in
// declaration order, so slash and message invocations share one argument shape.
func flattenOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) []string {
	var args []string
	for _, opt := range opts {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionSubCommand, discordgo.ApplicationCommandOptionSubCommandGroup:
			args = append(args, opt.Name)
			args = append(args, flattenOptions(opt.Options)...)
		default:
			args = append(args, fmt.Sprint(opt.Value))
		}
	}
	return args
}
