package dispatch

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

type MemberHook func(ctx context.Context, m *discordgo.Member) error

type GuildHook func(ctx context.Context, g *discordgo.Guild) error

// Lifecycle lists the hooks run for member and guild events.
type Lifecycle struct {
	MemberAdd    []MemberHook
	MemberRemove []MemberHook
	GuildCreate  []GuildHook
	GuildDelete  []GuildHook
}

func (d *Dispatcher) HandleMemberAdd(ctx context.Context, m *discordgo.Member) {
	d.runMemberHooks(ctx, "member_add", m, d.lifecycle.MemberAdd)
}

func (d *Dispatcher) HandleMemberRemove(ctx context.Context, m *discordgo.Member) {
	d.runMemberHooks(ctx, "member_remove", m, d.lifecycle.MemberRemove)
}

func (d *Dispatcher) runMemberHooks(ctx context.Context, family string, m *discordgo.Member, hooks []MemberHook) {
	if m == nil || m.User == nil {
		return
	}
	actor := ActorFromUser(m.User)
	if d.isFiltered(actor) {
		return
	}
	ev := Event{ID: m.GuildID + ":" + m.User.ID, GuildID: m.GuildID, Actor: actor}
	for _, hook := range hooks {
		d.run(ctx, family, m.GuildID, ev, nil, func(ctx context.Context) error {
			return hook(ctx, m)
		})
	}
}

func (d *Dispatcher) HandleGuildCreate(ctx context.Context, g *discordgo.Guild) {
	d.runGuildHooks(ctx, "guild_create", g, d.lifecycle.GuildCreate)
}

// HandleGuildDelete ignores outages; only a guild the bot left or was
// removed from reaches the hooks.
func (d *Dispatcher) HandleGuildDelete(ctx context.Context, g *discordgo.Guild) {
	if g == nil || g.Unavailable {
		return
	}
	d.runGuildHooks(ctx, "guild_delete", g, d.lifecycle.GuildDelete)
}

func (d *Dispatcher) runGuildHooks(ctx context.Context, family string, g *discordgo.Guild, hooks []GuildHook) {
	if g == nil {
		return
	}
	ev := Event{ID: g.ID, GuildID: g.ID}
	for _, hook := range hooks {
		d.run(ctx, family, g.ID, ev, nil, func(ctx context.Context) error {
			return hook(ctx, g)
		})
	}
}
