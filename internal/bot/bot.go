// Package bot connects discordgo gateway sessions to the dispatcher.
package bot

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Handler receives the gateway events the bot reacts to.
type Handler interface {
	HandleMessage(ctx context.Context, m *discordgo.Message)
	HandleInteraction(ctx context.Context, i *discordgo.Interaction)
	HandleReaction(ctx context.Context, r *discordgo.MessageReaction, member *discordgo.Member)
	HandleMemberAdd(ctx context.Context, m *discordgo.Member)
	HandleMemberRemove(ctx context.Context, m *discordgo.Member)
	HandleGuildCreate(ctx context.Context, g *discordgo.Guild)
	HandleGuildDelete(ctx context.Context, g *discordgo.Guild)
}

// ReadyReporter is told when a shard received its ready event.
type ReadyReporter interface {
	MarkReady(ctx context.Context, shardID int)
}

type Bot struct {
	handler Handler
	ready   ReadyReporter
	dir     *Directory

	// ctx lives until Shutdown and bounds every dispatched event.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(handler Handler, ready ReadyReporter, dir *Directory) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{handler: handler, ready: ready, dir: dir, ctx: ctx, cancel: cancel}
}

// Attach registers the bot's handlers on a shard session and tracks its
// state in the directory.
func (b *Bot) Attach(s *discordgo.Session) {
	s.AddHandler(b.OnReady)
	s.AddHandler(b.OnMessageCreate)
	s.AddHandler(b.OnInteractionCreate)
	s.AddHandler(b.OnReactionAdd)
	s.AddHandler(b.OnGuildMemberAdd)
	s.AddHandler(b.OnGuildMemberRemove)
	s.AddHandler(b.OnGuildCreate)
	s.AddHandler(b.OnGuildDelete)
	if b.dir != nil {
		b.dir.Track(s.State)
	}
}

func (b *Bot) Shutdown() {
	b.cancel()
}

func (b *Bot) OnReady(s *discordgo.Session, event *discordgo.Ready) {
	slog.Info("logged in",
		"username", event.User.Username,
		"shard_id", s.ShardID,
		"guilds", len(event.Guilds))

	if b.ready != nil {
		b.ready.MarkReady(b.ctx, s.ShardID)
	}
}

func (b *Bot) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.handler.HandleMessage(b.ctx, m.Message)
}

func (b *Bot) OnInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.handler.HandleInteraction(b.ctx, i.Interaction)
}

func (b *Bot) OnReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	b.handler.HandleReaction(b.ctx, r.MessageReaction, r.Member)
}

func (b *Bot) OnGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	b.handler.HandleMemberAdd(b.ctx, m.Member)
}

func (b *Bot) OnGuildMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	b.handler.HandleMemberRemove(b.ctx, m.Member)
}

func (b *Bot) OnGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.handler.HandleGuildCreate(b.ctx, g.Guild)
}

func (b *Bot) OnGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	b.handler.HandleGuildDelete(b.ctx, g.Guild)
}
