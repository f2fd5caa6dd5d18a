// Package dispatch routes gateway events to registered commands, buttons,
// reactions and select menus.
//
// Every inbound event runs the same pipeline, stopping at the first step
// that rejects it: self and bot filter, per-actor rate limit, registry
// lookup, guards, embed author check (components only), deferral, and
// finally the action. Action failures are logged and reported to the actor;
// they never propagate to the caller.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bento/internal/permission"
	"bento/internal/ratelimit"
)

// Limit is a rate-limit budget: Amount actions per Interval.
type Limit struct {
	Amount   int
	Interval time.Duration
}

type Limits struct {
	Commands    Limit
	Buttons     Limit
	Reactions   Limit
	SelectMenus Limit
}

// ActorStore lazily creates the persisted record of an actor.
type ActorStore interface {
	EnsureUser(ctx context.Context, userID, tag string) error
}

// PrefixStore returns the custom command prefix of a guild, "" if unset.
type PrefixStore interface {
	Prefix(ctx context.Context, guildID string) (string, error)
}

// Fallback handles a message command name no registered command claims. It
// reports whether it handled the invocation.
type Fallback func(ctx context.Context, c *CommandContext) (bool, error)

// MessageHook runs for guild messages that are not commands.
type MessageHook func(ctx context.Context, ev Event, m *discordgo.Message) error

type Options struct {
	Registry   *Registry
	Checker    *permission.Checker
	Session    Session
	Directory  Directory
	Limits     Limits
	Prefix     string
	SupportURL string

	Actors       ActorStore
	Prefixes     PrefixStore
	Fallback     Fallback
	MessageHooks []MessageHook
	Lifecycle    Lifecycle

	Logger *slog.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

type Dispatcher struct {
	registry   *Registry
	checker    *permission.Checker
	session    Session
	dir        Directory
	prefix     string
	supportURL string

	commandLimit    *ratelimit.Limiter
	buttonLimit     *ratelimit.Limiter
	reactionLimit   *ratelimit.Limiter
	selectMenuLimit *ratelimit.Limiter

	actors       ActorStore
	prefixes     PrefixStore
	fallback     Fallback
	messageHooks []MessageHook
	lifecycle    Lifecycle

	log    *slog.Logger
	tracer trace.Tracer
}

func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	checker := opts.Checker
	if checker == nil {
		checker = permission.NewChecker(nil)
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Dispatcher{
		registry:   registry,
		checker:    checker,
		session:    opts.Session,
		dir:        opts.Directory,
		prefix:     opts.Prefix,
		supportURL: opts.SupportURL,

		commandLimit:    ratelimit.New(opts.Limits.Commands.Amount, opts.Limits.Commands.Interval),
		buttonLimit:     ratelimit.New(opts.Limits.Buttons.Amount, opts.Limits.Buttons.Interval),
		reactionLimit:   ratelimit.New(opts.Limits.Reactions.Amount, opts.Limits.Reactions.Interval),
		selectMenuLimit: ratelimit.New(opts.Limits.SelectMenus.Amount, opts.Limits.SelectMenus.Interval),

		actors:       opts.Actors,
		prefixes:     opts.Prefixes,
		fallback:     opts.Fallback,
		messageHooks: opts.MessageHooks,
		lifecycle:    opts.Lifecycle,

		log:    logger,
		tracer: tp.Tracer("bento/dispatch"),
	}
}

// isFiltered reports whether the actor is the bot itself or another bot.
func (d *Dispatcher) isFiltered(a Actor) bool {
	if a.ID == "" || a.Bot {
		return true
	}
	return d.dir != nil && a.ID == d.dir.SelfID()
}

func (d *Dispatcher) check(g permission.Guards, ev Event) permission.Result {
	subj := permission.Subject{
		UserID:      ev.Actor.ID,
		GuildID:     ev.GuildID,
		Permissions: ev.Permissions,
	}
	if g.Permissions != 0 && ev.GuildID != "" && d.dir != nil {
		subj.OwnerID = d.dir.GuildOwner(ev.GuildID)
	}
	return d.checker.Check(g, subj)
}

// run executes action for ev. A returned error or panic is logged once with
// the event's correlating identifiers and reported to the actor through
// notify; a failure to notify is dropped.
func (d *Dispatcher) run(ctx context.Context, family, key string, ev Event, notify Responder, action func(context.Context) error) {
	ctx, span := d.tracer.Start(ctx, family+" "+key, trace.WithAttributes(
		attribute.String("discord.event_id", ev.ID),
		attribute.String("discord.user_id", ev.Actor.ID),
		attribute.String("discord.guild_id", ev.GuildID),
		attribute.String("discord.channel_id", ev.ChannelID),
	))
	defer span.End()

	err := d.safely(ctx, action)
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	d.log.Error("handler failed", d.logAttrs(family, key, ev, err)...)
	if notify == nil {
		return
	}
	_ = notify.Reply(ctx, Response{Content: d.failureNotice(ev), Ephemeral: true})
}

func (d *Dispatcher) safely(ctx context.Context, action func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx)
}

// withActor wraps action so the actor's record exists before it runs.
func (d *Dispatcher) withActor(ev Event, action func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if d.actors != nil {
			if err := d.actors.EnsureUser(ctx, ev.Actor.ID, ev.Actor.Tag); err != nil {
				return fmt.Errorf("ensure actor: %w", err)
			}
		}
		return action(ctx)
	}
}

func (d *Dispatcher) logAttrs(family, key string, ev Event, err error) []any {
	attrs := []any{
		"family", family,
		"key", key,
		"event_id", ev.ID,
		"user_id", ev.Actor.ID,
		"user_tag", ev.Actor.Tag,
		"error", err,
	}
	if ev.GuildID != "" {
		attrs = append(attrs, "guild_id", ev.GuildID)
		if d.dir != nil {
			attrs = append(attrs, "guild_name", d.dir.GuildName(ev.GuildID))
		}
	}
	if ev.ChannelID != "" {
		attrs = append(attrs, "channel_id", ev.ChannelID)
		if d.dir != nil {
			attrs = append(attrs, "channel_name", d.dir.ChannelName(ev.ChannelID))
		}
	}
	return attrs
}

func (d *Dispatcher) failureNotice(ev Event) string {
	msg := fmt.Sprintf("Something went wrong while running this. Error ID: `%s`.", ev.ID)
	if d.supportURL != "" {
		msg += " If this keeps happening, let us know: " + d.supportURL
	}
	return msg
}
