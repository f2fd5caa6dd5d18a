package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"bento/internal/permission"
)

type fixture struct {
	d       *Dispatcher
	session *mockSession
	logs    func() []logRecord
}

func newFixture(t *testing.T, reg *Registry, mutate func(*Options)) *fixture {
	t.Helper()
	logger, logs := captureLogs(t)
	session := &mockSession{}
	opts := Options{
		Registry: reg,
		Checker:  permission.NewChecker([]string{"dev1"}),
		Session:  session,
		Directory: &mockDirectory{
			self:   "bot1",
			owners: map[string]string{"guild1": "owner1"},
			perms:  map[string]permission.Set{},
		},
		Prefix:     "?",
		SupportURL: "https://example.com/support",
		Logger:     logger,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &fixture{d: New(opts), session: session, logs: logs}
}

func countingCommand(name string, counter *atomic.Int32, guards permission.Guards) Command {
	return Command{
		CommandSpec: CommandSpec{Name: name, Description: name, Guards: guards},
		Run: func(ctx context.Context, c *CommandContext) error {
			counter.Add(1)
			return nil
		},
	}
}

func TestHandleMessage_RateLimitDropsExcessCommands(t *testing.T) {
	var runs atomic.Int32
	reg := NewRegistry()
	if err := reg.AddCommand(countingCommand("ping", &runs, permission.Guards{})); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, reg, func(o *Options) {
		o.Limits.Commands = Limit{Amount: 10, Interval: 30 * time.Second}
	})

	for i := 0; i < 11; i++ {
		f.d.HandleMessage(context.Background(), guildMessage("m", "user1", "?ping"))
	}

	if runs.Load() != 10 {
		t.Errorf("handler ran %d times, want 10", runs.Load())
	}
	if len(f.session.methods()) != 0 {
		t.Errorf("dropped command should not reply, got calls %v", f.session.methods())
	}
}

func TestHandleMessage_FiltersSelfAndBots(t *testing.T) {
	var runs atomic.Int32
	reg := NewRegistry()
	reg.AddCommand(countingCommand("ping", &runs, permission.Guards{}))
	f := newFixture(t, reg, nil)

	self := guildMessage("m1", "bot1", "?ping")
	otherBot := guildMessage("m2", "bot2", "?ping")
	otherBot.Author.Bot = true

	f.d.HandleMessage(context.Background(), self)
	f.d.HandleMessage(context.Background(), otherBot)
	f.d.HandleMessage(context.Background(), &discordgo.Message{ID: "m3", Content: "?ping"})

	if runs.Load() != 0 {
		t.Errorf("handler ran %d times for filtered actors", runs.Load())
	}
}

func TestHandleMessage_PrefixResolution(t *testing.T) {
	tests := []struct {
		name     string
		prefixes mockPrefixes
		content  string
		expected bool
	}{
		{"default prefix", nil, "?ping", true},
		{"alias", nil, "?p", true},
		{"case insensitive", nil, "?PING", true},
		{"mention", nil, "<@bot1> ping", true},
		{"nickname mention", nil, "<@!bot1>ping", true},
		{"no prefix", nil, "ping", false},
		{"guild prefix replaces default", mockPrefixes{"guild1": "!"}, "?ping", false},
		{"guild prefix", mockPrefixes{"guild1": "!"}, "!ping", true},
		{"mention wins over guild prefix", mockPrefixes{"guild1": "!"}, "<@bot1> ping", true},
		{"empty guild prefix keeps default", mockPrefixes{"guild1": ""}, "?ping", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs atomic.Int32
			reg := NewRegistry()
			cmd := countingCommand("ping", &runs, permission.Guards{})
			cmd.Aliases = []string{"p"}
			reg.AddCommand(cmd)
			f := newFixture(t, reg, func(o *Options) {
				if tt.prefixes != nil {
					o.Prefixes = tt.prefixes
				}
			})

			f.d.HandleMessage(context.Background(), guildMessage("m1", "user1", tt.content))

			if got := runs.Load() == 1; got != tt.expected {
				t.Errorf("command ran = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestHandleMessage_ArgsAndResponder(t *testing.T) {
	reg := NewRegistry()
	var got *CommandContext
	reg.AddCommand(Command{
		CommandSpec: CommandSpec{Name: "echo"},
		Run: func(ctx context.Context, c *CommandContext) error {
			got = c
			return c.Reply(ctx, Response{Content: strings.Join(c.Args, " ")})
		},
	})
	f := newFixture(t, reg, nil)

	f.d.HandleMessage(context.Background(), guildMessage("m1", "user1", "?echo  hello   world"))

	if got == nil {
		t.Fatal("command did not run")
	}
	if got.Interaction != nil || got.Message == nil {
		t.Error("message command should carry the message and no interaction")
	}
	last := f.session.last()
	if last.method != "ChannelMessageSendComplex" || last.content != "hello world" || last.channel != "chan1" {
		t.Errorf("unexpected reply: %+v", last)
	}
}

func TestHandleMessage_FallbackForUnknownCommand(t *testing.T) {
	var fallbackName string
	f := newFixture(t, NewRegistry(), func(o *Options) {
		o.Fallback = func(ctx context.Context, c *CommandContext) (bool, error) {
			fallbackName = c.Name
			return true, nil
		}
	})

	f.d.HandleMessage(context.Background(), guildMessage("m1", "user1", "?rules"))

	if fallbackName != "rules" {
		t.Errorf("fallback got name %q, want %q", fallbackName, "rules")
	}
}

func TestHandleMessage_UnknownCommandWithoutFallbackIsNoop(t *testing.T) {
	f := newFixture(t, NewRegistry(), nil)

	f.d.HandleMessage(context.Background(), guildMessage("m1", "user1", "?nothing"))

	if len(f.session.methods()) != 0 {
		t.Errorf("expected no calls, got %v", f.session.methods())
	}
	if len(errorRecords(f.logs())) != 0 {
		t.Error("expected no error logs")
	}
}

func TestHandleMessage_HooksRunForPlainGuildMessages(t *testing.T) {
	var hooked atomic.Int32
	var runs atomic.Int32
	reg := NewRegistry()
	reg.AddCommand(countingCommand("ping", &runs, permission.Guards{}))
	f := newFixture(t, reg, func(o *Options) {
		o.MessageHooks = []MessageHook{func(ctx context.Context, ev Event, m *discordgo.Message) error {
			hooked.Add(1)
			return nil
		}}
	})

	f.d.HandleMessage(context.Background(), guildMessage("m1", "user1", "hello there"))
	f.d.HandleMessage(context.Background(), guildMessage("m2", "user1", "?ping"))
	dm := guildMessage("m3", "user1", "hello")
	dm.GuildID = ""
	f.d.HandleMessage(context.Background(), dm)

	if hooked.Load() != 1 {
		t.Errorf("hooks ran %d times, want 1", hooked.Load())
	}
}

func TestHandleMessage_DevOnlyCommandRejectsNonDeveloper(t *testing.T) {
	var runs atomic.Int32
	reg := NewRegistry()
	reg.AddCommand(countingCommand("eval", &runs, permission.Guards{RequireDev: true}))
	f := newFixture(t, reg, func(o *Options) {
		o.Directory.(*mockDirectory).perms["owner1"] = permission.Administrator
	})

	f.d.HandleMessage(context.Background(), guildMessage("m1", "owner1", "?eval"))

	if runs.Load() != 0 {
		t.Fatal("dev-only handler should not run for non-developer")
	}
	last := f.session.last()
	if !strings.Contains(last.content, "developers only") {
		t.Errorf("expected developers only notice, got %q", last.content)
	}

	f.d.HandleMessage(context.Background(), guildMessage("m2", "dev1", "?eval"))
	if runs.Load() != 1 {
		t.Error("dev-only handler should run for developer")
	}
}

func TestHandleMessage_RequiredPermissions(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		perms    permission.Set
		expected bool
	}{
		{"missing permission", "user1", permission.SendMessages, false},
		{"holds permission", "user1", permission.ManageMessages, true},
		{"guild owner bypasses", "owner1", 0, true},
		{"manage guild bypasses", "user1", permission.ManageGuild, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs atomic.Int32
			reg := NewRegistry()
			reg.AddCommand(countingCommand("purge", &runs, permission.Guards{Permissions: permission.ManageMessages}))
			f := newFixture(t, reg, func(o *Options) {
				o.Directory.(*mockDirectory).perms[tt.userID] = tt.perms
			})

			f.d.HandleMessage(context.Background(), guildMessage("m1", tt.userID, "?purge"))

			if got := runs.Load() == 1; got != tt.expected {
				t.Errorf("command ran = %v, want %v", got, tt.expected)
			}
			if !tt.expected && !strings.Contains(f.session.last().content, "Manage Messages") {
				t.Errorf("notice should name missing permission, got %q", f.session.last().content)
			}
		})
	}
}

func TestHandleMessage_PermissionsFromMemberPayload(t *testing.T) {
	var runs atomic.Int32
	reg := NewRegistry()
	reg.AddCommand(countingCommand("purge", &runs, permission.Guards{Permissions: permission.ManageMessages}))
	f := newFixture(t, reg, func(o *Options) {
		o.Directory.(*mockDirectory).roles = map[string]permission.Set{"mods": permission.ManageMessages}
	})

	m := guildMessage("m1", "mod2", "?purge")
	m.Member = &discordgo.Member{Roles: []string{"mods"}}
	f.d.HandleMessage(context.Background(), m)

	if runs.Load() != 1 {
		t.Errorf("moderator role from the message payload should pass, replies: %q", f.session.last().content)
	}
}

func TestHandleReaction_PermissionsFromMemberPayload(t *testing.T) {
	var runs atomic.Int32
	reg := NewRegistry()
	reg.AddReaction(Reaction{
		ReactionSpec: ReactionSpec{Emoji: "🗑️", Guards: permission.Guards{Permissions: permission.ManageMessages}},
		Run: func(ctx context.Context, c *ReactionContext) error {
			runs.Add(1)
			return nil
		},
	})
	f := newFixture(t, reg, func(o *Options) {
		o.Directory.(*mockDirectory).roles = map[string]permission.Set{"mods": permission.ManageMessages}
	})

	r := &discordgo.MessageReaction{UserID: "mod2", MessageID: "msg1", ChannelID: "chan1", GuildID: "guild1", Emoji: discordgo.Emoji{Name: "🗑️"}}
	f.d.HandleReaction(context.Background(), r, &discordgo.Member{User: &discordgo.User{ID: "mod2"}, Roles: []string{"mods"}})

	if runs.Load() != 1 {
		t.Error("moderator role from the reaction payload should pass")
	}
}

func TestHandleInteraction_RequireGuild(t *testing.T) {
	tests := []struct {
		name         string
		requireGuild bool
		guildID      string
		expected     bool
	}{
		{"guild only in DM", true, "", false},
		{"guild only in guild", true, "guild1", true},
		{"anywhere in DM", false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs atomic.Int32
			reg := NewRegistry()
			reg.AddCommand(countingCommand("prefix", &runs, permission.Guards{RequireGuild: tt.requireGuild}))
			f := newFixture(t, reg, nil)

			f.d.HandleInteraction(context.Background(), slashInteraction("i1", "user1", tt.guildID, "prefix", 0))

			if got := runs.Load() == 1; got != tt.expected {
				t.Errorf("command ran = %v, want %v", got, tt.expected)
			}
			if !tt.expected {
				last := f.session.last()
				if last.resp == nil || last.resp.Data == nil || last.resp.Data.Flags != discordgo.MessageFlagsEphemeral {
					t.Errorf("guard notice should be ephemeral, got %+v", last)
				}
			}
		})
	}
}

func TestHandleInteraction_HandlerErrorIsLoggedAndReported(t *testing.T) {
	reg := NewRegistry()
	reg.AddCommand(Command{
		CommandSpec: CommandSpec{Name: "boom", Defer: DeferReply},
		Run: func(ctx context.Context, c *CommandContext) error {
			return errors.New("database exploded")
		},
	})
	f := newFixture(t, reg, nil)

	f.d.HandleInteraction(context.Background(), slashInteraction("event42", "user1", "guild1", "boom", 0))

	errs := errorRecords(f.logs())
	if len(errs) != 1 {
		t.Fatalf("expected exactly 1 error log, got %d", len(errs))
	}
	if errs[0]["event_id"] != "event42" || errs[0]["user_id"] != "user1" {
		t.Errorf("error log missing correlating ids: %v", errs[0])
	}
	if errs[0]["guild_name"] != "guild-guild1" || errs[0]["channel_id"] != "chan1" {
		t.Errorf("error log missing guild/channel context: %v", errs[0])
	}

	methods := f.session.methods()
	if len(methods) != 2 || methods[0] != "InteractionRespond" || methods[1] != "InteractionResponseEdit" {
		t.Fatalf("expected defer then one notice, got %v", methods)
	}
	notice := f.session.last().content
	if !strings.Contains(notice, "event42") || !strings.Contains(notice, "https://example.com/support") {
		t.Errorf("notice should carry error id and support link, got %q", notice)
	}
}

func TestHandleMessage_HandlerPanicIsRecovered(t *testing.T) {
	reg := NewRegistry()
	reg.AddCommand(Command{
		CommandSpec: CommandSpec{Name: "panic"},
		Run: func(ctx context.Context, c *CommandContext) error {
			panic("nil map")
		},
	})
	f := newFixture(t, reg, nil)
	f.session.sendErr = errors.New("send failed")

	f.d.HandleMessage(context.Background(), guildMessage("m1", "user1", "?panic"))

	if len(errorRecords(f.logs())) != 1 {
		t.Errorf("expected one error log for panic")
	}
	if len(f.session.methods()) != 1 {
		t.Errorf("expected exactly one notice attempt, got %v", f.session.methods())
	}
}

func TestHandleInteraction_DeferralRunsBeforeAction(t *testing.T) {
	tests := []struct {
		name        string
		mode        DeferType
		update      bool
		deferType   discordgo.InteractionResponseType
		wantMethods []string
	}{
		{
			name:        "reply",
			mode:        DeferReply,
			deferType:   discordgo.InteractionResponseDeferredChannelMessageWithSource,
			wantMethods: []string{"InteractionRespond", "InteractionResponseEdit", "FollowupMessageCreate"},
		},
		{
			name:        "hidden reply",
			mode:        DeferHiddenReply,
			deferType:   discordgo.InteractionResponseDeferredChannelMessageWithSource,
			wantMethods: []string{"InteractionRespond", "InteractionResponseEdit", "FollowupMessageCreate"},
		},
		{
			name:        "update",
			mode:        DeferUpdate,
			update:      true,
			deferType:   discordgo.InteractionResponseDeferredMessageUpdate,
			wantMethods: []string{"InteractionRespond", "InteractionResponseEdit", "InteractionResponseEdit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			var f *fixture
			var callsAtRun int
			reg.AddButton(Component{
				ComponentSpec: ComponentSpec{IDs: []string{"page_next"}, Defer: tt.mode},
				Run: func(ctx context.Context, c *ComponentContext) error {
					callsAtRun = len(f.session.methods())
					if tt.update {
						c.Update(ctx, Response{Content: "page 2"})
						return c.Update(ctx, Response{Content: "page 3"})
					}
					c.Reply(ctx, Response{Content: "first"})
					return c.Reply(ctx, Response{Content: "second"})
				},
			})
			f = newFixture(t, reg, nil)

			f.d.HandleInteraction(context.Background(), componentInteraction("i1", "user1", "page_next", discordgo.ButtonComponent, nil))

			if callsAtRun != 1 {
				t.Errorf("action saw %d calls, want the deferral to precede it", callsAtRun)
			}
			methods := f.session.methods()
			if strings.Join(methods, ",") != strings.Join(tt.wantMethods, ",") {
				t.Fatalf("calls = %v, want %v", methods, tt.wantMethods)
			}
			first := f.session.calls[0]
			if first.resp.Type != tt.deferType {
				t.Errorf("defer type = %v, want %v", first.resp.Type, tt.deferType)
			}
			if tt.mode == DeferHiddenReply && first.resp.Data.Flags != discordgo.MessageFlagsEphemeral {
				t.Error("hidden reply should defer ephemerally")
			}
		})
	}
}

func TestHandleInteraction_NoDeferUpdateRespondsInPlace(t *testing.T) {
	reg := NewRegistry()
	reg.AddSelectMenu(Component{
		ComponentSpec: ComponentSpec{IDs: []string{"help_category"}},
		Run: func(ctx context.Context, c *ComponentContext) error {
			return c.Update(ctx, Response{Content: c.Values[0]})
		},
	})
	f := newFixture(t, reg, nil)
	i := componentInteraction("i1", "user1", "help_category", discordgo.SelectMenuComponent, nil)
	i.Data = discordgo.MessageComponentInteractionData{CustomID: "help_category", ComponentType: discordgo.SelectMenuComponent, Values: []string{"fun"}}

	f.d.HandleInteraction(context.Background(), i)

	last := f.session.last()
	if last.method != "InteractionRespond" || last.resp.Type != discordgo.InteractionResponseUpdateMessage || last.content != "fun" {
		t.Errorf("unexpected response: %+v", last)
	}
}

func TestHandleInteraction_FailedDeferAbandonsEvent(t *testing.T) {
	var runs atomic.Int32
	reg := NewRegistry()
	cmd := countingCommand("slow", &runs, permission.Guards{})
	cmd.Defer = DeferReply
	reg.AddCommand(cmd)
	f := newFixture(t, reg, nil)
	f.session.respondErr = errors.New("interaction expired")

	f.d.HandleInteraction(context.Background(), slashInteraction("i1", "user1", "guild1", "slow", 0))

	if runs.Load() != 0 {
		t.Error("action should not run when deferral fails")
	}
}

func TestHandleInteraction_EmbedAuthorCheck(t *testing.T) {
	embedBy := func(tag string) *discordgo.Message {
		return &discordgo.Message{
			ID:     "msg1",
			Embeds: []*discordgo.MessageEmbed{{Author: &discordgo.MessageEmbedAuthor{Name: tag}}},
		}
	}

	tests := []struct {
		name     string
		msg      *discordgo.Message
		expected bool
	}{
		{"matching author", embedBy("user-user1"), true},
		{"other author", embedBy("user-user2"), false},
		{"no embeds", &discordgo.Message{ID: "msg1"}, false},
		{"no message", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs atomic.Int32
			reg := NewRegistry()
			reg.AddButton(Component{
				ComponentSpec: ComponentSpec{IDs: []string{"gfycatSearch_delete"}, RequireEmbedAuthorTag: true},
				Run: func(ctx context.Context, c *ComponentContext) error {
					runs.Add(1)
					return nil
				},
			})
			f := newFixture(t, reg, nil)

			f.d.HandleInteraction(context.Background(), componentInteraction("i1", "user1", "gfycatSearch_delete", discordgo.ButtonComponent, tt.msg))

			if got := runs.Load() == 1; got != tt.expected {
				t.Errorf("button ran = %v, want %v", got, tt.expected)
			}
			if !tt.expected && len(f.session.methods()) != 0 {
				t.Errorf("dropped click should leave message untouched, got %v", f.session.methods())
			}
		})
	}
}

func TestHandleInteraction_UnknownComponentsAreNoops(t *testing.T) {
	f := newFixture(t, NewRegistry(), nil)

	f.d.HandleInteraction(context.Background(), componentInteraction("i1", "user1", "nope", discordgo.ButtonComponent, nil))
	f.d.HandleInteraction(context.Background(), componentInteraction("i2", "user1", "nope", discordgo.SelectMenuComponent, nil))
	f.d.HandleInteraction(context.Background(), slashInteraction("i3", "user1", "guild1", "nope", 0))

	if len(f.session.methods()) != 0 {
		t.Errorf("expected no calls, got %v", f.session.methods())
	}
	if len(f.logs()) != 0 {
		t.Errorf("expected no logs, got %v", f.logs())
	}
}

func TestHandleInteraction_ComponentGuardFailures(t *testing.T) {
	var runs atomic.Int32
	reg := NewRegistry()
	reg.AddButton(Component{
		ComponentSpec: ComponentSpec{IDs: []string{"dev_button"}, Guards: permission.Guards{RequireDev: true}},
		Run:           func(ctx context.Context, c *ComponentContext) error { runs.Add(1); return nil },
	})
	reg.AddButton(Component{
		ComponentSpec: ComponentSpec{IDs: []string{"mod_button"}, Guards: permission.Guards{Permissions: permission.KickMembers}},
		Run:           func(ctx context.Context, c *ComponentContext) error { runs.Add(1); return nil },
	})
	f := newFixture(t, reg, nil)

	f.d.HandleInteraction(context.Background(), componentInteraction("i1", "user1", "dev_button", discordgo.ButtonComponent, nil))
	if len(f.session.methods()) != 0 {
		t.Errorf("dev guard failure should drop silently, got %v", f.session.methods())
	}

	f.d.HandleInteraction(context.Background(), componentInteraction("i2", "user1", "mod_button", discordgo.ButtonComponent, nil))
	if !strings.Contains(f.session.last().content, "Kick Members") {
		t.Errorf("permission failure should name the permission, got %q", f.session.last().content)
	}
	if runs.Load() != 0 {
		t.Error("guarded buttons should not run")
	}
}

func TestHandleInteraction_SlashArgs(t *testing.T) {
	var args []string
	reg := NewRegistry()
	reg.AddCommand(Command{
		CommandSpec: CommandSpec{Name: "tag"},
		Run: func(ctx context.Context, c *CommandContext) error {
			args = c.Args
			return nil
		},
	})
	f := newFixture(t, reg, nil)
	i := slashInteraction("i1", "user1", "guild1", "tag", 0)
	i.Data = discordgo.ApplicationCommandInteractionData{
		Name: "tag",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{
				Name: "create",
				Type: discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "name", Type: discordgo.ApplicationCommandOptionString, Value: "rules"},
					{Name: "uses", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
				},
			},
		},
	}

	f.d.HandleInteraction(context.Background(), i)

	if strings.Join(args, " ") != "create rules 3" {
		t.Errorf("args = %v", args)
	}
}

func TestHandleReaction(t *testing.T) {
	var got *ReactionContext
	reg := NewRegistry()
	reg.AddReaction(Reaction{
		ReactionSpec: ReactionSpec{Emoji: "🗑️"},
		Run: func(ctx context.Context, c *ReactionContext) error {
			got = c
			return nil
		},
	})
	f := newFixture(t, reg, func(o *Options) {
		o.Limits.Reactions = Limit{Amount: 1, Interval: time.Minute}
	})
	reaction := func(emoji discordgo.Emoji) *discordgo.MessageReaction {
		return &discordgo.MessageReaction{UserID: "user1", MessageID: "msg1", ChannelID: "chan1", GuildID: "guild1", Emoji: emoji}
	}
	member := &discordgo.Member{User: &discordgo.User{ID: "user1", Username: "someone"}}

	f.d.HandleReaction(context.Background(), reaction(discordgo.Emoji{Name: "👍"}), member)
	if got != nil {
		t.Fatal("unregistered emoji should not dispatch")
	}

	f.d.HandleReaction(context.Background(), reaction(discordgo.Emoji{Name: "🗑️"}), member)
	if got != nil {
		t.Fatal("reaction limit of one should already be spent")
	}

	f2 := newFixture(t, reg, nil)
	f2.d.HandleReaction(context.Background(), reaction(discordgo.Emoji{Name: "🗑️"}), member)
	if got == nil || got.MessageID != "msg1" || got.Actor.Tag != "someone" {
		t.Errorf("unexpected reaction context: %+v", got)
	}

	got = nil
	botMember := &discordgo.Member{User: &discordgo.User{ID: "bot2", Bot: true}}
	f2.d.HandleReaction(context.Background(), reaction(discordgo.Emoji{Name: "🗑️"}), botMember)
	if got != nil {
		t.Error("bot reactions should be filtered")
	}
}

func TestLifecycleHooks(t *testing.T) {
	var added, deleted atomic.Int32
	f := newFixture(t, NewRegistry(), func(o *Options) {
		o.Lifecycle = Lifecycle{
			MemberAdd: []MemberHook{
				func(ctx context.Context, m *discordgo.Member) error { return errors.New("welcome failed") },
				func(ctx context.Context, m *discordgo.Member) error { added.Add(1); return nil },
			},
			GuildDelete: []GuildHook{
				func(ctx context.Context, g *discordgo.Guild) error { deleted.Add(1); return nil },
			},
		}
	})

	f.d.HandleMemberAdd(context.Background(), &discordgo.Member{GuildID: "guild1", User: &discordgo.User{ID: "user1"}})
	f.d.HandleGuildDelete(context.Background(), &discordgo.Guild{ID: "guild1", Unavailable: true})
	f.d.HandleGuildDelete(context.Background(), &discordgo.Guild{ID: "guild1"})

	if added.Load() != 1 {
		t.Error("a failing hook should not stop the next one")
	}
	if deleted.Load() != 1 {
		t.Errorf("guild delete hooks ran %d times, want 1", deleted.Load())
	}
	if len(errorRecords(f.logs())) != 1 {
		t.Error("failing hook should be logged once")
	}
}

func TestIsIgnorable(t *testing.T) {
	restErr := func(code int) error {
		return &discordgo.RESTError{
			Response: &http.Response{StatusCode: http.StatusNotFound},
			Message:  &discordgo.APIErrorMessage{Code: code},
		}
	}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"unknown message", restErr(discordgo.ErrCodeUnknownMessage), true},
		{"unknown channel", restErr(discordgo.ErrCodeUnknownChannel), true},
		{"unknown interaction", restErr(discordgo.ErrCodeUnknownInteraction), true},
		{"unknown user", restErr(discordgo.ErrCodeUnknownUser), true},
		{"unknown guild", restErr(discordgo.ErrCodeUnknownGuild), true},
		{"dms disabled", restErr(discordgo.ErrCodeCannotSendMessagesToThisUser), true},
		{"missing access", restErr(discordgo.ErrCodeMissingAccess), false},
		{"no message body", &discordgo.RESTError{Response: &http.Response{StatusCode: 500}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIgnorable(tt.err); got != tt.expected {
				t.Errorf("IsIgnorable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRun_RecordsSpanPerAction(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	reg := NewRegistry()
	reg.AddCommand(Command{
		CommandSpec: CommandSpec{Name: "ok"},
		Run:         func(ctx context.Context, c *CommandContext) error { return nil },
	})
	reg.AddCommand(Command{
		CommandSpec: CommandSpec{Name: "fail"},
		Run:         func(ctx context.Context, c *CommandContext) error { return errors.New("boom") },
	})
	f := newFixture(t, reg, func(o *Options) {
		o.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	})

	f.d.HandleMessage(context.Background(), guildMessage("m1", "user1", "?ok"))
	f.d.HandleMessage(context.Background(), guildMessage("m2", "user1", "?fail"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name() != "message_command ok" || spans[0].Status().Code != codes.Unset {
		t.Errorf("unexpected span %q with status %v", spans[0].Name(), spans[0].Status().Code)
	}
	if spans[1].Name() != "message_command fail" || spans[1].Status().Code != codes.Error {
		t.Errorf("unexpected span %q with status %v", spans[1].Name(), spans[1].Status().Code)
	}
}
