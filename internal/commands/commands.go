// Package commands defines the built-in commands, components, reactions and
// event hooks of the bot.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"bento/internal/dispatch"
	"bento/internal/ratelimit"
	"bento/internal/shard"
	"bento/internal/store"
)

// Store is the persisted state the built-in definitions read and write.
type Store interface {
	EnsureGuild(ctx context.Context, guildID string) error
	Guild(ctx context.Context, guildID string) (store.Guild, error)
	DeleteGuild(ctx context.Context, guildID string) error
	SetPrefix(ctx context.Context, guildID, prefix string) error
	SetWelcome(ctx context.Context, guildID, channelID, message string) error
	SetMuteRole(ctx context.Context, guildID, roleID string) error

	Tag(ctx context.Context, guildID, name string) (store.Tag, error)
	CreateTag(ctx context.Context, t store.Tag) error
	IncrementTagUses(ctx context.Context, guildID, name string) error

	AddXP(ctx context.Context, guildID, userID string, xp int) (store.Level, bool, error)
	Level(ctx context.Context, guildID, userID string) (store.Level, error)

	AddReminder(ctx context.Context, r store.Reminder) (int64, error)
	AddMute(ctx context.Context, m store.Mute) error
	DeleteMute(ctx context.Context, guildID, userID string) error
	AddAnnouncement(ctx context.Context, a store.Announcement) (int64, error)
}

// Session is the Discord REST surface the built-in definitions call directly,
// outside the dispatcher's responders.
type Session interface {
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// ShardStatus reports the shards this process runs.
type ShardStatus interface {
	Plan() shard.Plan
	Statuses() []shard.Status
}

// PrefixInvalidator drops a cached guild prefix.
type PrefixInvalidator interface {
	Invalidate(guildID string)
}

type Deps struct {
	Store     Store
	Session   Session
	Directory dispatch.Directory
	Shards    ShardStatus
	Prefixes  PrefixInvalidator
	// Prefix is the default message command prefix.
	Prefix string
	// XPCooldown is how long a member waits between experience awards.
	XPCooldown time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// Set holds the built-in definitions and the hooks they need.
type Set struct {
	deps Deps
	reg  *dispatch.Registry
	log  *slog.Logger

	xpCooldown *ratelimit.Cooldown
	roll       func() int
}

// Register adds every built-in command, component and reaction to reg.
func Register(reg *dispatch.Registry, deps Deps) (*Set, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.XPCooldown <= 0 {
		deps.XPCooldown = time.Minute
	}
	s := &Set{
		deps:       deps,
		reg:        reg,
		log:        deps.Logger,
		xpCooldown: ratelimit.NewCooldown(deps.XPCooldown),
		roll:       rollXP,
	}

	for _, c := range []dispatch.Command{
		s.ping(), s.help(), s.tag(), s.prefix(), s.welcome(), s.muteRole(),
		s.mute(), s.remind(), s.announce(), s.rank(), s.shards(),
	} {
		if err := reg.AddCommand(c); err != nil {
			return nil, err
		}
	}
	if err := reg.AddButton(s.deleteButton()); err != nil {
		return nil, err
	}
	if err := reg.AddSelectMenu(s.helpCategoryMenu()); err != nil {
		return nil, err
	}
	if err := reg.AddReaction(s.trashReaction()); err != nil {
		return nil, err
	}
	return s, nil
}

// Lifecycle returns the member and guild hooks.
func (s *Set) Lifecycle() dispatch.Lifecycle {
	return dispatch.Lifecycle{
		GuildCreate:  []dispatch.GuildHook{s.onGuildCreate},
		GuildDelete:  []dispatch.GuildHook{s.onGuildDelete},
		MemberAdd:    []dispatch.MemberHook{s.onMemberAdd},
		MemberRemove: []dispatch.MemberHook{s.onMemberRemove},
	}
}

const colorDefault = 0x5865F2

// authoredEmbed names the actor as the embed author, which the delete button
// checks before removing the message.
func authoredEmbed(ev dispatch.Event, title string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:  title,
		Color:  colorDefault,
		Author: &discordgo.MessageEmbedAuthor{Name: ev.Actor.Tag},
	}
}

func deleteRow(family string) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "Delete", Style: discordgo.DangerButton, CustomID: family + "_delete"},
	}}
}

func usage(cmd string, args string) dispatch.Response {
	return dispatch.Response{Content: fmt.Sprintf("Usage: `%s %s`", cmd, args), Ephemeral: true}
}

var (
	userMention    = regexp.MustCompile(`^<@!?(\d+)>$`)
	roleMention    = regexp.MustCompile(`^<@&(\d+)>$`)
	channelMention = regexp.MustCompile(`^<#(\d+)>$`)
	snowflake      = regexp.MustCompile(`^\d{15,21}$`)
)

func parseID(arg string, pattern *regexp.Regexp) (string, bool) {
	if m := pattern.FindStringSubmatch(arg); m != nil {
		return m[1], true
	}
	if snowflake.MatchString(arg) {
		return arg, true
	}
	return "", false
}

func parseUserID(arg string) (string, bool)    { return parseID(arg, userMention) }
func parseRoleID(arg string) (string, bool)    { return parseID(arg, roleMention) }
func parseChannelID(arg string) (string, bool) { return parseID(arg, channelMention) }

// parseDuration accepts Go durations plus a day unit, e.g. "1d12h" or "90m".
func parseDuration(arg string) (time.Duration, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	var days time.Duration
	if i := strings.Index(arg, "d"); i > 0 {
		n, err := strconv.Atoi(arg[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", arg)
		}
		days = time.Duration(n) * 24 * time.Hour
		arg = arg[i+1:]
	}
	var rest time.Duration
	if arg != "" {
		d, err := time.ParseDuration(arg)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", arg)
		}
		rest = d
	}
	total := days + rest
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

func mention(userID string) string {
	return "<@" + userID + ">"
}
