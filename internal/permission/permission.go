// Package permission evaluates the static guards declared on commands,
// buttons, reactions and select menus against the invoking actor.
package permission

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Set is a Discord permission bitset.
type Set int64

// Discord permission bits used by guards.
const (
	CreateInstantInvite Set = discordgo.PermissionCreateInstantInvite
	KickMembers         Set = discordgo.PermissionKickMembers
	BanMembers          Set = discordgo.PermissionBanMembers
	Administrator       Set = discordgo.PermissionAdministrator
	ManageChannels      Set = discordgo.PermissionManageChannels
	ManageGuild         Set = discordgo.PermissionManageGuild
	AddReactions        Set = discordgo.PermissionAddReactions
	ViewAuditLog        Set = discordgo.PermissionViewAuditLogs
	ViewChannel         Set = discordgo.PermissionViewChannel
	SendMessages        Set = discordgo.PermissionSendMessages
	ManageMessages      Set = discordgo.PermissionManageMessages
	EmbedLinks          Set = discordgo.PermissionEmbedLinks
	AttachFiles         Set = discordgo.PermissionAttachFiles
	MentionEveryone     Set = discordgo.PermissionMentionEveryone
	ManageNicknames     Set = discordgo.PermissionManageNicknames
	ManageRoles         Set = discordgo.PermissionManageRoles
	ManageWebhooks      Set = discordgo.PermissionManageWebhooks
	ModerateMembers     Set = discordgo.PermissionModerateMembers
)

var names = []struct {
	bit  Set
	name string
}{
	{CreateInstantInvite, "Create Invite"},
	{KickMembers, "Kick Members"},
	{BanMembers, "Ban Members"},
	{Administrator, "Administrator"},
	{ManageChannels, "Manage Channels"},
	{ManageGuild, "Manage Server"},
	{AddReactions, "Add Reactions"},
	{ViewAuditLog, "View Audit Log"},
	{ViewChannel, "View Channel"},
	{SendMessages, "Send Messages"},
	{ManageMessages, "Manage Messages"},
	{EmbedLinks, "Embed Links"},
	{AttachFiles, "Attach Files"},
	{MentionEveryone, "Mention Everyone"},
	{ManageNicknames, "Manage Nicknames"},
	{ManageRoles, "Manage Roles"},
	{ManageWebhooks, "Manage Webhooks"},
	{ModerateMembers, "Timeout Members"},
}

// Has reports whether every bit of want is present in s.
func (s Set) Has(want Set) bool {
	return s&want == want
}

// Names returns the human-readable names of the bits in s, in bit order.
func Names(s Set) []string {
	var out []string
	for _, n := range names {
		if s&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// Guards are the static preconditions a definition declares.
type Guards struct {
	RequireGuild bool
	RequireDev   bool
	Permissions  Set
}

// Subject is the actor being checked, in the context it acted in.
type Subject struct {
	UserID      string
	GuildID     string
	OwnerID     string
	Permissions Set
}

// Reason identifies which guard rejected a subject.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonGuildOnly
	ReasonDevOnly
	ReasonMissingPermissions
)

// Result is the outcome of a guard evaluation.
type Result struct {
	Reason  Reason
	Missing Set
}

func (r Result) Allowed() bool {
	return r.Reason == ReasonNone
}

// Message is the notice shown to an actor rejected by a guard.
func (r Result) Message() string {
	switch r.Reason {
	case ReasonGuildOnly:
		return "This command can only be used in a server."
	case ReasonDevOnly:
		return "This command is for developers only."
	case ReasonMissingPermissions:
		return "You are missing the following permissions: " + strings.Join(Names(r.Missing), ", ")
	}
	return ""
}

// Checker evaluates guards. Developers is the static developer allow-list.
type Checker struct {
	developers map[string]struct{}
}

func NewChecker(developers []string) *Checker {
	set := make(map[string]struct{}, len(developers))
	for _, id := range developers {
		set[id] = struct{}{}
	}
	return &Checker{developers: set}
}

func (c *Checker) IsDeveloper(userID string) bool {
	_, ok := c.developers[userID]
	return ok
}

// Check applies the guards in order: guild context, developer list, then
// permissions. Developers, the guild owner and holders of Manage Server or
// Administrator skip the permission check; nobody skips the developer check.
func (c *Checker) Check(g Guards, subj Subject) Result {
	if g.RequireGuild && subj.GuildID == "" {
		return Result{Reason: ReasonGuildOnly}
	}
	if g.RequireDev && !c.IsDeveloper(subj.UserID) {
		return Result{Reason: ReasonDevOnly}
	}
	if g.Permissions == 0 || c.bypasses(subj) {
		return Result{}
	}
	if missing := g.Permissions &^ subj.Permissions; missing != 0 {
		return Result{Reason: ReasonMissingPermissions, Missing: missing}
	}
	return Result{}
}

func (c *Checker) bypasses(subj Subject) bool {
	if c.IsDeveloper(subj.UserID) {
		return true
	}
	if subj.OwnerID != "" && subj.OwnerID == subj.UserID {
		return true
	}
	return subj.Permissions&(ManageGuild|Administrator) != 0
}
