package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"bento/internal/permission"
)

// ErrDuplicateKey is returned when two definitions in a family claim the same key.
var ErrDuplicateKey = errors.New("duplicate routing key")

// DeferType selects how an interaction is acknowledged before its action runs.
type DeferType int

const (
	DeferNone DeferType = iota
	DeferReply
	DeferUpdate
	DeferHiddenReply
)

func (d DeferType) String() string {
	switch d {
	case DeferReply:
		return "reply"
	case DeferUpdate:
		return "update"
	case DeferHiddenReply:
		return "hidden_reply"
	}
	return "none"
}

// CommandSpec is the static declaration of a command.
type CommandSpec struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Category    string
	Options     []*discordgo.ApplicationCommandOption
	Guards      permission.Guards
	Defer       DeferType
	// MessageOnly commands are not published as slash commands.
	MessageOnly bool
}

type CommandFunc func(ctx context.Context, c *CommandContext) error

type Command struct {
	CommandSpec
	Run CommandFunc
}

// ComponentSpec declares a button or select menu.
type ComponentSpec struct {
	IDs    []string
	Guards permission.Guards
	Defer  DeferType
	// RequireEmbedAuthorTag drops clicks from anyone other than the actor
	// named in the message's first embed author.
	RequireEmbedAuthorTag bool
}

type ComponentFunc func(ctx context.Context, c *ComponentContext) error

type Component struct {
	ComponentSpec
	Run ComponentFunc
}

type ReactionSpec struct {
	Emoji  string
	Guards permission.Guards
}

type ReactionFunc func(ctx context.Context, c *ReactionContext) error

type Reaction struct {
	ReactionSpec
	Run ReactionFunc
}

// Registry holds the definitions of every family. It is filled once at
// startup and read concurrently afterwards.
type Registry struct {
	commands    []*Command
	commandKeys map[string]*Command
	buttons     map[string]*Component
	selectMenus map[string]*Component
	reactions   map[string]*Reaction
}

func NewRegistry() *Registry {
	return &Registry{
		commandKeys: make(map[string]*Command),
		buttons:     make(map[string]*Component),
		selectMenus: make(map[string]*Component),
		reactions:   make(map[string]*Reaction),
	}
}

func (r *Registry) AddCommand(c Command) error {
	if c.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if c.Run == nil {
		return fmt.Errorf("command %s has no action", c.Name)
	}
	cmd := &c
	keys := append([]string{c.Name}, c.Aliases...)
	for _, key := range keys {
		if _, ok := r.commandKeys[strings.ToLower(key)]; ok {
			return fmt.Errorf("command %s: %w: %s", c.Name, ErrDuplicateKey, key)
		}
	}
	for _, key := range keys {
		r.commandKeys[strings.ToLower(key)] = cmd
	}
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *Registry) AddButton(c Component) error {
	return addComponent(r.buttons, "button", c)
}

func (r *Registry) AddSelectMenu(c Component) error {
	return addComponent(r.selectMenus, "select menu", c)
}

func addComponent(family map[string]*Component, kind string, c Component) error {
	if len(c.IDs) == 0 {
		return fmt.Errorf("%s has no custom ids", kind)
	}
	if c.Run == nil {
		return fmt.Errorf("%s %s has no action", kind, c.IDs[0])
	}
	for _, id := range c.IDs {
		if _, ok := family[id]; ok {
			return fmt.Errorf("%s: %w: %s", kind, ErrDuplicateKey, id)
		}
	}
	comp := &c
	for _, id := range c.IDs {
		family[id] = comp
	}
	return nil
}

func (r *Registry) AddReaction(re Reaction) error {
	if re.Emoji == "" {
		return fmt.Errorf("reaction emoji is required")
	}
	if re.Run == nil {
		return fmt.Errorf("reaction %s has no action", re.Emoji)
	}
	if _, ok := r.reactions[re.Emoji]; ok {
		return fmt.Errorf("reaction: %w: %s", ErrDuplicateKey, re.Emoji)
	}
	r.reactions[re.Emoji] = &re
	return nil
}

// Command finds a command by name, then by alias. Keys are case-insensitive.
func (r *Registry) Command(name string) (*Command, bool) {
	c, ok := r.commandKeys[strings.ToLower(name)]
	return c, ok
}

func (r *Registry) Button(customID string) (*Component, bool) {
	c, ok := r.buttons[customID]
	return c, ok
}

func (r *Registry) SelectMenu(customID string) (*Component, bool) {
	c, ok := r.selectMenus[customID]
	return c, ok
}

// Reaction finds a reaction by emoji in API form (unicode or name:id).
func (r *Registry) Reaction(emoji string) (*Reaction, bool) {
	re, ok := r.reactions[emoji]
	return re, ok
}

// Commands returns the declarations of every command in registration order.
func (r *Registry) Commands() []CommandSpec {
	out := make([]CommandSpec, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c.CommandSpec)
	}
	return out
}

// ApplicationCommands builds the slash-command metadata pushed to Discord.
func (r *Registry) ApplicationCommands() []*discordgo.ApplicationCommand {
	var out []*discordgo.ApplicationCommand
	for _, c := range r.commands {
		if c.MessageOnly || c.Description == "" {
			continue
		}
		ac := &discordgo.ApplicationCommand{
			Type:        discordgo.ChatApplicationCommand,
			Name:        c.Name,
			Description: c.Description,
			Options:     c.Options,
		}
		if c.Guards.Permissions != 0 {
			perms := int64(c.Guards.Permissions)
			ac.DefaultMemberPermissions = &perms
		}
		if c.Guards.RequireGuild {
			dm := false
			ac.DMPermission = &dm
		}
		out = append(out, ac)
	}
	return out
}
