package dispatch

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"bento/internal/permission"
)

// Actor is the user behind an event.
type Actor struct {
	ID  string
	Tag string
	Bot bool
}

// ActorFromUser narrows a Discord user to an Actor.
func ActorFromUser(u *discordgo.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{ID: u.ID, Tag: UserTag(u), Bot: u.Bot}
}

// UserTag renders the name Discord shows for u, with the legacy
// discriminator when the account still has one.
func UserTag(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// Event carries the correlating identifiers of one inbound event.
type Event struct {
	ID          string
	GuildID     string
	ChannelID   string
	Actor       Actor
	Permissions permission.Set
}

// Response is an outbound message: plain text, embeds, or both.
type Response struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Ephemeral  bool
}

func (r Response) flags() discordgo.MessageFlags {
	if r.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// Responder answers the actor that triggered an event.
type Responder interface {
	// Reply sends a new message to the actor.
	Reply(ctx context.Context, r Response) error
	// Update edits the message the event originated from, where there is one.
	Update(ctx context.Context, r Response) error
}

type CommandContext struct {
	Event
	Responder
	// Name is the name or alias the command was invoked with.
	Name string
	Args []string
	// Interaction is nil for message commands; Message is nil for slash commands.
	Interaction *discordgo.Interaction
	Message     *discordgo.Message
}

type ComponentContext struct {
	Event
	Responder
	CustomID    string
	Values      []string
	Interaction *discordgo.Interaction
	Message     *discordgo.Message
}

type ReactionContext struct {
	Event
	Responder
	Emoji     string
	MessageID string
}

// interactionResponder tracks the acknowledgement state of one interaction.
type interactionResponder struct {
	s Session
	i *discordgo.Interaction

	mu       sync.Mutex
	deferred DeferType
	acked    bool
	edited   bool
}

func newInteractionResponder(s Session, i *discordgo.Interaction) *interactionResponder {
	return &interactionResponder{s: s, i: i}
}

// Defer acknowledges the interaction according to mode.
func (r *interactionResponder) Defer(mode DeferType) error {
	var resp *discordgo.InteractionResponse
	switch mode {
	case DeferReply:
		resp = &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	case DeferHiddenReply:
		resp = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
		}
	case DeferUpdate:
		resp = &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	default:
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.s.InteractionRespond(r.i, resp); err != nil {
		return err
	}
	r.deferred = mode
	r.acked = true
	return nil
}

func (r *interactionResponder) Reply(ctx context.Context, resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case !r.acked:
		err := r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    resp.Content,
				Embeds:     resp.Embeds,
				Components: resp.Components,
				Flags:      resp.flags(),
			},
		})
		if err == nil {
			r.acked = true
		}
		return Ignore(err)
	case (r.deferred == DeferReply || r.deferred == DeferHiddenReply) && !r.edited:
		_, err := r.s.InteractionResponseEdit(r.i, webhookEdit(resp))
		if err == nil {
			r.edited = true
		}
		return Ignore(err)
	default:
		_, err := r.s.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{
			Content:    resp.Content,
			Embeds:     resp.Embeds,
			Components: resp.Components,
			Flags:      resp.flags(),
		})
		return Ignore(err)
	}
}

func (r *interactionResponder) Update(ctx context.Context, resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.acked {
		err := r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    resp.Content,
				Embeds:     resp.Embeds,
				Components: resp.Components,
			},
		})
		if err == nil {
			r.acked = true
		}
		return Ignore(err)
	}
	_, err := r.s.InteractionResponseEdit(r.i, webhookEdit(resp))
	return Ignore(err)
}

func webhookEdit(resp Response) *discordgo.WebhookEdit {
	content := resp.Content
	embeds := resp.Embeds
	components := resp.Components
	return &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}
}

// channelResponder answers in a channel, replying to a message when one is set.
type channelResponder struct {
	s         Session
	guildID   string
	channelID string
	messageID string
}

func (r *channelResponder) Reply(ctx context.Context, resp Response) error {
	send := &discordgo.MessageSend{
		Content:    resp.Content,
		Embeds:     resp.Embeds,
		Components: resp.Components,
	}
	if r.messageID != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: r.messageID,
			ChannelID: r.channelID,
			GuildID:   r.guildID,
		}
	}
	_, err := r.s.ChannelMessageSendComplex(r.channelID, send)
	return Ignore(err)
}

// Update edits the referenced message. It only succeeds on messages the bot
// authored.
func (r *channelResponder) Update(ctx context.Context, resp Response) error {
	if r.messageID == "" {
		return r.Reply(ctx, resp)
	}
	edit := discordgo.NewMessageEdit(r.channelID, r.messageID).
		SetContent(resp.Content).
		SetEmbeds(resp.Embeds)
	_, err := r.s.ChannelMessageEditComplex(edit)
	return Ignore(err)
}
