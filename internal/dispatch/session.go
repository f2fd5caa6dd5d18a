package dispatch

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"bento/internal/permission"
)

// Session abstracts the Discord REST calls the dispatcher makes.
type Session interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Directory answers questions about cached gateway state.
type Directory interface {
	SelfID() string
	GuildOwner(guildID string) string
	GuildName(guildID string) string
	ChannelName(channelID string) string
	// Permissions resolves userID's permissions in a guild channel. member is
	// the event's member payload, if any.
	Permissions(userID, channelID string, member *discordgo.Member) permission.Set
}

// IsIgnorable reports whether err is an expected Discord outcome that callers
// drop silently: the target vanished or the user does not accept DMs.
func IsIgnorable(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownChannel,
		discordgo.ErrCodeUnknownGuild,
		discordgo.ErrCodeUnknownMessage,
		discordgo.ErrCodeUnknownUser,
		discordgo.ErrCodeUnknownInteraction,
		discordgo.ErrCodeCannotSendMessagesToThisUser:
		return true
	}
	return false
}

// Ignore returns nil for ignorable errors and err otherwise.
func Ignore(err error) error {
	if err == nil || IsIgnorable(err) {
		return nil
	}
	return err
}
