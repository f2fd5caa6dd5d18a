package dispatch

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"bento/internal/permission"
)

// HandleReaction routes an added reaction by its emoji. member is nil
// outside guilds.
func (d *Dispatcher) HandleReaction(ctx context.Context, r *discordgo.MessageReaction, member *discordgo.Member) {
	if r == nil {
		return
	}
	actor := Actor{ID: r.UserID}
	if member != nil && member.User != nil {
		actor = ActorFromUser(member.User)
	}
	if d.isFiltered(actor) {
		return
	}
	if !d.reactionLimit.Allow(actor.ID) {
		d.log.Debug("rate limited", "family", "reaction", "user_id", actor.ID)
		return
	}

	emoji := r.Emoji.APIName()
	reaction, found := d.registry.Reaction(emoji)
	if !found {
		return
	}

	ev := Event{ID: r.MessageID, GuildID: r.GuildID, ChannelID: r.ChannelID, Actor: actor}
	if r.GuildID != "" && d.dir != nil {
		ev.Permissions = d.dir.Permissions(actor.ID, r.ChannelID, member)
	}
	responder := &channelResponder{s: d.session, guildID: r.GuildID, channelID: r.ChannelID, messageID: r.MessageID}
	if res := d.check(reaction.Guards, ev); !res.Allowed() {
		if res.Reason == permission.ReasonMissingPermissions {
			_ = responder.Reply(ctx, Response{Content: res.Message()})
		}
		return
	}

	c := &ReactionContext{
		Event:     ev,
		Responder: responder,
		Emoji:     emoji,
		MessageID: r.MessageID,
	}
	d.run(ctx, "reaction", emoji, ev, responder, d.withActor(ev, func(ctx context.Context) error {
		return reaction.Run(ctx, c)
	}))
}
