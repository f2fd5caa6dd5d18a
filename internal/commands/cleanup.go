package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"bento/internal/dispatch"
	"bento/internal/permission"
)

const trashEmoji = "🗑️"

// deleteFamilies are the message kinds that carry a delete button.
var deleteFamilies = []string{"help", "rank", "tag"}

// deleteButton removes a bot message when its requester clicks Delete.
func (s *Set) deleteButton() dispatch.Component {
	ids := make([]string, 0, len(deleteFamilies))
	for _, f := range deleteFamilies {
		ids = append(ids, f+"_delete")
	}
	return dispatch.Component{
		ComponentSpec: dispatch.ComponentSpec{
			IDs:                   ids,
			Defer:                 dispatch.DeferUpdate,
			RequireEmbedAuthorTag: true,
		},
		Run: func(ctx context.Context, c *dispatch.ComponentContext) error {
			if c.Message == nil {
				return nil
			}
			return dispatch.Ignore(s.deps.Session.ChannelMessageDelete(c.ChannelID, c.Message.ID))
		},
	}
}

// trashReaction removes a bot message when the member it answered reacts
// with the wastebasket.
func (s *Set) trashReaction() dispatch.Reaction {
	return dispatch.Reaction{
		ReactionSpec: dispatch.ReactionSpec{Emoji: trashEmoji},
		Run: func(ctx context.Context, c *dispatch.ReactionContext) error {
			msg, err := s.deps.Session.ChannelMessage(c.ChannelID, c.MessageID)
			if err != nil {
				return dispatch.Ignore(err)
			}
			if !s.answered(msg, c.Actor) && !c.Permissions.Has(permission.ManageMessages) {
				return nil
			}
			return dispatch.Ignore(s.deps.Session.ChannelMessageDelete(c.ChannelID, c.MessageID))
		},
	}
}

// answered reports whether msg is a bot message produced for actor.
func (s *Set) answered(msg *discordgo.Message, actor dispatch.Actor) bool {
	if msg.Author == nil || s.deps.Directory == nil || msg.Author.ID != s.deps.Directory.SelfID() {
		return false
	}
	if ref := msg.ReferencedMessage; ref != nil && ref.Author != nil && ref.Author.ID == actor.ID {
		return true
	}
	if msg.Interaction != nil && msg.Interaction.User != nil && msg.Interaction.User.ID == actor.ID {
		return true
	}
	return len(msg.Embeds) > 0 && msg.Embeds[0].Author != nil && msg.Embeds[0].Author.Name == actor.Tag
}

func (s *Set) shards() dispatch.Command {
	return dispatch.Command{
		CommandSpec: dispatch.CommandSpec{
			Name:        "shards",
			Description: "Show the shards of this process",
			Category:    "developer",
			Guards:      permission.Guards{RequireDev: true},
			MessageOnly: true,
		},
		Run: func(ctx context.Context, c *dispatch.CommandContext) error {
			if s.deps.Shards == nil {
				return c.Reply(ctx, dispatch.Response{Content: "Shard status is unavailable."})
			}
			plan := s.deps.Shards.Plan()
			var b strings.Builder
			fmt.Fprintf(&b, "Running %d of %d shards", len(plan.Shards), plan.Total)
			if plan.ClusterID != "" {
				fmt.Fprintf(&b, " in cluster `%s`", plan.ClusterID)
			}
			b.WriteString("\n")
			for _, st := range s.deps.Shards.Statuses() {
				state := "starting"
				if st.Ready {
					state = "ready"
				}
				fmt.Fprintf(&b, "`#%d` %s\n", st.ID, state)
			}
			return c.Reply(ctx, dispatch.Response{Content: b.String()})
		},
	}
}
