package bot

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"bento/internal/permission"
)

// Directory answers lookups from the gateway caches of every shard this
// process runs. A guild lives in exactly one shard, so the first cache that
// knows an entity wins.
type Directory struct {
	mu     sync.RWMutex
	states []*discordgo.State
}

func NewDirectory() *Directory {
	return &Directory{}
}

// Track adds a shard's cache to the lookups.
func (d *Directory) Track(st *discordgo.State) {
	if st == nil {
		return
	}
	d.mu.Lock()
	d.states = append(d.states, st)
	d.mu.Unlock()
}

func (d *Directory) snapshot() []*discordgo.State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.states
}

func (d *Directory) SelfID() string {
	for _, st := range d.snapshot() {
		st.RLock()
		user := st.User
		st.RUnlock()
		if user != nil {
			return user.ID
		}
	}
	return ""
}

func (d *Directory) guild(guildID string) *discordgo.Guild {
	if guildID == "" {
		return nil
	}
	for _, st := range d.snapshot() {
		if g, err := st.Guild(guildID); err == nil {
			return g
		}
	}
	return nil
}

func (d *Directory) GuildOwner(guildID string) string {
	if g := d.guild(guildID); g != nil {
		return g.OwnerID
	}
	return ""
}

func (d *Directory) GuildName(guildID string) string {
	if g := d.guild(guildID); g != nil {
		return g.Name
	}
	return ""
}

func (d *Directory) ChannelName(channelID string) string {
	for _, st := range d.snapshot() {
		if ch, err := st.Channel(channelID); err == nil {
			return ch.Name
		}
	}
	return ""
}

// Permissions resolves a member's effective permissions in a guild channel
// from cached roles and overwrites. The roles of member, the payload that
// came with the event, are used when given; the member cache is only
// consulted without one, since gateway caches hold few members of large
// guilds. Unknown channels and DMs yield none.
func (d *Directory) Permissions(userID, channelID string, member *discordgo.Member) permission.Set {
	for _, st := range d.snapshot() {
		if _, err := st.Channel(channelID); err != nil {
			continue
		}
		var perms int64
		var err error
		if member != nil {
			perms, err = st.MessagePermissions(&discordgo.Message{
				ChannelID: channelID,
				Author:    &discordgo.User{ID: userID},
				Member:    member,
			})
		} else {
			perms, err = st.UserChannelPermissions(userID, channelID)
		}
		if err != nil {
			return 0
		}
		return permission.Set(perms)
	}
	return 0
}
