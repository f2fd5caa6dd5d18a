package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"bento/internal/permission"
)

type sessionCall struct {
	method  string
	channel string
	content string
	resp    *discordgo.InteractionResponse
}

type mockSession struct {
	mu         sync.Mutex
	calls      []sessionCall
	respondErr error
	sendErr    error
}

func (m *mockSession) record(c sessionCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *mockSession) methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.method)
	}
	return out
}

func (m *mockSession) last() sessionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return sessionCall{}
	}
	return m.calls[len(m.calls)-1]
}

func (m *mockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	c := sessionCall{method: "InteractionRespond", resp: resp}
	if resp.Data != nil {
		c.content = resp.Data.Content
	}
	m.record(c)
	return m.respondErr
}

func (m *mockSession) InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	c := sessionCall{method: "InteractionResponseEdit"}
	if newresp.Content != nil {
		c.content = *newresp.Content
	}
	m.record(c)
	return &discordgo.Message{}, nil
}

func (m *mockSession) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.record(sessionCall{method: "FollowupMessageCreate", content: data.Content})
	return &discordgo.Message{}, nil
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.record(sessionCall{method: "ChannelMessageSendComplex", channel: channelID, content: data.Content})
	return &discordgo.Message{}, m.sendErr
}

func (m *mockSession) ChannelMessageEditComplex(edit *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	c := sessionCall{method: "ChannelMessageEditComplex", channel: edit.Channel}
	if edit.Content != nil {
		c.content = *edit.Content
	}
	m.record(c)
	return &discordgo.Message{}, nil
}

func (m *mockSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	m.record(sessionCall{method: "ChannelMessageDelete", channel: channelID})
	return nil
}

type mockDirectory struct {
	self   string
	owners map[string]string
	perms  map[string]permission.Set
	roles  map[string]permission.Set
}

func (m *mockDirectory) SelfID() string {
	return m.self
}

func (m *mockDirectory) GuildOwner(guildID string) string {
	return m.owners[guildID]
}

func (m *mockDirectory) GuildName(guildID string) string {
	return "guild-" + guildID
}

func (m *mockDirectory) ChannelName(channelID string) string {
	return "channel-" + channelID
}

func (m *mockDirectory) Permissions(userID, channelID string, member *discordgo.Member) permission.Set {
	perms := m.perms[userID]
	if member != nil {
		for _, role := range member.Roles {
			perms |= m.roles[role]
		}
	}
	return perms
}

type mockPrefixes map[string]string

func (m mockPrefixes) Prefix(_ context.Context, guildID string) (string, error) {
	return m[guildID], nil
}

type logRecord map[string]any

// captureLogs returns a logger writing JSON and a function parsing what it wrote.
func captureLogs(t *testing.T) (*slog.Logger, func() []logRecord) {
	t.Helper()
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewJSONHandler(&lockedWriter{buf: &buf, mu: &mu}, nil))
	return logger, func() []logRecord {
		mu.Lock()
		defer mu.Unlock()
		var out []logRecord
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if line == "" {
				continue
			}
			var rec logRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				t.Fatalf("invalid log line %q: %v", line, err)
			}
			out = append(out, rec)
		}
		return out
	}
}

type lockedWriter struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func errorRecords(records []logRecord) []logRecord {
	var out []logRecord
	for _, r := range records {
		if r["level"] == "ERROR" {
			out = append(out, r)
		}
	}
	return out
}

func guildMessage(id, userID, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		GuildID:   "guild1",
		ChannelID: "chan1",
		Content:   content,
		Author:    &discordgo.User{ID: userID, Username: "user-" + userID},
	}
}

func slashInteraction(id, userID, guildID, name string, perms int64) *discordgo.Interaction {
	i := &discordgo.Interaction{
		ID:        id,
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   guildID,
		ChannelID: "chan1",
		Data:      discordgo.ApplicationCommandInteractionData{Name: name},
	}
	user := &discordgo.User{ID: userID, Username: "user-" + userID}
	if guildID != "" {
		i.Member = &discordgo.Member{User: user, Permissions: perms}
	} else {
		i.User = user
	}
	return i
}

func componentInteraction(id, userID, customID string, kind discordgo.ComponentType, msg *discordgo.Message) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        id,
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   "guild1",
		ChannelID: "chan1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: "user-" + userID}},
		Message:   msg,
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID, ComponentType: kind},
	}
}
