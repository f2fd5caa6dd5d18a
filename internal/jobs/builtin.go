package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"bento/internal/dispatch"
	"bento/internal/store"
)

// Store is the persisted state the built-in jobs work through.
type Store interface {
	Guild(ctx context.Context, guildID string) (store.Guild, error)
	ExpiredMutes(ctx context.Context, now time.Time) ([]store.Mute, error)
	DeleteMute(ctx context.Context, guildID, userID string) error
	DueReminders(ctx context.Context, now time.Time) ([]store.Reminder, error)
	DeleteReminder(ctx context.Context, id int64) error
	DueAnnouncements(ctx context.Context, now time.Time) ([]store.Announcement, error)
	DeleteAnnouncement(ctx context.Context, id int64) error
}

// Session is the Discord REST surface the built-in jobs call.
type Session interface {
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Scheduled sends share this budget so a backlog of due messages does not
// starve the shards' own REST traffic.
const (
	sendRate  = rate.Limit(5)
	sendBurst = 5
)

// Builtin returns the mute, reminder and announcement jobs.
func Builtin(st Store, s Session, now func() time.Time) []Job {
	if now == nil {
		now = time.Now
	}
	pace := rate.NewLimiter(sendRate, sendBurst)
	return []Job{
		{Name: "mutes", Schedule: "* * * * *", Run: func(ctx context.Context) error {
			return ExpireMutes(ctx, st, s, now())
		}},
		{Name: "reminders", Schedule: "* * * * *", Run: func(ctx context.Context) error {
			return SendReminders(ctx, st, s, pace, now())
		}},
		{Name: "announcements", Schedule: "* * * * *", Run: func(ctx context.Context) error {
			return PostAnnouncements(ctx, st, s, pace, now())
		}},
	}
}

// wait blocks until pace admits one more send. A nil pace never blocks.
func wait(ctx context.Context, pace *rate.Limiter) error {
	if pace == nil {
		return nil
	}
	return pace.Wait(ctx)
}

// ExpireMutes lifts every mute whose time is up. A member who left or a
// deleted role still clears the mute.
func ExpireMutes(ctx context.Context, st Store, s Session, now time.Time) error {
	mutes, err := st.ExpiredMutes(ctx, now)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range mutes {
		g, err := st.Guild(ctx, m.GuildID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		if g.MuteRoleID != "" {
			if err := dispatch.Ignore(s.GuildMemberRoleRemove(m.GuildID, m.UserID, g.MuteRoleID)); err != nil {
				errs = append(errs, fmt.Errorf("unmute %s in %s: %w", m.UserID, m.GuildID, err))
				continue
			}
		}
		if err := st.DeleteMute(ctx, m.GuildID, m.UserID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendReminders delivers due reminders by DM, falling back to the channel
// the reminder was set in when the user does not accept DMs. Reminders left
// when pace gives up stay due for the next run.
func SendReminders(ctx context.Context, st Store, s Session, pace *rate.Limiter, now time.Time) error {
	reminders, err := st.DueReminders(ctx, now)
	if err != nil {
		return err
	}
	var errs []error
	for _, r := range reminders {
		if err := wait(ctx, pace); err != nil {
			errs = append(errs, err)
			break
		}
		if err := deliverReminder(s, r); err != nil {
			errs = append(errs, fmt.Errorf("reminder %d: %w", r.ID, err))
			continue
		}
		if err := st.DeleteReminder(ctx, r.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliverReminder(s Session, r store.Reminder) error {
	content := "⏰ Reminder: " + r.Content
	dm, err := s.UserChannelCreate(r.UserID)
	if err == nil {
		_, err = s.ChannelMessageSend(dm.ID, content)
	}
	if err != nil && dispatch.IsIgnorable(err) && r.ChannelID != "" {
		_, err = s.ChannelMessageSend(r.ChannelID, "<@"+r.UserID+"> "+content)
	}
	return dispatch.Ignore(err)
}

// PostAnnouncements posts due announcements. An announcement whose channel
// is gone is dropped.
func PostAnnouncements(ctx context.Context, st Store, s Session, pace *rate.Limiter, now time.Time) error {
	announcements, err := st.DueAnnouncements(ctx, now)
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range announcements {
		if err := wait(ctx, pace); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.ChannelMessageSend(a.ChannelID, a.Content); dispatch.Ignore(err) != nil {
			errs = append(errs, fmt.Errorf("announcement %d: %w", a.ID, err))
			continue
		}
		if err := st.DeleteAnnouncement(ctx, a.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
