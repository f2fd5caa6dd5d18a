// Package store defines the persisted records the bot reads and writes.
package store

import (
	"errors"
	"math"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Guild holds per-server settings.
type Guild struct {
	ID               string
	Prefix           string
	WelcomeChannelID string
	WelcomeMessage   string
	MuteRoleID       string
}

// Tag is a named snippet of text owned by a guild.
type Tag struct {
	GuildID  string
	Name     string
	Content  string
	AuthorID string
	Uses     int
}

// Level is a member's experience in a guild.
type Level struct {
	XP    int
	Level int
}

// LevelFor returns the level reached with xp experience points.
func LevelFor(xp int) int {
	if xp <= 0 {
		return 0
	}
	return int(math.Sqrt(float64(xp) / 100))
}

type Reminder struct {
	ID        int64
	UserID    string
	ChannelID string
	Content   string
	DueAt     time.Time
}

type Mute struct {
	GuildID   string
	UserID    string
	ExpiresAt time.Time
}

type Announcement struct {
	ID        int64
	GuildID   string
	ChannelID string
	Content   string
	DueAt     time.Time
}
