// Package sqlite provides the SQLite-backed bot store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bento/internal/store"
)

//go:embed schema.sql
var schema string

// Store persists guild settings, tags, levels and scheduled work in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureGuild(ctx context.Context, db execer, guildID string) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO guilds (guild_id) VALUES (?)`, guildID)
	if err != nil {
		return fmt.Errorf("ensure guild %s: %w", guildID, err)
	}
	return nil
}

// EnsureGuild creates default settings for a guild the bot joined.
func (s *Store) EnsureGuild(ctx context.Context, guildID string) error {
	return ensureGuild(ctx, s.sqlDB, guildID)
}

// Guild returns the settings of a guild, or store.ErrNotFound.
func (s *Store) Guild(ctx context.Context, guildID string) (store.Guild, error) {
	g := store.Guild{ID: guildID}
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT prefix, welcome_channel_id, welcome_message, mute_role_id
		   FROM guilds WHERE guild_id = ?`, guildID,
	).Scan(&g.Prefix, &g.WelcomeChannelID, &g.WelcomeMessage, &g.MuteRoleID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Guild{}, store.ErrNotFound
	}
	if err != nil {
		return store.Guild{}, fmt.Errorf("get guild %s: %w", guildID, err)
	}
	return g, nil
}

// DeleteGuild removes a guild and everything scoped to it.
func (s *Store) DeleteGuild(ctx context.Context, guildID string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"tags", "members", "mutes", "announcements", "guilds"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE guild_id = ?`, guildID); err != nil {
			return fmt.Errorf("delete guild %s from %s: %w", guildID, table, err)
		}
	}
	return tx.Commit()
}

// Prefix returns the custom command prefix of a guild, "" when none is set.
func (s *Store) Prefix(ctx context.Context, guildID string) (string, error) {
	var prefix string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT prefix FROM guilds WHERE guild_id = ?`, guildID).Scan(&prefix)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get prefix %s: %w", guildID, err)
	}
	return prefix, nil
}

func (s *Store) SetPrefix(ctx context.Context, guildID, prefix string) error {
	if err := ensureGuild(ctx, s.sqlDB, guildID); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `UPDATE guilds SET prefix = ? WHERE guild_id = ?`, prefix, guildID)
	if err != nil {
		return fmt.Errorf("set prefix: %w", err)
	}
	return nil
}

func (s *Store) SetWelcome(ctx context.Context, guildID, channelID, message string) error {
	if err := ensureGuild(ctx, s.sqlDB, guildID); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE guilds SET welcome_channel_id = ?, welcome_message = ? WHERE guild_id = ?`,
		channelID, message, guildID)
	if err != nil {
		return fmt.Errorf("set welcome: %w", err)
	}
	return nil
}

func (s *Store) SetMuteRole(ctx context.Context, guildID, roleID string) error {
	if err := ensureGuild(ctx, s.sqlDB, guildID); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `UPDATE guilds SET mute_role_id = ? WHERE guild_id = ?`, roleID, guildID)
	if err != nil {
		return fmt.Errorf("set mute role: %w", err)
	}
	return nil
}

// EnsureUser creates the user row on first sight and refreshes its tag. An
// empty tag keeps the stored one.
func (s *Store) EnsureUser(ctx context.Context, userID, tag string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (user_id, tag, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET tag = excluded.tag WHERE excluded.tag <> ''`,
		userID, tag, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return nil
}

// Tag returns a guild's tag by name, or store.ErrNotFound.
func (s *Store) Tag(ctx context.Context, guildID, name string) (store.Tag, error) {
	t := store.Tag{GuildID: guildID, Name: strings.ToLower(name)}
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT content, author_id, uses FROM tags WHERE guild_id = ? AND name = ?`,
		guildID, t.Name,
	).Scan(&t.Content, &t.AuthorID, &t.Uses)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tag{}, store.ErrNotFound
	}
	if err != nil {
		return store.Tag{}, fmt.Errorf("get tag %s: %w", name, err)
	}
	return t, nil
}

// CreateTag inserts or replaces a tag.
func (s *Store) CreateTag(ctx context.Context, t store.Tag) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tag name is required")
	}
	if err := ensureGuild(ctx, s.sqlDB, t.GuildID); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO tags (guild_id, name, content, author_id, uses) VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT (guild_id, name) DO UPDATE SET content = excluded.content, author_id = excluded.author_id`,
		t.GuildID, strings.ToLower(t.Name), t.Content, t.AuthorID)
	if err != nil {
		return fmt.Errorf("create tag %s: %w", t.Name, err)
	}
	return nil
}

func (s *Store) IncrementTagUses(ctx context.Context, guildID, name string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE tags SET uses = uses + 1 WHERE guild_id = ? AND name = ?`,
		guildID, strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("increment tag %s: %w", name, err)
	}
	return nil
}

// AddXP adds xp to a member in one upsert and raises the stored level only
// if the new total crosses a threshold, so concurrent awards cannot lose an
// increment or report the same level-up twice.
func (s *Store) AddXP(ctx context.Context, guildID, userID string, xp int) (store.Level, bool, error) {
	if err := ensureGuild(ctx, s.sqlDB, guildID); err != nil {
		return store.Level{}, false, err
	}

	var total int
	err := s.sqlDB.QueryRowContext(ctx,
		`INSERT INTO members (guild_id, user_id, xp, level) VALUES (?, ?, ?, 0)
		 ON CONFLICT (guild_id, user_id) DO UPDATE SET xp = xp + excluded.xp
		 RETURNING xp`,
		guildID, userID, xp,
	).Scan(&total)
	if err != nil {
		return store.Level{}, false, fmt.Errorf("add xp: %w", err)
	}

	level := store.LevelFor(total)
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE members SET level = ? WHERE guild_id = ? AND user_id = ? AND level < ?`,
		level, guildID, userID, level)
	if err != nil {
		return store.Level{}, false, fmt.Errorf("update level: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Level{}, false, fmt.Errorf("update level: %w", err)
	}
	return store.Level{XP: total, Level: level}, n > 0, nil
}

// Level returns a member's experience, zero if they have none.
func (s *Store) Level(ctx context.Context, guildID, userID string) (store.Level, error) {
	var l store.Level
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT xp, level FROM members WHERE guild_id = ? AND user_id = ?`, guildID, userID,
	).Scan(&l.XP, &l.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Level{}, nil
	}
	if err != nil {
		return store.Level{}, fmt.Errorf("get level: %w", err)
	}
	return l, nil
}

func (s *Store) AddReminder(ctx context.Context, r store.Reminder) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO reminders (user_id, channel_id, content, due_at) VALUES (?, ?, ?, ?)`,
		r.UserID, r.ChannelID, r.Content, toMillis(r.DueAt))
	if err != nil {
		return 0, fmt.Errorf("add reminder: %w", err)
	}
	return res.LastInsertId()
}

// DueReminders lists reminders due at or before now, oldest first.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]store.Reminder, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, user_id, channel_id, content, due_at FROM reminders
		  WHERE due_at <= ? ORDER BY due_at`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var out []store.Reminder
	for rows.Next() {
		var r store.Reminder
		var due int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.ChannelID, &r.Content, &due); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.DueAt = fromMillis(due)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteReminder(ctx context.Context, id int64) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}
	return nil
}

func (s *Store) AddMute(ctx context.Context, m store.Mute) error {
	if err := ensureGuild(ctx, s.sqlDB, m.GuildID); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO mutes (guild_id, user_id, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (guild_id, user_id) DO UPDATE SET expires_at = excluded.expires_at`,
		m.GuildID, m.UserID, toMillis(m.ExpiresAt))
	if err != nil {
		return fmt.Errorf("add mute: %w", err)
	}
	return nil
}

// ExpiredMutes lists mutes whose expiry is at or before now.
func (s *Store) ExpiredMutes(ctx context.Context, now time.Time) ([]store.Mute, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT guild_id, user_id, expires_at FROM mutes WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("list mutes: %w", err)
	}
	defer rows.Close()

	var out []store.Mute
	for rows.Next() {
		var m store.Mute
		var exp int64
		if err := rows.Scan(&m.GuildID, &m.UserID, &exp); err != nil {
			return nil, fmt.Errorf("scan mute: %w", err)
		}
		m.ExpiresAt = fromMillis(exp)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMute(ctx context.Context, guildID, userID string) error {
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM mutes WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	if err != nil {
		return fmt.Errorf("delete mute: %w", err)
	}
	return nil
}

func (s *Store) AddAnnouncement(ctx context.Context, a store.Announcement) (int64, error) {
	if err := ensureGuild(ctx, s.sqlDB, a.GuildID); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO announcements (guild_id, channel_id, content, due_at) VALUES (?, ?, ?, ?)`,
		a.GuildID, a.ChannelID, a.Content, toMillis(a.DueAt))
	if err != nil {
		return 0, fmt.Errorf("add announcement: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) DueAnnouncements(ctx context.Context, now time.Time) ([]store.Announcement, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, guild_id, channel_id, content, due_at FROM announcements
		  WHERE due_at <= ? ORDER BY due_at`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	var out []store.Announcement
	for rows.Next() {
		var a store.Announcement
		var due int64
		if err := rows.Scan(&a.ID, &a.GuildID, &a.ChannelID, &a.Content, &due); err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		a.DueAt = fromMillis(due)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAnnouncement(ctx context.Context, id int64) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM announcements WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete announcement %d: %w", id, err)
	}
	return nil
}
