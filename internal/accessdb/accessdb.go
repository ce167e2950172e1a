// Package accessdb persists bans, chat blacklists and command allow-lists
// in SQLite.
package accessdb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/command"
)

//go:embed schema.sql
var schema string

// Wildcard is the platform value that applies to every platform.
const Wildcard = "*"

// DB is the SQLite-backed access store.
type DB struct {
	*sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open access db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("init access schema: %w", err)
	}

	slog.Info("access database opened", "path", path)
	return &DB{DB: sqlDB, now: time.Now}, nil
}

func platformKey(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// IsBanned reports whether userID is banned on platform or on every platform.
func (db *DB) IsBanned(ctx context.Context, platform, userID string) (bool, error) {
	return db.exists(ctx, `SELECT 1 FROM bans WHERE platform IN (?, ?) AND user_id = ? LIMIT 1`,
		platformKey(platform), Wildcard, chat.NormalizeID(userID))
}

// IsChatBlacklisted reports whether chatID is blacklisted on platform or on every platform.
func (db *DB) IsChatBlacklisted(ctx context.Context, platform, chatID string) (bool, error) {
	return db.exists(ctx, `SELECT 1 FROM chat_blacklist WHERE platform IN (?, ?) AND chat_id = ? LIMIT 1`,
		platformKey(platform), Wildcard, chat.NormalizeID(chatID))
}

func (db *DB) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CommandAllowList returns the stored allow-list for the named command.
func (db *DB) CommandAllowList(ctx context.Context, name string) (command.AllowList, error) {
	rows, err := db.QueryContext(ctx, `SELECT kind, subject FROM command_allow WHERE command = ? ORDER BY created_at`,
		strings.ToLower(name))
	if err != nil {
		return command.AllowList{}, err
	}
	defer rows.Close()

	var list command.AllowList
	for rows.Next() {
		var kind, subject string
		if err := rows.Scan(&kind, &subject); err != nil {
			return command.AllowList{}, err
		}
		switch kind {
		case "user":
			list.Users = append(list.Users, subject)
		case "chat":
			list.Chats = append(list.Chats, subject)
		}
	}
	return list, rows.Err()
}

// Ban bans userID on platform. Banning twice is a no-op.
func (db *DB) Ban(ctx context.Context, platform, userID string) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO bans (platform, user_id, created_at) VALUES (?, ?, ?)`,
		platformKey(platform), chat.NormalizeID(userID), db.now().UTC())
	return err
}

// Unban lifts a ban on userID for platform.
func (db *DB) Unban(ctx context.Context, platform, userID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM bans WHERE platform = ? AND user_id = ?`,
		platformKey(platform), chat.NormalizeID(userID))
	return err
}

// Blacklist adds chatID to or removes it from the platform blacklist.
func (db *DB) Blacklist(ctx context.Context, platform, chatID string, on bool) error {
	var err error
	if on {
		_, err = db.ExecContext(ctx, `INSERT OR IGNORE INTO chat_blacklist (platform, chat_id, created_at) VALUES (?, ?, ?)`,
			platformKey(platform), chat.NormalizeID(chatID), db.now().UTC())
	} else {
		_, err = db.ExecContext(ctx, `DELETE FROM chat_blacklist WHERE platform = ? AND chat_id = ?`,
			platformKey(platform), chat.NormalizeID(chatID))
	}
	return err
}

// AllowUser adds userID to the allow-list of the named command.
func (db *DB) AllowUser(ctx context.Context, name, userID string) error {
	return db.allow(ctx, name, "user", userID)
}

// AllowChat adds chatID to the allow-list of the named command.
func (db *DB) AllowChat(ctx context.Context, name, chatID string) error {
	return db.allow(ctx, name, "chat", chatID)
}

func (db *DB) allow(ctx context.Context, name, kind, subject string) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO command_allow (command, kind, subject, created_at) VALUES (?, ?, ?, ?)`,
		strings.ToLower(name), kind, chat.NormalizeID(subject), db.now().UTC())
	return err
}

// Revoke clears the allow-list of the named command, reopening it to everyone.
func (db *DB) Revoke(ctx context.Context, name string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM command_allow WHERE command = ?`, strings.ToLower(name))
	return err
}
