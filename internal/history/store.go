// Package history implements the record store on SQLite: sender profiles and
// per-thread conversation turns.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"barfly/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.RecordStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id        TEXT PRIMARY KEY,
		name           TEXT,
		home_city      TEXT,
		favorite_teams TEXT,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS thread_messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id  TEXT NOT NULL,
		role       TEXT NOT NULL,
		text       TEXT NOT NULL,
		meta       TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_thread_messages ON thread_messages(thread_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var (
		p     domain.Profile
		teams sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, home_city, favorite_teams, created_at FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Name, &p.HomeCity, &teams, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if teams.Valid && teams.String != "" {
		p.FavoriteTeams = strings.Split(teams.String, ",")
	}
	return &p, nil
}

// UpsertProfile stores or refreshes a sender profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p domain.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, name, home_city, favorite_teams, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET name=excluded.name, home_city=excluded.home_city,
		   favorite_teams=excluded.favorite_teams`,
		p.UserID, p.Name, p.HomeCity, strings.Join(p.FavoriteTeams, ","), p.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetHistory(ctx context.Context, threadID string, limit int) ([]domain.HistoryMessage, error) {
	if limit <= 0 {
		limit = 10
	}

	// Get last N turns, returned oldest first
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at
		 FROM thread_messages WHERE thread_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, threadID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.HistoryMessage
	for rows.Next() {
		var m domain.HistoryMessage
		if err := rows.Scan(&m.Role, &m.Text, &m.SentAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, threadID, role, text string, meta map[string]string) error {
	var metaJSON any
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
		metaJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO thread_messages (thread_id, role, text, meta, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		threadID, role, text, metaJSON, time.Now(),
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
