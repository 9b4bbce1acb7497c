// Package sqlite archives raw PUBG match payloads in a local SQLite file,
// for bots that run without a PostgreSQL server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS pubg_matches (
	match_id    TEXT PRIMARY KEY,
	map_name    TEXT NOT NULL,
	game_mode   TEXT NOT NULL,
	duration_s  INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	archived_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pubg_matches_archived_at ON pubg_matches(archived_at);
`

type MatchArchive struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and its directory if needed and applies
// the schema.
func Open(ctx context.Context, path string) (*MatchArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare archive: %w", err)
		}
	}

	slog.Info("Match archive opened", "path", path)
	return &MatchArchive{db: db, now: time.Now}, nil
}

// SaveMatch stores the match unless it is already archived.
func (a *MatchArchive) SaveMatch(ctx context.Context, match *domain.Match) error {
	payload := string(match.Raw)
	if payload == "" {
		payload = "{}"
	}

	res, err := a.db.ExecContext(ctx, `
		INSERT INTO pubg_matches (match_id, map_name, game_mode, duration_s, payload, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO NOTHING`,
		match.ID, match.Attributes.MapName, match.Attributes.GameMode, match.Attributes.Duration,
		payload, a.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("archive match %s: %w", match.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.DebugContext(ctx, "Match already archived", "match_id", match.ID)
	}
	return nil
}

func (a *MatchArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *MatchArchive) Close() error {
	return a.db.Close()
}
