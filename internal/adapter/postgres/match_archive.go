package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

// MatchArchive implements domain.MatchArchive. A match is stored once;
// saving it again is a no-op.
type MatchArchive struct {
	pool *pgxpool.Pool
}

func NewMatchArchive(pool *pgxpool.Pool) *MatchArchive {
	return &MatchArchive{pool: pool}
}

const insertMatch = `
INSERT INTO pubg_matches (match_id, map_name, game_mode, duration_s, payload)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (match_id) DO NOTHING`

func (a *MatchArchive) SaveMatch(ctx context.Context, match *domain.Match) error {
	payload := []byte(match.Raw)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	tag, err := a.pool.Exec(ctx, insertMatch,
		match.ID,
		match.Attributes.MapName,
		match.Attributes.GameMode,
		match.Attributes.Duration,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("archive match %s: %w", match.ID, err)
	}
	if tag.RowsAffected() == 0 {
		slog.DebugContext(ctx, "Match already archived", "match_id", match.ID)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (a *MatchArchive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}
