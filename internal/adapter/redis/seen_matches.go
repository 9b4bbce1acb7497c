package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// seenTTL bounds how long a player's seen set lives without new matches.
// PUBG keeps matches for 14 days.
const seenTTL = 15 * 24 * time.Hour

// SeenMatches implements domain.SeenMatches with one Redis set per player,
// so announcements survive restarts.
type SeenMatches struct {
	rdb *goredis.Client
}

func NewSeenMatches(rdb *goredis.Client) *SeenMatches {
	return &SeenMatches{rdb: rdb}
}

func (s *SeenMatches) Seed(ctx context.Context, playerID string, matchIDs []string) error {
	if len(matchIDs) == 0 {
		return nil
	}
	members := make([]any, len(matchIDs))
	for i, id := range matchIDs {
		members[i] = id
	}

	key := seenKey(playerID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, seenTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to seed seen matches: %w", err)
	}
	return nil
}

// MarkSeen records matchID and reports whether it was new.
func (s *SeenMatches) MarkSeen(ctx context.Context, playerID, matchID string) (bool, error) {
	key := seenKey(playerID)

	var added *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		added = pipe.SAdd(ctx, key, matchID)
		pipe.Expire(ctx, key, seenTTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark match seen: %w", err)
	}
	return added.Val() == 1, nil
}

func seenKey(playerID string) string {
	return "pubg:seen_matches:" + playerID
}
