// Package memory holds in-process stand-ins for the external stores, used
// when no Redis is configured.
package memory

import (
	"context"
	"sync"
)

// SeenMatches implements domain.SeenMatches in memory. State is lost on
// restart, so the watcher reseeds on startup.
type SeenMatches struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

func NewSeenMatches() *SeenMatches {
	return &SeenMatches{seen: make(map[string]map[string]struct{})}
}

func (s *SeenMatches) Seed(_ context.Context, playerID string, matchIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.player(playerID)
	for _, id := range matchIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (s *SeenMatches) MarkSeen(_ context.Context, playerID, matchID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.player(playerID)
	if _, ok := set[matchID]; ok {
		return false, nil
	}
	set[matchID] = struct{}{}
	return true, nil
}

func (s *SeenMatches) player(playerID string) map[string]struct{} {
	set, ok := s.seen[playerID]
	if !ok {
		set = make(map[string]struct{})
		s.seen[playerID] = set
	}
	return set
}
