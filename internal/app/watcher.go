package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/correlation"
)

const defaultPollInterval = 10 * time.Second

type WatcherConfig struct {
	PlayerName   string
	HomeChannel  string
	Voice        string
	PollInterval time.Duration
}

// MatchWatcher polls the streamer's recent matches and announces every
// match it has not seen before.
type MatchWatcher struct {
	cfg         WatcherConfig
	stats       domain.GameStatsClient
	completions domain.CompletionClient
	archive     domain.MatchArchive
	seen        domain.SeenMatches
	announcer   domain.Announcer
	audio       domain.AudioService
	clock       clockwork.Clock
}

func NewMatchWatcher(
	cfg WatcherConfig,
	stats domain.GameStatsClient,
	completions domain.CompletionClient,
	archive domain.MatchArchive,
	seen domain.SeenMatches,
	announcer domain.Announcer,
	audio domain.AudioService,
	clock clockwork.Clock,
) *MatchWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &MatchWatcher{
		cfg:         cfg,
		stats:       stats,
		completions: completions,
		archive:     archive,
		seen:        seen,
		announcer:   announcer,
		audio:       audio,
		clock:       clock,
	}
}

// Run blocks until ctx is cancelled. Matches played before Run started are
// never announced.
func (w *MatchWatcher) Run(ctx context.Context) error {
	playerID, err := w.stats.FindPlayerID(ctx, w.cfg.PlayerName)
	if err != nil {
		return fmt.Errorf("resolve player %s: %w", w.cfg.PlayerName, err)
	}

	current, err := w.stats.GetPlayerMatches(ctx, playerID)
	if err != nil {
		return fmt.Errorf("initial matches of %s: %w", w.cfg.PlayerName, err)
	}
	if err := w.seen.Seed(ctx, playerID, current); err != nil {
		return fmt.Errorf("seed seen matches: %w", err)
	}
	slog.InfoContext(ctx, "Match watcher started", "player", w.cfg.PlayerName, "known_matches", len(current), "interval", w.cfg.PollInterval)

	ticker := w.clock.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			w.poll(correlation.ForEvent(ctx, "match_poll"), playerID)
		}
	}
}

func (w *MatchWatcher) poll(ctx context.Context, playerID string) {
	matches, err := w.stats.GetPlayerMatches(ctx, playerID)
	if err != nil {
		slog.WarnContext(ctx, "Watcher: match list failed", "player", w.cfg.PlayerName, "error", err)
		return
	}

	// Newest first from the API, announce oldest first.
	for _, matchID := range slices.Backward(matches) {
		fresh, err := w.seen.MarkSeen(ctx, playerID, matchID)
		if err != nil {
			slog.WarnContext(ctx, "Watcher: seen check failed", "match_id", matchID, "error", err)
			continue
		}
		if !fresh {
			continue
		}
		if err := w.announce(ctx, matchID); err != nil {
			slog.ErrorContext(ctx, "Watcher: announcing match failed", "match_id", matchID, "error", err)
		}
	}
}

func (w *MatchWatcher) announce(ctx context.Context, matchID string) error {
	match, err := w.stats.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}

	if w.archive != nil {
		if err := w.archive.SaveMatch(ctx, match); err != nil {
			slog.WarnContext(ctx, "Watcher: archiving match failed", "match_id", matchID, "error", err)
		}
	}

	summary, err := match.Summarize(w.cfg.PlayerName)
	if err != nil {
		return err
	}
	text, err := w.completions.GetMatchCompletion(ctx, "", summary)
	if err != nil {
		return err
	}

	w.announcer.Announce(ctx, w.cfg.HomeChannel, text)
	if w.audio != nil {
		if err := w.audio.Speak(ctx, text, w.cfg.Voice); err != nil {
			slog.WarnContext(ctx, "Watcher: speaking match summary failed", "match_id", matchID, "error", err)
		}
	}
	slog.InfoContext(ctx, "Match announced", "match_id", matchID, "map", summary.Match.MapName, "rank", summary.Team.Rank)
	return nil
}
