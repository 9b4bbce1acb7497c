package app

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

const (
	clipCommand  = "!clip"
	matchCommand = "!match"

	matchNotUnderstood = "Didn't understand that !match command"
)

var matchPattern = regexp.MustCompile(`(?i)^!match\s([a-f0-9-]+)\s(\S+)\s(.+)`)

// ParseCommand recognizes "!clip" and "!match <id> <participant> <prompt>".
// Both must start the message; "!clip" must be the whole message.
func ParseCommand(text string) domain.Command {
	if strings.EqualFold(text, clipCommand) {
		return domain.Command{Kind: domain.CommandClip}
	}
	if len(text) < len(matchCommand) || !strings.EqualFold(text[:len(matchCommand)], matchCommand) {
		return domain.Command{Kind: domain.CommandNone}
	}

	m := matchPattern.FindStringSubmatch(text)
	if m == nil {
		return domain.Command{Kind: domain.CommandMatchInvalid}
	}
	return domain.Command{Kind: domain.CommandMatch, MatchID: m[1], Participant: m[2], Prompt: m[3]}
}

// CommandRouter executes chat commands. Its collaborators are optional:
// without game stats !match answers with the not-understood reply.
type CommandRouter struct {
	clips       domain.ClipService
	stats       domain.GameStatsClient
	completions domain.CompletionClient
	notifier    *Notifier
}

func NewCommandRouter(clips domain.ClipService, stats domain.GameStatsClient, completions domain.CompletionClient, notifier *Notifier) *CommandRouter {
	return &CommandRouter{clips: clips, stats: stats, completions: completions, notifier: notifier}
}

// Route reports whether the message was a command. A handled command never
// reaches the response policy.
func (r *CommandRouter) Route(ctx context.Context, event domain.ChatEvent) (bool, error) {
	cmd := ParseCommand(event.Text)
	switch cmd.Kind {
	case domain.CommandClip:
		if r.clips == nil {
			return true, nil
		}
		return true, r.clips.CreateClip(ctx, event.Channel)
	case domain.CommandMatch:
		return true, r.match(ctx, event, cmd)
	case domain.CommandMatchInvalid:
		return true, r.notifier.Reply(ctx, event.Channel, event.MessageID, matchNotUnderstood)
	default:
		return false, nil
	}
}

func (r *CommandRouter) match(ctx context.Context, event domain.ChatEvent, cmd domain.Command) error {
	if r.stats == nil {
		return r.notifier.Reply(ctx, event.Channel, event.MessageID, matchNotUnderstood)
	}

	reply, err := r.describeMatch(ctx, cmd)
	if errors.Is(err, domain.ErrNotFound) {
		slog.InfoContext(ctx, "Match command for unknown match", "match_id", cmd.MatchID, "participant", cmd.Participant, "error", err)
		return r.notifier.Reply(ctx, event.Channel, event.MessageID, matchNotUnderstood)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Match command failed", "match_id", cmd.MatchID, "error", err)
		return nil
	}
	return r.notifier.Reply(ctx, event.Channel, event.MessageID, reply)
}

func (r *CommandRouter) describeMatch(ctx context.Context, cmd domain.Command) (string, error) {
	match, err := r.stats.GetMatch(ctx, cmd.MatchID)
	if err != nil {
		return "", err
	}
	summary, err := match.Summarize(cmd.Participant)
	if err != nil {
		return "", err
	}
	return r.completions.GetMatchCompletion(ctx, cmd.Prompt, summary)
}
