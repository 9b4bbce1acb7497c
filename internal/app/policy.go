package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

type PolicyConfig struct {
	BotUsername      string
	IgnoredUsernames []string
	// MentionResponseThreshold is the probability of staying silent on a
	// message that does not mention the bot.
	MentionResponseThreshold float64
}

// Policy decides whether and how the bot answers a chat message.
type Policy struct {
	history   *HistoryBuffer
	botName   string
	ignored   map[string]struct{}
	threshold float64
	rand      func() float64
}

// NewPolicy builds a policy. rand must return values in [0, 1).
func NewPolicy(history *HistoryBuffer, cfg PolicyConfig, rand func() float64) *Policy {
	ignored := make(map[string]struct{}, len(cfg.IgnoredUsernames))
	for _, name := range cfg.IgnoredUsernames {
		ignored[strings.ToLower(name)] = struct{}{}
	}
	return &Policy{
		history:   history,
		botName:   strings.ToLower(cfg.BotUsername),
		ignored:   ignored,
		threshold: cfg.MentionResponseThreshold,
		rand:      rand,
	}
}

// Decide records the message into history and returns the decision for it.
func (p *Policy) Decide(ctx context.Context, event domain.ChatEvent) domain.Decision {
	p.history.Record(domain.HistoryEntry{
		Channel:   event.Channel,
		Username:  event.Username,
		Message:   event.Text,
		Timestamp: event.ReceivedAt,
	})
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.DebugContext(ctx, "Chat summary", "channel", event.Channel,
			"summary", p.history.Summarize(event.Channel, DefaultSummarySentences))
	}

	if p.isIgnored(event.Username) {
		return domain.Decision{Kind: domain.DecisionIgnore}
	}

	r := p.rand()
	if p.botName != "" && strings.Contains(strings.ToLower(event.Text), p.botName) {
		return domain.Decision{Kind: domain.DecisionDirectReply, Prompt: event.Text}
	}
	if r > p.threshold {
		return domain.Decision{Kind: domain.DecisionHistoryAwareReply, History: p.history.Drain(event.Channel)}
	}
	return domain.Decision{Kind: domain.DecisionIgnore}
}

func (p *Policy) isIgnored(username string) bool {
	name := strings.ToLower(username)
	if name == p.botName {
		return true
	}
	_, ok := p.ignored[name]
	return ok
}
