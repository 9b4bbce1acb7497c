package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

type sent struct {
	channel string
	parent  string
	text    string
}

type mockTransport struct {
	mu       sync.Mutex
	joins    []string
	messages []sent
	replies  []sent

	joinFn func(ctx context.Context, channel string) error
	sendFn func(ctx context.Context, channel, text string) error
}

func (m *mockTransport) Connect(context.Context) error    { return nil }
func (m *mockTransport) Disconnect(context.Context) error { return nil }

func (m *mockTransport) JoinChannel(ctx context.Context, channel string) error {
	m.mu.Lock()
	m.joins = append(m.joins, channel)
	m.mu.Unlock()
	if m.joinFn != nil {
		return m.joinFn(ctx, channel)
	}
	return nil
}

func (m *mockTransport) SendMessage(ctx context.Context, channel, text string) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, channel, text); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sent{channel: channel, text: text})
	return nil
}

func (m *mockTransport) SendReply(ctx context.Context, channel, parent, text string) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, channel, text); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, sent{channel: channel, parent: parent, text: text})
	return nil
}

func (m *mockTransport) getMessages() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.messages...)
}

func (m *mockTransport) getJoins() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.joins...)
}

type mockCompletions struct {
	completionFn func(ctx context.Context, prompt string) (string, error)
	awareFn      func(ctx context.Context, history []string) (string, error)
	matchFn      func(ctx context.Context, prompt string, match domain.MatchSummary) (string, error)
}

func (m *mockCompletions) GetCompletion(ctx context.Context, prompt string) (string, error) {
	if m.completionFn != nil {
		return m.completionFn(ctx, prompt)
	}
	return "completion: " + prompt, nil
}

func (m *mockCompletions) GetAwareCompletion(ctx context.Context, history []string) (string, error) {
	if m.awareFn != nil {
		return m.awareFn(ctx, history)
	}
	return fmt.Sprintf("aware of %d messages", len(history)), nil
}

func (m *mockCompletions) GetMatchCompletion(ctx context.Context, prompt string, match domain.MatchSummary) (string, error) {
	if m.matchFn != nil {
		return m.matchFn(ctx, prompt, match)
	}
	return "match on " + match.Match.MapName, nil
}

type mockModeration struct {
	mu    sync.Mutex
	texts []string

	classifyFn func(ctx context.Context, text string) (domain.ModerationResult, error)
}

func (m *mockModeration) Classify(ctx context.Context, text string) (domain.ModerationResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	if m.classifyFn != nil {
		return m.classifyFn(ctx, text)
	}
	return domain.ModerationResult{Flagged: false}, nil
}

type mockAudio struct {
	mu     sync.Mutex
	spoken []sent
}

func (m *mockAudio) Speak(_ context.Context, text, voice string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, sent{channel: voice, text: text})
	return nil
}

type mockClips struct {
	channels []string
	err      error
}

func (m *mockClips) CreateClip(_ context.Context, channel string) error {
	m.channels = append(m.channels, channel)
	return m.err
}

type mockStats struct {
	findPlayerFn func(ctx context.Context, name string) (string, error)
	matchesFn    func(ctx context.Context, playerID string) ([]string, error)
	getMatchFn   func(ctx context.Context, matchID string) (*domain.Match, error)
}

func (m *mockStats) FindPlayerID(ctx context.Context, name string) (string, error) {
	if m.findPlayerFn != nil {
		return m.findPlayerFn(ctx, name)
	}
	return "account." + name, nil
}

func (m *mockStats) GetPlayerMatches(ctx context.Context, playerID string) ([]string, error) {
	if m.matchesFn != nil {
		return m.matchesFn(ctx, playerID)
	}
	return nil, nil
}

func (m *mockStats) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	if m.getMatchFn != nil {
		return m.getMatchFn(ctx, matchID)
	}
	return nil, domain.ErrNotFound
}

type mockArchive struct {
	mu    sync.Mutex
	saved []string
}

func (m *mockArchive) SaveMatch(_ context.Context, match *domain.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, match.ID)
	return nil
}

type mockSeen struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (m *mockSeen) Seed(_ context.Context, _ string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	for _, id := range ids {
		m.seen[id] = struct{}{}
	}
	return nil
}

func (m *mockSeen) MarkSeen(_ context.Context, _ string, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	if _, ok := m.seen[id]; ok {
		return false, nil
	}
	m.seen[id] = struct{}{}
	return true, nil
}

type countingRecorder struct {
	mu        sync.Mutex
	received  map[domain.EventKind]int
	failed    map[domain.EventKind]int
	decisions map[domain.DecisionKind]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		received:  make(map[domain.EventKind]int),
		failed:    make(map[domain.EventKind]int),
		decisions: make(map[domain.DecisionKind]int),
	}
}

func (r *countingRecorder) EventReceived(k domain.EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received[k]++
}

func (r *countingRecorder) EventFailed(k domain.EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[k]++
}

func (r *countingRecorder) EventDropped(domain.EventKind) {}

func (r *countingRecorder) Decision(k domain.DecisionKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[k]++
}

func (r *countingRecorder) Delivered(string, error) {}

func testMatchRecord() *domain.Match {
	return &domain.Match{
		ID:         "abc-123",
		Attributes: domain.MatchAttributes{MapName: "Desert_Main", GameMode: "squad"},
		Rosters: []domain.Roster{
			{ID: "r1", TeamID: 7, Rank: 3, ParticipantIDs: []string{"p1"}},
		},
		Participants: map[string]domain.ParticipantStats{
			"p1": {Name: "PlayerX", Kills: 5},
		},
	}
}
