package domain

import "context"

// ChatTransport is the chat platform connection.
type ChatTransport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	JoinChannel(ctx context.Context, channel string) error
	SendMessage(ctx context.Context, channel, text string) error
	SendReply(ctx context.Context, channel, parentMessageID, text string) error
}

// CompletionClient produces conversational text from the AI backend.
type CompletionClient interface {
	GetCompletion(ctx context.Context, prompt string) (string, error)
	GetAwareCompletion(ctx context.Context, history []string) (string, error)
	GetMatchCompletion(ctx context.Context, prompt string, match MatchSummary) (string, error)
}

type ModerationResult struct {
	Flagged    bool
	Categories []string
}

type ModerationClient interface {
	Classify(ctx context.Context, text string) (ModerationResult, error)
}

// AudioService synthesizes speech and plays it back.
type AudioService interface {
	Speak(ctx context.Context, text, voice string) error
}

type GameStatsClient interface {
	FindPlayerID(ctx context.Context, name string) (string, error)
	GetPlayerMatches(ctx context.Context, playerID string) ([]string, error)
	GetMatch(ctx context.Context, matchID string) (*Match, error)
}

// ClipService creates a clip of the channel's live stream and announces
// the outcome in that channel.
type ClipService interface {
	CreateClip(ctx context.Context, channel string) error
}

// Announcer delivers best-effort messages. Failures are logged, never returned.
type Announcer interface {
	Announce(ctx context.Context, channel, text string)
}

// MatchArchive stores raw match payloads once.
type MatchArchive interface {
	SaveMatch(ctx context.Context, match *Match) error
}

// SeenMatches remembers which match ids were already announced for a player.
type SeenMatches interface {
	Seed(ctx context.Context, playerID string, matchIDs []string) error
	MarkSeen(ctx context.Context, playerID, matchID string) (bool, error)
}
