package domain

import "time"

// HistoryEntry is one remembered chat message.
type HistoryEntry struct {
	Channel   string
	Username  string
	Message   string
	Timestamp time.Time
}

type DecisionKind int

const (
	DecisionIgnore DecisionKind = iota
	DecisionCommandHandled
	DecisionDirectReply
	DecisionHistoryAwareReply
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionIgnore:
		return "ignore"
	case DecisionCommandHandled:
		return "command_handled"
	case DecisionDirectReply:
		return "direct_reply"
	case DecisionHistoryAwareReply:
		return "history_aware_reply"
	default:
		return "unknown"
	}
}

// Decision is the policy outcome for one chat message. Prompt is set for
// direct replies, History for history-aware replies.
type Decision struct {
	Kind    DecisionKind
	Prompt  string
	History []string
}

type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandClip
	CommandMatch
	CommandMatchInvalid
)

// Command is a parsed chat command. Match fields are only set for CommandMatch.
type Command struct {
	Kind        CommandKind
	MatchID     string
	Participant string
	Prompt      string
}
