package domain

import (
	"fmt"
	"time"
)

type EventKind string

const (
	KindChatMessage      EventKind = "chat_message"
	KindWhisper          EventKind = "whisper"
	KindFollow           EventKind = "follow"
	KindSubscribe        EventKind = "subscribe"
	KindResubscribe      EventKind = "resubscribe"
	KindVIPAdd           EventKind = "vip_add"
	KindAdBreak          EventKind = "ad_break"
	KindRewardRedemption EventKind = "reward_redemption"
	KindStreamOnline     EventKind = "stream_online"
	KindStreamOffline    EventKind = "stream_offline"
	KindConnected        EventKind = "connected"
	KindDisconnected     EventKind = "disconnected"
	KindJoined           EventKind = "joined"
)

// Event is anything an event source hands to the dispatcher.
type Event interface {
	Kind() EventKind
}

// ReplyParent references the message a chat message replied to.
type ReplyParent struct {
	MessageID string
	Username  string
	Text      string
}

type ChatEvent struct {
	Channel     string
	Username    string
	MessageID   string
	Text        string
	ReceivedAt  time.Time
	ReplyParent *ReplyParent
}

func (ChatEvent) Kind() EventKind { return KindChatMessage }

func (e ChatEvent) Validate() error {
	if e.Channel == "" || e.Username == "" {
		return fmt.Errorf("%w: chat message needs channel and username", ErrInvalidEvent)
	}
	return nil
}

type WhisperEvent struct {
	Username   string
	Text       string
	ReceivedAt time.Time
}

func (WhisperEvent) Kind() EventKind { return KindWhisper }

type FollowEvent struct {
	Channel  string
	Username string
}

func (FollowEvent) Kind() EventKind { return KindFollow }

type SubscribeEvent struct {
	Channel  string
	Username string
	Tier     string
	IsGift   bool
}

func (SubscribeEvent) Kind() EventKind { return KindSubscribe }

type ResubscribeEvent struct {
	Channel          string
	Username         string
	Tier             string
	CumulativeMonths int
	Text             string
}

func (ResubscribeEvent) Kind() EventKind { return KindResubscribe }

type VIPAddEvent struct {
	Channel  string
	Username string
}

func (VIPAddEvent) Kind() EventKind { return KindVIPAdd }

type AdBreakEvent struct {
	Channel         string
	DurationSeconds int
}

func (AdBreakEvent) Kind() EventKind { return KindAdBreak }

type RewardRedemptionEvent struct {
	Channel     string
	Username    string
	RewardID    string
	RewardTitle string
	UserInput   string
}

func (RewardRedemptionEvent) Kind() EventKind { return KindRewardRedemption }

// StreamOnlineEvent reports that a channel went live. Type is "live",
// "playlist", "watch_party", "premiere" or "rerun".
type StreamOnlineEvent struct {
	Channel   string
	Type      string
	StartedAt time.Time
}

func (StreamOnlineEvent) Kind() EventKind { return KindStreamOnline }

type StreamOfflineEvent struct {
	Channel string
}

func (StreamOfflineEvent) Kind() EventKind { return KindStreamOffline }

// ConnectedEvent is emitted each time an event source has a live session.
type ConnectedEvent struct{}

func (ConnectedEvent) Kind() EventKind { return KindConnected }

// DisconnectedEvent is emitted when a live session is lost. Every
// channel subscription of that session is gone with it.
type DisconnectedEvent struct {
	Reason string
}

func (DisconnectedEvent) Kind() EventKind { return KindDisconnected }

type JoinedEvent struct {
	Channel string
}

func (JoinedEvent) Kind() EventKind { return KindJoined }

// ChannelOf returns the channel an event belongs to, or "" for events
// that are not scoped to a channel.
func ChannelOf(e Event) string {
	switch ev := e.(type) {
	case ChatEvent:
		return ev.Channel
	case FollowEvent:
		return ev.Channel
	case SubscribeEvent:
		return ev.Channel
	case ResubscribeEvent:
		return ev.Channel
	case VIPAddEvent:
		return ev.Channel
	case AdBreakEvent:
		return ev.Channel
	case RewardRedemptionEvent:
		return ev.Channel
	case StreamOnlineEvent:
		return ev.Channel
	case StreamOfflineEvent:
		return ev.Channel
	case JoinedEvent:
		return ev.Channel
	default:
		return ""
	}
}
