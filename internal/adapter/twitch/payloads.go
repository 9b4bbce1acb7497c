package twitch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

const (
	TypeChatMessage      = "channel.chat.message"
	TypeWhisper          = "user.whisper.message"
	TypeFollow           = "channel.follow"
	TypeSubscribe        = "channel.subscribe"
	TypeResubscribe      = "channel.subscription.message"
	TypeVIPAdd           = "channel.vip.add"
	TypeAdBreak          = "channel.ad_break.begin"
	TypeRewardRedemption = "channel.channel_points_custom_reward_redemption.add"
	TypeStreamOnline     = "stream.online"
	TypeStreamOffline    = "stream.offline"
)

type chatMessagePayload struct {
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	ChatterUserLogin     string `json:"chatter_user_login"`
	ChatterUserName      string `json:"chatter_user_name"`
	MessageID            string `json:"message_id"`
	Message              struct {
		Text string `json:"text"`
	} `json:"message"`
	Reply *struct {
		ParentMessageID   string `json:"parent_message_id"`
		ParentMessageBody string `json:"parent_message_body"`
		ParentUserLogin   string `json:"parent_user_login"`
	} `json:"reply"`
}

type whisperPayload struct {
	FromUserLogin string `json:"from_user_login"`
	Whisper       struct {
		Text string `json:"text"`
	} `json:"whisper"`
}

// userEventPayload covers follow, subscribe and VIP events.
type userEventPayload struct {
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	UserLogin            string `json:"user_login"`
	UserName             string `json:"user_name"`
	Tier                 string `json:"tier"`
	IsGift               bool   `json:"is_gift"`
}

type resubscribePayload struct {
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	UserName             string `json:"user_name"`
	Tier                 string `json:"tier"`
	CumulativeMonths     int    `json:"cumulative_months"`
	Message              struct {
		Text string `json:"text"`
	} `json:"message"`
}

type adBreakPayload struct {
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	DurationSeconds      int    `json:"duration_seconds"`
}

type redemptionPayload struct {
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	UserName             string `json:"user_name"`
	UserInput            string `json:"user_input"`
	Reward               struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reward"`
}

// streamPayload covers stream.online and stream.offline; offline carries
// no type or start time.
type streamPayload struct {
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	Type                 string    `json:"type"`
	StartedAt            time.Time `json:"started_at"`
}

// Normalize turns an EventSub event payload into a domain event. Both the
// websocket and the webhook source go through here.
func Normalize(subscriptionType string, raw []byte, receivedAt time.Time) (domain.Event, error) {
	switch subscriptionType {
	case TypeChatMessage:
		var p chatMessagePayload
		if err := decode(subscriptionType, raw, &p); err != nil {
			return nil, err
		}
		e := domain.ChatEvent{
			Channel:    p.BroadcasterUserLogin,
			Username:   p.ChatterUserLogin,
			MessageID:  p.MessageID,
			Text:       p.Message.Text,
			ReceivedAt: receivedAt,
		}
		if p.Reply != nil {
			e.ReplyParent = &domain.ReplyParent{
				MessageID: p.Reply.ParentMessageID,
				Username:  p.Reply.ParentUserLogin,
				Text:      p.Reply.ParentMessageBody,
			}
		}
		return e, nil

	case TypeWhisper:
		var p whisperPayload
		if err := decode(subscriptionType, raw, &p); err != nil {
			return nil, err
		}
		return domain.WhisperEvent{Username: p.FromUserLogin, Text: p.Whisper.Text, ReceivedAt: receivedAt}, nil

	case TypeFollow, TypeSubscribe, TypeVIPAdd:
		var p userEventPayload
		if err := decode(subscriptionType, raw, &p); err != nil {
			return nil, err
		}
		switch subscriptionType {
		case TypeFollow:
			return domain.FollowEvent{Channel: p.BroadcasterUserLogin, Username: p.UserName}, nil
		case TypeSubscribe:
			return domain.SubscribeEvent{Channel: p.BroadcasterUserLogin, Username: p.UserName, Tier: p.Tier, IsGift: p.IsGift}, nil
		default:
			return domain.VIPAddEvent{Channel: p.BroadcasterUserLogin, Username: p.UserName}, nil
		}

	case TypeResubscribe:
		var p resubscribePayload
		if err := decode(subscriptionType, raw, &p); err != nil {
			return nil, err
		}
		return domain.ResubscribeEvent{
			Channel:          p.BroadcasterUserLogin,
			Username:         p.UserName,
			Tier:             p.Tier,
			CumulativeMonths: p.CumulativeMonths,
			Text:             p.Message.Text,
		}, nil

	case TypeAdBreak:
		var p adBreakPayload
		if err := decode(subscriptionType, raw, &p); err != nil {
			return nil, err
		}
		return domain.AdBreakEvent{Channel: p.BroadcasterUserLogin, DurationSeconds: p.DurationSeconds}, nil

	case TypeRewardRedemption:
		var p redemptionPayload
		if err := decode(subscriptionType, raw, &p); err != nil {
			return nil, err
		}
		return domain.RewardRedemptionEvent{
			Channel:     p.BroadcasterUserLogin,
			Username:    p.UserName,
			RewardID:    p.Reward.ID,
			RewardTitle: p.Reward.Title,
			UserInput:   p.UserInput,
		}, nil

	case TypeStreamOnline, TypeStreamOffline:
		var p streamPayload
		if err := decode(subscriptionType, raw, &p); err != nil {
			return nil, err
		}
		if subscriptionType == TypeStreamOffline {
			return domain.StreamOfflineEvent{Channel: p.BroadcasterUserLogin}, nil
		}
		return domain.StreamOnlineEvent{Channel: p.BroadcasterUserLogin, Type: p.Type, StartedAt: p.StartedAt}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported subscription type %q", domain.ErrInvalidEvent, subscriptionType)
	}
}

func decode(subscriptionType string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", domain.ErrInvalidEvent, subscriptionType, err)
	}
	return nil
}
