package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/retry"
)

const chatRateWindow = 30 * time.Second

// Gateway is the Helix surface the chat transport and clip service need.
type Gateway interface {
	UserID(ctx context.Context, login string) (string, error)
	SendChatMessage(ctx context.Context, broadcasterID, senderID, text, replyParentID string) error
	CreateClip(ctx context.Context, broadcasterID string) (string, string, error)
}

// EventSource delivers EventSub notifications over one transport.
type EventSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Subscribe(ctx context.Context, sub Subscription) error
}

// Chat implements domain.ChatTransport on top of Helix and an EventSub
// source. Joining a channel means subscribing to its chat messages.
type Chat struct {
	gateway     Gateway
	source      EventSource
	emit        func(domain.Event)
	botUserID   string
	homeChannel string
	limiter     *rate.Limiter
	sendPolicy  retry.Policy

	mu  sync.Mutex
	ids map[string]string
}

func NewChat(gateway Gateway, source EventSource, emit func(domain.Event), botUserID, homeChannel string, messagesPer30s int) *Chat {
	return &Chat{
		gateway:     gateway,
		source:      source,
		emit:        emit,
		botUserID:   botUserID,
		homeChannel: strings.ToLower(homeChannel),
		limiter:     rate.NewLimiter(rate.Every(chatRateWindow/time.Duration(max(messagesPer30s, 1))), max(messagesPer30s, 1)),
		sendPolicy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   500 * time.Millisecond,
			RateLimitBackoff: 5 * time.Second,
		},
		ids: make(map[string]string),
	}
}

func (c *Chat) Connect(ctx context.Context) error {
	return c.source.Start(ctx)
}

func (c *Chat) Disconnect(ctx context.Context) error {
	return c.source.Stop(ctx)
}

// SubscribeHome subscribes the home channel's platform events. Failures
// are logged per subscription since each needs its own token scope.
func (c *Chat) SubscribeHome(ctx context.Context) error {
	broadcasterID, err := c.BroadcasterID(ctx, c.homeChannel)
	if err != nil {
		return err
	}

	for _, sub := range HomeSubscriptions(broadcasterID, c.botUserID) {
		if err := c.source.Subscribe(ctx, sub); err != nil {
			slog.WarnContext(ctx, "EventSub subscription failed", "type", sub.Type, "channel", c.homeChannel, "error", err)
			continue
		}
		slog.DebugContext(ctx, "EventSub subscription active", "type", sub.Type, "channel", c.homeChannel)
	}
	return nil
}

func (c *Chat) JoinChannel(ctx context.Context, channel string) error {
	channel = strings.ToLower(channel)
	broadcasterID, err := c.BroadcasterID(ctx, channel)
	if err != nil {
		return err
	}
	if err := c.source.Subscribe(ctx, ChatSubscription(broadcasterID, c.botUserID)); err != nil {
		return fmt.Errorf("subscribe to chat of %s: %w", channel, err)
	}
	c.emit(domain.JoinedEvent{Channel: channel})
	return nil
}

func (c *Chat) SendMessage(ctx context.Context, channel, text string) error {
	return c.send(ctx, channel, text, "")
}

func (c *Chat) SendReply(ctx context.Context, channel, parentMessageID, text string) error {
	return c.send(ctx, channel, text, parentMessageID)
}

func (c *Chat) send(ctx context.Context, channel, text, parentMessageID string) error {
	broadcasterID, err := c.BroadcasterID(ctx, channel)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chat rate limit: %w", err)
	}

	p := c.sendPolicy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Chat send failed, retrying", "channel", channel, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return retry.DoVoid(ctx, p, classifyHelixError, func(ctx context.Context) error {
		return c.gateway.SendChatMessage(ctx, broadcasterID, c.botUserID, text, parentMessageID)
	})
}

// BroadcasterID resolves and caches a channel login's user id.
func (c *Chat) BroadcasterID(ctx context.Context, channel string) (string, error) {
	channel = strings.ToLower(channel)

	c.mu.Lock()
	id, ok := c.ids[channel]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := c.gateway.UserID(ctx, channel)
	if err != nil {
		return "", fmt.Errorf("resolve channel %s: %w", channel, err)
	}

	c.mu.Lock()
	c.ids[channel] = id
	c.mu.Unlock()
	return id, nil
}
