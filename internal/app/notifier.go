package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

// Notifier is the single outbound path to chat. Conversational replies
// return delivery errors, announcements only log them.
type Notifier struct {
	transport domain.ChatTransport
	recorder  Recorder
}

func NewNotifier(transport domain.ChatTransport, recorder Recorder) *Notifier {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Notifier{transport: transport, recorder: recorder}
}

// Reply sends text as a threaded reply to parentMessageID.
func (n *Notifier) Reply(ctx context.Context, channel, parentMessageID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	err := n.transport.SendReply(ctx, channel, parentMessageID, text)
	n.recorder.Delivered("reply", err)
	if err != nil {
		return fmt.Errorf("%w: reply in %s: %w", domain.ErrDelivery, channel, err)
	}
	return nil
}

func (n *Notifier) Say(ctx context.Context, channel, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	err := n.transport.SendMessage(ctx, channel, text)
	n.recorder.Delivered("message", err)
	if err != nil {
		return fmt.Errorf("%w: message in %s: %w", domain.ErrDelivery, channel, err)
	}
	return nil
}

func (n *Notifier) Announce(ctx context.Context, channel, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	err := n.transport.SendMessage(ctx, channel, text)
	n.recorder.Delivered("announcement", err)
	if err != nil {
		slog.WarnContext(ctx, "Announcement not delivered", "channel", channel, "error", err)
	}
}
