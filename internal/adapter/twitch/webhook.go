package twitch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Its-donkey/kappopher/helix"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

// WebhookHandler verifies EventSub webhook deliveries and forwards the
// normalized events.
type WebhookHandler struct {
	handler *helix.EventSubWebhookHandler
	emit    func(domain.Event)
	now     func() time.Time
}

func NewWebhookHandler(secret string, emit func(domain.Event)) *WebhookHandler {
	wh := &WebhookHandler{emit: emit, now: time.Now}

	wh.handler = helix.NewEventSubWebhookHandler(
		helix.WithWebhookSecret(secret),
		helix.WithNotificationHandler(wh.handleNotification),
		helix.WithVerificationHandler(func(msg *helix.EventSubWebhookMessage) bool {
			slog.Info("EventSub webhook verification", "subscription_type", msg.SubscriptionType)
			return true
		}),
		helix.WithRevocationHandler(func(msg *helix.EventSubWebhookMessage) {
			slog.Warn("EventSub subscription revoked", "type", msg.SubscriptionType, "reason", helix.GetRevocationReason(msg.Subscription))
		}),
	)
	return wh
}

func (wh *WebhookHandler) handleNotification(msg *helix.EventSubWebhookMessage) {
	raw, err := helix.ParseEventSubEvent[rawEvent](msg)
	if err != nil {
		slog.Error("Failed to parse EventSub event", "type", msg.SubscriptionType, "error", err)
		return
	}

	event, err := Normalize(msg.SubscriptionType, raw.Bytes(), wh.now())
	if err != nil {
		slog.Warn("Dropping EventSub notification", "type", msg.SubscriptionType, "error", err)
		return
	}
	wh.emit(event)
}

func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wh.handler.ServeHTTP(w, r)
}

// rawEvent keeps the event object undecoded so it can be normalized like
// websocket notifications.
type rawEvent struct {
	data []byte
}

func (r *rawEvent) UnmarshalJSON(b []byte) error {
	r.data = append([]byte(nil), b...)
	return nil
}

func (r rawEvent) Bytes() []byte { return r.data }
