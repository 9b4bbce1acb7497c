package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Its-donkey/kappopher/helix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

const testWebhookSecret = "test-webhook-secret-1234567890"

func signWebhookRequest(secret, messageID, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID + timestamp + body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func makeNotificationBody(subscriptionType string, event map[string]any) string {
	payload := map[string]any{
		"subscription": map[string]any{
			"id":        "sub-123",
			"type":      subscriptionType,
			"version":   "1",
			"status":    "enabled",
			"condition": map[string]string{"broadcaster_user_id": "b1"},
			"transport": map[string]string{
				"method":   "webhook",
				"callback": "https://example.com/webhooks/eventsub",
			},
			"created_at": time.Now().Format(time.RFC3339),
		},
		"event": event,
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func makeSignedNotification(secret, subscriptionType, body string) *http.Request {
	messageID := fmt.Sprintf("test-msg-id-%d", time.Now().UnixNano())
	timestamp := time.Now().Format(time.RFC3339)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/eventsub", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(helix.EventSubHeaderMessageID, messageID)
	req.Header.Set(helix.EventSubHeaderMessageTimestamp, timestamp)
	req.Header.Set(helix.EventSubHeaderMessageSignature, signWebhookRequest(secret, messageID, timestamp, body))
	req.Header.Set(helix.EventSubHeaderMessageType, helix.EventSubMessageTypeNotification)
	req.Header.Set(helix.EventSubHeaderSubscriptionType, subscriptionType)
	req.Header.Set(helix.EventSubHeaderSubscriptionVersion, "1")
	return req
}

func newCapturingWebhook() (*WebhookHandler, chan domain.Event) {
	events := make(chan domain.Event, 4)
	return NewWebhookHandler(testWebhookSecret, func(e domain.Event) { events <- e }), events
}

func TestWebhook_ChatNotificationEmitsEvent(t *testing.T) {
	wh, events := newCapturingWebhook()
	body := makeNotificationBody(TypeChatMessage, map[string]any{
		"broadcaster_user_login": "streamer",
		"chatter_user_login":     "chatter",
		"message_id":             "msg-123",
		"message":                map[string]any{"text": "hello there", "fragments": []any{}},
	})

	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, makeSignedNotification(testWebhookSecret, TypeChatMessage, body))
	assert.Equal(t, 204, rec.Code)

	select {
	case e := <-events:
		chat, ok := e.(domain.ChatEvent)
		require.True(t, ok, "expected ChatEvent, got %T", e)
		assert.Equal(t, "streamer", chat.Channel)
		assert.Equal(t, "chatter", chat.Username)
		assert.Equal(t, "hello there", chat.Text)
		assert.Equal(t, "msg-123", chat.MessageID)
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
}

func TestWebhook_UnsupportedTypeIsDropped(t *testing.T) {
	wh, events := newCapturingWebhook()
	body := makeNotificationBody("channel.raid", map[string]any{"to_broadcaster_user_login": "streamer"})

	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, makeSignedNotification(testWebhookSecret, "channel.raid", body))
	assert.Equal(t, 204, rec.Code)

	select {
	case e := <-events:
		t.Fatalf("unexpected event %T", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhook_StreamOnlineIsEmitted(t *testing.T) {
	wh, events := newCapturingWebhook()
	body := makeNotificationBody(TypeStreamOnline, map[string]any{
		"broadcaster_user_login": "streamer",
		"type":                   "live",
		"started_at":             "2024-05-01T18:00:00Z",
	})

	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, makeSignedNotification(testWebhookSecret, TypeStreamOnline, body))
	assert.Equal(t, 204, rec.Code)

	select {
	case e := <-events:
		online, ok := e.(domain.StreamOnlineEvent)
		require.True(t, ok, "expected StreamOnlineEvent, got %T", e)
		assert.Equal(t, "streamer", online.Channel)
		assert.Equal(t, "live", online.Type)
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	wh, events := newCapturingWebhook()
	body := makeNotificationBody(TypeFollow, map[string]any{"broadcaster_user_login": "streamer", "user_name": "Newbie"})

	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, makeSignedNotification("wrong-secret-0987654321", TypeFollow, body))
	assert.Equal(t, 403, rec.Code)
	assert.Empty(t, events)
}
