package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/nicklaw5/helix/v2"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/retry"
)

// StatusError is a non-success Helix response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case e.StatusCode >= 500:
		return domain.ErrTransient
	default:
		return nil
	}
}

// classifyHelixError retries transport failures and 5xx, waits longer on 429
// and stops on every other status.
func classifyHelixError(err error) retry.Action {
	statusErr, ok := errors.AsType[*StatusError](err)
	if !ok {
		return retry.Retry
	}
	switch {
	case statusErr.StatusCode == http.StatusTooManyRequests:
		return retry.After
	case statusErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

// HelixGateway performs user-token Helix calls for the bot account.
type HelixGateway struct {
	mu     sync.Mutex
	client *helix.Client
}

func NewHelixGateway(clientID, clientSecret, userAccessToken string) (*HelixGateway, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}
	client.SetUserAccessToken(userAccessToken)

	return &HelixGateway{client: client}, nil
}

func (g *HelixGateway) UserID(ctx context.Context, login string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	resp, err := g.client.GetUsers(&helix.UsersParams{Logins: []string{login}})
	g.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("get user %s: %w", login, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: "get user " + login, StatusCode: resp.StatusCode, Message: resp.ErrorMessage}
	}
	if len(resp.Data.Users) == 0 {
		return "", fmt.Errorf("user %s: %w", login, domain.ErrNotFound)
	}
	return resp.Data.Users[0].ID, nil
}

func (g *HelixGateway) SendChatMessage(ctx context.Context, broadcasterID, senderID, text, replyParentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	resp, err := g.client.SendChatMessage(&helix.SendChatMessageParams{
		BroadcasterID:        broadcasterID,
		SenderID:             senderID,
		Message:              text,
		ReplyParentMessageID: replyParentID,
	})
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "send chat message", StatusCode: resp.StatusCode, Message: resp.ErrorMessage}
	}
	return nil
}

// CreateClip starts a clip and returns its id and edit URL.
func (g *HelixGateway) CreateClip(ctx context.Context, broadcasterID string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	g.mu.Lock()
	resp, err := g.client.CreateClip(&helix.CreateClipParams{BroadcasterID: broadcasterID})
	g.mu.Unlock()
	if err != nil {
		return "", "", fmt.Errorf("create clip: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", "", &StatusError{Op: "create clip", StatusCode: resp.StatusCode, Message: resp.ErrorMessage}
	}
	if len(resp.Data.ClipEditURLs) == 0 {
		return "", "", errors.New("no clip returned from Twitch API")
	}
	clip := resp.Data.ClipEditURLs[0]
	return clip.ID, clip.EditURL, nil
}

// CreateWebSocketSubscription subscribes the websocket session to sub.
// A 409 means the subscription already exists and counts as success.
func (g *HelixGateway) CreateWebSocketSubscription(ctx context.Context, sub Subscription, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	resp, err := g.client.CreateEventSubSubscription(&helix.EventSubSubscription{
		Type:    sub.Type,
		Version: sub.Version,
		Condition: helix.EventSubCondition{
			BroadcasterUserID: sub.Condition["broadcaster_user_id"],
			ModeratorUserID:   sub.Condition["moderator_user_id"],
			UserID:            sub.Condition["user_id"],
		},
		Transport: helix.EventSubTransport{
			Method:    "websocket",
			SessionID: sessionID,
		},
	})
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("create eventsub subscription %s: %w", sub.Type, err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusConflict:
		return nil
	default:
		return &StatusError{Op: "subscribe " + sub.Type, StatusCode: resp.StatusCode, Message: resp.ErrorMessage}
	}
}
