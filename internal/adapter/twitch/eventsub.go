package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Its-donkey/kappopher/helix"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/retry"
)

const (
	defaultShardID        = "0"
	appTokenTimeout       = 15 * time.Second
	retryInitialBackoff   = 1 * time.Second
	retryRateLimitBackoff = 30 * time.Second
)

// ConduitSource receives EventSub notifications through a conduit with a
// single webhook shard. The webhook itself is served by WebhookHandler.
type ConduitSource struct {
	client *helix.Client
	emit   func(domain.Event)

	conduitID   string
	callbackURL string
	secret      string

	// OnSession runs after the conduit is configured, before ConnectedEvent.
	OnSession func(ctx context.Context) error
}

func NewConduitSource(clientID, clientSecret, callbackURL, secret string, emit func(domain.Event)) (*ConduitSource, error) {
	ctx, cancel := context.WithTimeout(context.Background(), appTokenTimeout)
	defer cancel()

	auth := helix.NewAuthClient(helix.AuthConfig{ClientID: clientID, ClientSecret: clientSecret})
	client := helix.NewClient(clientID, auth)

	if _, err := auth.GetAppAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to get app access token: %w", err)
	}

	return &ConduitSource{
		client:      client,
		emit:        emit,
		callbackURL: callbackURL,
		secret:      secret,
	}, nil
}

func (s *ConduitSource) Start(ctx context.Context) error {
	conduit, err := s.findOrCreateConduit(ctx)
	if err != nil {
		return err
	}

	if err := s.configureShard(ctx, conduit.ID); err != nil {
		conduit, err = s.recreateConduit(ctx, conduit.ID, err)
		if err != nil {
			return err
		}
	}

	s.conduitID = conduit.ID
	slog.Info("Conduit configured with webhook shard", "conduit_id", conduit.ID, "callback_url", s.callbackURL)

	if s.OnSession != nil {
		if err := s.OnSession(ctx); err != nil {
			return fmt.Errorf("conduit session setup: %w", err)
		}
	}
	s.emit(domain.ConnectedEvent{})
	return nil
}

func (s *ConduitSource) findOrCreateConduit(ctx context.Context) (*helix.Conduit, error) {
	resp, err := s.client.GetConduits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conduits: %w", err)
	}

	if len(resp.Data) > 0 {
		slog.Info("Found existing conduit", "conduit_id", resp.Data[0].ID)
		return &resp.Data[0], nil
	}
	return s.createConduit(ctx)
}

func (s *ConduitSource) createConduit(ctx context.Context) (*helix.Conduit, error) {
	conduit, err := s.client.CreateConduit(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create conduit: %w", err)
	}
	if conduit == nil {
		return nil, errors.New("no conduit returned from Twitch API")
	}

	slog.Info("Created conduit", "conduit_id", conduit.ID, "shard_count", conduit.ShardCount)
	return conduit, nil
}

func (s *ConduitSource) configureShard(ctx context.Context, conduitID string) error {
	params := helix.UpdateConduitShardsParams{
		ConduitID: conduitID,
		Shards: []helix.UpdateConduitShardParams{{
			ID: defaultShardID,
			Transport: helix.UpdateConduitShardTransport{
				Method:   "webhook",
				Callback: s.callbackURL,
				Secret:   s.secret,
			},
		}},
	}
	if _, err := s.client.UpdateConduitShards(ctx, &params); err != nil {
		return fmt.Errorf("failed to update conduit shards: %w", err)
	}
	return nil
}

func (s *ConduitSource) recreateConduit(ctx context.Context, staleID string, shardErr error) (*helix.Conduit, error) {
	slog.Error("Shard configuration failed, recreating conduit", "conduit_id", staleID, "error", shardErr)

	if err := s.client.DeleteConduit(ctx, staleID); err != nil {
		return nil, fmt.Errorf("failed to delete stale conduit: %w", err)
	}

	conduit, err := s.createConduit(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.configureShard(ctx, conduit.ID); err != nil {
		return nil, fmt.Errorf("failed to configure shard on new conduit: %w", err)
	}
	return conduit, nil
}

// Stop deletes the conduit, which drops all of its subscriptions.
func (s *ConduitSource) Stop(ctx context.Context) error {
	if s.conduitID == "" {
		return nil
	}
	if err := s.client.DeleteConduit(ctx, s.conduitID); err != nil {
		return fmt.Errorf("failed to delete conduit: %w", err)
	}

	slog.Info("Deleted conduit", "conduit_id", s.conduitID)
	s.conduitID = ""
	s.emit(domain.DisconnectedEvent{Reason: "conduit deleted"})
	return nil
}

func (s *ConduitSource) Subscribe(ctx context.Context, sub Subscription) error {
	if s.conduitID == "" {
		return errors.New("conduit not configured")
	}

	p := subscribeRetryPolicy()
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "EventSub subscribe failed, retrying", "type", sub.Type, "attempt", attempt, "backoff_seconds", backoff.Seconds(), "error", err)
	}

	err := retry.DoVoid(ctx, p, classifyEventSubError, func(ctx context.Context) error {
		return s.attemptSubscribe(ctx, sub)
	})
	if err != nil {
		label := "after retries"
		if _, ok := errors.AsType[*retry.PermanentError](err); ok {
			label = "permanent"
		}
		return fmt.Errorf("EventSub subscribe %s failed (%s): %w", sub.Type, label, err)
	}
	return nil
}

func (s *ConduitSource) attemptSubscribe(ctx context.Context, sub Subscription) error {
	params := helix.CreateEventSubSubscriptionParams{
		Type:      sub.Type,
		Version:   sub.Version,
		Condition: sub.Condition,
		Transport: helix.CreateEventSubTransport{
			Method:    "conduit",
			ConduitID: s.conduitID,
		},
	}
	created, err := s.client.CreateEventSubSubscription(ctx, &params)
	if err != nil {
		if apiErr, ok := errors.AsType[*helix.APIError](err); ok && apiErr.StatusCode == http.StatusConflict {
			slog.InfoContext(ctx, "EventSub subscription already exists", "type", sub.Type, "condition", sub.Condition)
			return nil
		}
		return fmt.Errorf("failed to create EventSub subscription: %w", err)
	}
	if created == nil {
		return errors.New("no subscription returned from Twitch API")
	}

	slog.InfoContext(ctx, "EventSub subscription created", "type", sub.Type, "subscription_id", created.ID)
	return nil
}

func classifyEventSubError(err error) retry.Action {
	apiErr, ok := errors.AsType[*helix.APIError](err)
	if !ok {
		return retry.Retry
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return retry.After
	case apiErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

func subscribeRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:      3,
		InitialBackoff:   retryInitialBackoff,
		RateLimitBackoff: retryRateLimitBackoff,
	}
}
