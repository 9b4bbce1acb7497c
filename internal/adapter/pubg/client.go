package pubg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/retry"
)

const (
	mediaType      = "application/vnd.api+json"
	requestTimeout = 15 * time.Second
	maxBodyBytes   = 16 << 20
)

// StatusError is a non-success PUBG API response.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pubg %s: status %d", e.Path, e.StatusCode)
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

type Config struct {
	APIKey   string
	BaseURL  string
	Platform string

	// OnBreakerStateChange observes circuit breaker transitions.
	OnBreakerStateChange func(state string)
}

// Client implements domain.GameStatsClient against the PUBG developer API.
type Client struct {
	http     *http.Client
	baseURL  string
	platform string
	apiKey   string
	cb       circuitbreaker.CircuitBreaker[any]
	policy   retry.Policy
}

func NewClient(cfg Config) *Client {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 30*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "pubg",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if cfg.OnBreakerStateChange != nil {
				cfg.OnBreakerStateChange(e.NewState.String())
			}
		}).
		Build()

	return &Client{
		http:     &http.Client{Timeout: requestTimeout},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		platform: cfg.Platform,
		apiKey:   cfg.APIKey,
		cb:       cb,
		policy: retry.Policy{
			MaxAttempts:      6,
			InitialBackoff:   time.Second,
			MaxBackoff:       30 * time.Second,
			RateLimitBackoff: 10 * time.Second,
		},
	}
}

func (c *Client) FindPlayerID(ctx context.Context, name string) (string, error) {
	body, err := c.get(ctx, "players", url.Values{"filter[playerNames]": {name}})
	if err != nil {
		return "", fmt.Errorf("find player %s: %w", name, err)
	}

	var resp playersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode players: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("player %s: %w", name, domain.ErrNotFound)
	}
	return resp.Data[0].ID, nil
}

// GetPlayerMatches lists the player's recent match ids, newest first.
func (c *Client) GetPlayerMatches(ctx context.Context, playerID string) ([]string, error) {
	body, err := c.get(ctx, "players/"+url.PathEscape(playerID), nil)
	if err != nil {
		return nil, fmt.Errorf("get player %s: %w", playerID, err)
	}

	var resp playerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode player: %w", err)
	}
	ids := make([]string, 0, len(resp.Data.Relationships.Matches.Data))
	for _, m := range resp.Data.Relationships.Matches.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *Client) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	body, err := c.get(ctx, "matches/"+url.PathEscape(matchID), nil)
	if err != nil {
		return nil, fmt.Errorf("get match %s: %w", matchID, err)
	}
	return parseMatch(body)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	p := c.policy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "PUBG request failed, retrying", "path", path, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return retry.Do(ctx, p, classifyError, func(ctx context.Context) ([]byte, error) {
		return c.guarded(ctx, path, query)
	})
}

// guarded runs one request through the circuit breaker. Only transport
// failures and 5xx count against the breaker.
func (c *Client) guarded(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if !c.cb.TryAcquirePermit() {
		return nil, fmt.Errorf("%w: pubg circuit breaker: %w", domain.ErrTransient, circuitbreaker.ErrOpen)
	}

	body, err := c.do(ctx, path, query)
	if countsAsFailure(err) {
		c.cb.RecordError(err)
	} else {
		c.cb.RecordSuccess()
	}
	return body, err
}

func (c *Client) do(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/shards/%s/%s", c.baseURL, c.platform, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", mediaType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pubg %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{Path: path, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read pubg %s: %w", path, err)
	}
	return body, nil
}

func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	statusErr, ok := errors.AsType[*StatusError](err)
	return !ok || statusErr.StatusCode >= 500
}

// classifyError retries transport failures and 5xx, waits longer on 429
// and stops on everything else, including an open circuit.
func classifyError(err error) retry.Action {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return retry.Stop
	}
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
