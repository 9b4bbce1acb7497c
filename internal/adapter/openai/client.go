package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/sashabaranov/go-openai"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/retry"
)

const defaultSystemPrompt = `Your primary role on this Twitch channel is to facilitate and enhance the interactions between human users.
While you may receive mentions (@%s), these should be treated as proactive requests for assistance or information.
The vast majority of messages in the chat are conversations between users and the streamer.
Your task is to observe these conversations and respond appropriately, supporting the streamer and the community.
Keep it casual and upbeat, usually one or two sentences (max 500 characters).
If someone asks you to join a Stream Racer race, just say "race" or a sentence with "race" in it.`

const defaultMatchSystemPrompt = `You are a PUBG caster commenting on a match that just finished.
You receive the match data, the team data and the stats of every team member as JSON.
Give a short and entertaining recap of how the team did, mention standout stats and keep it under 500 characters.`

type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	ModerationModel   string
	SpeechModel       string
	BotUsername       string
	SystemPrompt      string
	MatchSystemPrompt string
}

func newAPI(cfg Config) *oai.Client {
	c := oai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return oai.NewClientWithConfig(c)
}

// Client implements domain.CompletionClient with chat completions.
type Client struct {
	api          *oai.Client
	model        string
	systemPrompt string
	matchPrompt  string
	policy       retry.Policy
}

func NewClient(cfg Config) *Client {
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = fmt.Sprintf(defaultSystemPrompt, strings.ToLower(cfg.BotUsername))
	}
	matchPrompt := cfg.MatchSystemPrompt
	if matchPrompt == "" {
		matchPrompt = defaultMatchSystemPrompt
	}

	return &Client{
		api:          newAPI(cfg),
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		matchPrompt:  matchPrompt,
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   time.Second,
			MaxBackoff:       10 * time.Second,
			RateLimitBackoff: 10 * time.Second,
		},
	}
}

func (c *Client) GetCompletion(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, c.systemPrompt, oai.ChatCompletionMessage{
		Role:    oai.ChatMessageRoleUser,
		Content: prompt,
	})
}

// GetAwareCompletion sends the recent chat lines as separate text parts of
// one user message.
func (c *Client) GetAwareCompletion(ctx context.Context, history []string) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("%w: no history to respond to", domain.ErrCompletion)
	}
	parts := make([]oai.ChatMessagePart, 0, len(history))
	for _, line := range history {
		parts = append(parts, textPart(line))
	}
	return c.complete(ctx, c.systemPrompt, oai.ChatCompletionMessage{
		Role:         oai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

func (c *Client) GetMatchCompletion(ctx context.Context, prompt string, match domain.MatchSummary) (string, error) {
	data, err := json.Marshal(match)
	if err != nil {
		return "", fmt.Errorf("%w: encode match: %w", domain.ErrCompletion, err)
	}

	var parts []oai.ChatMessagePart
	if prompt != "" {
		parts = append(parts, textPart(prompt))
	}
	parts = append(parts, textPart(string(data)))

	return c.complete(ctx, c.matchPrompt, oai.ChatCompletionMessage{
		Role:         oai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

func (c *Client) complete(ctx context.Context, systemPrompt string, message oai.ChatCompletionMessage) (string, error) {
	p := c.policy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Completion failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	resp, err := retry.Do(ctx, p, classifyAPIError, func(ctx context.Context) (oai.ChatCompletionResponse, error) {
		return c.api.CreateChatCompletion(ctx, oai.ChatCompletionRequest{
			Model: c.model,
			N:     1,
			Messages: []oai.ChatCompletionMessage{
				{Role: oai.ChatMessageRoleSystem, Content: systemPrompt},
				message,
			},
		})
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", domain.ErrCompletion, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices", domain.ErrCompletion)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrCompletion)
	}
	return content, nil
}

func textPart(text string) oai.ChatMessagePart {
	return oai.ChatMessagePart{Type: oai.ChatMessagePartTypeText, Text: text}
}

// classifyAPIError retries transport errors and 5xx, waits longer on 429
// and stops on every other API error.
func classifyAPIError(err error) retry.Action {
	status := 0
	if apiErr, ok := errors.AsType[*oai.APIError](err); ok {
		status = apiErr.HTTPStatusCode
	} else if reqErr, ok := errors.AsType[*oai.RequestError](err); ok {
		status = reqErr.HTTPStatusCode
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return retry.Stop
	case status == 0:
		return retry.Retry
	case status == http.StatusTooManyRequests:
		return retry.After
	case status >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}
