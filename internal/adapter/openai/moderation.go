package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	oai "github.com/sashabaranov/go-openai"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

// Moderator implements domain.ModerationClient.
type Moderator struct {
	api   *oai.Client
	model string
}

func NewModerator(cfg Config) *Moderator {
	return &Moderator{api: newAPI(cfg), model: cfg.ModerationModel}
}

func (m *Moderator) Classify(ctx context.Context, text string) (domain.ModerationResult, error) {
	resp, err := m.api.Moderations(ctx, oai.ModerationRequest{Input: text, Model: m.model})
	if err != nil {
		return domain.ModerationResult{}, fmt.Errorf("moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return domain.ModerationResult{}, fmt.Errorf("moderation: no results")
	}

	result := resp.Results[0]
	categories, err := flaggedCategories(result.Categories)
	if err != nil {
		return domain.ModerationResult{}, err
	}
	return domain.ModerationResult{Flagged: result.Flagged, Categories: categories}, nil
}

// flaggedCategories lists the category names set in the result, using the
// API's own names.
func flaggedCategories(categories oai.ResultCategories) ([]string, error) {
	data, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("encode moderation categories: %w", err)
	}
	var set map[string]bool
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode moderation categories: %w", err)
	}

	var flagged []string
	for name, on := range set {
		if on {
			flagged = append(flagged, name)
		}
	}
	slices.Sort(flagged)
	return flagged, nil
}
