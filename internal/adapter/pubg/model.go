package pubg

import (
	"encoding/json"
	"fmt"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

type resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type playersResponse struct {
	Data []resource `json:"data"`
}

type playerResponse struct {
	Data struct {
		resource
		Relationships struct {
			Matches struct {
				Data []resource `json:"data"`
			} `json:"matches"`
		} `json:"relationships"`
	} `json:"data"`
}

type matchResponse struct {
	Data struct {
		resource
		Attributes domain.MatchAttributes `json:"attributes"`
	} `json:"data"`
	Included []includedResource `json:"included"`
}

type includedResource struct {
	resource
	Attributes    json.RawMessage `json:"attributes"`
	Relationships struct {
		Participants struct {
			Data []resource `json:"data"`
		} `json:"participants"`
	} `json:"relationships"`
}

type participantAttributes struct {
	Stats domain.ParticipantStats `json:"stats"`
}

type rosterAttributes struct {
	Won   string `json:"won"`
	Stats struct {
		Rank   int64 `json:"rank"`
		TeamID int64 `json:"teamId"`
	} `json:"stats"`
}

// parseMatch reads a matches/{id} document. Assets and other included
// resource types are ignored.
func parseMatch(raw []byte) (*domain.Match, error) {
	var doc matchResponse
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode match: %w", err)
	}
	if doc.Data.ID == "" {
		return nil, fmt.Errorf("decode match: missing id")
	}

	match := &domain.Match{
		ID:           doc.Data.ID,
		Attributes:   doc.Data.Attributes,
		Participants: make(map[string]domain.ParticipantStats),
		Raw:          json.RawMessage(raw),
	}

	for _, inc := range doc.Included {
		switch inc.Type {
		case "participant":
			var attrs participantAttributes
			if err := json.Unmarshal(inc.Attributes, &attrs); err != nil {
				return nil, fmt.Errorf("decode participant %s: %w", inc.ID, err)
			}
			match.Participants[inc.ID] = attrs.Stats

		case "roster":
			var attrs rosterAttributes
			if err := json.Unmarshal(inc.Attributes, &attrs); err != nil {
				return nil, fmt.Errorf("decode roster %s: %w", inc.ID, err)
			}
			roster := domain.Roster{
				ID:     inc.ID,
				TeamID: attrs.Stats.TeamID,
				Rank:   attrs.Stats.Rank,
				Won:    attrs.Won == "true",
			}
			for _, p := range inc.Relationships.Participants.Data {
				roster.ParticipantIDs = append(roster.ParticipantIDs, p.ID)
			}
			match.Rosters = append(match.Rosters, roster)
		}
	}

	return match, nil
}
