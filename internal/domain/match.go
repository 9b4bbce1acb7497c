package domain

import (
	"encoding/json"
	"fmt"
)

// Match is one game-stats match: its attributes, rosters and participant
// stats keyed by participant id. Raw keeps the payload as received.
type Match struct {
	ID           string
	Attributes   MatchAttributes
	Rosters      []Roster
	Participants map[string]ParticipantStats
	Raw          json.RawMessage
}

type MatchAttributes struct {
	MatchType     string `json:"matchType"`
	Duration      int64  `json:"duration"`
	GameMode      string `json:"gameMode"`
	MapName       string `json:"mapName"`
	IsCustomMatch bool   `json:"isCustomMatch"`
	TitleID       string `json:"titleId"`
}

type Roster struct {
	ID             string
	TeamID         int64
	Rank           int64
	Won            bool
	ParticipantIDs []string
}

type ParticipantStats struct {
	Name            string  `json:"name"`
	PlayerID        string  `json:"playerId"`
	KillPlace       int64   `json:"killPlace"`
	WinPlace        int64   `json:"winPlace"`
	Kills           int64   `json:"kills"`
	Assists         int64   `json:"assists"`
	DamageDealt     float64 `json:"damageDealt"`
	Heals           int64   `json:"heals"`
	Revives         int64   `json:"revives"`
	Boosts          int64   `json:"boosts"`
	WeaponsAcquired int64   `json:"weaponsAcquired"`
	WalkDistance    float64 `json:"walkDistance"`
	RideDistance    float64 `json:"rideDistance"`
	SwimDistance    float64 `json:"swimDistance"`
	TimeSurvived    int64   `json:"timeSurvived"`
	RoadKills       int64   `json:"roadKills"`
	TeamKills       int64   `json:"teamKills"`
	HeadshotKills   int64   `json:"headshotKills"`
	LongestKill     float64 `json:"longestKill"`
	VehicleDestroys int64   `json:"vehicleDestroys"`
	DBNOs           int64   `json:"DBNOs"`
	KillStreaks     int64   `json:"killStreaks"`
	DeathType       string  `json:"deathType"`
}

// MatchSummary is what the completion client sees of a match: the match
// attributes, the team of one participant and that team's stats.
type MatchSummary struct {
	Match        MatchAttributes    `json:"matchData"`
	Team         TeamSummary        `json:"teamData"`
	Participants []ParticipantStats `json:"teamParticipants"`
}

type TeamSummary struct {
	TeamID int64 `json:"teamId"`
	Rank   int64 `json:"rank"`
	Won    bool  `json:"won"`
}

// Summarize projects the match onto the roster of the named participant.
// It returns ErrNotFound when the participant did not play in the match.
func (m *Match) Summarize(participant string) (MatchSummary, error) {
	participantID := ""
	for id, stats := range m.Participants {
		if stats.Name == participant {
			participantID = id
			break
		}
	}
	if participantID == "" {
		return MatchSummary{}, fmt.Errorf("participant %q in match %s: %w", participant, m.ID, ErrNotFound)
	}

	for _, roster := range m.Rosters {
		for _, id := range roster.ParticipantIDs {
			if id != participantID {
				continue
			}
			summary := MatchSummary{
				Match: m.Attributes,
				Team:  TeamSummary{TeamID: roster.TeamID, Rank: roster.Rank, Won: roster.Won},
			}
			for _, memberID := range roster.ParticipantIDs {
				if stats, ok := m.Participants[memberID]; ok {
					summary.Participants = append(summary.Participants, stats)
				}
			}
			return summary, nil
		}
	}
	return MatchSummary{}, fmt.Errorf("roster of %q in match %s: %w", participant, m.ID, ErrNotFound)
}
