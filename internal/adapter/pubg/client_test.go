package pubg

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

// newTestClient points a client at handler with millisecond backoffs.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, mediaType, r.Header.Get("Accept"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/", Platform: "steam"})
	c.policy.InitialBackoff = time.Millisecond
	c.policy.RateLimitBackoff = time.Millisecond
	return c, &calls
}

func TestFindPlayerID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shards/steam/players", r.URL.Path)
		assert.Equal(t, "PlayerX", r.URL.Query().Get("filter[playerNames]"))
		_, _ = w.Write([]byte(`{"data":[{"type":"player","id":"account.x","attributes":{"name":"PlayerX"}}]}`))
	})

	id, err := c.FindPlayerID(t.Context(), "PlayerX")
	require.NoError(t, err)
	assert.Equal(t, "account.x", id)
}

func TestFindPlayerID_NotFound(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.FindPlayerID(t.Context(), "Nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFindPlayerID_EmptyData(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	_, err := c.FindPlayerID(t.Context(), "Nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetPlayerMatches(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shards/steam/players/account.x", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"type":"player","id":"account.x","relationships":{"matches":{"data":[
			{"type":"match","id":"m-3"},{"type":"match","id":"m-2"},{"type":"match","id":"m-1"}]}}}}`))
	})

	ids, err := c.GetPlayerMatches(t.Context(), "account.x")
	require.NoError(t, err)
	assert.Equal(t, []string{"m-3", "m-2", "m-1"}, ids)
}

func TestGetMatch(t *testing.T) {
	fixture, err := os.ReadFile("testdata/match.json")
	require.NoError(t, err)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shards/steam/matches/abc-123", r.URL.Path)
		_, _ = w.Write(fixture)
	})

	match, err := c.GetMatch(t.Context(), "abc-123")
	require.NoError(t, err)

	assert.Equal(t, "abc-123", match.ID)
	assert.Equal(t, "Baltic_Main", match.Attributes.MapName)
	assert.Equal(t, "squad-fpp", match.Attributes.GameMode)
	assert.Equal(t, int64(1834), match.Attributes.Duration)
	assert.JSONEq(t, string(fixture), string(match.Raw))

	require.Len(t, match.Rosters, 2)
	assert.Equal(t, domain.Roster{ID: "roster-1", TeamID: 4, Rank: 1, Won: true, ParticipantIDs: []string{"p-1", "p-2"}}, match.Rosters[0])
	assert.False(t, match.Rosters[1].Won)

	require.Len(t, match.Participants, 3)
	x := match.Participants["p-1"]
	assert.Equal(t, "PlayerX", x.Name)
	assert.Equal(t, int64(7), x.Kills)
	assert.Equal(t, int64(3), x.DBNOs)
	assert.InDelta(t, 512.5, x.DamageDealt, 0.001)

	summary, err := match.Summarize("PlayerX")
	require.NoError(t, err)
	assert.Equal(t, domain.TeamSummary{TeamID: 4, Rank: 1, Won: true}, summary.Team)
	assert.Len(t, summary.Participants, 2)
}

func TestGetMatch_RetriesServerErrors(t *testing.T) {
	fixture, err := os.ReadFile("testdata/match.json")
	require.NoError(t, err)

	var attempts atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(fixture)
	})

	match, err := c.GetMatch(t.Context(), "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", match.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetMatch_RateLimitedThenOK(t *testing.T) {
	fixture, err := os.ReadFile("testdata/match.json")
	require.NoError(t, err)

	var attempts atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(fixture)
	})

	_, err = c.GetMatch(t.Context(), "abc-123")
	require.NoError(t, err)
}

func TestGetMatch_ClientErrorStops(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.GetMatch(t.Context(), "abc-123")
	statusErr, ok := errors.AsType[*StatusError](err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCircuitBreakerOpensOnSustainedFailures(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c.policy.MaxAttempts = 1

	for range 5 {
		_, err := c.GetMatch(t.Context(), "abc-123")
		assert.ErrorIs(t, err, domain.ErrTransient)
	}
	require.Equal(t, int32(5), calls.Load())

	_, err := c.GetMatch(t.Context(), "abc-123")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, int32(5), calls.Load(), "open circuit must not reach the API")
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for range 8 {
		_, err := c.GetMatch(t.Context(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, int32(8), calls.Load())
}

func TestParseMatch_MissingID(t *testing.T) {
	_, err := parseMatch([]byte(`{"data":{"type":"match"}}`))
	assert.Error(t, err)
}
