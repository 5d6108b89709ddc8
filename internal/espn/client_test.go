package espn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scoreboardJSON = `{
	"events": [{
		"id": "401547417",
		"name": "Kansas City Chiefs at Buffalo Bills",
		"shortName": "KC @ BUF",
		"date": "2024-01-21T23:30Z",
		"status": {"type": {"name": "STATUS_FINAL", "state": "post", "completed": true}},
		"competitions": [{
			"id": "401547417",
			"status": {"type": {"name": "STATUS_FINAL", "state": "post", "completed": true}},
			"competitors": [
				{"homeAway": "home", "winner": false, "score": "24", "team": {"id": "2", "abbreviation": "BUF", "displayName": "Buffalo Bills"}},
				{"homeAway": "away", "winner": true, "score": "27", "team": {"id": "12", "abbreviation": "KC", "displayName": "Kansas City Chiefs"}}
			]
		}]
	}]
}`

func TestScoreboard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/site/v2/sports/football/nfl/scoreboard", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(scoreboardJSON))
	}))
	defer server.Close()

	sb, err := NewClient(server.URL).Scoreboard(context.Background(), "football", "nfl")
	require.NoError(t, err)
	require.Len(t, sb.Events, 1)

	result, winner := sb.Events[0].Competitions[0].Outcome()
	assert.Equal(t, ResultWinner, result)
	require.NotNil(t, winner)
	assert.True(t, winner.Matches("kc"))
	assert.True(t, winner.Matches("Kansas City Chiefs"))
	assert.False(t, winner.Matches("BUF"))
}

func TestCompetition_Summary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/site/v2/sports/soccer/eng.1/summary", r.URL.Path)
		assert.Equal(t, "700", r.URL.Query().Get("event"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"header": {"id": "700", "competitions": [{
			"status": {"type": {"name": "STATUS_FULL_TIME", "completed": true}},
			"competitors": [
				{"homeAway": "home", "winner": false, "score": "1", "team": {"id": "1", "abbreviation": "ARS"}},
				{"homeAway": "away", "winner": false, "score": "1", "team": {"id": "2", "abbreviation": "CHE"}}
			]}]}}`))
	}))
	defer server.Close()

	ref, err := ParseEventRef("soccer/eng.1/700")
	require.NoError(t, err)

	comp, err := NewClient(server.URL).Competition(context.Background(), ref)
	require.NoError(t, err)
	result, winner := comp.Outcome()
	assert.Equal(t, ResultDraw, result)
	assert.Nil(t, winner)
}

func TestCompetition_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Competition(context.Background(), EventRef{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestOutcome(t *testing.T) {
	var c Competition
	c.Status.Type.Name = "STATUS_IN_PROGRESS"
	result, _ := c.Outcome()
	assert.Equal(t, ResultPending, result)

	c.Status.Type.Name = "STATUS_POSTPONED"
	result, _ = c.Outcome()
	assert.Equal(t, ResultCancelled, result)
}

func TestParseEventRef(t *testing.T) {
	ref, err := ParseEventRef("basketball/nba/123")
	require.NoError(t, err)
	assert.Equal(t, EventRef{"basketball", "nba", "123"}, ref)
	assert.Equal(t, "basketball/nba/123", ref.String())

	for _, bad := range []string{"", "nba/123", "a//b", "a/b/c/d"} {
		_, err := ParseEventRef(bad)
		assert.ErrorIs(t, err, ErrInvalidEventRef, bad)
	}
}
