/**
 * @description
 * Client for ESPN's public site API. Sports markets store a reference to an ESPN
 * event in the form "sport/league/eventID" (for example "football/nfl/401547417")
 * and are resolved from the event's final result.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2: HTTP client with retries.
 * - golang.org/x/time/rate: client side throttling.
 */

package espn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://site.api.espn.com"

var (
	ErrInvalidEventRef = errors.New("espn: event reference must be sport/league/eventID")
	ErrEventNotFound   = errors.New("espn: event not found")
)

// Result of a finished or abandoned event.
type Result int

const (
	ResultPending Result = iota
	ResultWinner
	ResultDraw
	ResultCancelled
)

type Team struct {
	ID           string `json:"id"`
	Abbreviation string `json:"abbreviation"`
	DisplayName  string `json:"displayName"`
}

type Competitor struct {
	HomeAway string `json:"homeAway"`
	Winner   bool   `json:"winner"`
	Score    string `json:"score"`
	Team     Team   `json:"team"`
}

type Status struct {
	Type struct {
		Name      string `json:"name"`
		State     string `json:"state"`
		Completed bool   `json:"completed"`
		Detail    string `json:"detail"`
	} `json:"type"`
}

type Competition struct {
	ID          string       `json:"id"`
	Status      Status       `json:"status"`
	Competitors []Competitor `json:"competitors"`
}

type Event struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ShortName    string        `json:"shortName"`
	Date         string        `json:"date"`
	Status       Status        `json:"status"`
	Competitions []Competition `json:"competitions"`
}

type Scoreboard struct {
	Events []Event `json:"events"`
}

type summaryResponse struct {
	Header struct {
		ID           string        `json:"id"`
		Competitions []Competition `json:"competitions"`
	} `json:"header"`
}

// EventRef identifies one ESPN event.
type EventRef struct {
	Sport   string
	League  string
	EventID string
}

func (r EventRef) String() string {
	return r.Sport + "/" + r.League + "/" + r.EventID
}

// ParseEventRef parses "sport/league/eventID".
func ParseEventRef(s string) (EventRef, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(s), "/"), "/")
	if len(parts) != 3 {
		return EventRef{}, ErrInvalidEventRef
	}
	for _, p := range parts {
		if p == "" {
			return EventRef{}, ErrInvalidEventRef
		}
	}
	return EventRef{Sport: parts[0], League: parts[1], EventID: parts[2]}, nil
}

// Outcome reports how the competition ended and, for ResultWinner, who won.
func (c Competition) Outcome() (Result, *Competitor) {
	switch c.Status.Type.Name {
	case "STATUS_CANCELED", "STATUS_POSTPONED", "STATUS_ABANDONED", "STATUS_FORFEIT":
		return ResultCancelled, nil
	}
	if !c.Status.Type.Completed {
		return ResultPending, nil
	}
	for i := range c.Competitors {
		if c.Competitors[i].Winner {
			return ResultWinner, &c.Competitors[i]
		}
	}
	return ResultDraw, nil
}

// Matches reports whether team names this competitor by id, abbreviation or display name.
func (c Competitor) Matches(team string) bool {
	team = strings.TrimSpace(team)
	return team != "" && (strings.EqualFold(c.Team.ID, team) ||
		strings.EqualFold(c.Team.Abbreviation, team) ||
		strings.EqualFold(c.Team.DisplayName, team))
}

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(2, 4),
	}
}

// Scoreboard returns the current scoreboard for a league.
func (c *Client) Scoreboard(ctx context.Context, sport, league string) (*Scoreboard, error) {
	var sb Scoreboard
	path := fmt.Sprintf("/apis/site/v2/sports/%s/%s/scoreboard", sport, league)
	if err := c.get(ctx, path, nil, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// Competition returns the primary competition of one event via the summary endpoint.
func (c *Client) Competition(ctx context.Context, ref EventRef) (*Competition, error) {
	var summary summaryResponse
	path := fmt.Sprintf("/apis/site/v2/sports/%s/%s/summary", ref.Sport, ref.League)
	if err := c.get(ctx, path, map[string]string{"event": ref.EventID}, &summary); err != nil {
		return nil, err
	}
	if len(summary.Header.Competitions) == 0 {
		return nil, ErrEventNotFound
	}
	return &summary.Header.Competitions[0], nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("espn: rate limiter: %w", err)
	}
	resp, err := c.http.R().SetContext(ctx).SetQueryParams(query).SetResult(out).Get(path)
	if err != nil {
		return fmt.Errorf("espn: request: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrEventNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("espn: status %d", resp.StatusCode())
	}
	return nil
}
