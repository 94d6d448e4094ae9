// Package metaads fetches ad account insights from the Meta Graph API and
// derives the daily metrics the rule engine evaluates.
package metaads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const graphBaseURL = "https://graph.facebook.com/v18.0"

// ErrTokenExpired indicates the user's access token was rejected and needs
// to be regenerated.
var ErrTokenExpired = errors.New("meta access token expired")

// Client is a thin Graph API insights client. It reports what the API
// returns and nothing more: short account history yields fewer days, never
// padded ones.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a Graph API client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		baseURL: graphBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SetBaseURL overrides the API endpoint, for tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// Action is one conversion event bucket in an insights row.
type Action struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

// DayInsight is one day of raw account-level insights. Numeric fields come
// back as strings on the wire; parsed values are exposed via accessors.
type DayInsight struct {
	DateStart   string   `json:"date_start"`
	DateStop    string   `json:"date_stop"`
	Spend       string   `json:"spend"`
	Impressions string   `json:"impressions"`
	Reach       string   `json:"reach"`
	Clicks      string   `json:"clicks"`
	CPM         string   `json:"cpm"`
	CPC         string   `json:"cpc"`
	CTR         string   `json:"ctr"`
	Actions     []Action `json:"actions"`
}

type insightsResponse struct {
	Data  []DayInsight `json:"data"`
	Error *apiError    `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// DailyInsights fetches per-day insights for the account between since and
// until inclusive, oldest first.
func (c *Client) DailyInsights(ctx context.Context, accessToken, accountID string, since, until time.Time) ([]DayInsight, error) {
	if accessToken == "" || accountID == "" {
		return nil, errors.New("meta access token and account id are required")
	}

	params := url.Values{}
	params.Set("access_token", accessToken)
	params.Set("fields", "spend,impressions,reach,clicks,cpm,cpc,ctr,actions,date_start,date_stop")
	params.Set("time_increment", "1")
	params.Set("since", since.Format("2006-01-02"))
	params.Set("until", until.Format("2006-01-02"))

	endpoint := fmt.Sprintf("%s/%s/insights?%s", c.baseURL, accountID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create insights request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch insights: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read insights response: %w", err)
	}

	var parsed insightsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode insights response: %w", err)
	}

	if parsed.Error != nil {
		// Code 190 covers expired and invalidated OAuth tokens.
		if parsed.Error.Code == 190 {
			return nil, fmt.Errorf("%w: %s", ErrTokenExpired, parsed.Error.Message)
		}
		return nil, fmt.Errorf("meta api error (code %d): %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meta api returned status %d", resp.StatusCode)
	}

	c.logger.Debug("fetched insights", "account", accountID, "days", len(parsed.Data))
	return parsed.Data, nil
}

// num parses a Graph API numeric string, treating blank as zero.
func num(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
