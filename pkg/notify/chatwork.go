// Package notify delivers messages to Chatwork rooms and renders the
// notification bodies the dashboard sends.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const chatworkBaseURL = "https://api.chatwork.com/v2"

// ErrEmptyMessage is returned when a send is attempted with a blank body.
// Chatwork rejects empty messages, so the client refuses them before the
// request leaves the process.
var ErrEmptyMessage = errors.New("chatwork message is empty")

// Sender delivers one message to a Chatwork room. Implementations must be
// safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, token, roomID, message string) error
}

// ChatworkClient posts messages to the Chatwork REST API.
type ChatworkClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewChatworkClient creates a Chatwork API client.
func NewChatworkClient(logger *slog.Logger) *ChatworkClient {
	return &ChatworkClient{
		baseURL: chatworkBaseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// SetBaseURL overrides the API endpoint, for tests.
func (c *ChatworkClient) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// Send posts a message to the given room using the user's API token.
func (c *ChatworkClient) Send(ctx context.Context, token, roomID, message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	if token == "" || roomID == "" {
		return errors.New("chatwork token and room id are required")
	}

	form := url.Values{}
	form.Set("body", message)

	endpoint := fmt.Sprintf("%s/rooms/%s/messages", c.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create chatwork request: %w", err)
	}
	req.Header.Set("X-ChatWorkToken", token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send chatwork message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chatwork returned status %d", resp.StatusCode)
	}

	c.logger.Debug("chatwork message sent", "room", roomID, "length", len(message))
	return nil
}
