// Package rest consumes the group-chat HTTP API, currently only the message
// history endpoint used for initial load and backward pagination.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"groupchat-client/internal/models"
	"groupchat-client/internal/observability"
)

const defaultRequestTimeout = 15 * time.Second

// TokenFunc supplies the current bearer token; the auth/refresh mechanism
// behind it is someone else's problem.
type TokenFunc func() string

// HistoryClient fetches message history pages.
type HistoryClient struct {
	baseURL string
	client  *http.Client
	token   TokenFunc
}

// NewHistoryClient builds a client against the API base URL.
func NewHistoryClient(baseURL string, token TokenFunc) *HistoryClient {
	return &HistoryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		token:   token,
	}
}

// FetchMessages returns one history page, oldest first within the page, as
// served by GET /api/v1/group-chat/{groupID}/messages?skip=&limit=.
func (c *HistoryClient) FetchMessages(ctx context.Context, groupID string, skip, limit int) ([]models.GroupChatMessage, error) {
	ctx, span := otel.Tracer("groupchat-client/rest").Start(ctx, "history.fetch")
	defer span.End()
	start := time.Now()

	endpoint := fmt.Sprintf("%s/api/v1/group-chat/%s/messages", c.baseURL, url.PathEscape(groupID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	q := req.URL.Query()
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	req.URL.RawQuery = q.Encode()

	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history for group %s: %w", groupID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history for group %s: unexpected status %d", groupID, resp.StatusCode)
	}

	var body struct {
		Messages []models.GroupChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode history for group %s: %w", groupID, err)
	}

	observability.ObserveHistoryFetch(time.Since(start))
	if body.Messages == nil {
		body.Messages = []models.GroupChatMessage{}
	}
	return body.Messages, nil
}
