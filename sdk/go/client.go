package pressflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Pressflow HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Item represents the API content item model (partial).
type Item struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	AuthorID string `json:"author_id"`
	DateUTC  string `json:"date_utc,omitempty"`
	Link     string `json:"link"`
	EditLink string `json:"editLink"`
}

// FlowData is the publish-flow aggregate for one item.
type FlowData struct {
	Item         Item           `json:"item"`
	Ready        bool           `json:"ready"`
	Scheduled    bool           `json:"scheduled"`
	PostDate     string         `json:"postDate"`
	PostDatePast bool           `json:"postDatePast"`
	EditLink     string         `json:"editLink"`
	PostLink     string         `json:"postLink"`
	PublishNonce string         `json:"publishNonce"`
	Snapshot     map[string]any `json:"snapshot"`
}

// PublishResult mirrors the publish endpoint body. Outcome carries
// "published" or "scheduled" on success and "error" when the actor may
// not publish; later-stage failures fill Status instead.
type PublishResult struct {
	Outcome  string `json:"outcome,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
	PostLink string `json:"postLink,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// PaginatedItems wraps item listings with cursors.
type PaginatedItems struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// CreateItem creates a content item.
func (c *Client) CreateItem(ctx context.Context, itemType, title, content string) (Item, error) {
	body := map[string]any{
		"type":    itemType,
		"title":   title,
		"content": content,
	}
	var resp Item
	err := c.do(ctx, http.MethodPost, "v0/items", body, &resp)
	return resp, err
}

// GetItem fetches one item.
func (c *Client) GetItem(ctx context.Context, id int64) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/items/%d", id), nil, &resp)
	return resp, err
}

// ListItems returns a page of items.
func (c *Client) ListItems(ctx context.Context, itemType, status string, limit int, cursor string) (PaginatedItems, error) {
	q := url.Values{}
	if itemType != "" {
		q.Set("type", itemType)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/items"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedItems
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetMeta replaces the value list for one metadata key.
func (c *Client) SetMeta(ctx context.Context, itemID int64, key string, values []string) error {
	endpoint := fmt.Sprintf("v0/items/%d/meta/%s", itemID, url.PathEscape(key))
	return c.do(ctx, http.MethodPut, endpoint, map[string]any{"values": values}, nil)
}

// SetTerms replaces the term set for one taxonomy.
func (c *Client) SetTerms(ctx context.Context, itemID int64, taxonomy string, terms map[int64]string) error {
	list := make([]map[string]any, 0, len(terms))
	for id, name := range terms {
		list = append(list, map[string]any{"id": id, "name": name})
	}
	endpoint := fmt.Sprintf("v0/items/%d/terms/%s", itemID, url.PathEscape(taxonomy))
	return c.do(ctx, http.MethodPut, endpoint, map[string]any{"terms": list}, nil)
}

// GetFlow returns the publish-flow aggregate, including a fresh nonce.
func (c *Client) GetFlow(ctx context.Context, itemID int64) (FlowData, error) {
	var resp FlowData
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/items/%d/flow", itemID), nil, &resp)
	return resp, err
}

// Publish submits the legacy publish action. The endpoint answers 200
// for every stage; inspect the result body to tell outcomes apart.
func (c *Client) Publish(ctx context.Context, itemID int64, nonce string) (PublishResult, error) {
	body := map[string]any{
		"action":           "pf_publish_post",
		"post_id":          itemID,
		"pf_publish_nonce": nonce,
	}
	var resp PublishResult
	err := c.do(ctx, http.MethodPost, "v0/publish", body, &resp)
	return resp, err
}

// Readiness evaluates one item without publishing it.
func (c *Client) Readiness(ctx context.Context, itemID int64) (bool, error) {
	var resp struct {
		Ready bool `json:"ready"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/items/%d/readiness", itemID), nil, &resp)
	return resp.Ready, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, 0)
	return page.Items, err
}

// EventsPage returns a paginated event listing starting after the given id.
func (c *Client) EventsPage(ctx context.Context, limit int, after int64) (PaginatedEvents, error) {
	endpoint := "v0/events"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if after > 0 {
		q.Set("after", fmt.Sprint(after))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
