package contractdesksdk

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

// Client is a minimal Contractdesk HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string
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

// Contract represents the API contract model (partial).
type Contract struct {
	ID                       string   `json:"id"`
	ContractNumber           string   `json:"contract_number"`
	FrameworkContractNumber  *string  `json:"framework_contract_number,omitempty"`
	IsFrameworkContract      bool     `json:"is_framework_contract"`
	IsConstructionInvestment bool     `json:"is_construction_investment"`
	Title                    *string  `json:"title,omitempty"`
	ContractValue            *float64 `json:"contract_value,omitempty"`
	ExecutorID               *string  `json:"executor_id,omitempty"`
	SettlementHandlerID      *string  `json:"settlement_handler_id,omitempty"`
	IssuedByID               string   `json:"issued_by_id"`
	IsSettled                bool     `json:"is_settled"`
	Status                   string   `json:"status"`
}

// UpdateResult carries the patched contract with the silent-drop decision.
type UpdateResult struct {
	Contract Contract `json:"contract"`
	Applied  []string `json:"applied"`
	Ignored  []string `json:"ignored"`
}

// Actor represents an API actor.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Notification represents a delivered notice.
type Notification struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Link        string `json:"link,omitempty"`
	IsRead      bool   `json:"is_read"`
	CreatedAt   string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedContracts wraps contract listings with cursors.
type PaginatedContracts struct {
	Items      []Contract `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// PaginatedNotifications wraps notification listings with cursors.
type PaginatedNotifications struct {
	Items      []Notification `json:"items"`
	NextCursor string         `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateContract issues a contract. Fields follows the create request schema.
func (c *Client) CreateContract(ctx context.Context, fields map[string]any) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodPost, "v0/contracts", fields, &resp)
	return resp, err
}

// GetContract fetches a contract by id.
func (c *Client) GetContract(ctx context.Context, id string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodGet, "v0/contracts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateContract applies a partial update and reports which fields stuck.
func (c *Client) UpdateContract(ctx context.Context, id string, patch map[string]any) (UpdateResult, error) {
	var resp UpdateResult
	err := c.do(ctx, http.MethodPatch, "v0/contracts/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

// ContractsPage returns a paginated contract listing.
func (c *Client) ContractsPage(ctx context.Context, limit int, cursor string) (PaginatedContracts, error) {
	var resp PaginatedContracts
	err := c.do(ctx, http.MethodGet, listEndpoint("v0/contracts", limit, cursor), nil, &resp)
	return resp, err
}

// ReassignExecutor moves execution to another executor; empty clears it.
func (c *Client) ReassignExecutor(ctx context.Context, contractID, executorID string) (Contract, error) {
	var resp Contract
	endpoint := "v0/contracts/" + url.PathEscape(contractID) + "/executor"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"actor_id": executorID}, &resp)
	return resp, err
}

// AssignSettlementHandler routes settlement; empty clears it.
func (c *Client) AssignSettlementHandler(ctx context.Context, contractID, handlerID string) (Contract, error) {
	var resp Contract
	endpoint := "v0/contracts/" + url.PathEscape(contractID) + "/settlement-handler"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"actor_id": handlerID}, &resp)
	return resp, err
}

// CreateActor registers an actor.
func (c *Client) CreateActor(ctx context.Context, id, displayName, role string) (Actor, error) {
	body := map[string]any{
		"display_name": displayName,
		"role":         role,
	}
	if id != "" {
		body["id"] = id
	}
	var resp Actor
	err := c.do(ctx, http.MethodPost, "v0/actors", body, &resp)
	return resp, err
}

// Notifications returns the caller's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool, limit int, cursor string) (PaginatedNotifications, error) {
	endpoint := listEndpoint("v0/notifications", limit, cursor)
	if unreadOnly {
		endpoint = appendQuery(endpoint, "unread=true")
	}
	var resp PaginatedNotifications
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "v0/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, listEndpoint("v0/events", limit, cursor), nil, &resp)
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
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
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

func listEndpoint(endpoint string, limit int, cursor string) string {
	if limit > 0 {
		endpoint = appendQuery(endpoint, fmt.Sprintf("limit=%d", limit))
	}
	if cursor != "" {
		endpoint = appendQuery(endpoint, "cursor="+url.QueryEscape(cursor))
	}
	return endpoint
}

func appendQuery(endpoint, pair string) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + pair
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
