/*
Package toggl is a minimal client for the Toggl Track v9 API, used only
to derive an hours total for a card.

AUTHENTICATION:
  HTTP Basic with the API token as username and the literal string
  "api_token" as password.

PROXY FALLBACK:
  The source system ran inside a sandboxed iframe and fell back to a
  pass-through CORS proxy when direct calls were blocked. The same
  single-fallback shape is kept here: if the direct call fails at the
  transport level and a proxy URL is configured, the call is retried
  once through the proxy. No backoff, no further retries - a failing
  call surfaces as *APIError and the user re-triggers sync manually.

FAILURE ISOLATION:
  Errors from this package never affect the ledger or reconciliation;
  the two subsystems fail independently.
*/
package toggl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/warp/billing-engine/ledger"
)

const DefaultBaseURL = "https://api.track.toggl.com/api/v9"

// Client calls the Toggl Track API.
type Client struct {
	BaseURL  string
	ProxyURL string // optional pass-through proxy, "" disables the fallback
	APIToken string
	HTTP     *http.Client
}

// New creates a client with the given API token.
func New(apiToken string) *Client {
	return &Client{
		BaseURL:  DefaultBaseURL,
		APIToken: apiToken,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError describes a failed or malformed API response.
type APIError struct {
	Endpoint   string
	StatusCode int // 0 when the call never reached the API
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("toggl api error (%d) on %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("toggl api unreachable on %s: %s", e.Endpoint, e.Message)
}

func (e *APIError) Unwrap() error { return ledger.ErrExternalAPI }

// =============================================================================
// API TYPES
// =============================================================================

type Me struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
}

type Workspace struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Project struct {
	ID          int    `json:"id"`
	WorkspaceID int    `json:"workspace_id"`
	ClientID    int    `json:"client_id"`
	Name        string `json:"name"`
	Billable    bool   `json:"billable"`
	Active      bool   `json:"active"`
}

type ProjectClient struct {
	ID          int    `json:"id"`
	WorkspaceID int    `json:"wid"`
	Name        string `json:"name"`
}

// TimeEntry is a tracked time interval. Duration is in seconds; a
// running timer reports a negative duration and is excluded from totals.
type TimeEntry struct {
	ID          int    `json:"id"`
	WorkspaceID int    `json:"workspace_id"`
	ProjectID   int    `json:"project_id"`
	Description string `json:"description"`
	Start       string `json:"start"`
	Duration    int64  `json:"duration"`
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// Me fetches the authenticated user. Used to verify the token.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	err := c.get(ctx, "/me", &me)
	return me, err
}

// Workspaces lists the user's workspaces.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var ws []Workspace
	err := c.get(ctx, "/me/workspaces", &ws)
	return ws, err
}

// DefaultWorkspace returns the first workspace, matching the source
// system's behavior.
func (c *Client) DefaultWorkspace(ctx context.Context) (Workspace, error) {
	ws, err := c.Workspaces(ctx)
	if err != nil {
		return Workspace{}, err
	}
	if len(ws) == 0 {
		return Workspace{}, &APIError{Endpoint: "/me/workspaces", Message: "no workspaces found"}
	}
	return ws[0], nil
}

// Clients lists the clients in a workspace.
func (c *Client) Clients(ctx context.Context, workspaceID int) ([]ProjectClient, error) {
	var clients []ProjectClient
	err := c.get(ctx, fmt.Sprintf("/workspaces/%d/clients", workspaceID), &clients)
	return clients, err
}

// Projects lists the projects in a workspace.
func (c *Client) Projects(ctx context.Context, workspaceID int) ([]Project, error) {
	var projects []Project
	err := c.get(ctx, fmt.Sprintf("/workspaces/%d/projects", workspaceID), &projects)
	return projects, err
}

// TimeEntries fetches the user's time entries in [start, end].
func (c *Client) TimeEntries(ctx context.Context, start, end time.Time) ([]TimeEntry, error) {
	endpoint := fmt.Sprintf("/me/time_entries?start_date=%s&end_date=%s",
		url.QueryEscape(start.UTC().Format("2006-01-02")),
		url.QueryEscape(end.UTC().Format("2006-01-02")))
	var entries []TimeEntry
	err := c.get(ctx, endpoint, &entries)
	return entries, err
}

// CreateClient creates a client in the workspace.
func (c *Client) CreateClient(ctx context.Context, workspaceID int, name string) (ProjectClient, error) {
	var client ProjectClient
	err := c.post(ctx, fmt.Sprintf("/workspaces/%d/clients", workspaceID),
		map[string]any{"name": name}, &client)
	return client, err
}

// CreateProject creates a billable project linked to a client.
func (c *Client) CreateProject(ctx context.Context, workspaceID int, name string, clientID int, rate float64) (Project, error) {
	var project Project
	err := c.post(ctx, fmt.Sprintf("/workspaces/%d/projects", workspaceID),
		map[string]any{
			"name":      name,
			"client_id": clientID,
			"rate":      rate,
			"billable":  true,
			"active":    true,
		}, &project)
	return project, err
}

// GetOrCreateClient finds a client by exact name or creates it.
func (c *Client) GetOrCreateClient(ctx context.Context, workspaceID int, name string) (ProjectClient, error) {
	clients, err := c.Clients(ctx, workspaceID)
	if err != nil {
		return ProjectClient{}, err
	}
	for _, client := range clients {
		if client.Name == name {
			return client, nil
		}
	}
	return c.CreateClient(ctx, workspaceID, name)
}

// GetOrCreateProject finds a project by exact name or creates it.
func (c *Client) GetOrCreateProject(ctx context.Context, workspaceID int, name string, clientID int, rate float64) (Project, error) {
	projects, err := c.Projects(ctx, workspaceID)
	if err != nil {
		return Project{}, err
	}
	for _, p := range projects {
		if p.Name == name {
			return p, nil
		}
	}
	return c.CreateProject(ctx, workspaceID, name, clientID, rate)
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	return c.call(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &APIError{Endpoint: endpoint, Message: err.Error()}
	}
	return c.call(ctx, http.MethodPost, endpoint, body, out)
}

func (c *Client) call(ctx context.Context, method, endpoint string, body []byte, out any) error {
	if c.APIToken == "" {
		return &APIError{Endpoint: endpoint, Message: "api token not configured"}
	}

	target := c.BaseURL + endpoint
	resp, err := c.do(ctx, method, target, body)
	if err != nil {
		// Transport-level failure: retry once through the proxy.
		if c.ProxyURL == "" {
			return &APIError{Endpoint: endpoint, Message: err.Error()}
		}
		resp, err = c.do(ctx, method, c.ProxyURL+url.QueryEscape(target), body)
		if err != nil {
			return &APIError{Endpoint: endpoint, Message: err.Error()}
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error()}
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.APIToken, "api_token")
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient().Do(req)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
