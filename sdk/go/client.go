package boardflowsdk

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

// Client is a minimal Boardflow HTTP API client.
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

// Appeal represents the API appeal model (partial).
type Appeal struct {
	ID          string `json:"id"`
	Docket      string `json:"docket"`
	Stream      string `json:"stream"`
	ReceiptDate string `json:"receipt_date"`
	AOD         bool   `json:"aod"`
	CAVC        bool   `json:"cavc"`
	Priority    bool   `json:"priority"`
}

// Task represents the API task model (partial).
type Task struct {
	ID            string   `json:"id"`
	AppealID      string   `json:"appeal_id"`
	ParentID      string   `json:"parent_id,omitempty"`
	Type          string   `json:"type"`
	Label         string   `json:"label"`
	Status        string   `json:"status"`
	AssignedToID  string   `json:"assigned_to_id,omitempty"`
	AssignedToOrg string   `json:"assigned_to_org,omitempty"`
	Instructions  []string `json:"instructions,omitempty"`
}

// TaskNode is one node in an appeal's task tree.
type TaskNode struct {
	Task     Task       `json:"task"`
	Children []TaskNode `json:"children"`
}

// Hearing represents a scheduled hearing.
type Hearing struct {
	ID            string `json:"id"`
	AppealID      string `json:"appeal_id"`
	HearingDayID  string `json:"hearing_day_id"`
	Disposition   string `json:"disposition,omitempty"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	AppealID   string         `json:"appeal_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Assignee is the result of a distribution pick.
type Assignee struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

// Proportions is the docket proportions report.
type Proportions struct {
	Proportions map[string]float64 `json:"proportions"`
	BatchSize   int                `json:"batch_size"`
	Priority    int                `json:"priority"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAppeal performs intake.
func (c *Client) CreateAppeal(ctx context.Context, docket, receiptDate string, aod, cavc bool) (Appeal, error) {
	body := map[string]any{
		"docket":       docket,
		"receipt_date": receiptDate,
		"aod":          aod,
		"cavc":         cavc,
	}
	var resp Appeal
	err := c.do(ctx, http.MethodPost, "v0/appeals", body, &resp)
	return resp, err
}

// GetAppeal fetches an appeal by id.
func (c *Client) GetAppeal(ctx context.Context, id string) (Appeal, error) {
	var resp Appeal
	err := c.do(ctx, http.MethodGet, "v0/appeals/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// TaskTree returns the appeal's task tree.
func (c *Client) TaskTree(ctx context.Context, appealID string) ([]TaskNode, error) {
	var resp []TaskNode
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/appeals/%s/tasks", url.PathEscape(appealID)), nil, &resp)
	return resp, err
}

// CreateTask creates a task under an appeal.
func (c *Client) CreateTask(ctx context.Context, appealID, parentID, taskType, assignedToOrg string) (Task, error) {
	body := map[string]any{
		"appeal_id": appealID,
		"type":      taskType,
	}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	if assignedToOrg != "" {
		body["assigned_to_org"] = assignedToOrg
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// UpdateTaskStatus transitions a task.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	body := map[string]any{"status": status}
	var resp Task
	err := c.do(ctx, http.MethodPatch, "v0/tasks/"+url.PathEscape(taskID), body, &resp)
	return resp, err
}

// ScheduleHearing completes a scheduling task against a hearing day.
func (c *Client) ScheduleHearing(ctx context.Context, taskID, hearingDayID, scheduledTime string) (Hearing, error) {
	body := map[string]any{
		"hearing_day_id": hearingDayID,
		"scheduled_time": scheduledTime,
	}
	var resp Hearing
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/tasks/%s/schedule", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// SetDisposition records a hearing disposition on a disposition task.
func (c *Client) SetDisposition(ctx context.Context, taskID, disposition string) (Hearing, error) {
	body := map[string]any{"disposition": disposition}
	var resp Hearing
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/tasks/%s/disposition", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// NextAssignee asks an organization's distributor to pick an assignee.
func (c *Client) NextAssignee(ctx context.Context, orgName, taskType, appealID string) (Assignee, error) {
	body := map[string]any{"task_type": taskType}
	if appealID != "" {
		body["appeal_id"] = appealID
	}
	var resp Assignee
	endpoint := fmt.Sprintf("v0/organizations/%s/next-assignee", url.PathEscape(orgName))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// DocketProportions returns the current docket proportions report.
func (c *Client) DocketProportions(ctx context.Context) (Proportions, error) {
	var resp Proportions
	err := c.do(ctx, http.MethodGet, "v0/docket/proportions", nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, appealID string, limit int) ([]Event, error) {
	endpoint := "v0/events"
	params := url.Values{}
	if appealID != "" {
		params.Set("appeal_id", appealID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp []Event
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
