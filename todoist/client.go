package todoist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mizuki-commits/dashboard-template/domain"
)

const (
	DefaultBaseURL = "https://api.todoist.com/rest/v2"
	userAgent      = "Dashboard-App/1.0"
	tracerName     = "dashboard/todoist"
	maxErrorBody   = 4 << 10
)

// ErrNoToken is returned when neither a user nor a server token is available.
var ErrNoToken = errors.New("todoist token not configured")

// APIError is a non-2xx answer from Todoist.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Todoist API エラー (%d): %s", e.Status, e.Body)
}

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
	IsFavorite bool   `json:"is_favorite"`
	IsInbox    bool   `json:"is_inbox_project,omitempty"`
	URL        string `json:"url,omitempty"`
}

type Due struct {
	Date        string `json:"date"`
	String      string `json:"string,omitempty"`
	Datetime    string `json:"datetime,omitempty"`
	IsRecurring bool   `json:"is_recurring"`
}

type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	ParentID    string   `json:"parent_id,omitempty"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	IsCompleted bool     `json:"is_completed"`
	Priority    int      `json:"priority"`
	Labels      []string `json:"labels,omitempty"`
	Due         *Due     `json:"due,omitempty"`
	AssigneeID  string   `json:"assignee_id,omitempty"`
	URL         string   `json:"url,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// Remote is the import view of the task: due prefers the date over the free-form string.
func (t Task) Remote() domain.RemoteTask {
	r := domain.RemoteTask{ID: t.ID, Content: t.Content, Description: t.Description}
	if t.Due != nil {
		r.Due = t.Due.Date
		if r.Due == "" {
			r.Due = t.Due.String
		}
	}
	return r
}

type CreateTaskParams struct {
	Content     string `json:"content"`
	ProjectID   string `json:"project_id,omitempty"`
	Description string `json:"description,omitempty"`
	DueString   string `json:"due_string,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
}

type UpdateTaskParams struct {
	Content     *string `json:"content,omitempty"`
	Description *string `json:"description,omitempty"`
	DueString   *string `json:"due_string,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
}

// Client talks to the Todoist REST v2 API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	tracer  trace.Tracer
}

// NewClient creates a client using the server-wide token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer(tracerName),
	}
}

// WithToken returns a client using userToken when it is not blank.
// A user token always wins over the server token.
func (c *Client) WithToken(userToken string) *Client {
	userToken = strings.TrimSpace(userToken)
	if userToken == "" {
		return c
	}
	cp := *c
	cp.token = userToken
	return &cp
}

func (c *Client) HasToken() bool {
	return c != nil && c.token != ""
}

func (c *Client) GetProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTasksByProject lists the open tasks of a project.
func (c *Client) GetTasksByProject(ctx context.Context, projectID string) ([]Task, error) {
	q := url.Values{"project_id": {projectID}}
	var out []Task
	if err := c.do(ctx, http.MethodGet, "/tasks", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateTask(ctx context.Context, p CreateTaskParams) (Task, error) {
	if p.Priority != 0 {
		p.Priority = domain.ClampPriority(p.Priority)
	}
	var out Task
	err := c.do(ctx, http.MethodPost, "/tasks", nil, p, &out)
	return out, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, p UpdateTaskParams) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id), nil, p, &out)
	return out, err
}

func (c *Client) CloseTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/close", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (err error) {
	if !c.HasToken() {
		return ErrNoToken
	}
	ctx, span := c.tracer.Start(ctx, "todoist "+method+" "+routeOf(path), trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, mErr := sonic.Marshal(body)
		if mErr != nil {
			return mErr
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return sonic.ConfigStd.NewDecoder(resp.Body).Decode(out)
}

// routeOf strips ids from the path so span names stay low-cardinality.
func routeOf(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 2 && parts[1] == "tasks" {
		parts[2] = "{id}"
	}
	return strings.Join(parts, "/")
}
