package wfm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNetwork           = errors.New("network error")
	ErrNetworkTimeout    = errors.New("network timeout")
	ErrMalformedResponse = errors.New("malformed response")
)

// Client talks to the workforce-management search, user-search and task endpoints.
type Client struct {
	searchURL       string
	taskURL         string
	userSearchURL   string
	userSearchToken string
	timeout         time.Duration
	client          *http.Client
	validate        *validator.Validate
}

type Config struct {
	SearchURL       string
	TaskURL         string
	UserSearchURL   string
	UserSearchToken string
	Timeout         time.Duration
	HTTPClient      *http.Client
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		searchURL:       strings.TrimRight(cfg.SearchURL, "/"),
		taskURL:         strings.TrimRight(cfg.TaskURL, "/"),
		userSearchURL:   cfg.UserSearchURL,
		userSearchToken: cfg.UserSearchToken,
		timeout:         timeout,
		client:          hc,
		validate:        validator.New(),
	}
}

// SearchUsers runs the identity -> tenant membership lookup.
func (c *Client) SearchUsers(ctx context.Context, r UserSearchRequest) ([]UserHit, error) {
	var resp searchResponse[UserHit]
	err := c.post(ctx, c.userSearchURL, c.userSearchToken, r, &resp)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	return resp.Hits, nil
}

// SearchEmployees queries EMPLOYEE records of a tenant.
func (c *Client) SearchEmployees(ctx context.Context, tenant string, r SearchRequest) ([]EmployeeHit, error) {
	return search[EmployeeHit](ctx, c, tenant, r)
}

// SearchAttendance queries EMPLOYEE_CICO records of a tenant.
func (c *Client) SearchAttendance(ctx context.Context, tenant string, r SearchRequest) ([]AttendanceHit, error) {
	return search[AttendanceHit](ctx, c, tenant, r)
}

// CreateTask submits a task document to the tenant.
func (c *Client) CreateTask(ctx context.Context, tenant string, t Task) (TaskCreated, error) {
	var created TaskCreated
	err := c.post(ctx, c.taskURL+"/"+url.PathEscape(tenant)+"/tasks", "", t, &created)
	if err != nil {
		return TaskCreated{}, fmt.Errorf("create task: %w", err)
	}

	return created, nil
}

func search[T any](ctx context.Context, c *Client, tenant string, r SearchRequest) ([]T, error) {
	var resp searchResponse[T]
	err := c.post(ctx, c.searchURL+"/"+url.PathEscape(tenant), "", r, &resp)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", tenant, err)
	}

	return resp.Hits, nil
}

func (c *Client) post(ctx context.Context, u, bearer string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: unexpected status code: %d", ErrNetwork, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(ctx, err)
	}

	// create responses may have an empty body
	if len(bytes.TrimSpace(raw)) == 0 {
		if _, ok := out.(*TaskCreated); ok {
			return nil
		}
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if err := c.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("request canceled: %w", ctx.Err())
	}

	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
