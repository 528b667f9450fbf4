// Package api implements the typed HTTP client for the radar REST API.
// It is the single chokepoint for outbound calls: every request goes through
// do, which attaches the bearer token, records metrics, and traces the call.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"radar/internal/models"
	"radar/internal/observability"
)

// DefaultPageSize is the post page size requested when the caller does not
// specify a limit.
const DefaultPageSize = 100

// Client talks to the radar backend. It holds no session state; the caller
// supplies the bearer token per operation. A single attempt is made per
// call; retries are the caller's decision.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New creates a Client for the given base URL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %w", baseURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("API base URL %q must be absolute", baseURL)
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// NewWithHTTPClient creates a Client using the provided http.Client.
// Used by tests to point at a fake backend.
func NewWithHTTPClient(baseURL string, hc *http.Client) (*Client, error) {
	c, err := New(baseURL, 0)
	if err != nil {
		return nil, err
	}
	c.http = hc
	return c, nil
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Login posts credentials form-encoded to the token endpoint.
func (c *Client) Login(ctx context.Context, username, password string) (*models.Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var token models.Token
	err := c.do(ctx, request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/auth/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &token)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// CreateUser registers a new account.
func (c *Client) CreateUser(ctx context.Context, in models.UserCreate) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, "create_user", http.MethodPost, "/users/", "", in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUser fetches the account the token belongs to.
func (c *Client) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := c.do(ctx, request{
		op:     "current_user",
		method: http.MethodGet,
		path:   "/users/me",
		token:  token,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateCurrentUser applies a partial profile update to the session user.
func (c *Client) UpdateCurrentUser(ctx context.Context, token string, in models.UserUpdate) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, "update_user", http.MethodPut, "/users/me", token, in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteCurrentUser deletes the session user's account. The caller must
// clear the session afterward.
func (c *Client) DeleteCurrentUser(ctx context.Context, token string) error {
	return c.do(ctx, request{
		op:     "delete_user",
		method: http.MethodDelete,
		path:   "/users/me",
		token:  token,
	}, nil)
}

// GetUser fetches any user's public profile by id.
func (c *Client) GetUser(ctx context.Context, token string, id uint) (*models.User, error) {
	var user models.User
	err := c.do(ctx, request{
		op:     "get_user",
		method: http.MethodGet,
		path:   fmt.Sprintf("/users/%d", id),
		token:  token,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreatePost creates a post from a JSON body. The author is implied by the
// token, never client-supplied.
func (c *Client) CreatePost(ctx context.Context, token string, in models.PostCreate) (*models.Post, error) {
	var post models.Post
	if err := c.doJSON(ctx, "create_post", http.MethodPost, "/posts/", token, in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePostMultipart creates a post from multipart form fields, used when
// an image file is attached. The file bytes are streamed through untouched.
func (c *Client) CreatePostMultipart(ctx context.Context, token, title, content, filename string, file io.Reader) (*models.Post, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if title != "" {
		if err := w.WriteField("title", title); err != nil {
			return nil, fmt.Errorf("encode multipart: %w", err)
		}
	}
	if err := w.WriteField("content", content); err != nil {
		return nil, fmt.Errorf("encode multipart: %w", err)
	}
	if file != nil {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return nil, fmt.Errorf("encode multipart: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, fmt.Errorf("encode multipart: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encode multipart: %w", err)
	}

	var post models.Post
	err := c.do(ctx, request{
		op:          "create_post",
		method:      http.MethodPost,
		path:        "/posts/",
		token:       token,
		body:        &buf,
		contentType: w.FormDataContentType(),
	}, &post)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts fetches a page of the feed in server order.
func (c *Client) ListPosts(ctx context.Context, token string, skip, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var posts []models.Post
	err := c.do(ctx, request{
		op:     "list_posts",
		method: http.MethodGet,
		path:   "/posts/",
		token:  token,
		query:  q,
	}, &posts)
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPost fetches a single post by id.
func (c *Client) GetPost(ctx context.Context, token string, id uint) (*models.Post, error) {
	var post models.Post
	err := c.do(ctx, request{
		op:     "get_post",
		method: http.MethodGet,
		path:   fmt.Sprintf("/posts/%d", id),
		token:  token,
	}, &post)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost applies a partial update to a post. The backend enforces
// ownership; there is currently no view bound to this operation.
func (c *Client) UpdatePost(ctx context.Context, token string, id uint, in models.PostUpdate) (*models.Post, error) {
	var post models.Post
	path := fmt.Sprintf("/posts/%d", id)
	if err := c.doJSON(ctx, "update_post", http.MethodPut, path, token, in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost deletes a post by id. Authorization is the backend's call.
func (c *Client) DeletePost(ctx context.Context, token string, id uint) error {
	return c.do(ctx, request{
		op:     "delete_post",
		method: http.MethodDelete,
		path:   fmt.Sprintf("/posts/%d", id),
		token:  token,
	}, nil)
}

// UserPosts fetches all posts authored by the given user.
func (c *Client) UserPosts(ctx context.Context, token string, userID uint) ([]models.Post, error) {
	var posts []models.Post
	err := c.do(ctx, request{
		op:     "user_posts",
		method: http.MethodGet,
		path:   fmt.Sprintf("/posts/user/%d", userID),
		token:  token,
	}, &posts)
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// Ping checks that the backend root endpoint answers. Used by readiness
// probes only.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, request{
		op:     "ping",
		method: http.MethodGet,
		path:   "/",
	}, nil)
}

// ResolveImageURL resolves an image URL returned by the backend. Relative
// URLs (uploaded files) are resolved against the API base; absolute URLs
// pass through unchanged.
func (c *Client) ResolveImageURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.IsAbs() {
		return raw
	}
	return c.baseURL.ResolveReference(u).String()
}

// request describes one upstream call.
type request struct {
	op          string
	method      string
	path        string
	token       string
	query       url.Values
	body        io.Reader
	contentType string
}

// doJSON marshals in as the JSON request body and delegates to do.
func (c *Client) doJSON(ctx context.Context, op, method, path, token string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	return c.do(ctx, request{
		op:          op,
		method:      method,
		path:        path,
		token:       token,
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	}, out)
}

// do performs one upstream call: single attempt, no recovery. Non-2xx
// responses become *models.APIError carrying the backend's detail message;
// requests that never produced a response become *models.TransportError.
func (c *Client) do(ctx context.Context, r request, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + r.path
	if r.query != nil {
		u.RawQuery = r.query.Encode()
	}

	span, ctx := observability.StartClientSpan(ctx, r.op, r.method, u.String())
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("build %s request: %w", r.op, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveUpstream(r.op, "transport_error", start)
		tErr := &models.TransportError{Op: r.op, Err: err}
		span.SetError(tErr)
		return tErr
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetStatusCode(resp.StatusCode)
	observability.ObserveUpstream(r.op, statusClass(resp.StatusCode), start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		span.SetError(apiErr)
		return apiErr
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.op, err)
	}
	return nil
}

// maxErrorBody bounds how much of an error payload is read.
const maxErrorBody = 4 << 10

// decodeError extracts the backend's {"detail": "..."} message when present.
func decodeError(resp *http.Response) *models.APIError {
	apiErr := &models.APIError{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		// Structured validation errors carry a non-string detail; those are
		// not user-facing messages, so Detail stays empty for them.
		apiErr.Detail = payload.Detail
		return apiErr
	}

	if !json.Valid(body) {
		apiErr.Detail = strings.TrimSpace(string(body))
	}
	return apiErr
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
