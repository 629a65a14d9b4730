// Package backend is the HTTP/JSON client for the NeoTutor backend. Every
// call carries the cookie-backed session through the client's jar.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joescharf/neotutor/internal/models"
)

const defaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the origin serving /api/auth/*.
	BaseURL string
	// TutorURL is the origin serving /query, /history and ingestion.
	// Empty means BaseURL.
	TutorURL string
	Timeout  time.Duration
	Jar      http.CookieJar
	Logger   *slog.Logger
}

// Client talks to the auth and tutor endpoints.
type Client struct {
	baseURL  string
	tutorURL string
	http     *http.Client
	jar      http.CookieJar
	logger   *slog.Logger
}

// NewClient creates a Client. A nil Jar disables cookie handling.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	tutor := strings.TrimRight(cfg.TutorURL, "/")
	if tutor == "" {
		tutor = base
	}
	return &Client{
		baseURL:  base,
		tutorURL: tutor,
		http:     &http.Client{Timeout: timeout, Jar: cfg.Jar},
		jar:      cfg.Jar,
		logger:   logger,
	}
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string // server-provided "message" or "error" field, if any
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// SignInRequest is the body of POST /api/auth/signin.
type SignInRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// SignUpRequest is the body of POST /api/auth/signup.
type SignUpRequest struct {
	Name           string `json:"name"`
	GitHubUsername string `json:"githubUsername"`
	Password       string `json:"password"`
}

// Me returns the profile bound to the current session cookie.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var resp struct {
		User *models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL, "/api/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("GET /api/auth/me: response has no user")
	}
	return resp.User, nil
}

// SignOut ends the server session.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.baseURL, "/api/auth/signout", nil, nil)
}

// SignIn exchanges credentials for a session cookie.
func (c *Client) SignIn(ctx context.Context, req SignInRequest) error {
	return c.do(ctx, http.MethodPost, c.baseURL, "/api/auth/signin", req, nil)
}

// SignUp registers a user and starts a session.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) error {
	return c.do(ctx, http.MethodPost, c.baseURL, "/api/auth/signup", req, nil)
}

// ClearSession drops every cookie the client holds.
func (c *Client) ClearSession(ctx context.Context) error {
	if cl, ok := c.jar.(interface{ Clear(context.Context) error }); ok {
		return cl.Clear(ctx)
	}
	return nil
}

// Query asks the tutor a question and decodes the answer variant.
func (c *Client) Query(ctx context.Context, userQuery string) (models.Answer, error) {
	var resp struct {
		Message json.RawMessage `json:"message"`
	}
	body := map[string]string{"userQuery": userQuery}
	if err := c.do(ctx, http.MethodPost, c.tutorURL, "/query", body, &resp); err != nil {
		return models.Answer{}, err
	}
	a, err := DecodeAnswer(resp.Message)
	if err != nil {
		return models.Answer{}, fmt.Errorf("POST /query: %w", err)
	}
	return a, nil
}

// GeneratePDF asks the backend to transcribe up to n videos of a playlist.
func (c *Client) GeneratePDF(ctx context.Context, playlistURL string, n int) (json.RawMessage, error) {
	var resp json.RawMessage
	body := map[string]any{"channelUrl": playlistURL, "noOfVideos": n}
	if err := c.do(ctx, http.MethodPost, c.tutorURL, "/generate-pdf", body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateVectors indexes the generated documents and returns the new tutor's channel.
func (c *Client) CreateVectors(ctx context.Context) (*models.Channel, error) {
	var ch models.Channel
	if err := c.do(ctx, http.MethodGet, c.tutorURL, "/create-vectors", nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// History lists previously trained tutors.
func (c *Client) History(ctx context.Context) ([]models.HistoryItem, error) {
	var items []models.HistoryItem
	if err := c.do(ctx, http.MethodGet, c.tutorURL, "/history", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, origin, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, origin+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.logger.Debug("backend request",
		"method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 && isRaw(out) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func isRaw(out any) bool {
	_, ok := out.(*json.RawMessage)
	return ok
}

// errorMessage pulls a human-readable reason out of an error body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
