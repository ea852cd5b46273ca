package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/livepaste/livepaste/pkg/snippet"
)

const defaultTimeout = 30 * time.Second

var (
	ErrNotFound = errors.New("snippet not found or expired")
	ErrConflict = errors.New("slug already taken")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("livepaste: %d %s", e.Status, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

// CreateRequest is the body of a create call. Slug may be empty to have the
// server pick one.
type CreateRequest struct {
	Slug     string          `json:"slug,omitempty"`
	Content  string          `json:"content"`
	Language string          `json:"language,omitempty"`
	Images   []snippet.Image `json:"images,omitempty"`
}

// Created is the server's answer to a create call.
type Created struct {
	Slug      string    `json:"slug"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Availability is the answer to a slug check.
type Availability struct {
	Available bool   `json:"available"`
	Slug      string `json:"slug"`
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Content  *string          `json:"content,omitempty"`
	Language *string          `json:"language,omitempty"`
	Images   *[]snippet.Image `json:"images,omitempty"`
}

// Client talks to one livepaste server.
type Client struct {
	base string
	http *http.Client
}

// New returns a Client for the server at base (e.g. http://localhost:3001).
func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// RoomURL returns the WebSocket URL of the room for slug.
func (c *Client) RoomURL(slug string) (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", fmt.Errorf("rest: parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(slug)
	return u.String(), nil
}

// Create stores a new snippet.
func (c *Client) Create(ctx context.Context, req CreateRequest) (Created, error) {
	var out Created
	err := c.do(ctx, http.MethodPost, "/api/snippets", req, &out)
	return out, err
}

// Get fetches a live snippet.
func (c *Client) Get(ctx context.Context, slug string) (snippet.Snippet, error) {
	var out snippet.Snippet
	err := c.do(ctx, http.MethodGet, "/api/snippets/"+url.PathEscape(slug), nil, &out)
	return out, err
}

// Update applies a partial update.
func (c *Client) Update(ctx context.Context, slug string, p Patch) error {
	return c.do(ctx, http.MethodPatch, "/api/snippets/"+url.PathEscape(slug), p, nil)
}

// Delete removes a snippet. Deleting an unknown slug succeeds.
func (c *Client) Delete(ctx context.Context, slug string) error {
	return c.do(ctx, http.MethodDelete, "/api/snippets/"+url.PathEscape(slug), nil, nil)
}

// Check reports whether slug, after server-side sanitizing, can be claimed.
func (c *Client) Check(ctx context.Context, slug string) (Availability, error) {
	var out Availability
	err := c.do(ctx, http.MethodGet, "/api/check/"+url.PathEscape(slug), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("rest: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e) //nolint:errcheck
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode response: %w", err)
	}
	return nil
}
