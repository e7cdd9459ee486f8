// Package store implements a JSON document store on top of the GitHub
// contents API. Each document is one file in a repository; concurrency is
// handled with the file's sha token as a compare-and-swap version.
package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.github.com"

// Document is a stored JSON body plus the version token it was read at.
// SHA is metadata: it is never part of the body and must be presented on the
// next write to the same path.
type Document struct {
	Body json.RawMessage
	SHA  string
}

// Client reads and writes documents in a single GitHub repository.
type Client struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
	token      string
	maxRetries int
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Client) { s.httpClient = c }
}

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) Option {
	return func(s *Client) { s.baseURL = strings.TrimSuffix(u, "/") }
}

// WithMaxRetries sets how many times Update retries on a version conflict.
// The default is 1: one automatic retry, then the conflict is surfaced.
func WithMaxRetries(n int) Option {
	return func(s *Client) { s.maxRetries = n }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Client) { s.logger = l }
}

// NewClient creates a store client for owner/repo using token for auth.
func NewClient(owner, repo, token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		owner:      owner,
		repo:       repo,
		token:      token,
		maxRetries: 1,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, c.owner, c.repo, path)
}

type contentsResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// Read fetches the document at path. Returns ErrNotFound when the path does
// not exist, a *TransportError on any other failure.
func (c *Client) Read(ctx context.Context, path string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentsURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("build read request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var cr contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode contents response: %w", err)
	}
	// GitHub base64 payloads contain line breaks.
	raw, err := base64.StdEncoding.DecodeString(strings.Map(dropSpace, cr.Content))
	if err != nil {
		return nil, fmt.Errorf("decode document content: %w", err)
	}
	return &Document{Body: raw, SHA: cr.SHA}, nil
}

// Write commits body at path under commit message. sha is the version token
// from the last Read; pass "" to create a new document. A stale or missing
// token maps to ErrVersionConflict. The message is part of the contract:
// every successful write is an audit event in the repository history.
func (c *Client) Write(ctx context.Context, path string, body []byte, sha, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("commit message is required")
	}
	payload, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(body),
		SHA:     sha,
	})
	if err != nil {
		return "", fmt.Errorf("encode write request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(path), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build write request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Body: err.Error()}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// 409 for sha mismatch, 422 for "sha wasn't supplied" on an existing path.
		return "", ErrVersionConflict
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &TransportError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var pr putResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("decode write response: %w", err)
	}
	c.logger.Debug("document written",
		zap.String("path", path),
		zap.String("message", message),
		zap.String("sha", pr.Content.SHA),
	)
	return pr.Content.SHA, nil
}

// UpdateFunc transforms the current document body into the next one. exists
// is false when the path had no document (body is nil in that case). Return
// ErrSkipWrite to finish without committing.
type UpdateFunc func(body json.RawMessage, exists bool) ([]byte, error)

// Update performs a read-modify-write cycle at path. On a version conflict
// it re-reads and retries up to the configured retry budget (default one
// retry); a further conflict is returned as ErrVersionConflict.
func (c *Client) Update(ctx context.Context, path, message string, fn UpdateFunc) error {
	for attempt := 0; ; attempt++ {
		doc, err := c.Read(ctx, path)
		exists := true
		sha := ""
		var body json.RawMessage
		switch {
		case err == nil:
			sha = doc.SHA
			body = doc.Body
		case errors.Is(err, ErrNotFound):
			exists = false
		default:
			return err
		}

		next, err := fn(body, exists)
		if errors.Is(err, ErrSkipWrite) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = c.Write(ctx, path, next, sha, message)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= c.maxRetries {
			return err
		}
		c.logger.Debug("version conflict, retrying", zap.String("path", path), zap.Int("attempt", attempt+1))
	}
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
}

func dropSpace(r rune) rune {
	switch r {
	case '\n', '\r', ' ', '\t':
		return -1
	}
	return r
}
