// Package remote is a thin client for a GitHub-style repository contents API
// holding the project document as a single JSON file.
//
// The client never retries. Every failure is an *Error whose Kind tells the
// caller whether to back off, re-read, clear the credential or just wait.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/plansync/internal/models"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

// DefaultPath is where the shared project document lives in the repository.
const DefaultPath = "data/shared-project-data.json"

// Snapshot is the remote document together with the revision it was read at.
type Snapshot struct {
	Document *models.ProjectDocument
	Revision RevisionToken
}

// Store is the remote tier as seen by the sync engine.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Put(ctx context.Context, path string, doc *models.ProjectDocument, expected RevisionToken) (RevisionToken, error)
	ValidateCredential(ctx context.Context, token string) error
	SetToken(token string)
	HasToken() bool
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Owner      string
	Repo       string
	Token      string
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client implements Store over HTTP.
type Client struct {
	base  string
	owner string
	repo  string
	http  *http.Client
	now   func() time.Time
	mu    sync.RWMutex
	token string
}

// New returns a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		owner: cfg.Owner,
		repo:  cfg.Repo,
		http:  cfg.HTTPClient,
		now:   cfg.Now,
		token: cfg.Token,
	}
}

// SetToken replaces the credential. An empty token makes requests anonymous.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// HasToken reports whether a credential is set.
func (c *Client) HasToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) repoURL() string {
	return fmt.Sprintf("%s/repos/%s/%s", c.base, url.PathEscape(c.owner), url.PathEscape(c.repo))
}

func (c *Client) contentsURL(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return c.repoURL() + "/contents/" + strings.Join(parts, "/")
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
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

// Get reads and decodes the document at path.
func (c *Client) Get(ctx context.Context, path string) (Snapshot, error) {
	body, err := c.do(ctx, http.MethodGet, c.contentsURL(path), c.currentToken(), nil)
	if err != nil {
		return Snapshot{}, err
	}
	var cr contentResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return Snapshot{}, fmt.Errorf("remote: get %s: decode response: %w", path, err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\n", "", "\r", "").Replace(cr.Content))
	if err != nil {
		return Snapshot{}, fmt.Errorf("remote: get %s: decode content: %w", path, err)
	}
	doc, err := models.Decode(raw)
	if err != nil {
		return Snapshot{}, fmt.Errorf("remote: get %s: decode document: %w", path, err)
	}
	return Snapshot{Document: doc, Revision: NewRevisionToken(cr.SHA)}, nil
}

// Put writes doc to path. A zero expected token creates the file; otherwise
// the write only succeeds if the remote revision still equals expected.
func (c *Client) Put(ctx context.Context, path string, doc *models.ProjectDocument, expected RevisionToken) (RevisionToken, error) {
	data, err := models.Encode(doc)
	if err != nil {
		return RevisionToken{}, fmt.Errorf("remote: put %s: encode: %w", path, err)
	}
	req := putRequest{
		Message: "更新项目数据 - " + c.now().Format("2006/1/2 15:04:05"),
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     expected.String(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return RevisionToken{}, fmt.Errorf("remote: put %s: %w", path, err)
	}
	body, err := c.do(ctx, http.MethodPut, c.contentsURL(path), c.currentToken(), payload)
	if err != nil {
		return RevisionToken{}, err
	}
	var pr putResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return RevisionToken{}, fmt.Errorf("remote: put %s: decode response: %w", path, err)
	}
	return NewRevisionToken(pr.Content.SHA), nil
}

// ValidateCredential checks token against the repository endpoint. It is a
// one-off call made only when a new credential is supplied.
func (c *Client) ValidateCredential(ctx context.Context, token string) error {
	if token == "" {
		return &Error{Kind: KindUnauthenticated, Message: "empty token"}
	}
	_, err := c.do(ctx, http.MethodGet, c.repoURL(), token, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, u, token string, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "plansync")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Kind: KindTransient, Err: ctxErr}
		}
		return nil, &Error{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, &Error{Kind: KindTransient, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classify(method, resp, body)
}

// classify maps a non-2xx response onto an Error.
func classify(method string, resp *http.Response, body []byte) error {
	var msg struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &msg)
	e := &Error{Status: resp.StatusCode, Message: msg.Message}

	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized:
		e.Kind = KindUnauthenticated
	case code == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case code == http.StatusForbidden:
		e.Kind = KindForbidden
		if rateLimitMarked(resp, body) {
			e.Kind = KindRateLimited
		}
	case code == http.StatusNotFound:
		e.Kind = KindNotFound
	case method == http.MethodPut && (code == http.StatusConflict || code == http.StatusUnprocessableEntity):
		e.Kind = KindConflict
	case code >= 500:
		e.Kind = KindTransient
	default:
		e.Kind = KindRejected
	}
	return e
}

func rateLimitMarked(resp *http.Response, body []byte) bool {
	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	return bytes.Contains(bytes.ToLower(body), []byte("rate limit"))
}

// IsRetryable reports whether err is worth retrying on a later cycle.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
