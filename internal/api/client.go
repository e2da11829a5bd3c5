// Package api is the gateway to the blog's REST backend.
//
// Every call attaches the stored access token as a bearer credential. When
// the backend answers 401 the client refreshes the access token once and
// resends the original request once; if the refresh fails the stored tokens
// are cleared and ErrSessionExpired is returned.
//
// Concurrent 401s are not coalesced: each call refreshes on its own and the
// last write to the session store wins.
package api

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

	"blogclient/internal/session"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 4 << 20
	refreshPath    = "/auth/refresh/"
)

// Client talks to the backend on behalf of whoever is stored in the
// session store.
type Client struct {
	baseURL   string
	http      *http.Client
	store     session.Store
	log       *slog.Logger
	metrics   *Metrics
	onExpired func(context.Context)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger for request and refresh events.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithMetrics records request counts and latencies into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithSessionExpiredHook registers fn to run after a failed refresh has
// cleared the session. Front ends use it to send the user to the login page.
func WithSessionExpiredHook(fn func(context.Context)) Option {
	return func(c *Client) {
		c.onExpired = fn
	}
}

// New creates a Client for the API rooted at baseURL (for example
// http://localhost:8000/api).
func New(baseURL string, store session.Store, opts ...Option) *Client {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		store:   store,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the currently stored session.
func (c *Client) Session(ctx context.Context) (session.Session, error) {
	return c.store.Get(ctx)
}

// call is one logical request. It may be sent twice: once as issued and
// once more after a successful refresh.
type call struct {
	method string
	path   string
	body   []byte
	// retried is set before the refresh so a call refreshes at most once.
	retried bool
	// noRefresh disables the 401 handling; used for the credential
	// endpoints, where 401 means bad credentials.
	noRefresh bool
}

func newCall(method, path string, in any) (*call, error) {
	cl := &call{method: method, path: path}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		cl.body = data
	}
	return cl, nil
}

// request sends a JSON request with refresh-on-401 and decodes the
// response into out when out is not nil.
func (c *Client) request(ctx context.Context, method, path string, in, out any) error {
	cl, err := newCall(method, path, in)
	if err != nil {
		return err
	}
	return c.do(ctx, cl, out)
}

func (c *Client) do(ctx context.Context, cl *call, out any) error {
	resp, err := c.send(ctx, cl, "")
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !cl.retried && !cl.noRefresh {
		discard(resp)
		cl.retried = true

		access, err := c.refreshOrExpire(ctx)
		if err != nil {
			return err
		}

		resp, err = c.send(ctx, cl, access)
		if err != nil {
			return err
		}
	}

	return decode(cl, resp, out)
}

// refreshOrExpire refreshes the access token after a 401. On failure the
// tokens are cleared and the session-expired hook runs.
func (c *Client) refreshOrExpire(ctx context.Context) (string, error) {
	access, err := c.Refresh(ctx)
	if err == nil {
		return access, nil
	}

	c.log.Warn("token refresh failed, clearing session", "error", err, "request_id", RequestID(ctx))
	if cerr := c.store.Clear(ctx); cerr != nil {
		c.log.Error("clearing session", "error", cerr)
	}
	if c.onExpired != nil {
		c.onExpired(ctx)
	}
	return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
}

// send issues cl once. bearer overrides the stored access token when set.
func (c *Client) send(ctx context.Context, cl *call, bearer string) (*http.Response, error) {
	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.addHeaders(ctx, req)

	if bearer == "" {
		sess, err := c.store.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading session: %w", err)
		}
		bearer = sess.Access
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observeRequest(cl.method, 0)
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	c.metrics.observeRequest(cl.method, resp.StatusCode)

	c.log.Debug("api.request",
		"method", cl.method,
		"path", cl.path,
		"status", resp.StatusCode,
		"retry", cl.retried,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", RequestID(ctx),
	)
	return resp, nil
}

func (c *Client) addHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "blogclient/1.0")
	if id := RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
}

func decode(cl *call, resp *http.Response, out any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading %s %s response: %w", cl.method, cl.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Method:     cl.method,
			Path:       cl.path,
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", cl.method, cl.path, err)
	}
	return nil
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()
}

type requestIDKey struct{}

// WithRequestID returns a context whose outgoing backend calls carry id in
// the X-Request-ID header.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
