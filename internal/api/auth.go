package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Login exchanges credentials for a token pair and stores it together with
// the username. A 401 here means bad credentials and never triggers a refresh.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login/", req, req.Username)
}

// Register creates an account and signs it in, with the same storage side
// effect as Login. Like Login, a 401 does not trigger a refresh.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/register/", req, req.Username)
}

func (c *Client) authenticate(ctx context.Context, path string, in any, username string) (*AuthResponse, error) {
	cl, err := newCall(http.MethodPost, path, in)
	if err != nil {
		return nil, err
	}
	cl.noRefresh = true

	var resp AuthResponse
	if err := c.do(ctx, cl, &resp); err != nil {
		return nil, err
	}

	if resp.User.Username != "" {
		username = resp.User.Username
	}
	if err := c.store.Set(ctx, resp.Access, resp.Refresh, username); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	c.log.Info("signed in", "username", username, "request_id", RequestID(ctx))
	return &resp, nil
}

// Logout forgets the stored session. The backend is not contacted.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Forget(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Refresh trades the stored refresh token for a new access token and
// stores it. The call bypasses the 401 handling and sends no bearer.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	access, err := c.refresh(ctx)
	c.metrics.observeRefresh(err == nil)
	return access, err
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	sess, err := c.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("reading session: %w", err)
	}
	if sess.Refresh == "" {
		return "", ErrNoRefreshToken
	}

	cl, err := newCall(http.MethodPost, refreshPath, refreshRequest{Refresh: sess.Refresh})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, bytes.NewReader(cl.body))
	if err != nil {
		return "", fmt.Errorf("creating refresh request: %w", err)
	}
	c.addHeaders(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observeRequest(cl.method, 0)
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	c.metrics.observeRequest(cl.method, resp.StatusCode)

	var out refreshResponse
	if err := decode(cl, resp, &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", errors.New("refresh response carried no access token")
	}

	if err := c.store.SetAccess(ctx, out.Access); err != nil {
		return "", fmt.Errorf("storing refreshed token: %w", err)
	}
	return out.Access, nil
}
