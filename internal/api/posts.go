package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// ListPosts fetches every post. The backend may answer with a bare array or
// with a paginated envelope; both come back as a PostPage.
func (c *Client) ListPosts(ctx context.Context) (*PostPage, error) {
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, "/posts/", nil, &raw); err != nil {
		return nil, err
	}

	switch body := gjson.ParseBytes(raw); {
	case body.IsArray():
		var posts []Post
		if err := json.Unmarshal(raw, &posts); err != nil {
			return nil, fmt.Errorf("decoding post list: %w", err)
		}
		return &PostPage{Count: len(posts), Results: posts}, nil
	case body.IsObject():
		var page PostPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("decoding post page: %w", err)
		}
		return &page, nil
	default:
		return nil, fmt.Errorf("unexpected post list response: %.64s", raw)
	}
}

func (c *Client) GetPost(ctx context.Context, id ID) (*Post, error) {
	var post Post
	if err := c.request(ctx, http.MethodGet, postPath(id), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) CreatePost(ctx context.Context, in PostInput) (*Post, error) {
	var post Post
	if err := c.request(ctx, http.MethodPost, "/posts/", in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) UpdatePost(ctx context.Context, id ID, in PostInput) (*Post, error) {
	var post Post
	if err := c.request(ctx, http.MethodPut, postPath(id), in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a post. The backend answers 403 when the caller is not
// the author; check with IsForbidden.
func (c *Client) DeletePost(ctx context.Context, id ID) error {
	return c.request(ctx, http.MethodDelete, postPath(id), nil, nil)
}

func postPath(id ID) string {
	return "/posts/" + url.PathEscape(string(id)) + "/"
}
