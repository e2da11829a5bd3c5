package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// ID identifies a backend resource. The backend may send it as a JSON
// number or a string; it is always held as a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decoding id: %w", err)
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decoding id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Post struct {
	ID        ID        `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    User      `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostInput is the writable part of a post.
type PostInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate reports ErrMissingFields when either field is blank.
func (in PostInput) Validate() error {
	if in.Title == "" || in.Content == "" {
		return ErrMissingFields
	}
	return nil
}

// PostPage is the paginated list envelope. Bare array responses are
// normalized into a page with Count set to the number of results.
type PostPage struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []Post  `json:"results"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}
