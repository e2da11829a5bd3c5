package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrSessionExpired is returned when a 401 could not be recovered by
	// refreshing the access token. The stored tokens have been cleared.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoRefreshToken means a refresh was needed but none is stored.
	ErrNoRefreshToken = errors.New("no refresh token stored")
	// ErrMissingFields is returned by PostInput.Validate.
	ErrMissingFields = errors.New("title and content are required")
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// StatusCode returns the HTTP status carried by err, or 0 when err did not
// come from a backend response.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func IsForbidden(err error) bool {
	return StatusCode(err) == http.StatusForbidden
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// FieldErrors extracts per-field validation messages from a structured
// error body such as {"username": ["already taken"]}. Messages that are not
// tied to a field ("detail", "non_field_errors") are returned under "".
// It returns nil when err carries no JSON object body.
func FieldErrors(err error) map[string]string {
	var se *StatusError
	if !errors.As(err, &se) || !gjson.ValidBytes(se.Body) {
		return nil
	}

	body := gjson.ParseBytes(se.Body)
	if !body.IsObject() {
		return nil
	}

	fields := make(map[string]string)
	body.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == "detail" || name == "non_field_errors" {
			name = ""
		}

		var msgs []string
		if value.IsArray() {
			for _, m := range value.Array() {
				msgs = append(msgs, m.String())
			}
		} else {
			msgs = append(msgs, value.String())
		}

		msg := strings.Join(msgs, " ")
		if prev, ok := fields[name]; ok && prev != "" {
			msg = prev + " " + msg
		}
		fields[name] = msg
		return true
	})

	if len(fields) == 0 {
		return nil
	}
	return fields
}
