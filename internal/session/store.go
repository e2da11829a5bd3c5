// Package session persists the signed-in user's bearer tokens and username
// between runs of the front end.
//
// A store holds at most one access/refresh pair. Nothing here tracks expiry:
// the backend decides when a token is no longer valid.
package session

import "context"

// Keys under which the session fields are persisted.
const (
	KeyAccess   = "token"
	KeyRefresh  = "refreshToken"
	KeyUsername = "username"
)

// Session is the cached view of who is signed in. Any field may be empty.
type Session struct {
	Access   string
	Refresh  string
	Username string
}

// Authenticated reports whether an access token is present.
func (s Session) Authenticated() bool {
	return s.Access != ""
}

// Store is a last-writer-wins key/value persistence for a Session.
type Store interface {
	// Set overwrites both tokens. Username is written only when non-empty.
	Set(ctx context.Context, access, refresh, username string) error
	// SetAccess replaces the access token, leaving everything else alone.
	SetAccess(ctx context.Context, access string) error
	Get(ctx context.Context) (Session, error)
	// Clear removes both tokens and keeps the username.
	Clear(ctx context.Context) error
	// Forget removes every session key.
	Forget(ctx context.Context) error
}
