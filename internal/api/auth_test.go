package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func authBackend(t *testing.T, wantPath string, status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("expected path %q, got %q", wantPath, r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		respond(status, body)(w, r)
	}
}

func TestLogin_StoresTokens(t *testing.T) {
	var sent LoginRequest
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&sent)
		authBackend(t, "/api/auth/login/", http.StatusOK,
			`{"access": "A1", "refresh": "R1", "user": {"id": 1, "username": "alice", "email": "a@example.com"}}`)(w, r)
	}
	client, store := setupClient(t, http.HandlerFunc(handler))
	ctx := context.Background()

	resp, err := client.Login(ctx, LoginRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	if sent.Username != "alice" || sent.Password != "pw" {
		t.Errorf("expected credentials alice/pw to be sent, got %+v", sent)
	}
	if resp.User.Username != "alice" {
		t.Errorf("expected user 'alice', got %q", resp.User.Username)
	}

	sess, _ := store.Get(ctx)
	if sess.Access != "A1" {
		t.Errorf("expected access 'A1', got %q", sess.Access)
	}
	if sess.Refresh != "R1" {
		t.Errorf("expected refresh 'R1', got %q", sess.Refresh)
	}
	if sess.Username != "alice" {
		t.Errorf("expected username 'alice', got %q", sess.Username)
	}
}

func TestLogin_BadCredentialsDoNotRefresh(t *testing.T) {
	backend := &fakeBackend{
		Resource: respond(http.StatusUnauthorized, `{"detail": "No active account found with the given credentials"}`),
		Refresh:  refreshTo("A2"),
	}
	client, store := setupClient(t, backend)
	ctx := context.Background()
	store.Set(ctx, "old", "oldR", "bob")

	_, err := client.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})

	if StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if n := backend.refreshCalls.Load(); n != 0 {
		t.Errorf("expected no refresh call, got %d", n)
	}
	if fe := FieldErrors(err); fe[""] != "No active account found with the given credentials" {
		t.Errorf("expected detail message, got %v", fe)
	}

	sess, _ := store.Get(ctx)
	if sess.Access != "old" {
		t.Errorf("expected stored session untouched, got %+v", sess)
	}
}

func TestRegister_StoresTokens(t *testing.T) {
	handler := authBackend(t, "/api/auth/register/", http.StatusCreated,
		`{"access": "A9", "refresh": "R9", "user": {"id": 2, "username": "carol", "email": "c@example.com"}}`)
	client, store := setupClient(t, handler)
	ctx := context.Background()

	_, err := client.Register(ctx, RegisterRequest{Username: "carol", Email: "c@example.com", Password: "longpassword"})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	sess, _ := store.Get(ctx)
	if sess.Access != "A9" || sess.Refresh != "R9" || sess.Username != "carol" {
		t.Errorf("expected A9/R9/carol, got %+v", sess)
	}
}

func TestRegister_FieldErrors(t *testing.T) {
	handler := authBackend(t, "/api/auth/register/", http.StatusBadRequest,
		`{"username": ["A user with that username already exists."], "password": ["Too short.", "Too common."]}`)
	client, _ := setupClient(t, handler)

	_, err := client.Register(context.Background(), RegisterRequest{Username: "alice", Email: "a@example.com", Password: "pw"})

	fields := FieldErrors(err)
	if fields["username"] != "A user with that username already exists." {
		t.Errorf("unexpected username error %q", fields["username"])
	}
	if fields["password"] != "Too short. Too common." {
		t.Errorf("unexpected password error %q", fields["password"])
	}
}

func TestLogout_ForgetsSession(t *testing.T) {
	client, store := setupClient(t, http.NotFoundHandler())
	ctx := context.Background()
	store.Set(ctx, "A1", "R1", "alice")

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}

	sess, _ := store.Get(ctx)
	if sess.Access != "" || sess.Refresh != "" || sess.Username != "" {
		t.Errorf("expected empty session, got %+v", sess)
	}
}
