package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"blogclient/internal/logging"
	"blogclient/internal/session"
)

const samplePost = `{"id": 1, "title": "Hello", "content": "World",
	"author": {"id": 7, "username": "alice", "email": "alice@example.com"},
	"created_at": "2024-05-01T10:00:00Z", "updated_at": "2024-05-01T10:00:00Z"}`

// fakeBackend records what the client sends. Resource answers requests to
// /api/posts/1/ and Refresh answers /api/auth/refresh/.
type fakeBackend struct {
	resourceCalls atomic.Int32
	refreshCalls  atomic.Int32

	mu          sync.Mutex
	bearers     []string
	refreshBody map[string]string

	Resource http.HandlerFunc
	Refresh  http.HandlerFunc
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/auth/refresh/":
		f.refreshCalls.Add(1)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.refreshBody = body
		f.mu.Unlock()
		if r.Header.Get("Authorization") != "" {
			http.Error(w, "refresh must not carry a bearer", http.StatusBadRequest)
			return
		}
		f.Refresh(w, r)
	default:
		f.resourceCalls.Add(1)
		f.mu.Lock()
		f.bearers = append(f.bearers, r.Header.Get("Authorization"))
		f.mu.Unlock()
		f.Resource(w, r)
	}
}

func (f *fakeBackend) seenBearers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bearers...)
}

func refreshTo(access string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"access": access})
	}
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

// acceptOnly answers samplePost when the bearer matches token, 401 otherwise.
func acceptOnly(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			respond(http.StatusUnauthorized, `{"detail": "Given token not valid"}`)(w, r)
			return
		}
		respond(http.StatusOK, samplePost)(w, r)
	}
}

func setupClient(t *testing.T, backend http.Handler, opts ...Option) (*Client, *session.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(srv.URL+"/api", store, opts...), store
}

func TestBearerAttached(t *testing.T) {
	backend := &fakeBackend{Resource: acceptOnly("A1")}
	client, store := setupClient(t, backend)
	store.Set(context.Background(), "A1", "R1", "alice")

	post, err := client.GetPost(context.Background(), "1")
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}

	if post.Title != "Hello" {
		t.Errorf("expected title 'Hello', got %q", post.Title)
	}
	if post.ID != "1" {
		t.Errorf("expected numeric id decoded as '1', got %q", post.ID)
	}
	if got := backend.seenBearers(); len(got) != 1 || got[0] != "Bearer A1" {
		t.Errorf("expected one request with 'Bearer A1', got %v", got)
	}
}

func TestNoBearerWithoutSession(t *testing.T) {
	backend := &fakeBackend{Resource: respond(http.StatusOK, samplePost)}
	client, _ := setupClient(t, backend)

	if _, err := client.GetPost(context.Background(), "1"); err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}

	if got := backend.seenBearers(); got[0] != "" {
		t.Errorf("expected no Authorization header, got %q", got[0])
	}
}

func TestSingle401_RefreshesOnceAndRetries(t *testing.T) {
	backend := &fakeBackend{Resource: acceptOnly("A2"), Refresh: refreshTo("A2")}
	client, store := setupClient(t, backend)
	ctx := context.Background()
	store.Set(ctx, "A1", "R1", "alice")

	post, err := client.GetPost(ctx, "1")
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if post.Title != "Hello" {
		t.Errorf("expected title 'Hello', got %q", post.Title)
	}

	if n := backend.refreshCalls.Load(); n != 1 {
		t.Errorf("expected 1 refresh call, got %d", n)
	}
	if n := backend.resourceCalls.Load(); n != 2 {
		t.Errorf("expected 2 resource calls, got %d", n)
	}
	if got := backend.seenBearers(); got[1] != "Bearer A2" {
		t.Errorf("expected retry with 'Bearer A2', got %q", got[1])
	}
	backend.mu.Lock()
	if backend.refreshBody["refresh"] != "R1" {
		t.Errorf("expected refresh body to carry 'R1', got %v", backend.refreshBody)
	}
	backend.mu.Unlock()

	sess, _ := store.Get(ctx)
	if sess.Access != "A2" || sess.Refresh != "R1" {
		t.Errorf("expected stored A2/R1, got %+v", sess)
	}
}

func TestAlways401_NoRefreshLoop(t *testing.T) {
	backend := &fakeBackend{
		Resource: respond(http.StatusUnauthorized, `{"detail": "nope"}`),
		Refresh:  refreshTo("A2"),
	}
	expired := 0
	client, store := setupClient(t, backend, WithSessionExpiredHook(func(context.Context) { expired++ }))
	store.Set(context.Background(), "A1", "R1", "alice")

	_, err := client.GetPost(context.Background(), "1")
	if err == nil {
		t.Fatal("expected error from always-401 backend")
	}

	if StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("expected 401 status error, got %v", err)
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Error("a successful refresh must not report an expired session")
	}
	if n := backend.resourceCalls.Load(); n != 2 {
		t.Errorf("expected exactly 2 resource calls, got %d", n)
	}
	if n := backend.refreshCalls.Load(); n != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", n)
	}
	if expired != 0 {
		t.Errorf("expected no session-expired notification, got %d", expired)
	}
}

func TestRefreshFailure_ClearsSessionAndNotifies(t *testing.T) {
	backend := &fakeBackend{
		Resource: acceptOnly("A2"),
		Refresh:  respond(http.StatusUnauthorized, `{"detail": "Token is invalid or expired"}`),
	}
	expired := 0
	client, store := setupClient(t, backend, WithSessionExpiredHook(func(context.Context) { expired++ }))
	ctx := context.Background()
	store.Set(ctx, "A1", "R1", "alice")

	_, err := client.GetPost(ctx, "1")

	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("expected the refresh failure to be wrapped, got %v", err)
	}
	if expired != 1 {
		t.Errorf("expected 1 session-expired notification, got %d", expired)
	}
	if n := backend.resourceCalls.Load(); n != 1 {
		t.Errorf("expected no retry after failed refresh, got %d resource calls", n)
	}

	sess, _ := store.Get(ctx)
	if sess.Access != "" || sess.Refresh != "" {
		t.Errorf("expected tokens cleared, got %+v", sess)
	}
}

func TestRefreshWithoutToken_ExpiresWithoutCall(t *testing.T) {
	backend := &fakeBackend{Resource: acceptOnly("A2"), Refresh: refreshTo("A2")}
	client, store := setupClient(t, backend)
	store.SetAccess(context.Background(), "stale")

	_, err := client.GetPost(context.Background(), "1")

	if !errors.Is(err, ErrSessionExpired) || !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrSessionExpired wrapping ErrNoRefreshToken, got %v", err)
	}
	if n := backend.refreshCalls.Load(); n != 0 {
		t.Errorf("expected no refresh call, got %d", n)
	}
}

func TestOtherErrorsPassThrough(t *testing.T) {
	backend := &fakeBackend{Resource: respond(http.StatusNotFound, `{"detail": "Not found."}`)}
	client, store := setupClient(t, backend)
	store.Set(context.Background(), "A1", "R1", "alice")

	_, err := client.GetPost(context.Background(), "1")

	if !IsNotFound(err) {
		t.Errorf("expected 404 status error, got %v", err)
	}
	if n := backend.refreshCalls.Load(); n != 0 {
		t.Errorf("expected no refresh call, got %d", n)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := New(srv.URL+"/api", session.NewMemoryStore(), WithLogger(logging.Discard()))
	_, err := client.GetPost(context.Background(), "1")

	if err == nil {
		t.Fatal("expected transport error")
	}
	if StatusCode(err) != 0 {
		t.Errorf("expected no status code for transport failure, got %d", StatusCode(err))
	}
}

func TestConcurrent401s_RefreshIndependently(t *testing.T) {
	const n = 3
	var arrived sync.WaitGroup
	arrived.Add(n)

	backend := &fakeBackend{Refresh: refreshTo("A2")}
	backend.Resource = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer A1" {
			// Hold every stale request until all have arrived.
			arrived.Done()
			arrived.Wait()
		}
		acceptOnly("A2")(w, r)
	}
	client, store := setupClient(t, backend)
	store.Set(context.Background(), "A1", "R1", "alice")

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.GetPost(context.Background(), "1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("GetPost() error: %v", err)
		}
	}
	if got := backend.refreshCalls.Load(); got != n {
		t.Errorf("expected %d independent refresh calls, got %d", n, got)
	}
}

func TestRequestIDForwarded(t *testing.T) {
	var got atomic.Value
	backend := &fakeBackend{Resource: func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Request-ID"))
		respond(http.StatusOK, samplePost)(w, r)
	}}
	client, _ := setupClient(t, backend)

	ctx := WithRequestID(context.Background(), "01HZXREQUEST")
	if _, err := client.GetPost(ctx, "1"); err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if got.Load() != "01HZXREQUEST" {
		t.Errorf("expected X-Request-ID '01HZXREQUEST', got %v", got.Load())
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	backend := &fakeBackend{Resource: acceptOnly("A2"), Refresh: refreshTo("A2")}
	client, store := setupClient(t, backend, WithMetrics(metrics))
	store.Set(context.Background(), "A1", "R1", "alice")

	if _, err := client.GetPost(context.Background(), "1"); err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}

	if v := testutil.ToFloat64(metrics.refreshes.WithLabelValues("success")); v != 1 {
		t.Errorf("expected 1 successful refresh, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.requests.WithLabelValues("GET", "401")); v != 1 {
		t.Errorf("expected 1 GET 401, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.requests.WithLabelValues("GET", "200")); v != 1 {
		t.Errorf("expected 1 GET 200, got %v", v)
	}
}

func TestNew_AddsScheme(t *testing.T) {
	client := New("localhost:8000/api/", session.NewMemoryStore())
	if got := client.BaseURL(); got != "http://localhost:8000/api" {
		t.Errorf("expected 'http://localhost:8000/api', got %q", got)
	}
}
