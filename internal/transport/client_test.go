package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"easel/internal/signalbus"
	"easel/internal/transport"
)

type stubCreds struct {
	token       string
	invalidated int
}

func (s *stubCreds) Token() string { return s.token }

func (s *stubCreds) Invalidate() { s.invalidated++; s.token = "" }

type busRecorder struct {
	apiErrors    []*signalbus.APIError
	unauthorized int
}

func newBusRecorder(bus *signalbus.Bus) *busRecorder {
	rec := &busRecorder{}
	bus.Subscribe(signalbus.ChannelAPIError, func(payload any) {
		if apiErr, ok := payload.(*signalbus.APIError); ok {
			rec.apiErrors = append(rec.apiErrors, apiErr)
		}
	})
	bus.Subscribe(signalbus.ChannelUnauthorized, func(any) { rec.unauthorized++ })
	return rec
}

func newClient(t *testing.T, serverURL string, creds *stubCreds) (*transport.Client, *busRecorder) {
	t.Helper()
	bus := signalbus.New()
	rec := newBusRecorder(bus)
	client, err := transport.New(serverURL, creds, bus, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client, rec
}

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := newClient(t, server.URL, &stubCreds{token: "tok123"})
	var out struct{}
	if err := client.GetJSON(context.Background(), "/tasks/abc", nil, &out); err != nil {
		t.Fatalf("GetJSON returned error: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected request id header")
	}
}

func TestNoBearerWhenLoggedOut(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := newClient(t, server.URL, &stubCreds{})
	if err := client.GetJSON(context.Background(), "/health", nil, nil); err != nil {
		t.Fatalf("GetJSON returned error: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no auth header, got %q", gotAuth)
	}
}

func TestUnauthorizedClearsSessionAndPublishes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"token expired"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := &stubCreds{token: "stale"}
	client, rec := newClient(t, server.URL, creds)

	err := client.GetJSON(context.Background(), "/auth/me", nil, nil)
	if err == nil {
		t.Fatal("expected error from 401")
	}
	if !transport.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if creds.invalidated != 1 {
		t.Fatalf("expected session invalidated once, got %d", creds.invalidated)
	}
	if rec.unauthorized != 1 {
		t.Fatalf("expected one unauthorized signal, got %d", rec.unauthorized)
	}
	if len(rec.apiErrors) != 0 {
		t.Fatalf("401 must not raise api-error, got %d", len(rec.apiErrors))
	}
}

func TestLoginUnauthorizedIsLocalOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"bad credentials"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := &stubCreds{token: "unrelated-session"}
	client, rec := newClient(t, server.URL, creds)

	err := client.PostJSON(context.Background(), "/auth/login", map[string]string{"username": "x"}, nil,
		transport.SkipUnauthorizedHandling())
	if err == nil {
		t.Fatal("expected error from 401")
	}
	if creds.invalidated != 0 {
		t.Fatal("login 401 must not clear an unrelated session")
	}
	if rec.unauthorized != 0 {
		t.Fatal("login 401 must not publish unauthorized")
	}
	if creds.token != "unrelated-session" {
		t.Fatal("existing token must survive a failed login")
	}
}

func TestForbiddenPublishesAdvisoryAndKeepsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"admins only"}`, http.StatusForbidden)
	}))
	defer server.Close()

	creds := &stubCreds{token: "tok"}
	client, rec := newClient(t, server.URL, creds)

	err := client.GetJSON(context.Background(), "/tasks/history/all", nil, nil)
	if err == nil {
		t.Fatal("expected error from 403")
	}
	if creds.invalidated != 0 {
		t.Fatal("403 must not alter session state")
	}
	if len(rec.apiErrors) != 1 || rec.apiErrors[0].Title != "Permission Denied" {
		t.Fatalf("expected one permission advisory, got %+v", rec.apiErrors)
	}
	if rec.apiErrors[0].Message != "admins only" {
		t.Fatalf("expected server detail in advisory, got %q", rec.apiErrors[0].Message)
	}
}

func TestRateLimitAndServerErrorsPublish(t *testing.T) {
	cases := []struct {
		status int
		title  string
	}{
		{http.StatusTooManyRequests, "Rate Limited"},
		{http.StatusInternalServerError, "Server Error"},
		{http.StatusBadGateway, "Server Error"},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client, rec := newClient(t, server.URL, &stubCreds{})

		err := client.GetJSON(context.Background(), "/tasks/x", nil, nil)
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if len(rec.apiErrors) != 1 || rec.apiErrors[0].Title != tc.title {
			t.Fatalf("status %d: expected %q advisory, got %+v", tc.status, tc.title, rec.apiErrors)
		}
		server.Close()
	}
}

func TestUnclassifiedStatusReturnsErrorWithoutSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"no such task"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client, rec := newClient(t, server.URL, &stubCreds{})
	err := client.GetJSON(context.Background(), "/tasks/missing", nil, nil)
	if !transport.IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if len(rec.apiErrors) != 0 || rec.unauthorized != 0 {
		t.Fatal("404 must not publish any signal")
	}
}

func TestNetworkFailurePublishesConnectivityAdvisory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client, rec := newClient(t, server.URL, &stubCreds{})
	err := client.GetJSON(context.Background(), "/tasks/x", nil, nil)
	if err == nil {
		t.Fatal("expected network error")
	}
	if len(rec.apiErrors) != 1 || rec.apiErrors[0].Title != "Connection Failed" {
		t.Fatalf("expected connectivity advisory, got %+v", rec.apiErrors)
	}
}

func TestCancelledRequestDoesNotPublishConnectivityAdvisory(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	client, rec := newClient(t, server.URL, &stubCreds{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.GetJSON(ctx, "/tasks/x", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if len(rec.apiErrors) != 0 {
		t.Fatalf("cancellation must not raise api-error, got %+v", rec.apiErrors)
	}
}
