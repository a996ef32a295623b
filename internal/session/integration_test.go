package session_test

import (
	"context"
	"path/filepath"
	"testing"

	"easel/internal/imageapi"
	"easel/internal/session"
	"easel/internal/signalbus"
	"easel/internal/testsupport"
	"easel/internal/transport"
)

func wireClient(t *testing.T, fake *testsupport.FakeService, sessionFile string) (*session.Store, *session.Service, *signalbus.Bus) {
	t.Helper()

	store, err := session.Open(sessionFile, nil)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	bus := signalbus.New()
	tp, err := transport.New(fake.URL(), store, bus, nil)
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	api := imageapi.NewClient(tp, nil)
	return store, session.NewService(store, api, nil), bus
}

func TestLoginRoundTripPersistsSession(t *testing.T) {
	fake := testsupport.NewFakeService(t)
	sessionFile := filepath.Join(t.TempDir(), "session.json")
	store, svc, _ := wireClient(t, fake, sessionFile)

	user, err := svc.Login(context.Background(), "tester", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Username != "tester" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if store.Token() != fake.Token() {
		t.Fatalf("token = %q, want %q", store.Token(), fake.Token())
	}

	reopened, err := session.Open(sessionFile, nil)
	if err != nil {
		t.Fatalf("reopen session: %v", err)
	}
	if reopened.Token() != fake.Token() {
		t.Fatal("token did not survive reopen")
	}
}

func TestBadCredentialsDoNotSignalUnauthorized(t *testing.T) {
	fake := testsupport.NewFakeService(t)
	store, svc, bus := wireClient(t, fake, filepath.Join(t.TempDir(), "session.json"))

	var unauthorized int
	bus.Subscribe(signalbus.ChannelUnauthorized, func(any) { unauthorized++ })

	if _, err := svc.Login(context.Background(), "tester", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
	if unauthorized != 0 {
		t.Fatalf("failed login published unauthorized %d times", unauthorized)
	}
	if store.IsAuthenticated() {
		t.Fatal("failed login left a token behind")
	}
}

func TestRevokedTokenTearsDownSessionAndSignals(t *testing.T) {
	fake := testsupport.NewFakeService(t)
	store, svc, bus := wireClient(t, fake, filepath.Join(t.TempDir(), "session.json"))

	if _, err := svc.Login(context.Background(), "tester", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	var unauthorized int
	bus.Subscribe(signalbus.ChannelUnauthorized, func(any) { unauthorized++ })

	fake.RevokeToken()
	if _, err := svc.FetchUser(context.Background()); err == nil {
		t.Fatal("expected fetch failure after revocation")
	}
	if store.IsAuthenticated() {
		t.Fatal("revoked token should clear the session")
	}
	if unauthorized != 1 {
		t.Fatalf("unauthorized published %d times, want 1", unauthorized)
	}
}
