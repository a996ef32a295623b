package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStorePersistsTokenAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	gen := store.beginAttempt()
	applied, err := store.commitToken(gen, "tok-123")
	if err != nil {
		t.Fatalf("commitToken: %v", err)
	}
	if !applied {
		t.Fatal("commitToken reported stale for a fresh attempt")
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Token(); got != "tok-123" {
		t.Fatalf("reopened token = %q, want tok-123", got)
	}
	if !reopened.IsAuthenticated() {
		t.Fatal("reopened store should be authenticated")
	}
}

func TestStoreClearRemovesFileAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	gen := store.beginAttempt()
	if _, err := store.commitToken(gen, "tok"); err != nil {
		t.Fatalf("commitToken: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("token survived Clear")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("session file still present after Clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestStoreCorruptFileStartsLoggedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("corrupt file should not yield a token")
	}
}

func TestCommitTokenDiscardsStaleAttempt(t *testing.T) {
	store, err := Open("", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	slow := store.beginAttempt()
	fast := store.beginAttempt()

	if applied, _ := store.commitToken(fast, "winner"); !applied {
		t.Fatal("newest attempt should apply")
	}
	if applied, _ := store.commitToken(slow, "loser"); applied {
		t.Fatal("stale attempt should be discarded")
	}
	if got := store.Token(); got != "winner" {
		t.Fatalf("token = %q, want winner", got)
	}
}

func TestCommitTokenDiscardedAfterLogout(t *testing.T) {
	store, err := Open("", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	gen := store.beginAttempt()
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if applied, _ := store.commitToken(gen, "late"); applied {
		t.Fatal("login resolving after logout must not restore a token")
	}
	if store.IsAuthenticated() {
		t.Fatal("store should remain logged out")
	}
}

func TestCommitTokenResetsStaleProfile(t *testing.T) {
	store, err := Open("", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.SetUser(userFixture("old"))

	gen := store.beginAttempt()
	if _, err := store.commitToken(gen, "tok"); err != nil {
		t.Fatalf("commitToken: %v", err)
	}
	if _, ok := store.User(); ok {
		t.Fatal("previous account's profile survived a new login")
	}
}
