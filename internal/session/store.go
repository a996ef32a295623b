package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"easel/internal/imageapi"
	"easel/internal/logging"
)

// fileState is the persisted shape of the session file. The token is the only
// durable client-side state; the profile is refetched per process.
type fileState struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// Store holds the process-wide session: the bearer token and, once fetched,
// the user profile. The token is persisted to a session file so it survives
// process restarts. Only Store methods and the transport's 401 handler write
// it; everything else reads through accessors.
type Store struct {
	path   string
	logger *slog.Logger

	mu         sync.Mutex
	token      string
	user       *imageapi.User
	generation uint64
}

// Open creates a store backed by the session file at path, loading any
// previously persisted token. An empty path keeps the session in memory only.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logging.NewComponentLogger(logger, "session"),
	}
	if path == "" {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns the current bearer token, or the empty string when logged out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// IsAuthenticated reports whether a token is present.
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// User returns the cached profile. The profile may lag behind the token
// (present token, profile not yet fetched).
func (s *Store) User() (imageapi.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return imageapi.User{}, false
	}
	return *s.user, true
}

// SetUser replaces the cached profile.
func (s *Store) SetUser(user imageapi.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.user = &u
}

// Clear removes the token and profile, in memory and on disk. Idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.generation++
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// Invalidate clears the session, swallowing persistence errors. It exists so
// the transport's 401 handler can tear the session down without caring about
// disk state.
func (s *Store) Invalidate() {
	if err := s.Clear(); err != nil {
		s.logger.Warn("clear session after auth failure", logging.Args(logging.Error(err))...)
	}
}

// beginAttempt marks the start of a login attempt. The returned generation is
// required to commit the attempt's result; any later attempt or logout
// invalidates it, so a stale resolution cannot overwrite newer state.
func (s *Store) beginAttempt() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// commitToken applies a login result if no newer attempt or logout happened
// since gen was issued. Returns false when the result is stale.
func (s *Store) commitToken(gen uint64, token string) (bool, error) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false, nil
	}
	s.token = token
	s.user = nil
	s.mu.Unlock()

	if err := s.persist(token); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) load() error {
	lock := flock.New(s.path + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("lock session file: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read session file: %w", err)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt session file means logging in again, not failing the CLI.
		s.logger.Warn("session file unreadable, starting logged out", logging.Args(logging.Error(err))...)
		return nil
	}
	s.token = state.Token
	return nil
}

func (s *Store) persist(token string) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock session file: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(fileState{Token: token, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
