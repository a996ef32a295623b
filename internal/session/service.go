package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"easel/internal/imageapi"
	"easel/internal/logging"
	"easel/internal/transport"
)

// ErrLoginSuperseded is returned when a login resolves after a newer login or
// logout already changed the session; its result is discarded.
var ErrLoginSuperseded = errors.New("login superseded by a newer session change")

// AuthAPI is the slice of the service API the session needs.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (imageapi.Token, error)
	Register(ctx context.Context, username, password, email string) (imageapi.User, error)
	Me(ctx context.Context) (imageapi.User, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}

// Service implements the session operations on top of the store and the
// service's auth endpoints.
type Service struct {
	store  *Store
	api    AuthAPI
	logger *slog.Logger
}

// NewService wires the session operations.
func NewService(store *Store, api AuthAPI, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		api:    api,
		logger: logging.NewComponentLogger(logger, "session"),
	}
}

// Login exchanges credentials for a token, persists it, and fetches the
// profile. A failed exchange leaves the session untouched and returns the
// error directly; bad credentials are a local failure, not a session loss.
func (s *Service) Login(ctx context.Context, username, password string) (imageapi.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return imageapi.User{}, errors.New("username is required")
	}

	gen := s.store.beginAttempt()
	token, err := s.api.Login(ctx, username, password)
	if err != nil {
		return imageapi.User{}, fmt.Errorf("login: %w", err)
	}

	applied, err := s.store.commitToken(gen, token.AccessToken)
	if err != nil {
		return imageapi.User{}, fmt.Errorf("persist session: %w", err)
	}
	if !applied {
		return imageapi.User{}, ErrLoginSuperseded
	}
	s.logger.Info("logged in", logging.Args(logging.String("username", username))...)

	return s.FetchUser(ctx)
}

// Register creates an account. It does not authenticate; the server may
// require verification before the account is usable.
func (s *Service) Register(ctx context.Context, username, password, email string) (imageapi.User, error) {
	user, err := s.api.Register(ctx, username, password, email)
	if err != nil {
		return imageapi.User{}, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

// FetchUser retrieves the profile for the current token. A rejected token is
// treated as session loss: the session is torn down locally and the error
// propagates. Other failures (connectivity) leave the session intact.
func (s *Service) FetchUser(ctx context.Context) (imageapi.User, error) {
	user, err := s.api.Me(ctx)
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 401 {
			s.store.Invalidate()
		}
		return imageapi.User{}, fmt.Errorf("fetch user: %w", err)
	}
	s.store.SetUser(user)
	return user, nil
}

// Logout clears the session. Idempotent.
func (s *Service) Logout() error {
	return s.store.Clear()
}

// SetUser replaces the cached profile after a profile edit elsewhere.
func (s *Service) SetUser(user imageapi.User) {
	s.store.SetUser(user)
}

// ChangePassword updates the account password for the current session.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := s.api.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}
