package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"milklog/internal/core"
	"milklog/internal/storage"
)

// Service implements PIN registration, login and session resolution on top of
// the record store.
type Service struct {
	repo   *storage.Repository
	secret []byte
	ttl    time.Duration
	clock  core.Clock
}

func NewService(repo *storage.Repository, secret string, ttl time.Duration, clock core.Clock) *Service {
	if clock == nil {
		clock = core.SystemClock
	}
	return &Service{
		repo:   repo,
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}
}

// Register creates a user with a unique display name and a unique PIN, then
// opens a session. Malformed PINs are rejected before any store access;
// duplicate name and duplicate PIN come back as storage.ErrNameTaken and
// storage.ErrPINTaken without creating a row.
func (s *Service) Register(ctx context.Context, name, pin string) (*core.User, string, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, "", err
	}
	if err := ValidatePIN(pin); err != nil {
		return nil, "", err
	}

	user, err := s.repo.CreateUser(ctx, name, DigestPIN(pin, s.secret))
	if err != nil {
		return nil, "", err
	}

	token, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID, "name", user.Name)
	return user, token, nil
}

// Login maps a PIN to a user and opens a session. When a name is supplied it
// must match the resolved user. The error is the same for unknown PINs and
// name mismatches, so login failures leak nothing about which part was wrong.
func (s *Service) Login(ctx context.Context, name, pin string) (*core.User, string, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, "", err
	}

	user, err := s.repo.GetUserByPINDigest(ctx, DigestPIN(pin, s.secret))
	if err != nil {
		return nil, "", fmt.Errorf("resolve pin: %w", err)
	}
	if user == nil {
		return nil, "", ErrInvalidCredentials
	}
	if name = strings.TrimSpace(name); name != "" && name != user.Name {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	slog.InfoContext(ctx, "User logged in", "user_id", user.ID)
	return user, token, nil
}

// Resolve maps a session token to the acting user.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNotAuthenticated
	}

	userID, ok, err := s.repo.GetSessionUser(ctx, token, s.clock())
	if err != nil {
		return Identity{}, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return Identity{}, ErrNotAuthenticated
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return Identity{}, fmt.Errorf("load session user: %w", err)
	}
	if user == nil {
		return Identity{}, ErrNotAuthenticated
	}

	return Identity{UserID: user.ID, Name: user.Name}, nil
}

// Logout deletes the session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, token)
}

func (s *Service) openSession(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.repo.CreateSession(ctx, token, userID, s.clock().Add(s.ttl)); err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	return token, nil
}
