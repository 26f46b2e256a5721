// Package auth resolves bearer tokens into the acting user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/internal/validation"
	jwtpkg "github.com/splax/teamhub/pkg/jwt"
)

// ErrUnauthorized indicates the token was missing, malformed or expired.
var ErrUnauthorized = errors.New("unauthorized")

// UserStore is the user persistence the identity adapter needs.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
}

// Service maps bearer tokens onto users, provisioning unknown users on first sight.
type Service struct {
	users  UserStore
	secret string
	logger *slog.Logger
}

// New constructs a Service.
func New(users UserStore, secret string, logger *slog.Logger) Service {
	return Service{users: users, secret: secret, logger: logger}
}

// Authorize validates a bearer token and returns the acting user.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: token required", ErrUnauthorized)
	}
	claims, err := jwtpkg.Parse(trimmed, s.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	email, err := validation.Email(claims.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	switch {
	case err == nil && user.Email == email:
		return user, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load user: %w", err)
	}

	user = &domain.User{ID: claims.UserID, Email: email, CreatedAt: time.Now().UTC()}
	if err := s.users.UpsertUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Warn("token email held by another user", "user_id", claims.UserID)
			return nil, fmt.Errorf("%w: email already registered", ErrUnauthorized)
		}
		return nil, fmt.Errorf("provision user: %w", err)
	}
	s.logger.Info("user provisioned", "user_id", user.ID)
	return user, nil
}
