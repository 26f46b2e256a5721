package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/service/auth"
)

type authContextKey string

const contextKeyActor authContextKey = "teamhub-actor"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header and stores the actor in the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), false
	}
	user, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication failed")
		} else {
			r.logger.Error("actor resolution failed", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return req.Context(), false
	}
	return context.WithValue(req.Context(), contextKeyActor, user), true
}

// actorFromContext extracts the authenticated user.
func actorFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(contextKeyActor).(*domain.User)
	return user, ok && user != nil
}

// actor returns the authenticated user or writes a 500 when the middleware was skipped.
func (r *Router) actor(w http.ResponseWriter, req *http.Request) (*domain.User, bool) {
	user, ok := actorFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
	}
	return user, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
