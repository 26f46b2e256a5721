// Package access decides whether an actor may act on a team or invitation.
package access

import (
	"context"
	"errors"

	"github.com/splax/teamhub/internal/apperr"
	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/internal/validation"
)

// Repository is the read surface the guard consults.
type Repository interface {
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	GetMember(ctx context.Context, teamID, userID string) (*domain.TeamMember, error)
	GetInvitationByID(ctx context.Context, invitationID string) (*domain.Invitation, error)
}

// Relation describes how an actor is tied to a team.
type Relation int

const (
	RelationNone Relation = iota
	RelationMember
	RelationOwner
)

// Guard answers authorization questions. It never mutates state.
type Guard struct {
	repo Repository
}

// New constructs a Guard.
func New(repo Repository) Guard {
	return Guard{repo: repo}
}

// Resolve loads the team and reports the actor's relation to it. Unknown
// teams resolve to RelationNone with a nil team.
func (g Guard) Resolve(ctx context.Context, actorID, teamID string) (*domain.Team, Relation, error) {
	if actorID == "" || teamID == "" {
		return nil, RelationNone, nil
	}
	team, err := g.repo.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, RelationNone, nil
		}
		return nil, RelationNone, apperr.FromStore("load team", err)
	}
	if team.IsOwner(actorID) {
		return team, RelationOwner, nil
	}
	if _, err := g.repo.GetMember(ctx, teamID, actorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return team, RelationNone, nil
		}
		return nil, RelationNone, apperr.FromStore("load membership", err)
	}
	return team, RelationMember, nil
}

// RequireOwner returns the team when actor owns it. Unrelated actors get
// NotFound so team ids cannot be probed; members get Forbidden.
func (g Guard) RequireOwner(ctx context.Context, actorID, teamID string) (*domain.Team, error) {
	team, rel, err := g.Resolve(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	switch rel {
	case RelationOwner:
		return team, nil
	case RelationMember:
		return nil, apperr.Forbidden("only the team owner can do that")
	default:
		return nil, apperr.NotFound()
	}
}

// RequireMembership returns the team when actor owns it or belongs to it.
func (g Guard) RequireMembership(ctx context.Context, actorID, teamID string) (*domain.Team, error) {
	team, rel, err := g.Resolve(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	if rel == RelationNone {
		return nil, apperr.NotFound()
	}
	return team, nil
}

// RequireOwnInvitation returns the invitation when it is addressed to actor's email.
func (g Guard) RequireOwnInvitation(ctx context.Context, actor *domain.User, invitationID string) (*domain.Invitation, error) {
	if actor == nil || invitationID == "" {
		return nil, apperr.NotFound()
	}
	inv, err := g.repo.GetInvitationByID(ctx, invitationID)
	if err != nil {
		return nil, apperr.FromStore("load invitation", err)
	}
	if inv.Email != validation.NormalizeEmail(actor.Email) {
		return nil, apperr.NotFound()
	}
	return inv, nil
}
