// Package invitation sends, accepts and revokes team invitations.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/splax/teamhub/internal/apperr"
	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/events"
	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/internal/role"
	"github.com/splax/teamhub/internal/service/access"
	"github.com/splax/teamhub/internal/service/team"
	"github.com/splax/teamhub/internal/validation"
)

// Repository is the persistence surface of the invitation workflow.
type Repository interface {
	repository.InvitationRepository
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	GetMember(ctx context.Context, teamID, userID string) (*domain.TeamMember, error)
	ListMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error)
}

// Service handles invitation workflows.
type Service struct {
	repo        Repository
	guard       access.Guard
	defaultRole string
	notifier    events.Notifier
	logger      *slog.Logger
}

// New constructs a Service. Accepted invitations grant defaultRole, which
// must be assignable.
func New(repo Repository, guard access.Guard, defaultRole string, notifier events.Notifier, logger *slog.Logger) (Service, error) {
	if defaultRole == "" {
		defaultRole = role.Member
	}
	if !role.IsAssignable(defaultRole) {
		return Service{}, fmt.Errorf("default role %q is not assignable", defaultRole)
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	return Service{repo: repo, guard: guard, defaultRole: defaultRole, notifier: notifier, logger: logger}, nil
}

var (
	errAlreadyInvited = apperr.Conflict("already invited")
	errAlreadyOnTeam  = apperr.Conflict("already on team")
)

// Send invites email to the team and returns the refreshed team.
func (s Service) Send(ctx context.Context, actorID, teamID, email string) (*domain.TeamDetail, error) {
	t, err := s.guard.RequireOwner(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	email, err = validation.Email(email)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotOnTeam(ctx, *t, email); err != nil {
		return nil, err
	}

	inv := &domain.Invitation{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		Email:     email,
		InvitedBy: actorID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, errAlreadyInvited
		}
		return nil, apperr.FromStore("create invitation", err)
	}
	s.logger.Info("invitation sent", "team_id", teamID, "invitation_id", inv.ID)
	events.Publish(ctx, s.notifier, s.logger, events.New(domain.EventInvitationSent, teamID, actorID, inv.ID))
	return team.LoadDetail(ctx, s.repo, *t)
}

func (s Service) ensureNotOnTeam(ctx context.Context, t domain.Team, email string) error {
	owner, err := s.repo.GetUserByID(ctx, t.OwnerID)
	if err != nil {
		return apperr.FromStore("load owner", err)
	}
	if owner.Email == email {
		return errAlreadyOnTeam
	}
	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.FromStore("load invitee", err)
	}
	_, err = s.repo.GetMember(ctx, t.ID, user.ID)
	switch {
	case err == nil:
		return errAlreadyOnTeam
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return apperr.FromStore("load membership", err)
	}
}

// Accept joins actor to the invitation's team and returns actor's teams.
// Repeating an acceptance that already applied returns the same result.
func (s Service) Accept(ctx context.Context, actor *domain.User, invitationID string) ([]domain.Team, error) {
	inv, err := s.guard.RequireOwnInvitation(ctx, actor, invitationID)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.alreadyAccepted(ctx, actor, invitationID)
	}
	if err != nil {
		return nil, err
	}

	t, err := s.repo.GetTeamByID(ctx, inv.TeamID)
	if err != nil {
		return nil, apperr.FromStore("load team", err)
	}
	now := time.Now().UTC()
	receipt := domain.InvitationReceipt{InvitationID: inv.ID, TeamID: inv.TeamID, UserID: actor.ID, AcceptedAt: now}
	var member *domain.TeamMember
	if !t.IsOwner(actor.ID) {
		member = &domain.TeamMember{TeamID: inv.TeamID, UserID: actor.ID, Role: s.defaultRole, CreatedAt: now}
	}
	if err := s.repo.AcceptInvitation(ctx, receipt, member); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.alreadyAccepted(ctx, actor, invitationID)
		}
		return nil, apperr.FromStore("accept invitation", err)
	}
	s.logger.Info("invitation accepted", "team_id", inv.TeamID, "invitation_id", inv.ID, "user_id", actor.ID)
	events.Publish(ctx, s.notifier, s.logger, events.New(domain.EventInvitationAccepted, inv.TeamID, actor.ID, inv.ID))
	return s.listTeams(ctx, actor.ID)
}

// alreadyAccepted resolves a missing invitation: if actor accepted it before,
// the call is a repeat and succeeds.
func (s Service) alreadyAccepted(ctx context.Context, actor *domain.User, invitationID string) ([]domain.Team, error) {
	if actor == nil || invitationID == "" {
		return nil, apperr.NotFound()
	}
	receipt, err := s.repo.GetInvitationReceipt(ctx, invitationID)
	if err != nil {
		return nil, apperr.FromStore("load invitation receipt", err)
	}
	if receipt.UserID != actor.ID {
		return nil, apperr.NotFound()
	}
	s.logger.Debug("invitation already accepted", "invitation_id", invitationID, "user_id", actor.ID)
	return s.listTeams(ctx, actor.ID)
}

// Revoke deletes a team's pending invitation. Unknown ids are ignored.
func (s Service) Revoke(ctx context.Context, actorID, teamID, invitationID string) error {
	if _, err := s.guard.RequireOwner(ctx, actorID, teamID); err != nil {
		return err
	}
	inv, err := s.repo.GetInvitationByID(ctx, invitationID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return apperr.FromStore("load invitation", err)
	case inv.TeamID != teamID:
		return nil
	}
	if err := s.repo.DeleteInvitation(ctx, teamID, invitationID); err != nil {
		return apperr.FromStore("revoke invitation", err)
	}
	s.logger.Info("invitation revoked", "team_id", teamID, "invitation_id", invitationID)
	events.Publish(ctx, s.notifier, s.logger, events.New(domain.EventInvitationRevoked, teamID, actorID, invitationID))
	return nil
}

// RevokeOwn lets the invitee decline an invitation addressed to them.
func (s Service) RevokeOwn(ctx context.Context, actor *domain.User, invitationID string) error {
	inv, err := s.guard.RequireOwnInvitation(ctx, actor, invitationID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteInvitation(ctx, inv.TeamID, inv.ID); err != nil {
		return apperr.FromStore("decline invitation", err)
	}
	s.logger.Info("invitation declined", "team_id", inv.TeamID, "invitation_id", inv.ID, "user_id", actor.ID)
	events.Publish(ctx, s.notifier, s.logger, events.New(domain.EventInvitationRevoked, inv.TeamID, actor.ID, inv.ID))
	return nil
}

// ListForUser returns invitations addressed to actor.
func (s Service) ListForUser(ctx context.Context, actor *domain.User) ([]domain.Invitation, error) {
	invitations, err := s.repo.ListInvitationsByEmail(ctx, validation.NormalizeEmail(actor.Email))
	if err != nil {
		return nil, apperr.FromStore("list invitations", err)
	}
	return invitations, nil
}

func (s Service) listTeams(ctx context.Context, userID string) ([]domain.Team, error) {
	teams, err := s.repo.ListTeamsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.FromStore("list teams", err)
	}
	return teams, nil
}
