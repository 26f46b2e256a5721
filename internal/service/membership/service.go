// Package membership changes who belongs to a team and which team a user
// is currently working in.
package membership

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/splax/teamhub/internal/apperr"
	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/events"
	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/internal/service/access"
	"github.com/splax/teamhub/internal/service/team"
	"github.com/splax/teamhub/internal/validation"
)

// Repository is the persistence surface of the membership workflow.
type Repository interface {
	team.DetailReader
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	GetMember(ctx context.Context, teamID, userID string) (*domain.TeamMember, error)
	UpdateMemberRole(ctx context.Context, teamID, userID, role string, updatedAt time.Time) error
	RemoveMember(ctx context.Context, teamID, userID string) error
	SetCurrentTeam(ctx context.Context, userID, teamID string) error
	ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error)
}

// Service handles membership workflows.
type Service struct {
	repo     Repository
	guard    access.Guard
	notifier events.Notifier
	logger   *slog.Logger
}

// New constructs a Service.
func New(repo Repository, guard access.Guard, notifier events.Notifier, logger *slog.Logger) Service {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return Service{repo: repo, guard: guard, notifier: notifier, logger: logger}
}

// UpdateRole sets a member's role. Setting the current role again is a no-op.
func (s Service) UpdateRole(ctx context.Context, actorID, teamID, memberID, roleID string) (*domain.TeamDetail, error) {
	t, err := s.guard.RequireOwner(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	member, err := s.repo.GetMember(ctx, teamID, memberID)
	if err != nil {
		return nil, apperr.FromStore("load member", err)
	}
	roleID, err = validation.Role(roleID)
	if err != nil {
		return nil, err
	}
	if member.Role != roleID {
		if err := s.repo.UpdateMemberRole(ctx, teamID, memberID, roleID, time.Now().UTC()); err != nil {
			return nil, apperr.FromStore("update member role", err)
		}
		s.logger.Info("member role updated", "team_id", teamID, "user_id", memberID, "role", roleID)
		events.Publish(ctx, s.notifier, s.logger, events.New(domain.EventMemberRoleUpdated, teamID, actorID, memberID))
	}
	return team.LoadDetail(ctx, s.repo, *t)
}

// Remove deletes a member from the team, clearing their current team when it
// pointed here.
func (s Service) Remove(ctx context.Context, actorID, teamID, memberID string) (*domain.TeamDetail, error) {
	t, err := s.guard.RequireOwner(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RemoveMember(ctx, teamID, memberID); err != nil {
		return nil, apperr.FromStore("remove member", err)
	}
	s.logger.Info("member removed", "team_id", teamID, "user_id", memberID)
	events.Publish(ctx, s.notifier, s.logger, events.New(domain.EventMemberRemoved, teamID, actorID, memberID))
	return team.LoadDetail(ctx, s.repo, *t)
}

// Leave removes actor's own membership. Owners cannot leave their team.
func (s Service) Leave(ctx context.Context, actorID, teamID string) ([]domain.Team, error) {
	t, rel, err := s.guard.Resolve(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	switch rel {
	case access.RelationNone:
		return nil, apperr.NotFound()
	case access.RelationOwner:
		return nil, apperr.Forbidden("the owner cannot leave the team; delete it instead")
	}
	if err := s.repo.RemoveMember(ctx, t.ID, actorID); err != nil {
		return nil, apperr.FromStore("leave team", err)
	}
	s.logger.Info("member left", "team_id", teamID, "user_id", actorID)
	events.Publish(ctx, s.notifier, s.logger, events.New(domain.EventMemberLeft, teamID, actorID, actorID))
	teams, err := s.repo.ListTeamsByUser(ctx, actorID)
	if err != nil {
		return nil, apperr.FromStore("list teams", err)
	}
	return teams, nil
}

// SwitchCurrentTeam makes teamID the actor's current team.
func (s Service) SwitchCurrentTeam(ctx context.Context, actorID, teamID string) error {
	if _, err := s.guard.RequireMembership(ctx, actorID, teamID); err != nil {
		return err
	}
	if err := s.repo.SetCurrentTeam(ctx, actorID, teamID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Membership vanished between the check and the write.
			return apperr.NotFound()
		}
		return apperr.FromStore("switch team", err)
	}
	s.logger.Debug("current team switched", "team_id", teamID, "user_id", actorID)
	return nil
}
