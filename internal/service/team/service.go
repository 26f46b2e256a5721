package team

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/splax/teamhub/internal/apperr"
	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/events"
	"github.com/splax/teamhub/internal/service/access"
	"github.com/splax/teamhub/internal/validation"
)

// Repository is the persistence surface of the team lifecycle.
type Repository interface {
	NameWriter
	DetailReader
	CreateTeam(ctx context.Context, team *domain.Team) error
	ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error)
	DeleteTeam(ctx context.Context, teamID string) error
	SetCurrentTeam(ctx context.Context, userID, teamID string) error
}

// DetailReader loads the lists shown alongside a team.
type DetailReader interface {
	ListMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error)
	ListInvitationsByTeam(ctx context.Context, teamID string) ([]domain.Invitation, error)
}

// Service handles team lifecycle workflows.
type Service struct {
	repo     Repository
	guard    access.Guard
	updater  Updater
	hooks    events.Notifier
	notifier events.Notifier
	logger   *slog.Logger
}

// New constructs a Service. hooks receive team.deleting before the cascade
// and can veto it; notifier receives best-effort events after each change.
func New(repo Repository, guard access.Guard, updater Updater, hooks, notifier events.Notifier, logger *slog.Logger) Service {
	if updater == nil {
		updater = NewDefaultUpdater(repo)
	}
	if hooks == nil {
		hooks = events.Nop{}
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	return Service{repo: repo, guard: guard, updater: updater, hooks: hooks, notifier: notifier, logger: logger}
}

// Create registers a team owned by actor and returns actor's teams. The new
// team becomes current when actor had none.
func (s Service) Create(ctx context.Context, actor *domain.User, name string) ([]domain.Team, error) {
	name, err := validation.TeamName(name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	team := &domain.Team{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateTeam(ctx, team); err != nil {
		return nil, apperr.FromStore("create team", err)
	}
	if actor.CurrentTeamID == "" {
		if err := s.repo.SetCurrentTeam(ctx, actor.ID, team.ID); err != nil {
			s.logger.Warn("set current team failed", "team_id", team.ID, "user_id", actor.ID, "error", err)
		} else {
			actor.CurrentTeamID = team.ID
		}
	}
	s.logger.Info("team created", "team_id", team.ID, "owner_id", actor.ID)
	return s.List(ctx, actor.ID)
}

// Rename changes the team name through the configured Updater.
func (s Service) Rename(ctx context.Context, actorID, teamID, name string) (*domain.Team, error) {
	team, err := s.guard.RequireOwner(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	updated, err := s.updater.UpdateName(ctx, *team, name)
	if err != nil {
		return nil, apperr.FromStore("rename team", err)
	}
	s.logger.Info("team renamed", "team_id", teamID, "name", updated.Name)
	evt := events.New(domain.EventTeamRenamed, teamID, actorID, "")
	evt.Team = updated
	events.Publish(ctx, s.notifier, s.logger, evt)
	return updated, nil
}

// Delete removes the team and everything attached to it, then returns the
// owner's remaining teams.
func (s Service) Delete(ctx context.Context, actorID, teamID string) ([]domain.Team, error) {
	team, err := s.guard.RequireOwner(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	deleting := events.New(domain.EventTeamDeleting, teamID, actorID, "")
	deleting.Team = team
	if err := s.hooks.Notify(ctx, deleting); err != nil {
		return nil, fmt.Errorf("team deleting hook: %w", err)
	}
	if err := s.repo.DeleteTeam(ctx, teamID); err != nil {
		return nil, apperr.FromStore("delete team", err)
	}
	s.logger.Info("team deleted", "team_id", teamID, "owner_id", actorID)
	events.Publish(ctx, s.notifier, s.logger, events.New(domain.EventTeamDeleted, teamID, actorID, ""))
	return s.List(ctx, actorID)
}

// List returns the teams actor owns or belongs to.
func (s Service) List(ctx context.Context, actorID string) ([]domain.Team, error) {
	teams, err := s.repo.ListTeamsByUser(ctx, actorID)
	if err != nil {
		return nil, apperr.FromStore("list teams", err)
	}
	return teams, nil
}

// Get returns the team with members and invitations for any related actor.
func (s Service) Get(ctx context.Context, actorID, teamID string) (*domain.TeamDetail, error) {
	team, err := s.guard.RequireMembership(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	return LoadDetail(ctx, s.repo, *team)
}

// LoadDetail attaches members and pending invitations to team.
func LoadDetail(ctx context.Context, repo DetailReader, team domain.Team) (*domain.TeamDetail, error) {
	members, err := repo.ListMembers(ctx, team.ID)
	if err != nil {
		return nil, apperr.FromStore("list members", err)
	}
	invitations, err := repo.ListInvitationsByTeam(ctx, team.ID)
	if err != nil {
		return nil, apperr.FromStore("list invitations", err)
	}
	return &domain.TeamDetail{Team: team, Members: members, Invitations: invitations}, nil
}
