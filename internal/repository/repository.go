package repository

import (
	"context"
	"time"

	"github.com/splax/teamhub/internal/domain"
)

// UserRepository persists users and their current-team pointer.
type UserRepository interface {
	UpsertUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	// SetCurrentTeam points the user at teamID; an empty teamID clears it.
	// Returns ErrNotFound unless the user owns or belongs to teamID.
	SetCurrentTeam(ctx context.Context, userID, teamID string) error
}

// TeamRepository manages team rows.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	UpdateTeamName(ctx context.Context, teamID, name string, updatedAt time.Time) error
	// ListTeamsByUser returns teams the user owns or belongs to.
	ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error)
	// DeleteTeam clears current-team pointers and removes the team with its
	// members, invitations and receipts in one transaction.
	DeleteTeam(ctx context.Context, teamID string) error
}

// MemberRepository manages non-owner memberships.
type MemberRepository interface {
	GetMember(ctx context.Context, teamID, userID string) (*domain.TeamMember, error)
	ListMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error)
	UpdateMemberRole(ctx context.Context, teamID, userID, role string, updatedAt time.Time) error
	// RemoveMember deletes the membership and clears the user's current-team
	// pointer when it referenced the team. Returns ErrNotFound if no row existed.
	RemoveMember(ctx context.Context, teamID, userID string) error
}

// InvitationRepository manages pending invitations.
type InvitationRepository interface {
	// CreateInvitation returns ErrConflict when (team, email) is already pending
	// and ErrNotFound when the team no longer exists.
	CreateInvitation(ctx context.Context, invitation *domain.Invitation) error
	GetInvitationByID(ctx context.Context, invitationID string) (*domain.Invitation, error)
	ListInvitationsByTeam(ctx context.Context, teamID string) ([]domain.Invitation, error)
	ListInvitationsByEmail(ctx context.Context, email string) ([]domain.Invitation, error)
	// DeleteInvitation removes the invitation scoped to teamID. Missing rows are not an error.
	DeleteInvitation(ctx context.Context, teamID, invitationID string) error
	// AcceptInvitation inserts member (when non-nil, ignoring an existing row),
	// writes receipt and deletes the invitation in one transaction.
	AcceptInvitation(ctx context.Context, receipt domain.InvitationReceipt, member *domain.TeamMember) error
	GetInvitationReceipt(ctx context.Context, invitationID string) (*domain.InvitationReceipt, error)
}

// Store is the full persistence surface the team workflows need.
type Store interface {
	UserRepository
	TeamRepository
	MemberRepository
	InvitationRepository
	Ping(ctx context.Context) error
	Close() error
}
