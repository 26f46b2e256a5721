// Package sqlitetest seeds throwaway SQLite stores for workflow tests.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository/sqlite"
	"github.com/splax/teamhub/internal/role"
)

// Open returns a migrated store in a temp dir, closed on cleanup.
func Open(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "teamhub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// CreateUser stores a user; empty fields get defaults.
func CreateUser(t *testing.T, store *sqlite.Store, user domain.User) *domain.User {
	t.Helper()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Email == "" {
		user.Email = user.ID + "@example.com"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, store.UpsertUser(context.Background(), &user))
	return &user
}

// CreateTeam stores a team owned by ownerID.
func CreateTeam(t *testing.T, store *sqlite.Store, ownerID, name string) *domain.Team {
	t.Helper()
	now := time.Now().UTC()
	team := &domain.Team{ID: uuid.NewString(), Name: name, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateTeam(context.Background(), team))
	return team
}

// AddMember joins user to team with roleID (member when empty).
func AddMember(t *testing.T, store *sqlite.Store, teamID string, user *domain.User, roleID string) {
	t.Helper()
	if roleID == "" {
		roleID = role.Member
	}
	ctx := context.Background()
	now := time.Now().UTC()
	inv := &domain.Invitation{ID: uuid.NewString(), TeamID: teamID, Email: user.Email, InvitedBy: "seed", CreatedAt: now}
	require.NoError(t, store.CreateInvitation(ctx, inv))
	require.NoError(t, store.AcceptInvitation(ctx,
		domain.InvitationReceipt{InvitationID: inv.ID, TeamID: teamID, UserID: user.ID, AcceptedAt: now},
		&domain.TeamMember{TeamID: teamID, UserID: user.ID, Role: roleID, CreatedAt: now},
	))
}

// CurrentTeam reloads the user's current team pointer.
func CurrentTeam(t *testing.T, store *sqlite.Store, userID string) string {
	t.Helper()
	user, err := store.GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	return user.CurrentTeamID
}
