package postgres

import (
	"context"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
)

// UpsertUser inserts the user or refreshes the stored email, then loads the
// current team pointer back into user.
func (r *Repository) UpsertUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email,
			updated_at = CASE WHEN users.email = EXCLUDED.email THEN users.updated_at ELSE EXCLUDED.updated_at END
		RETURNING current_team_id, created_at, updated_at`
	var current *string
	if err := r.pool.QueryRow(ctx, query, user.ID, user.Email, user.CreatedAt).Scan(&current, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return translate(err)
	}
	user.CurrentTeamID = nilToEmpty(current)
	return nil
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, current_team_id, created_at, updated_at FROM users WHERE email = $1`
	return r.scanUser(ctx, query, email)
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, current_team_id, created_at, updated_at FROM users WHERE id = $1`
	return r.scanUser(ctx, query, id)
}

func (r *Repository) scanUser(ctx context.Context, query string, arg string) (*domain.User, error) {
	var (
		u       domain.User
		current *string
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &current, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	u.CurrentTeamID = nilToEmpty(current)
	return &u, nil
}

// SetCurrentTeam updates the user's current team pointer when the user is
// related to the team.
func (r *Repository) SetCurrentTeam(ctx context.Context, userID, teamID string) error {
	const query = `UPDATE users SET current_team_id = $2, updated_at = NOW()
		WHERE id = $1 AND (
			$2::text IS NULL
			OR EXISTS (SELECT 1 FROM teams t WHERE t.id = $2 AND t.owner_id = $1)
			OR EXISTS (SELECT 1 FROM team_members tm WHERE tm.team_id = $2 AND tm.user_id = $1)
		)`
	tag, err := r.pool.Exec(ctx, query, userID, emptyToNil(teamID))
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
