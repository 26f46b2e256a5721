package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/splax/teamhub/internal/domain"
)

// UpsertUser inserts the user or refreshes its email, then reloads the row into user.
func (s *Store) UpsertUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email,
			updated_at = CASE WHEN users.email = excluded.email THEN users.updated_at ELSE excluded.updated_at END`
	now := toMillis(user.CreatedAt)
	if _, err := s.sqlDB.ExecContext(ctx, query, user.ID, user.Email, now, now); err != nil {
		return translate(err)
	}
	stored, err := s.GetUserByID(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT id, email, current_team_id, created_at, updated_at FROM users WHERE email = ?`, email)
}

// GetUserByID fetches a user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT id, email, current_team_id, created_at, updated_at FROM users WHERE id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (*domain.User, error) {
	var (
		u                  domain.User
		current            sql.NullString
		createdAt, updated int64
	)
	if err := s.sqlDB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &current, &createdAt, &updated); err != nil {
		return nil, translate(err)
	}
	u.CurrentTeamID = current.String
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

// SetCurrentTeam updates the current team pointer; an empty teamID clears it.
// Users unrelated to teamID are left untouched and ErrNotFound is returned.
func (s *Store) SetCurrentTeam(ctx context.Context, userID, teamID string) error {
	const query = `UPDATE users SET current_team_id = ?, updated_at = ?
		WHERE id = ? AND (
			? = ''
			OR EXISTS (SELECT 1 FROM teams t WHERE t.id = ? AND t.owner_id = users.id)
			OR EXISTS (SELECT 1 FROM team_members tm WHERE tm.team_id = ? AND tm.user_id = users.id)
		)`
	result, err := s.sqlDB.ExecContext(ctx, query, nullString(teamID), toMillis(time.Now()), userID, teamID, teamID, teamID)
	if err != nil {
		return translate(err)
	}
	return rowsAffected(result)
}
