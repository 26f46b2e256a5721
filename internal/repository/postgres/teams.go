package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
)

// CreateTeam creates a team record.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	const query = `INSERT INTO teams (id, name, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, team.ID, team.Name, team.OwnerID, team.CreatedAt, team.UpdatedAt)
	return translate(err)
}

// GetTeamByID returns a team by identifier.
func (r *Repository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	const query = `SELECT id, name, owner_id, created_at, updated_at FROM teams WHERE id = $1`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, teamID).Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt, &team.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &team, nil
}

// UpdateTeamName renames a team.
func (r *Repository) UpdateTeamName(ctx context.Context, teamID, name string, updatedAt time.Time) error {
	const query = `UPDATE teams SET name = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, teamID, name, updatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListTeamsByUser returns teams the user owns or belongs to.
func (r *Repository) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	const query = `SELECT t.id, t.name, t.owner_id, t.created_at, t.updated_at
		FROM teams t
		WHERE t.owner_id = $1
			OR EXISTS (SELECT 1 FROM team_members tm WHERE tm.team_id = t.id AND tm.user_id = $1)
		ORDER BY t.name, t.id`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// DeleteTeam removes the team and every dependent row atomically.
func (r *Repository) DeleteTeam(ctx context.Context, teamID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Lock the team first so concurrent invites or accepts queue behind us.
	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM teams WHERE id = $1 FOR UPDATE`, teamID).Scan(&id); err != nil {
		return translate(err)
	}

	steps := []struct {
		name  string
		query string
	}{
		{"clear current team", `UPDATE users SET current_team_id = NULL, updated_at = NOW() WHERE current_team_id = $1`},
		{"delete receipts", `DELETE FROM team_invitation_receipts WHERE team_id = $1`},
		{"delete invitations", `DELETE FROM team_invitations WHERE team_id = $1`},
		{"delete members", `DELETE FROM team_members WHERE team_id = $1`},
		{"delete team", `DELETE FROM teams WHERE id = $1`},
	}
	for _, step := range steps {
		if _, err := tx.Exec(ctx, step.query, teamID); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return tx.Commit(ctx)
}
