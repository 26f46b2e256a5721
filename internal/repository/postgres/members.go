package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
)

// GetMember returns a single membership.
func (r *Repository) GetMember(ctx context.Context, teamID, userID string) (*domain.TeamMember, error) {
	const query = `SELECT tm.team_id, tm.user_id, u.email, tm.role, tm.created_at, tm.updated_at
		FROM team_members tm
		INNER JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = $1 AND tm.user_id = $2`
	var m domain.TeamMember
	if err := r.pool.QueryRow(ctx, query, teamID, userID).Scan(&m.TeamID, &m.UserID, &m.Email, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// ListMembers returns the team's memberships in join order.
func (r *Repository) ListMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	const query = `SELECT tm.team_id, tm.user_id, u.email, tm.role, tm.created_at, tm.updated_at
		FROM team_members tm
		INNER JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = $1
		ORDER BY tm.created_at, tm.user_id`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.TeamMember, 0)
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Email, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMemberRole sets a member's role.
func (r *Repository) UpdateMemberRole(ctx context.Context, teamID, userID, role string, updatedAt time.Time) error {
	const query = `UPDATE team_members SET role = $3, updated_at = $4 WHERE team_id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, teamID, userID, role, updatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RemoveMember deletes the membership and clears a current team pointer that referenced it.
func (r *Repository) RemoveMember(ctx context.Context, teamID, userID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	const clear = `UPDATE users SET current_team_id = NULL, updated_at = NOW()
		WHERE id = $1 AND current_team_id = $2`
	if _, err := tx.Exec(ctx, clear, userID, teamID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
