package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/splax/teamhub/internal/domain"
)

const memberSelect = `SELECT tm.team_id, tm.user_id, u.email, tm.role, tm.created_at, tm.updated_at
	FROM team_members tm
	INNER JOIN users u ON u.id = tm.user_id`

// GetMember returns one membership.
func (s *Store) GetMember(ctx context.Context, teamID, userID string) (*domain.TeamMember, error) {
	member, err := scanMember(s.sqlDB.QueryRowContext(ctx, memberSelect+` WHERE tm.team_id = ? AND tm.user_id = ?`, teamID, userID))
	if err != nil {
		return nil, translate(err)
	}
	return &member, nil
}

// ListMembers returns a team's memberships in join order.
func (s *Store) ListMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	rows, err := s.sqlDB.QueryContext(ctx, memberSelect+` WHERE tm.team_id = ? ORDER BY tm.created_at, tm.user_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.TeamMember, 0)
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// UpdateMemberRole sets a member's role.
func (s *Store) UpdateMemberRole(ctx context.Context, teamID, userID, role string, updatedAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE team_members SET role = ?, updated_at = ? WHERE team_id = ? AND user_id = ?`,
		role, toMillis(updatedAt), teamID, userID)
	if err != nil {
		return translate(err)
	}
	return rowsAffected(result)
}

// RemoveMember deletes the membership and clears the user's pointer to the team.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
		if err != nil {
			return translate(err)
		}
		if err := rowsAffected(result); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET current_team_id = NULL, updated_at = ? WHERE id = ? AND current_team_id = ?`,
			toMillis(time.Now()), userID, teamID)
		return err
	})
}

func scanMember(row rowScanner) (domain.TeamMember, error) {
	var (
		m                  domain.TeamMember
		createdAt, updated int64
	)
	if err := row.Scan(&m.TeamID, &m.UserID, &m.Email, &m.Role, &createdAt, &updated); err != nil {
		return domain.TeamMember{}, err
	}
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updated)
	return m, nil
}
