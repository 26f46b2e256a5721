package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/splax/teamhub/internal/domain"
)

// CreateTeam inserts a team.
func (s *Store) CreateTeam(ctx context.Context, team *domain.Team) error {
	const query = `INSERT INTO teams (id, name, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.sqlDB.ExecContext(ctx, query, team.ID, team.Name, team.OwnerID, toMillis(team.CreatedAt), toMillis(team.UpdatedAt))
	return translate(err)
}

// GetTeamByID fetches a team.
func (s *Store) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	const query = `SELECT id, name, owner_id, created_at, updated_at FROM teams WHERE id = ?`
	team, err := scanTeam(s.sqlDB.QueryRowContext(ctx, query, teamID))
	if err != nil {
		return nil, translate(err)
	}
	return &team, nil
}

// UpdateTeamName renames a team.
func (s *Store) UpdateTeamName(ctx context.Context, teamID, name string, updatedAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE teams SET name = ?, updated_at = ? WHERE id = ?`, name, toMillis(updatedAt), teamID)
	if err != nil {
		return translate(err)
	}
	return rowsAffected(result)
}

// ListTeamsByUser returns teams the user owns or belongs to, by name.
func (s *Store) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	const query = `SELECT t.id, t.name, t.owner_id, t.created_at, t.updated_at
		FROM teams t
		WHERE t.owner_id = ?
			OR EXISTS (SELECT 1 FROM team_members tm WHERE tm.team_id = t.id AND tm.user_id = ?)
		ORDER BY t.name, t.id`
	rows, err := s.sqlDB.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// DeleteTeam clears pointers and removes the team with its dependents in one transaction.
func (s *Store) DeleteTeam(ctx context.Context, teamID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM teams WHERE id = ?`, teamID).Scan(&id); err != nil {
			return translate(err)
		}
		now := toMillis(time.Now())
		if _, err := tx.ExecContext(ctx, `UPDATE users SET current_team_id = NULL, updated_at = ? WHERE current_team_id = ?`, now, teamID); err != nil {
			return fmt.Errorf("clear current team: %w", err)
		}
		for _, stmt := range []string{
			`DELETE FROM team_invitation_receipts WHERE team_id = ?`,
			`DELETE FROM team_invitations WHERE team_id = ?`,
			`DELETE FROM team_members WHERE team_id = ?`,
			`DELETE FROM teams WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, teamID); err != nil {
				return fmt.Errorf("delete team: %w", err)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (domain.Team, error) {
	var (
		team               domain.Team
		createdAt, updated int64
	)
	if err := row.Scan(&team.ID, &team.Name, &team.OwnerID, &createdAt, &updated); err != nil {
		return domain.Team{}, err
	}
	team.CreatedAt = fromMillis(createdAt)
	team.UpdatedAt = fromMillis(updated)
	return team, nil
}
