package sqlite

import (
	"context"
	"database/sql"

	"github.com/splax/teamhub/internal/domain"
)

const invitationSelect = `SELECT id, team_id, email, invited_by, created_at FROM team_invitations`

// CreateInvitation inserts a pending invitation.
func (s *Store) CreateInvitation(ctx context.Context, invitation *domain.Invitation) error {
	const query = `INSERT INTO team_invitations (id, team_id, email, invited_by, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.sqlDB.ExecContext(ctx, query, invitation.ID, invitation.TeamID, invitation.Email, invitation.InvitedBy, toMillis(invitation.CreatedAt))
	return translate(err)
}

// GetInvitationByID fetches a pending invitation.
func (s *Store) GetInvitationByID(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	inv, err := scanInvitation(s.sqlDB.QueryRowContext(ctx, invitationSelect+` WHERE id = ?`, invitationID))
	if err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

// ListInvitationsByTeam returns a team's pending invitations.
func (s *Store) ListInvitationsByTeam(ctx context.Context, teamID string) ([]domain.Invitation, error) {
	return s.listInvitations(ctx, invitationSelect+` WHERE team_id = ? ORDER BY created_at, id`, teamID)
}

// ListInvitationsByEmail returns invitations addressed to email.
func (s *Store) ListInvitationsByEmail(ctx context.Context, email string) ([]domain.Invitation, error) {
	return s.listInvitations(ctx, invitationSelect+` WHERE email = ? ORDER BY created_at, id`, email)
}

func (s *Store) listInvitations(ctx context.Context, query, arg string) ([]domain.Invitation, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invitations := make([]domain.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// DeleteInvitation removes an invitation scoped to a team.
func (s *Store) DeleteInvitation(ctx context.Context, teamID, invitationID string) error {
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM team_invitations WHERE id = ? AND team_id = ?`, invitationID, teamID)
	return err
}

// AcceptInvitation inserts the membership and receipt and consumes the
// invitation atomically. ErrNotFound means the invitation was already gone.
func (s *Store) AcceptInvitation(ctx context.Context, receipt domain.InvitationReceipt, member *domain.TeamMember) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if member != nil {
			const insertMember = `INSERT INTO team_members (team_id, user_id, role, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (team_id, user_id) DO NOTHING`
			ts := toMillis(member.CreatedAt)
			if _, err := tx.ExecContext(ctx, insertMember, member.TeamID, member.UserID, member.Role, ts, ts); err != nil {
				return translate(err)
			}
		}
		const insertReceipt = `INSERT INTO team_invitation_receipts (invitation_id, team_id, user_id, accepted_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (invitation_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, insertReceipt, receipt.InvitationID, receipt.TeamID, receipt.UserID, toMillis(receipt.AcceptedAt)); err != nil {
			return translate(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM team_invitations WHERE id = ? AND team_id = ?`, receipt.InvitationID, receipt.TeamID)
		if err != nil {
			return err
		}
		return rowsAffected(result)
	})
}

// GetInvitationReceipt returns the acceptance record for an invitation.
func (s *Store) GetInvitationReceipt(ctx context.Context, invitationID string) (*domain.InvitationReceipt, error) {
	var (
		rec        domain.InvitationReceipt
		acceptedAt int64
	)
	const query = `SELECT invitation_id, team_id, user_id, accepted_at FROM team_invitation_receipts WHERE invitation_id = ?`
	if err := s.sqlDB.QueryRowContext(ctx, query, invitationID).Scan(&rec.InvitationID, &rec.TeamID, &rec.UserID, &acceptedAt); err != nil {
		return nil, translate(err)
	}
	rec.AcceptedAt = fromMillis(acceptedAt)
	return &rec, nil
}

func scanInvitation(row rowScanner) (domain.Invitation, error) {
	var (
		inv       domain.Invitation
		createdAt int64
	)
	if err := row.Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.InvitedBy, &createdAt); err != nil {
		return domain.Invitation{}, err
	}
	inv.CreatedAt = fromMillis(createdAt)
	return inv, nil
}
