package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
)

const invitationColumns = `id, team_id, email, invited_by, created_at`

// CreateInvitation inserts a pending invitation.
func (r *Repository) CreateInvitation(ctx context.Context, invitation *domain.Invitation) error {
	const query = `INSERT INTO team_invitations (id, team_id, email, invited_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, invitation.ID, invitation.TeamID, invitation.Email, invitation.InvitedBy, invitation.CreatedAt)
	return translate(err)
}

// GetInvitationByID fetches a pending invitation.
func (r *Repository) GetInvitationByID(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM team_invitations WHERE id = $1`
	var inv domain.Invitation
	if err := r.pool.QueryRow(ctx, query, invitationID).Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.InvitedBy, &inv.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

// ListInvitationsByTeam returns a team's pending invitations.
func (r *Repository) ListInvitationsByTeam(ctx context.Context, teamID string) ([]domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM team_invitations WHERE team_id = $1 ORDER BY created_at, id`
	return r.listInvitations(ctx, query, teamID)
}

// ListInvitationsByEmail returns invitations addressed to email.
func (r *Repository) ListInvitationsByEmail(ctx context.Context, email string) ([]domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM team_invitations WHERE email = $1 ORDER BY created_at, id`
	return r.listInvitations(ctx, query, email)
}

func (r *Repository) listInvitations(ctx context.Context, query, arg string) ([]domain.Invitation, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invitations := make([]domain.Invitation, 0)
	for rows.Next() {
		var inv domain.Invitation
		if err := rows.Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.InvitedBy, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// DeleteInvitation removes an invitation scoped to a team.
func (r *Repository) DeleteInvitation(ctx context.Context, teamID, invitationID string) error {
	const query = `DELETE FROM team_invitations WHERE id = $1 AND team_id = $2`
	_, err := r.pool.Exec(ctx, query, invitationID, teamID)
	return err
}

// AcceptInvitation applies an acceptance atomically. It returns ErrNotFound
// when the invitation was consumed or revoked concurrently.
func (r *Repository) AcceptInvitation(ctx context.Context, receipt domain.InvitationReceipt, member *domain.TeamMember) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if member != nil {
		const insertMember = `INSERT INTO team_members (team_id, user_id, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (team_id, user_id) DO NOTHING`
		if _, err := tx.Exec(ctx, insertMember, member.TeamID, member.UserID, member.Role, member.CreatedAt); err != nil {
			return translate(err)
		}
	}

	const insertReceipt = `INSERT INTO team_invitation_receipts (invitation_id, team_id, user_id, accepted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (invitation_id) DO NOTHING`
	if _, err := tx.Exec(ctx, insertReceipt, receipt.InvitationID, receipt.TeamID, receipt.UserID, receipt.AcceptedAt); err != nil {
		return translate(err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM team_invitations WHERE id = $1 AND team_id = $2`, receipt.InvitationID, receipt.TeamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

// GetInvitationReceipt returns the acceptance record for an invitation.
func (r *Repository) GetInvitationReceipt(ctx context.Context, invitationID string) (*domain.InvitationReceipt, error) {
	const query = `SELECT invitation_id, team_id, user_id, accepted_at FROM team_invitation_receipts WHERE invitation_id = $1`
	var rec domain.InvitationReceipt
	if err := r.pool.QueryRow(ctx, query, invitationID).Scan(&rec.InvitationID, &rec.TeamID, &rec.UserID, &rec.AcceptedAt); err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}
