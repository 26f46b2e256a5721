package domain

import "time"

// Team represents a shared workspace owned by exactly one user.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeamMember links a non-owner user to a team with a role.
type TeamMember struct {
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Invitation is a pending offer for an email address to join a team.
type Invitation struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Email     string    `json:"email"`
	InvitedBy string    `json:"invited_by"`
	CreatedAt time.Time `json:"created_at"`
}

// InvitationReceipt records an applied acceptance after the invitation row is gone.
type InvitationReceipt struct {
	InvitationID string
	TeamID       string
	UserID       string
	AcceptedAt   time.Time
}

// TeamDetail is a team with its members and pending invitations.
type TeamDetail struct {
	Team
	Members     []TeamMember `json:"members"`
	Invitations []Invitation `json:"invitations"`
}

// IsOwner reports whether userID owns the team.
func (t Team) IsOwner(userID string) bool {
	return userID != "" && t.OwnerID == userID
}
