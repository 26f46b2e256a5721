package domain

import "time"

// User represents a platform account as seen by the team core.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	CurrentTeamID string    `json:"current_team_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
