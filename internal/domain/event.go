package domain

import "time"

// EventType names a team lifecycle notification.
type EventType string

const (
	EventTeamDeleting       EventType = "team.deleting"
	EventTeamDeleted        EventType = "team.deleted"
	EventTeamRenamed        EventType = "team.renamed"
	EventInvitationSent     EventType = "invitation.sent"
	EventInvitationAccepted EventType = "invitation.accepted"
	EventInvitationRevoked  EventType = "invitation.revoked"
	EventMemberRoleUpdated  EventType = "member.role_updated"
	EventMemberRemoved      EventType = "member.removed"
	EventMemberLeft         EventType = "member.left"
)

// Event describes a change to a team. SubjectID carries the member or
// invitation the change applies to, when there is one.
type Event struct {
	Type       EventType `json:"type"`
	TeamID     string    `json:"team_id"`
	ActorID    string    `json:"actor_id"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Team       *Team     `json:"team,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
