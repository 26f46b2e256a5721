// Package events delivers team lifecycle notifications to external collaborators.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/splax/teamhub/internal/domain"
)

// Notifier receives team events.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event domain.Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers event to all notifiers, even when an earlier one fails.
func (m Multi) Notify(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, domain.Event) error { return nil }

// Log writes events to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log notifier.
func NewLog(logger *slog.Logger) Log {
	return Log{logger: logger}
}

// Notify implements Notifier.
func (l Log) Notify(ctx context.Context, event domain.Event) error {
	l.logger.InfoContext(ctx, "team event",
		"type", event.Type,
		"team_id", event.TeamID,
		"actor_id", event.ActorID,
		"subject_id", event.SubjectID,
	)
	return nil
}

// New stamps a new event.
func New(eventType domain.EventType, teamID, actorID, subjectID string) domain.Event {
	return domain.Event{
		Type:       eventType,
		TeamID:     teamID,
		ActorID:    actorID,
		SubjectID:  subjectID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publish delivers a post-commit event. Failures are logged and never returned.
func Publish(ctx context.Context, n Notifier, logger *slog.Logger, event domain.Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, event); err != nil {
		logger.WarnContext(ctx, "team event delivery failed", "type", event.Type, "team_id", event.TeamID, "error", err)
	}
}
