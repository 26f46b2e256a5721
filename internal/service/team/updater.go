package team

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/splax/teamhub/internal/apperr"
	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/validation"
)

// Update strategies selectable by configuration.
const (
	StrategyDefault  = "default"
	StrategyReserved = "reserved"
)

// Updater validates and persists a team rename. Validation failures must be
// returned as *apperr.Error so callers see them as validation errors.
type Updater interface {
	UpdateName(ctx context.Context, team domain.Team, name string) (*domain.Team, error)
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(ctx context.Context, team domain.Team, name string) (*domain.Team, error)

// UpdateName calls f.
func (f UpdaterFunc) UpdateName(ctx context.Context, team domain.Team, name string) (*domain.Team, error) {
	return f(ctx, team, name)
}

// NameWriter persists team names.
type NameWriter interface {
	UpdateTeamName(ctx context.Context, teamID, name string, updatedAt time.Time) error
}

// NewUpdater returns the Updater for strategy.
func NewUpdater(strategy string, repo NameWriter, reserved []string) (Updater, error) {
	switch strategy {
	case "", StrategyDefault:
		return NewDefaultUpdater(repo), nil
	case StrategyReserved:
		return NewReservedNameUpdater(repo, reserved), nil
	default:
		return nil, fmt.Errorf("unknown team update strategy %q", strategy)
	}
}

// DefaultUpdater trims and length-checks the name.
type DefaultUpdater struct {
	repo NameWriter
}

// NewDefaultUpdater constructs a DefaultUpdater.
func NewDefaultUpdater(repo NameWriter) DefaultUpdater {
	return DefaultUpdater{repo: repo}
}

// UpdateName implements Updater.
func (u DefaultUpdater) UpdateName(ctx context.Context, team domain.Team, name string) (*domain.Team, error) {
	name, err := validation.TeamName(name)
	if err != nil {
		return nil, err
	}
	return Persist(ctx, u.repo, team, name)
}

// ReservedNameUpdater collapses whitespace and refuses reserved names.
type ReservedNameUpdater struct {
	repo     NameWriter
	reserved map[string]struct{}
}

// NewReservedNameUpdater constructs a ReservedNameUpdater. Names compare case-insensitively.
func NewReservedNameUpdater(repo NameWriter, reserved []string) ReservedNameUpdater {
	set := make(map[string]struct{}, len(reserved))
	for _, name := range reserved {
		if key := reservedKey(name); key != "" {
			set[key] = struct{}{}
		}
	}
	return ReservedNameUpdater{repo: repo, reserved: set}
}

// UpdateName implements Updater.
func (u ReservedNameUpdater) UpdateName(ctx context.Context, team domain.Team, name string) (*domain.Team, error) {
	name, err := validation.TeamName(strings.Join(strings.Fields(name), " "))
	if err != nil {
		return nil, err
	}
	if _, ok := u.reserved[reservedKey(name)]; ok {
		return nil, apperr.Validation("name", "team name "+name+" is reserved")
	}
	return Persist(ctx, u.repo, team, name)
}

func reservedKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Persist writes name and returns the updated team.
func Persist(ctx context.Context, repo NameWriter, team domain.Team, name string) (*domain.Team, error) {
	now := time.Now().UTC()
	if err := repo.UpdateTeamName(ctx, team.ID, name, now); err != nil {
		return nil, err
	}
	team.Name = name
	team.UpdatedAt = now
	return &team, nil
}
