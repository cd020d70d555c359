package engine

import (
	"context"

	"github.com/dakeena/living-chronicle/internal/era"
	"github.com/dakeena/living-chronicle/internal/pantheon"
	"github.com/dakeena/living-chronicle/internal/population"
)

// WorldState is the scalar state persisted between runs. The drawn era
// duration is deliberately absent; see era.RestoreClock.
type WorldState struct {
	CurrentDay int     `json:"current_day" db:"current_day"`
	Era        era.Era `json:"era" db:"era"`
	DaysInEra  int     `json:"days_in_era" db:"days_in_era"`
	Seed       int64   `json:"seed" db:"seed"`
}

// Storage is the persistence collaborator. Save methods insert when the
// entity's ID is zero and update otherwise, returning the stable ID.
// LoadWorldState returns nil, nil when nothing has been persisted.
type Storage interface {
	LoadWorldState(ctx context.Context) (*WorldState, error)
	SaveWorldState(ctx context.Context, ws *WorldState) error

	LoadFactions(ctx context.Context) ([]*population.Faction, error)
	SaveFaction(ctx context.Context, f *population.Faction) (int64, error)

	LoadCitizens(ctx context.Context, aliveOnly bool) ([]*population.Citizen, error)
	SaveCitizen(ctx context.Context, c *population.Citizen) (int64, error)

	LoadGods(ctx context.Context, aliveOnly bool) ([]*pantheon.God, error)
	SaveGod(ctx context.Context, g *pantheon.God) (int64, error)

	SaveMyth(ctx context.Context, m *population.Myth) (int64, error)

	ClearAll(ctx context.Context) error
}
