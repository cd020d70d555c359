// Package engine orchestrates one simulated day: clock, omen, population,
// pantheon, persistence. It also provides the auto-run driver and the tick
// fan-out used by the API.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/era"
	"github.com/dakeena/living-chronicle/internal/omen"
	"github.com/dakeena/living-chronicle/internal/pantheon"
	"github.com/dakeena/living-chronicle/internal/population"
)

// GenesisConfig sizes a freshly created world.
type GenesisConfig struct {
	Factions           int
	CitizensPerFaction int
	Unaffiliated       int
}

// DefaultGenesis returns the standard world size.
func DefaultGenesis() GenesisConfig {
	return GenesisConfig{Factions: 3, CitizensPerFaction: 8, Unaffiliated: 5}
}

// TickResult is everything observers need to know about one day.
// Gods in Born and Faded are copies taken after persistence.
type TickResult struct {
	Day        int                `json:"day"`
	Era        era.Era            `json:"era"`
	Event      *omen.Event        `json:"event,omitempty"`
	Transition *era.Era           `json:"era_transition,omitempty"`
	Born       []*pantheon.God    `json:"born_gods"`
	Faded      []*pantheon.God    `json:"faded_gods"`
	Myths      []*population.Myth `json:"new_myths"`
}

// Observer receives each completed tick. It must not mutate kernel state.
type Observer func(*TickResult)

// Kernel owns the world. It is not safe for concurrent use; callers
// serialize ticks (see Runner).
type Kernel struct {
	store   Storage
	seed    int64
	genesis GenesisConfig

	rng   *rand.Rand
	clock *era.Clock
	omens *omen.Generator
	pop   *population.Population
	gods  *pantheon.Pantheon
	day   int
	ready bool

	// Faded gods and myths whose save has not yet succeeded. Every persist
	// retries them first, so one failed save is caught up by the next.
	pendingGods  []*pantheon.God
	pendingMyths []*population.Myth

	observers []Observer
}

// NewKernel creates an uninitialized kernel. seed is used only for genesis;
// a restored world keeps the seed it was created with.
func NewKernel(store Storage, seed int64, genesis GenesisConfig) *Kernel {
	return &Kernel{store: store, seed: seed, genesis: genesis}
}

// OnTick registers an observer. Observers run synchronously, in
// registration order, after the tick is persisted.
func (k *Kernel) OnTick(fn Observer) {
	k.observers = append(k.observers, fn)
}

// Initialize restores the persisted world, or creates a new one when none
// exists or fresh is set. fresh clears storage first.
func (k *Kernel) Initialize(ctx context.Context, fresh bool) error {
	k.ready = false
	if fresh {
		if err := k.store.ClearAll(ctx); err != nil {
			return storageErr("clear", err)
		}
	} else {
		ws, err := k.store.LoadWorldState(ctx)
		if err != nil {
			return storageErr("load world state", err)
		}
		if ws != nil {
			return k.restore(ctx, ws)
		}
	}
	return k.create(ctx)
}

// create runs genesis. Draw order: era duration, then each faction followed
// by its members, then the unaffiliated citizens.
func (k *Kernel) create(ctx context.Context) error {
	k.rng = rand.New(rand.NewSource(k.seed))
	k.clock = era.NewClock(k.rng)
	k.omens = omen.NewGenerator(k.rng)
	k.gods = pantheon.New(k.rng)
	k.day = 0
	k.pendingGods, k.pendingMyths = nil, nil

	var factions []*population.Faction
	var citizens []*population.Citizen
	names := make(map[string]bool)

	for i := 0; i < k.genesis.Factions; i++ {
		f := population.NewFaction(k.rng)
		for names[f.Name] {
			f.Name = population.FactionName(k.rng)
		}
		names[f.Name] = true

		id, err := k.store.SaveFaction(ctx, f)
		if err != nil {
			return storageErr("save faction", err)
		}
		f.ID = id
		factions = append(factions, f)

		for j := 0; j < k.genesis.CitizensPerFaction; j++ {
			fid := f.ID
			citizens = append(citizens, population.NewCitizen(k.rng, &fid))
		}
	}
	for i := 0; i < k.genesis.Unaffiliated; i++ {
		citizens = append(citizens, population.NewCitizen(k.rng, nil))
	}

	k.pop = population.New(factions, citizens)
	if err := k.saveCitizens(ctx); err != nil {
		return err
	}
	if err := k.store.SaveWorldState(ctx, k.worldState()); err != nil {
		return storageErr("save world state", err)
	}

	k.ready = true
	slog.Info("world created",
		"seed", k.seed,
		"factions", len(factions),
		"citizens", len(citizens),
		"era", k.clock.Current.String(),
		"era_duration", k.clock.Duration,
	)
	return nil
}

// restore rebuilds the world from storage. The random stream is reseeded
// with the persisted seed and advanced one draw per elapsed day, which
// approximates but does not reproduce the uninterrupted stream.
func (k *Kernel) restore(ctx context.Context, ws *WorldState) error {
	if !ws.Era.Valid() {
		return fmt.Errorf("restore: era %d: %w", ws.Era, ErrInvariantViolation)
	}

	k.seed = ws.Seed
	k.rng = rand.New(rand.NewSource(ws.Seed))
	for i := 0; i < ws.CurrentDay; i++ {
		k.rng.Float64()
	}
	k.clock = era.RestoreClock(ws.Era, ws.DaysInEra, k.rng)
	k.omens = omen.NewGenerator(k.rng)
	k.day = ws.CurrentDay
	k.pendingGods, k.pendingMyths = nil, nil

	factions, err := k.store.LoadFactions(ctx)
	if err != nil {
		return storageErr("load factions", err)
	}
	citizens, err := k.store.LoadCitizens(ctx, false)
	if err != nil {
		return storageErr("load citizens", err)
	}
	gods, err := k.store.LoadGods(ctx, true)
	if err != nil {
		return storageErr("load gods", err)
	}

	k.pop = population.New(factions, citizens)
	k.gods = pantheon.New(k.rng)
	if err := k.gods.Restore(gods); err != nil {
		return fmt.Errorf("restore pantheon: %w: %w", ErrInvariantViolation, err)
	}

	k.ready = true
	slog.Info("world restored",
		"seed", k.seed,
		"day", k.day,
		"era", k.clock.Current.String(),
		"days_in_era", k.clock.DaysInEra,
		"citizens", len(citizens),
		"living_gods", len(k.gods.Living()),
	)
	return nil
}

// Tick advances the world one day. When persistence fails the in-memory
// state has still advanced; the result is returned together with a
// *StorageError and observers are still notified.
func (k *Kernel) Tick(ctx context.Context) (*TickResult, error) {
	if !k.ready {
		return nil, ErrNotInitialized
	}

	k.day++
	res := &TickResult{Day: k.day}

	if next, ok := k.clock.Advance(); ok {
		res.Transition = &next
		slog.Info("era transition", "day", k.day, "era", next.String(), "duration", k.clock.Duration)
	}
	res.Era = k.clock.Current
	traits := k.clock.Traits()

	if ev := k.omens.Generate(k.clock.Current, traits.EventRate); ev != nil {
		res.Event = ev
		k.pop.ApplyEvent(k.rng, ev, traits)
		res.Myths = k.pop.CreateMyths(k.rng, ev, k.day)
	}

	born, faded := k.gods.Process(k.pop.Citizens, k.day)

	err := k.persist(ctx, res.Myths, faded)
	if err != nil {
		slog.Error("tick persistence failed", "day", k.day, "error", err)
	}

	res.Born = cloneGods(born)
	res.Faded = cloneGods(faded)
	k.notify(res)
	return res, err
}

// Run ticks up to days times, stopping early on error or cancellation.
func (k *Kernel) Run(ctx context.Context, days int) ([]*TickResult, error) {
	results := make([]*TickResult, 0, days)
	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := k.Tick(ctx)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Disaster strikes the population with a full-magnitude catastrophe on the
// current day. The day does not advance and the pantheon is not evaluated
// until the next tick.
func (k *Kernel) Disaster(ctx context.Context) (*omen.Event, []*population.Myth, error) {
	if !k.ready {
		return nil, nil, ErrNotInitialized
	}

	ev := k.omens.Disaster()
	k.pop.ApplyEvent(k.rng, ev, k.clock.Traits())
	myths := k.pop.CreateMyths(k.rng, ev, k.day)
	slog.Info("disaster", "day", k.day, "name", ev.Name, "domain", ev.Primary.String(), "myths", len(myths))

	k.pendingMyths = append(k.pendingMyths, myths...)
	if err := k.flushMyths(ctx); err != nil {
		return ev, myths, err
	}
	return ev, myths, k.saveCitizens(ctx)
}

// ForceBelief sets every living citizen's belief in d to level.
func (k *Kernel) ForceBelief(ctx context.Context, d domain.Domain, level float64) error {
	if !k.ready {
		return ErrNotInitialized
	}
	if !d.Valid() {
		return fmt.Errorf("force belief: invalid domain %d", d)
	}
	k.pop.ForceBelief(d, level)
	slog.Info("belief forced", "domain", d.String(), "level", fmt.Sprintf("%.3f", level))
	return k.saveCitizens(ctx)
}

func (k *Kernel) persist(ctx context.Context, myths []*population.Myth, faded []*pantheon.God) error {
	k.pendingMyths = append(k.pendingMyths, myths...)
	k.pendingGods = append(k.pendingGods, faded...)

	if err := k.flushMyths(ctx); err != nil {
		return err
	}
	if err := k.saveCitizens(ctx); err != nil {
		return err
	}
	for _, g := range k.gods.Living() {
		id, err := k.store.SaveGod(ctx, g)
		if err != nil {
			return storageErr("save god", err)
		}
		g.ID = id
	}
	for len(k.pendingGods) > 0 {
		g := k.pendingGods[0]
		id, err := k.store.SaveGod(ctx, g)
		if err != nil {
			return storageErr("save god", err)
		}
		g.ID = id
		k.pendingGods = k.pendingGods[1:]
	}

	if err := k.store.SaveWorldState(ctx, k.worldState()); err != nil {
		return storageErr("save world state", err)
	}
	return nil
}

// flushMyths saves pending myths in creation order, dropping each once stored.
func (k *Kernel) flushMyths(ctx context.Context) error {
	for len(k.pendingMyths) > 0 {
		m := k.pendingMyths[0]
		id, err := k.store.SaveMyth(ctx, m)
		if err != nil {
			return storageErr("save myth", err)
		}
		m.ID = id
		k.pendingMyths = k.pendingMyths[1:]
	}
	return nil
}

// citizenBatcher is implemented by stores that can save every citizen in
// one transaction.
type citizenBatcher interface {
	SaveCitizens(ctx context.Context, citizens []*population.Citizen) error
}

func (k *Kernel) saveCitizens(ctx context.Context) error {
	if b, ok := k.store.(citizenBatcher); ok {
		return storageErr("save citizens", b.SaveCitizens(ctx, k.pop.Citizens))
	}
	for _, c := range k.pop.Citizens {
		id, err := k.store.SaveCitizen(ctx, c)
		if err != nil {
			return storageErr("save citizen", err)
		}
		c.ID = id
	}
	return nil
}

func (k *Kernel) notify(res *TickResult) {
	for i, fn := range k.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("observer panicked", "observer", i, "day", res.Day, "panic", r)
				}
			}()
			fn(res)
		}()
	}
}

func (k *Kernel) worldState() *WorldState {
	return &WorldState{
		CurrentDay: k.day,
		Era:        k.clock.Current,
		DaysInEra:  k.clock.DaysInEra,
		Seed:       k.seed,
	}
}

func cloneGods(gods []*pantheon.God) []*pantheon.God {
	out := make([]*pantheon.God, len(gods))
	for i, g := range gods {
		c := *g
		if g.DeathDay != nil {
			d := *g.DeathDay
			c.DeathDay = &d
		}
		out[i] = &c
	}
	return out
}

// SetSeed changes the seed used by the next genesis. A restored world
// keeps its persisted seed.
func (k *Kernel) SetSeed(seed int64) { k.seed = seed }

// Ready reports whether Initialize has completed.
func (k *Kernel) Ready() bool { return k.ready }

// Day returns the current simulated day.
func (k *Kernel) Day() int { return k.day }

// Seed returns the seed the world was created with.
func (k *Kernel) Seed() int64 { return k.seed }

// Clock returns the era clock. Nil before Initialize.
func (k *Kernel) Clock() *era.Clock { return k.clock }

// Population returns the live citizens and factions. Nil before Initialize.
func (k *Kernel) Population() *population.Population { return k.pop }

// Pantheon returns the pantheon. Nil before Initialize.
func (k *Kernel) Pantheon() *pantheon.Pantheon { return k.gods }
