package population

import (
	"fmt"
	"math/rand"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/era"
	"github.com/dakeena/living-chronicle/internal/omen"
)

const (
	// UnaffiliatedBias is the doctrine weight used for citizens without a faction.
	UnaffiliatedBias = 0.5

	// MythChance is the per-faction probability of recording a myth for an omen.
	MythChance = 0.3
)

// Population owns the live citizen and faction collections.
type Population struct {
	Citizens []*Citizen
	Factions []*Faction

	factionIndex map[int64]*Faction
}

// New builds a population and derives faction membership from citizens.
func New(factions []*Faction, citizens []*Citizen) *Population {
	p := &Population{Citizens: citizens, Factions: factions}
	p.Reindex()
	return p
}

// Reindex rebuilds the faction lookup and every faction's member cache.
// Citizens own the relation; members are always derived from them.
func (p *Population) Reindex() {
	p.factionIndex = make(map[int64]*Faction, len(p.Factions))
	for _, f := range p.Factions {
		f.Members = f.Members[:0]
		p.factionIndex[f.ID] = f
	}
	for _, c := range p.Citizens {
		if c.FactionID == nil {
			continue
		}
		if f, ok := p.factionIndex[*c.FactionID]; ok {
			f.Members = append(f.Members, c)
		}
	}
}

// Faction returns the faction with the given ID, or nil.
func (p *Population) Faction(id int64) *Faction {
	return p.factionIndex[id]
}

// Living returns the citizens that are still alive, in collection order.
func (p *Population) Living() []*Citizen {
	living := make([]*Citizen, 0, len(p.Citizens))
	for _, c := range p.Citizens {
		if c.Alive {
			living = append(living, c)
		}
	}
	return living
}

// BiasFor returns the citizen's faction weight toward d.
func (p *Population) BiasFor(c *Citizen, d domain.Domain) float64 {
	if c.FactionID == nil {
		return UnaffiliatedBias
	}
	f, ok := p.factionIndex[*c.FactionID]
	if !ok {
		return UnaffiliatedBias
	}
	return f.Bias(d)
}

// ApplyEvent shifts belief and emotion of every living citizen in collection
// order. Each citizen consumes three draws: belief, fear and gratitude jitter.
func (p *Population) ApplyEvent(rng *rand.Rand, ev *omen.Event, traits era.Traits) {
	for _, c := range p.Citizens {
		if !c.Alive {
			continue
		}

		bias := p.BiasFor(c, ev.Primary)

		beliefDelta := ev.BeliefImpact * traits.BeliefGrowth * jitter(rng)
		c.ShiftBelief(ev.Primary, beliefDelta, bias)
		if ev.Secondary != nil {
			c.ShiftBelief(*ev.Secondary, beliefDelta*0.5, bias)
		}

		fearDelta := ev.FearImpact * traits.FearModifier * jitter(rng)
		gratitudeDelta := ev.GratitudeImpact * traits.GratitudeModifier * jitter(rng)
		c.ShiftEmotion(fearDelta, gratitudeDelta)
	}
}

// CreateMyths gives each faction, in order, a chance to record the omen.
// A myth's confidence is the faction's bias toward the omen's domain.
func (p *Population) CreateMyths(rng *rand.Rand, ev *omen.Event, day int) []*Myth {
	var myths []*Myth
	for _, f := range p.Factions {
		if rng.Float64() >= MythChance {
			continue
		}
		fid := f.ID
		myths = append(myths, &Myth{
			Text:       fmt.Sprintf("%s witnessed %s", f.Name, lowerFirst(ev.Description)),
			FactionID:  &fid,
			Domain:     ev.Primary,
			Confidence: f.Bias(ev.Primary),
			DayCreated: day,
		})
	}
	return myths
}

// ForceBelief sets every living citizen's belief in d to level.
func (p *Population) ForceBelief(d domain.Domain, level float64) {
	level = domain.Clamp(level, 0, 1)
	for _, c := range p.Citizens {
		if c.Alive {
			c.Beliefs[d] = level
		}
	}
}

// jitter draws the ±20% noise applied to every per-citizen delta.
func jitter(rng *rand.Rand) float64 {
	return 0.8 + rng.Float64()*0.4
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
