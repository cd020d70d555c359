package pantheon

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/population"
)

// Thresholds for emergence and fading. Fixed design constants.
const (
	BirthThreshold     = 0.6
	CoherenceThreshold = 0.5
	BirthStreak        = 5
	FadeThreshold      = 0.3
	FadeStreak         = 7

	// believerFloor is the belief above which a citizen counts as a believer.
	believerFloor = 0.3
)

// ErrDuplicateGod is returned when two living gods claim the same domain.
var ErrDuplicateGod = errors.New("two living gods share a domain")

// Phase is the state of a domain's shrine.
type Phase uint8

const (
	Dormant   Phase = iota // no god, criteria unmet
	Ascending              // no god, criteria met for Streak days
	Manifest               // a living god holds the domain
	Waning                 // living god, belief below the fade threshold
)

func (p Phase) String() string {
	switch p {
	case Dormant:
		return "dormant"
	case Ascending:
		return "ascending"
	case Manifest:
		return "manifest"
	case Waning:
		return "waning"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Shrine is the per-domain state. God is non-nil exactly when the phase is
// Manifest or Waning, which keeps at most one living god per domain.
type Shrine struct {
	Domain domain.Domain `json:"domain"`
	Phase  Phase         `json:"phase"`
	Streak int           `json:"ascending_streak"`
	God    *God          `json:"god,omitempty"`
}

// Aggregate summarises the living population's belief in one domain.
type Aggregate struct {
	Domain    domain.Domain `json:"domain"`
	Total     float64       `json:"total"`
	Believers int           `json:"believers"`
	Mean      float64       `json:"mean"`
	Coherence float64       `json:"coherence"`
}

// AggregateBeliefs computes mean belief and coherence per domain across the
// living citizens. Coherence is max(0, 1 - 4*variance).
func AggregateBeliefs(citizens []*population.Citizen) [domain.Count]Aggregate {
	var out [domain.Count]Aggregate

	var living []*population.Citizen
	for _, c := range citizens {
		if c.Alive {
			living = append(living, c)
		}
	}

	for _, d := range domain.All {
		agg := Aggregate{Domain: d}
		if len(living) == 0 {
			out[d] = agg
			continue
		}

		for _, c := range living {
			b := c.Beliefs[d]
			agg.Total += b
			if b > believerFloor {
				agg.Believers++
			}
		}
		n := float64(len(living))
		agg.Mean = agg.Total / n

		variance := 0.0
		for _, c := range living {
			diff := c.Beliefs[d] - agg.Mean
			variance += diff * diff
		}
		variance /= n
		agg.Coherence = max(0, 1-variance*4)

		out[d] = agg
	}
	return out
}

// Pantheon runs one shrine state machine per domain.
type Pantheon struct {
	rng     *rand.Rand
	shrines [domain.Count]Shrine
}

// New creates a pantheon with every domain dormant.
func New(rng *rand.Rand) *Pantheon {
	p := &Pantheon{rng: rng}
	for _, d := range domain.All {
		p.shrines[d] = Shrine{Domain: d, Phase: Dormant}
	}
	return p
}

// Restore seats previously persisted living gods. Ascending streaks are not
// persisted, so every godless domain restarts dormant.
func (p *Pantheon) Restore(gods []*God) error {
	for _, g := range gods {
		if !g.Alive {
			continue
		}
		if !g.Domain.Valid() {
			return fmt.Errorf("god %d has invalid domain %d", g.ID, g.Domain)
		}
		s := &p.shrines[g.Domain]
		if s.God != nil {
			return fmt.Errorf("domain %s: gods %d and %d: %w", g.Domain, s.God.ID, g.ID, ErrDuplicateGod)
		}
		s.God = g
		s.Streak = 0
		s.Phase = Manifest
		if g.WeakDays > 0 {
			s.Phase = Waning
		}
	}
	return nil
}

// Process advances every shrine by one day and returns the gods born and
// faded on that day.
func (p *Pantheon) Process(citizens []*population.Citizen, day int) (born, faded []*God) {
	aggs := AggregateBeliefs(citizens)

	for _, d := range domain.All {
		s := &p.shrines[d]
		agg := aggs[d]

		switch s.Phase {
		case Manifest, Waning:
			if g := p.tend(s, agg, day); g != nil {
				faded = append(faded, g)
			}
		case Dormant, Ascending:
			if g := p.kindle(s, agg, day); g != nil {
				born = append(born, g)
			}
		}
	}
	return born, faded
}

// tend refreshes a living god and returns it if it faded today.
func (p *Pantheon) tend(s *Shrine, agg Aggregate, day int) *God {
	g := s.God
	g.BeliefStrength = agg.Mean
	g.Coherence = agg.Coherence

	if agg.Mean >= FadeThreshold {
		g.WeakDays = 0
		g.StrongDays++
		s.Phase = Manifest
		return nil
	}

	g.WeakDays++
	g.StrongDays = 0
	s.Phase = Waning
	if g.WeakDays < FadeStreak {
		return nil
	}

	g.fade(day)
	s.God = nil
	s.Phase = Dormant
	s.Streak = 0
	slog.Info("god faded", "name", g.Name, "domain", g.Domain.String(), "day", day)
	return g
}

// kindle advances the ascending streak and returns a newborn god once the
// streak is met. Any day failing the criteria resets the streak.
func (p *Pantheon) kindle(s *Shrine, agg Aggregate, day int) *God {
	if agg.Mean < BirthThreshold || agg.Coherence < CoherenceThreshold {
		s.Phase = Dormant
		s.Streak = 0
		return nil
	}

	s.Streak++
	s.Phase = Ascending
	if s.Streak < BirthStreak {
		return nil
	}

	g := &God{
		Name:           GodName(s.Domain, p.rng),
		Domain:         s.Domain,
		BeliefStrength: agg.Mean,
		Coherence:      agg.Coherence,
		Alive:          true,
		BirthDay:       day,
	}
	s.God = g
	s.Phase = Manifest
	s.Streak = 0
	slog.Info("god born", "name", g.Name, "domain", g.Domain.String(), "day", day,
		"belief", fmt.Sprintf("%.3f", agg.Mean), "coherence", fmt.Sprintf("%.3f", agg.Coherence))
	return g
}

// Living returns the living gods in domain order.
func (p *Pantheon) Living() []*God {
	var gods []*God
	for _, d := range domain.All {
		if g := p.shrines[d].God; g != nil {
			gods = append(gods, g)
		}
	}
	return gods
}

// Shrines returns a copy of the per-domain state.
func (p *Pantheon) Shrines() [domain.Count]Shrine {
	return p.shrines
}
