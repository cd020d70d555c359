// Package omen generates the daily stochastic events that perturb belief
// and emotion.
package omen

import (
	"math/rand"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/era"
)

// SecondaryChance is the probability that an omen echoes into a second domain.
const SecondaryChance = 0.3

// Event is a single-day omen. It is consumed within the tick that produced it.
type Event struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Primary         domain.Domain  `json:"primary_domain"`
	Secondary       *domain.Domain `json:"secondary_domain,omitempty"`
	FearImpact      float64        `json:"fear_impact"`
	GratitudeImpact float64        `json:"gratitude_impact"`
	BeliefImpact    float64        `json:"belief_impact"`
	Magnitude       float64        `json:"magnitude"`
}

// Generator draws omens from the shared random stream.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator over rng.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate produces at most one omen for the day. It returns nil when the
// first draw exceeds eventRate.
func (g *Generator) Generate(e era.Era, eventRate float64) *Event {
	if g.rng.Float64() > eventRate {
		return nil
	}

	primary := domain.All[g.rng.Intn(domain.Count)]
	pool := templates[primary]
	t := pool[g.rng.Intn(len(pool))]

	var secondary *domain.Domain
	if g.rng.Float64() < SecondaryChance {
		others := make([]domain.Domain, 0, domain.Count-1)
		for _, d := range domain.All {
			if d != primary {
				others = append(others, d)
			}
		}
		d := others[g.rng.Intn(len(others))]
		secondary = &d
	}

	mod := modifiers[e%era.Count]
	magnitude := 0.5 + g.uniform(-0.2, 0.2) + mod.magnitudeBoost
	magnitude = domain.Clamp(magnitude, 0.1, 1.0)

	fear := t.fear - mod.positiveBias*0.2
	gratitude := t.gratitude + mod.positiveBias*0.2

	return &Event{
		Name:            t.name,
		Description:     t.description,
		Primary:         primary,
		Secondary:       secondary,
		FearImpact:      fear * magnitude,
		GratitudeImpact: gratitude * magnitude,
		BeliefImpact:    t.belief * magnitude,
		Magnitude:       magnitude,
	}
}

// Disaster draws a catastrophe at full magnitude. It is never produced by
// the daily cycle; callers trigger it explicitly.
func (g *Generator) Disaster() *Event {
	d := disasters[g.rng.Intn(len(disasters))]
	return &Event{
		Name:            d.name,
		Description:     d.description,
		Primary:         d.domain,
		FearImpact:      d.fear,
		GratitudeImpact: d.gratitude,
		BeliefImpact:    d.belief,
		Magnitude:       1.0,
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
