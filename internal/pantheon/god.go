// Package pantheon aggregates population belief per domain and runs the
// birth and fade cycle of deities.
package pantheon

import (
	"math/rand"

	"github.com/dakeena/living-chronicle/internal/domain"
)

// God is an emergent deity bound to one domain.
type God struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Domain         domain.Domain `json:"domain"`
	BeliefStrength float64       `json:"belief_strength"`
	Coherence      float64       `json:"coherence"`
	Alive          bool          `json:"alive"`
	BirthDay       int           `json:"birth_day"`
	DeathDay       *int          `json:"death_day,omitempty"`
	StrongDays     int           `json:"consecutive_strong_days"`
	WeakDays       int           `json:"consecutive_weak_days"`
}

func (g *God) fade(day int) {
	g.Alive = false
	d := day
	g.DeathDay = &d
}

var godPrefixes = [domain.Count][]string{
	domain.River:   {"Aqua", "Thal", "Riv", "Und", "Mare"},
	domain.Flame:   {"Pyr", "Igna", "Braz", "Cind", "Scor"},
	domain.Sky:     {"Ael", "Cael", "Zeph", "Aur", "Nub"},
	domain.War:     {"Bel", "Mort", "Vic", "Mar", "Stri"},
	domain.Harvest: {"Cer", "Fert", "Plen", "Grai", "Boun"},
	domain.Memory:  {"Mnem", "Chron", "Eter", "Rem", "Hist"},
}

var godSuffixes = []string{"us", "a", "ion", "or", "is", "ax", "oth", "iel", "ara", "eon"}

// GodName draws a name flavoured by the domain.
func GodName(d domain.Domain, rng *rand.Rand) string {
	prefixes := godPrefixes[d]
	return prefixes[rng.Intn(len(prefixes))] + godSuffixes[rng.Intn(len(godSuffixes))]
}
