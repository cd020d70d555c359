// Citizen and faction generation with seeded names and belief seeds.
package population

import (
	"math/rand"

	"github.com/dakeena/living-chronicle/internal/domain"
)

var (
	citizenPrefixes = []string{
		"Ash", "Brin", "Cal", "Dara", "Eld", "Fenn", "Gael", "Haran", "Isen", "Jora",
		"Kael", "Lira", "Morn", "Neth", "Oren", "Pira", "Quell", "Rath", "Sev", "Tarn",
		"Ula", "Vorn", "Wren", "Xan", "Yara", "Zeph",
	}
	citizenSuffixes = []string{
		"an", "el", "is", "on", "us", "a", "en", "or", "ia", "yn",
		"ax", "ix", "eth", "oth", "ara", "ira", "ona", "ius", "eon", "wyn",
	}

	factionAdjectives = []string{"Crimson", "Azure", "Golden", "Ashen", "Verdant", "Obsidian", "Silver", "Amber"}
	factionNouns      = []string{"Covenant", "Circle", "Order", "Pact", "Brotherhood", "Sisterhood", "Assembly", "Conclave"}
)

// NewCitizen generates a living citizen with low seed beliefs.
// Draw order: six beliefs, name, fear, gratitude.
func NewCitizen(rng *rand.Rand, factionID *int64) *Citizen {
	var beliefs domain.Vector
	for _, d := range domain.All {
		beliefs[d] = uniform(rng, 0, 0.3)
	}

	c := &Citizen{
		Beliefs: beliefs,
		Name:    CitizenName(rng),
		Alive:   true,
	}
	if factionID != nil {
		fid := *factionID
		c.FactionID = &fid
	}
	c.Fear = uniform(rng, 0.1, 0.4)
	c.Gratitude = uniform(rng, 0.1, 0.4)
	return c
}

// NewFaction generates a faction whose doctrine elevates one or two domains
// to [0.7,1.0] and leaves the rest in [0.1,0.4].
func NewFaction(rng *rand.Rand) *Faction {
	var doctrine domain.Vector
	for _, d := range domain.All {
		doctrine[d] = uniform(rng, 0.1, 0.4)
	}

	favored := 1 + rng.Intn(2)
	order := rng.Perm(domain.Count)
	for _, i := range order[:favored] {
		doctrine[domain.All[i]] = uniform(rng, 0.7, 1.0)
	}

	return &Faction{
		Name:     FactionName(rng),
		Doctrine: doctrine,
	}
}

// CitizenName draws a two-part citizen name.
func CitizenName(rng *rand.Rand) string {
	return pick(rng, citizenPrefixes) + pick(rng, citizenSuffixes)
}

// FactionName draws a faction title such as "The Ashen Pact".
func FactionName(rng *rand.Rand) string {
	return "The " + pick(rng, factionAdjectives) + " " + pick(rng, factionNouns)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
