// Package era models the six-age world cycle and the clock that walks it.
package era

import "fmt"

// Era is one of the recurring macro-phases of the world.
type Era uint8

const (
	Emergence Era = iota
	Order
	Strain
	Collapse
	Silence
	Rebirth
)

// Count is the length of the cycle.
const Count = 6

var eraNames = [Count]string{"Emergence", "Order", "Strain", "Collapse", "Silence", "Rebirth"}

// Traits are the static characteristics of an era.
type Traits struct {
	MinDays           int     `json:"min_days"`
	MaxDays           int     `json:"max_days"`
	EventRate         float64 `json:"event_rate"`
	BeliefGrowth      float64 `json:"belief_growth"`
	FearModifier      float64 `json:"fear_modifier"`
	GratitudeModifier float64 `json:"gratitude_modifier"`
}

var traits = [Count]Traits{
	Emergence: {MinDays: 20, MaxDays: 40, EventRate: 0.6, BeliefGrowth: 1.2, FearModifier: 0.3, GratitudeModifier: 0.7},
	Order:     {MinDays: 30, MaxDays: 60, EventRate: 0.4, BeliefGrowth: 1.0, FearModifier: 0.2, GratitudeModifier: 0.8},
	Strain:    {MinDays: 25, MaxDays: 45, EventRate: 0.7, BeliefGrowth: 1.1, FearModifier: 0.6, GratitudeModifier: 0.4},
	Collapse:  {MinDays: 15, MaxDays: 30, EventRate: 0.9, BeliefGrowth: 0.8, FearModifier: 0.9, GratitudeModifier: 0.1},
	Silence:   {MinDays: 10, MaxDays: 25, EventRate: 0.2, BeliefGrowth: 0.5, FearModifier: 0.5, GratitudeModifier: 0.3},
	Rebirth:   {MinDays: 15, MaxDays: 35, EventRate: 0.5, BeliefGrowth: 1.3, FearModifier: 0.4, GratitudeModifier: 0.6},
}

// Next returns the successor era. Rebirth wraps to Emergence.
func (e Era) Next() Era {
	return (e + 1) % Count
}

// Traits returns the static traits of the era.
func (e Era) Traits() Traits {
	return traits[e%Count]
}

// Valid reports whether e is one of the six eras.
func (e Era) Valid() bool {
	return int(e) < Count
}

// String returns the era's display name.
func (e Era) String() string {
	if int(e) < Count {
		return eraNames[e]
	}
	return fmt.Sprintf("Era(%d)", uint8(e))
}

// Parse returns the era with the given display name.
func Parse(s string) (Era, error) {
	for i, n := range eraNames {
		if n == s {
			return Era(i), nil
		}
	}
	return 0, fmt.Errorf("unknown era %q", s)
}

// MarshalText encodes the era by name.
func (e Era) MarshalText() ([]byte, error) {
	if int(e) >= Count {
		return nil, fmt.Errorf("invalid era %d", uint8(e))
	}
	return []byte(eraNames[e]), nil
}

// UnmarshalText decodes an era name.
func (e *Era) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
