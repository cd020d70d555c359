package era

import "math/rand"

// Clock advances the world one day at a time and owns the drawn length of
// the current era. It shares the simulation's random stream.
type Clock struct {
	Current   Era
	DaysInEra int
	Duration  int

	rng *rand.Rand
}

// NewClock starts a fresh cycle at Emergence with a drawn duration.
func NewClock(rng *rand.Rand) *Clock {
	c := &Clock{Current: Emergence, rng: rng}
	c.Duration = c.drawDuration(Emergence)
	return c
}

// RestoreClock rebuilds a clock from a persisted era and day counter.
// The drawn duration is never persisted, so it is re-derived as
// max(daysInEra+1, minDays). Transitions after a restore can therefore
// land earlier than they would have in an uninterrupted run.
func RestoreClock(e Era, daysInEra int, rng *rand.Rand) *Clock {
	duration := daysInEra + 1
	if floor := e.Traits().MinDays; duration < floor {
		duration = floor
	}
	return &Clock{
		Current:   e,
		DaysInEra: daysInEra,
		Duration:  duration,
		rng:       rng,
	}
}

// Advance moves the clock forward one day. When the day counter reaches the
// era's duration it moves to the successor era, draws a new duration and
// returns the new era with ok set.
func (c *Clock) Advance() (next Era, ok bool) {
	c.DaysInEra++
	if c.DaysInEra < c.Duration {
		return 0, false
	}

	c.Current = c.Current.Next()
	c.DaysInEra = 0
	c.Duration = c.drawDuration(c.Current)
	return c.Current, true
}

// Traits returns the traits of the current era.
func (c *Clock) Traits() Traits {
	return c.Current.Traits()
}

// drawDuration picks a length uniformly from the era's inclusive range.
func (c *Clock) drawDuration(e Era) int {
	t := e.Traits()
	return t.MinDays + c.rng.Intn(t.MaxDays-t.MinDays+1)
}
