// Package population holds citizens, factions and myths, and the rules by
// which omens shift their belief and emotion.
package population

import (
	"github.com/dakeena/living-chronicle/internal/domain"
)

// Citizen is a believer. Citizens are never deleted; Alive is cleared instead.
type Citizen struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	FactionID *int64        `json:"faction_id,omitempty"` // weak reference
	Beliefs   domain.Vector `json:"beliefs"`
	Fear      float64       `json:"fear"`
	Gratitude float64       `json:"gratitude"`
	Alive     bool          `json:"alive"`
}

// ShiftBelief moves belief in d by delta scaled by the faction bias, clamped to [0,1].
func (c *Citizen) ShiftBelief(d domain.Domain, delta, factionBias float64) {
	c.Beliefs.Add(d, delta*factionBias)
}

// ShiftEmotion moves fear and gratitude, each clamped to [0,1].
func (c *Citizen) ShiftEmotion(fearDelta, gratitudeDelta float64) {
	c.Fear = domain.Clamp(c.Fear+fearDelta, 0, 1)
	c.Gratitude = domain.Clamp(c.Gratitude+gratitudeDelta, 0, 1)
}

// Faction is a group sharing a doctrine. Members is a cache rebuilt from
// citizens' FactionID and is never persisted.
type Faction struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Doctrine domain.Vector `json:"doctrine"`

	Members []*Citizen `json:"-"`
}

// Bias returns the faction's doctrinal weight toward d.
func (f *Faction) Bias(d domain.Domain) float64 {
	return f.Doctrine[d]
}

// Myth is a faction's durable interpretation of an omen. Immutable once created.
type Myth struct {
	ID         int64         `json:"id"`
	Text       string        `json:"text"`
	FactionID  *int64        `json:"faction_id,omitempty"`
	Domain     domain.Domain `json:"domain"`
	Confidence float64       `json:"confidence"`
	DayCreated int           `json:"day_created"`
}
