package omen

import (
	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/era"
)

// template fixes the text and base coefficients of an omen.
type template struct {
	name        string
	description string
	fear        float64
	gratitude   float64
	belief      float64
}

// templates holds five omens per domain, indexed by domain.
var templates = [domain.Count][]template{
	domain.River: {
		{"The Great Flooding", "Waters rise beyond their banks", 0.4, -0.2, 0.3},
		{"The Still Waters", "Rivers calm to mirror-glass", -0.2, 0.3, 0.2},
		{"The River's Bounty", "Fish leap willingly into nets", -0.1, 0.5, 0.4},
		{"The Poisoned Springs", "Wells turn bitter and foul", 0.5, -0.3, 0.3},
		{"The Parting Currents", "Waters divide before the faithful", 0.1, 0.4, 0.5},
	},
	domain.Flame: {
		{"The Consuming Fire", "Flames devour without warning", 0.6, -0.4, 0.4},
		{"The Warming Hearth", "All fires burn steady and true", -0.2, 0.4, 0.3},
		{"The Forge's Blessing", "Metalwork emerges flawless", -0.1, 0.5, 0.4},
		{"The Ember Rain", "Sparks fall from cloudless sky", 0.5, -0.2, 0.5},
		{"The Eternal Flame", "A fire burns without fuel", 0.2, 0.3, 0.6},
	},
	domain.Sky: {
		{"The Darkened Sun", "Shadow crosses the daylight", 0.5, -0.3, 0.5},
		{"The Gentle Rains", "Clouds bring life-giving water", -0.2, 0.5, 0.3},
		{"The Thunder Voice", "Lightning speaks across valleys", 0.3, 0.1, 0.4},
		{"The Clear Heavens", "Stars align in ancient patterns", 0.1, 0.4, 0.4},
		{"The Howling Winds", "Gales tear at all standing", 0.5, -0.3, 0.3},
	},
	domain.War: {
		{"The Border Clash", "Blood spills at the boundaries", 0.4, -0.2, 0.3},
		{"The Victorious Return", "Warriors come home triumphant", 0.1, 0.5, 0.4},
		{"The Broken Peace", "Old alliances shatter", 0.5, -0.4, 0.4},
		{"The Honorable Duel", "Champions settle disputes", 0.2, 0.2, 0.3},
		{"The Siege Lifted", "Enemies retreat in defeat", 0.0, 0.6, 0.5},
	},
	domain.Harvest: {
		{"The Abundant Yield", "Fields overflow with grain", -0.2, 0.6, 0.4},
		{"The Blighted Crops", "Rot spreads through stores", 0.5, -0.4, 0.3},
		{"The First Fruits", "Early harvest brings hope", -0.1, 0.4, 0.3},
		{"The Locust Swarm", "Insects devour all growth", 0.6, -0.5, 0.4},
		{"The Golden Fields", "Grain grows tall and strong", -0.2, 0.5, 0.4},
	},
	domain.Memory: {
		{"The Forgotten Name", "Ancient knowledge is lost", 0.3, -0.2, 0.3},
		{"The Recovered Scroll", "Old wisdom resurfaces", 0.1, 0.4, 0.4},
		{"The Prophetic Dream", "Visions reveal hidden truths", 0.2, 0.3, 0.5},
		{"The Ancestral Voice", "The dead speak to the living", 0.3, 0.2, 0.5},
		{"The Chronicle Burns", "Records are destroyed", 0.4, -0.3, 0.3},
	},
}

// disaster is a fixed-domain catastrophe applied at full magnitude.
type disaster struct {
	template
	domain domain.Domain
}

var disasters = []disaster{
	{template{"The Great Cataclysm", "The world trembles to its foundations", 0.8, -0.6, 0.7}, domain.Sky},
	{template{"The Plague Years", "Sickness spreads without mercy", 0.7, -0.5, 0.5}, domain.Memory},
	{template{"The Endless Winter", "Cold grips the land", 0.6, -0.4, 0.5}, domain.Sky},
	{template{"The Burning Lands", "Fire consumes all", 0.8, -0.6, 0.6}, domain.Flame},
	{template{"The Great Famine", "Hunger stalks every home", 0.7, -0.5, 0.5}, domain.Harvest},
	{template{"The War of All", "Every hand turns against another", 0.8, -0.7, 0.6}, domain.War},
}

// modifier is the per-era adjustment applied to generated omens.
type modifier struct {
	magnitudeBoost float64
	positiveBias   float64
}

var modifiers = [era.Count]modifier{
	era.Emergence: {magnitudeBoost: 0.1, positiveBias: 0.1},
	era.Order:     {magnitudeBoost: -0.1, positiveBias: 0.2},
	era.Strain:    {magnitudeBoost: 0.1, positiveBias: -0.1},
	era.Collapse:  {magnitudeBoost: 0.3, positiveBias: -0.3},
	era.Silence:   {magnitudeBoost: -0.2, positiveBias: 0.0},
	era.Rebirth:   {magnitudeBoost: 0.0, positiveBias: 0.2},
}
