package dispatch

import "github.com/kilianp07/geodispatch/core/model"

// Weights tune the dispatch score.
type Weights struct {
	SameZone     float64 `json:"same_zone"`
	Efficiency   float64 `json:"efficiency"`
	PerFreeSlot  float64 `json:"per_free_slot"`
	Rating       float64 `json:"rating"`
	Battery      float64 `json:"battery"`
	UrgentBonus  float64 `json:"urgent_bonus"`
	UrgentMinEff float64 `json:"urgent_min_efficiency"`
	HighBonus    float64 `json:"high_bonus"`
	HighMinEff   float64 `json:"high_min_efficiency"`
}

// DefaultWeights returns the reference weights.
func DefaultWeights() Weights {
	return Weights{
		SameZone:     30,
		Efficiency:   25,
		PerFreeSlot:  5,
		Rating:       15,
		Battery:      10,
		UrgentBonus:  15,
		UrgentMinEff: 0.9,
		HighBonus:    10,
		HighMinEff:   0.85,
	}
}

// Scorer ranks drivers for a delivery. Higher is better.
type Scorer struct {
	W Weights
}

// NewScorer returns a scorer with the given weights.
func NewScorer(w Weights) Scorer { return Scorer{W: w} }

// Score is a pure function of its inputs. It never rejects a driver;
// eligibility is checked beforehand with Eligible.
func (s Scorer) Score(d model.Delivery, drv model.Driver) float64 {
	w := s.W
	score := 0.0
	if drv.Zone == d.Zone {
		score += w.SameZone
	}
	score += drv.Efficiency * w.Efficiency
	score += float64(drv.MaxLoad-drv.CurrentLoad) * w.PerFreeSlot
	score += drv.Rating / 5 * w.Rating
	score += drv.BatteryLevel / 100 * w.Battery
	switch d.Priority {
	case model.PriorityUrgent:
		if drv.Efficiency > w.UrgentMinEff {
			score += w.UrgentBonus
		}
	case model.PriorityHigh:
		if drv.Efficiency > w.HighMinEff {
			score += w.HighBonus
		}
	}
	return score
}

// Eligible reports whether drv may receive a new delivery.
func Eligible(drv model.Driver) bool {
	return drv.Online && drv.CurrentLoad < drv.MaxLoad
}
