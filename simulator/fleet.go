package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

// Generator creates a roster and delivery orders scattered around the
// configured center.
type Generator struct {
	cfg    Config
	rng    *rand.Rand
	orders int
}

// NewGenerator returns a deterministic generator for cfg.Seed.
func NewGenerator(cfg Config) *Generator {
	cfg.SetDefaults()
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

func (g *Generator) scatter() model.Coordinate {
	r := g.cfg.SpreadM * math.Sqrt(g.rng.Float64())
	theta := g.rng.Float64() * 2 * math.Pi
	return offset(g.cfg.Center, r*math.Cos(theta), r*math.Sin(theta))
}

// Drivers creates cfg.Drivers online drivers with IDs drv001..drvNNN placed
// on src. Zones are assigned round robin.
func (g *Generator) Drivers(src *Source) []model.Driver {
	out := make([]model.Driver, g.cfg.Drivers)
	for i := range out {
		id := fmt.Sprintf("drv%03d", i+1)
		out[i] = model.Driver{
			ID:           id,
			Zone:         g.cfg.Zones[i%len(g.cfg.Zones)],
			Online:       true,
			Rating:       math.Round((3.5+g.rng.Float64()*1.5)*10) / 10,
			Efficiency:   math.Round((0.6+g.rng.Float64()*0.4)*100) / 100,
			BatteryLevel: math.Round(40 + g.rng.Float64()*60),
			MaxLoad:      g.cfg.MaxLoad,
		}
		if src != nil {
			src.Place(id, g.scatter())
		}
	}
	return out
}

// Delivery creates the next pending order created at now.
func (g *Generator) Delivery(now time.Time) model.Delivery {
	g.orders++
	prio := model.PriorityNormal
	switch r := g.rng.Float64(); {
	case r > 0.9:
		prio = model.PriorityUrgent
	case r > 0.7:
		prio = model.PriorityHigh
	}
	return model.Delivery{
		ID:          fmt.Sprintf("ord%05d", g.orders),
		Zone:        g.cfg.Zones[g.rng.Intn(len(g.cfg.Zones))],
		Priority:    prio,
		Status:      model.StatusPending,
		Destination: g.scatter(),
		CreatedAt:   now,
		ETA:         time.Duration(10+g.rng.Intn(30)) * time.Minute,
	}
}

// Deliveries creates cfg.Deliveries pending orders.
func (g *Generator) Deliveries(now time.Time) []model.Delivery {
	out := make([]model.Delivery, g.cfg.Deliveries)
	for i := range out {
		out[i] = g.Delivery(now)
	}
	return out
}
