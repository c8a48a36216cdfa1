// Package economy implements the mean-reverting market drift model and
// the derived price curve. Everything here is pure; the tick pipeline
// owns reading and writing the market rows.
package economy

import (
	"math"
	"math/rand"

	"github.com/startide/server/internal/universe"
)

// Supply and demand are bounded to this range.
const (
	MinLevel = 0
	MaxLevel = 100
)

// priceK flattens the demand/supply ratio so small markets do not swing
// to the clamp bounds on every drift step.
const priceK = 25.0

// Equilibrium targets per station relationship.
var targets = map[universe.Relation]struct{ Supply, Demand float64 }{
	universe.Produces: {Supply: 80, Demand: 25},
	universe.Consumes: {Supply: 25, Demand: 80},
	universe.Neutral:  {Supply: 50, Demand: 50},
}

// Params tunes one drift step. Zero values are not usable; build from
// config via the tick scheduler.
type Params struct {
	ReversionRate   float64
	NoiseAmplitude  float64
	ProductionRate  float64
	ConsumptionRate float64
}

// Drift advances one (station, good) market entry by a single step:
// mean reversion toward the relationship's equilibrium target, uniform
// noise, then the flat produce/consume adjustment, clamping after each
// stage.
func Drift(supply, demand int, rel universe.Relation, p Params, rng *rand.Rand) (int, int) {
	target := targets[rel]

	s := float64(supply) + (target.Supply-float64(supply))*p.ReversionRate
	d := float64(demand) + (target.Demand-float64(demand))*p.ReversionRate

	s += noise(rng, p.NoiseAmplitude)
	d += noise(rng, p.NoiseAmplitude)
	s = clampLevel(s)
	d = clampLevel(d)

	switch rel {
	case universe.Produces:
		s += p.ProductionRate
		d -= 0.3 * p.ProductionRate
	case universe.Consumes:
		s -= p.ConsumptionRate
		d += 0.5 * p.ConsumptionRate
	}

	return int(math.Round(clampLevel(s))), int(math.Round(clampLevel(d)))
}

// Price derives the current unit price for a good at a market. The curve
// is monotone decreasing in supply, increasing in demand, and clamped to
// the good's floor/ceiling multipliers on base price.
func Price(basePrice, supply, demand int, floor, ceiling float64) int {
	ratio := (float64(demand) + priceK) / (float64(supply) + priceK)
	price := math.Round(float64(basePrice) * ratio)

	lo := math.Round(float64(basePrice) * floor)
	hi := math.Round(float64(basePrice) * ceiling)
	price = math.Max(lo, math.Min(hi, price))
	if price < 1 {
		price = 1
	}
	return int(price)
}

func noise(rng *rand.Rand, amplitude float64) float64 {
	if amplitude <= 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * amplitude
}

func clampLevel(v float64) float64 {
	return math.Max(MinLevel, math.Min(MaxLevel, v))
}
