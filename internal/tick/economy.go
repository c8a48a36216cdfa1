package tick

import (
	"fmt"
	"math/rand"

	"gorm.io/gorm"

	"github.com/startide/server/internal/model"
	"github.com/startide/server/internal/sim/economy"
	"github.com/startide/server/internal/universe"
	"github.com/startide/server/pkg/game"
)

// EconomyDrift runs one drift step over every market entry.
type EconomyDrift struct {
	catalog *universe.Catalog
	params  economy.Params
	rng     *rand.Rand
}

// NewEconomyDrift builds the drift processor.
func NewEconomyDrift(catalog *universe.Catalog, params economy.Params, rng *rand.Rand) *EconomyDrift {
	return &EconomyDrift{catalog: catalog, params: params, rng: rng}
}

func (*EconomyDrift) Name() string { return "economy" }

func (e *EconomyDrift) Process(tx *gorm.DB, tick uint64) ([]game.Event, error) {
	var entries []model.MarketEntry
	if err := tx.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("loading market entries: %w", err)
	}

	pressure, err := activeEventPressure(tx)
	if err != nil {
		return nil, err
	}

	drifted := 0
	for i := range entries {
		entry := &entries[i]
		rel := e.catalog.StationRelation(entry.StationKey, entry.GoodKey)

		params := e.params
		if st, ok := e.catalog.Station(entry.StationKey); ok {
			if severity := pressure[st.SystemKey]; severity > 0 {
				params = pressuredParams(params, severity)
			}
		}

		supply, demand := economy.Drift(entry.Supply, entry.Demand, rel, params, e.rng)
		if supply == entry.Supply && demand == entry.Demand {
			continue
		}

		if err := tx.Model(&model.MarketEntry{}).Where("id = ?", entry.ID).
			Updates(map[string]any{"supply": supply, "demand": demand}).Error; err != nil {
			return nil, fmt.Errorf("updating market %s/%s: %w", entry.StationKey, entry.GoodKey, err)
		}
		drifted++
	}

	if drifted == 0 {
		return nil, nil
	}
	return []game.Event{{
		Name:    game.EventMarketDrift,
		Payload: map[string]any{"tick": tick, "marketsMoved": drifted},
	}}, nil
}

// activeEventPressure maps system keys to the highest severity among
// their active world events.
func activeEventPressure(tx *gorm.DB) (map[string]int, error) {
	var active []model.WorldEvent
	if err := tx.Where("phase = ?", model.PhaseActive).Find(&active).Error; err != nil {
		return nil, fmt.Errorf("loading active world events: %w", err)
	}

	pressure := make(map[string]int, len(active))
	for _, we := range active {
		if we.Severity > pressure[we.SystemKey] {
			pressure[we.SystemKey] = we.Severity
		}
	}
	return pressure, nil
}

// pressuredParams amplifies drift in systems under an active world
// event: stations burn through stock faster and markets get noisier.
func pressuredParams(p economy.Params, severity int) economy.Params {
	s := float64(severity)
	p.NoiseAmplitude *= 1 + 0.5*s
	p.ConsumptionRate *= 1 + 0.25*s
	p.ProductionRate /= 1 + 0.25*s
	return p
}
