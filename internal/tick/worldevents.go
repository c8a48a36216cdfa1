package tick

import (
	"fmt"
	"math/rand"

	"gorm.io/gorm"

	"github.com/startide/server/internal/model"
	"github.com/startide/server/internal/universe"
	"github.com/startide/server/pkg/game"
)

// World event types.
var worldEventTypes = []string{"conflict", "shortage", "ion_storm"}

// WorldEvents advances phased occurrences and occasionally spawns new
// ones in dangerous systems.
type WorldEvents struct {
	catalog *universe.Catalog
	rng     *rand.Rand

	// SpawnChance is the per-tick probability of a new event brewing
	// somewhere. PhaseDuration is the tick span of each phase.
	SpawnChance   float64
	PhaseDuration uint64
}

// NewWorldEvents builds the world event processor.
func NewWorldEvents(catalog *universe.Catalog, rng *rand.Rand, spawnChance float64, phaseDuration uint64) *WorldEvents {
	if phaseDuration == 0 {
		phaseDuration = 10
	}
	return &WorldEvents{
		catalog:       catalog,
		rng:           rng,
		SpawnChance:   spawnChance,
		PhaseDuration: phaseDuration,
	}
}

func (*WorldEvents) Name() string { return "world_events" }

func (w *WorldEvents) Process(tx *gorm.DB, tick uint64) ([]game.Event, error) {
	var due []model.WorldEvent
	if err := tx.Where("phase_start_tick + phase_duration <= ?", tick).
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("loading due world events: %w", err)
	}

	var events []game.Event
	for _, we := range due {
		next := model.NextPhase(we.Phase)
		if next == "" {
			continue
		}

		if next == model.PhaseResolved {
			if err := tx.Unscoped().Delete(&model.WorldEvent{}, we.ID).Error; err != nil {
				return nil, fmt.Errorf("resolving world event %d: %w", we.ID, err)
			}
			events = append(events, game.Event{
				Name: game.EventWorldEventEnded,
				Payload: game.WorldEventPayload{
					EventID: we.ID, Type: we.Type, SystemKey: we.SystemKey,
					Phase: model.PhaseResolved, Severity: we.Severity,
				},
			})
			continue
		}

		if err := tx.Model(&model.WorldEvent{}).Where("id = ?", we.ID).
			Updates(map[string]any{
				"phase":            next,
				"phase_start_tick": tick,
				"phase_duration":   w.PhaseDuration,
			}).Error; err != nil {
			return nil, fmt.Errorf("advancing world event %d: %w", we.ID, err)
		}
		events = append(events, game.Event{
			Name: game.EventWorldEventPhase,
			Payload: game.WorldEventPayload{
				EventID: we.ID, Type: we.Type, SystemKey: we.SystemKey,
				Phase: next, Severity: we.Severity,
			},
		})
	}

	spawned, err := w.maybeSpawn(tx, tick)
	if err != nil {
		return nil, err
	}
	return append(events, spawned...), nil
}

// maybeSpawn rolls for a new brewing event in a random dangerous system.
func (w *WorldEvents) maybeSpawn(tx *gorm.DB, tick uint64) ([]game.Event, error) {
	if w.SpawnChance <= 0 || w.rng.Float64() >= w.SpawnChance {
		return nil, nil
	}

	var dangerous []universe.SystemDef
	for _, s := range w.catalog.Systems() {
		if s.DangerLevel > 0 {
			dangerous = append(dangerous, s)
		}
	}
	if len(dangerous) == 0 {
		return nil, nil
	}
	target := dangerous[w.rng.Intn(len(dangerous))]

	we := model.WorldEvent{
		Type:           worldEventTypes[w.rng.Intn(len(worldEventTypes))],
		SystemKey:      target.Key,
		Phase:          model.PhaseBrewing,
		Severity:       target.DangerLevel,
		PhaseStartTick: tick,
		PhaseDuration:  w.PhaseDuration,
	}
	if err := tx.Create(&we).Error; err != nil {
		return nil, fmt.Errorf("spawning world event: %w", err)
	}

	return []game.Event{{
		Name: game.EventWorldEventPhase,
		Payload: game.WorldEventPayload{
			EventID: we.ID, Type: we.Type, SystemKey: we.SystemKey,
			Phase: model.PhaseBrewing, Severity: we.Severity,
		},
	}}, nil
}
