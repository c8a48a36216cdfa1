package tick

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/startide/server/internal/model"
	"github.com/startide/server/internal/sim/combat"
	"github.com/startide/server/internal/universe"
	"github.com/startide/server/pkg/game"
)

// EnemySpec describes the opponent an encounter roll produced.
type EnemySpec struct {
	Name      string
	Strength  float64
	Morale    float64
	Firepower float64
	Evasion   float64
}

// EncounterPolicy decides whether a ship arriving in a system sparks a
// battle. escortReduction is the saturating protection from ships
// already docked at the destination; severity scaling is the policy's
// job.
type EncounterPolicy interface {
	RollEncounter(ship model.Ship, dangerLevel int, escortReduction float64, rng *rand.Rand) (EnemySpec, bool)
}

// Arrivals flips due in-transit ships back to docked and runs the
// encounter roll for each arrival.
type Arrivals struct {
	catalog   *universe.Catalog
	encounter EncounterPolicy
	rng       *rand.Rand
}

// NewArrivals builds the arrivals processor. encounter may be nil to
// disable battle creation entirely.
func NewArrivals(catalog *universe.Catalog, encounter EncounterPolicy, rng *rand.Rand) *Arrivals {
	return &Arrivals{catalog: catalog, encounter: encounter, rng: rng}
}

func (*Arrivals) Name() string { return "arrivals" }

// DueArrivals filters to the ships whose transit completes at or before
// tick. Order-independent; inputs are not mutated.
func DueArrivals(ships []model.Ship, tick uint64) []model.Ship {
	var due []model.Ship
	for _, s := range ships {
		if s.InTransit() && s.ArrivalTick != nil && *s.ArrivalTick <= tick {
			due = append(due, s)
		}
	}
	return due
}

func (a *Arrivals) Process(tx *gorm.DB, tick uint64) ([]game.Event, error) {
	var ships []model.Ship
	if err := tx.Where("status = ? AND arrival_tick <= ?", game.ShipInTransit, tick).
		Find(&ships).Error; err != nil {
		return nil, fmt.Errorf("loading due arrivals: %w", err)
	}

	var events []game.Event
	for _, ship := range ships {
		destination := ""
		if ship.DestinationKey != nil {
			destination = *ship.DestinationKey
		}

		res := tx.Model(&model.Ship{}).
			Where("id = ? AND status = ?", ship.ID, game.ShipInTransit).
			Updates(map[string]any{
				"status":          game.ShipDocked,
				"system_key":      destination,
				"destination_key": nil,
				"departure_tick":  nil,
				"arrival_tick":    nil,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("docking ship %d: %w", ship.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		ship.Status = game.ShipDocked
		ship.SystemKey = destination

		events = append(events, game.Event{
			Name:     game.EventShipArrived,
			PlayerID: ship.PlayerID,
			Payload:  game.ShipArrivedPayload{ShipID: ship.ID, SystemKey: destination, Tick: tick},
		})

		if err := writeNotification(tx, ship.PlayerID, game.EventShipArrived,
			fmt.Sprintf("%s arrived at %s", ship.Name, destination), tick,
			map[string]any{"shipId": ship.ID, "system": destination}); err != nil {
			return nil, err
		}

		battleEvents, err := a.maybeStartBattle(tx, ship, tick)
		if err != nil {
			return nil, err
		}
		events = append(events, battleEvents...)
	}
	return events, nil
}

func (a *Arrivals) maybeStartBattle(tx *gorm.DB, ship model.Ship, tick uint64) ([]game.Event, error) {
	if a.encounter == nil {
		return nil, nil
	}
	system, ok := a.catalog.System(ship.SystemKey)
	if !ok || system.DangerLevel <= 0 {
		return nil, nil
	}

	escort, err := escortProtectionFor(tx, ship)
	if err != nil {
		return nil, err
	}

	enemy, triggered := a.encounter.RollEncounter(ship, system.DangerLevel, escort, a.rng)
	if !triggered {
		return nil, nil
	}

	strength := float64(ship.HullCurrent + ship.ShieldCurrent)
	battle := model.Battle{
		ShipID:            ship.ID,
		PlayerID:          ship.PlayerID,
		SystemKey:         ship.SystemKey,
		EnemyName:         enemy.Name,
		PlayerStrength:    strength,
		PlayerMaxStrength: strength,
		EnemyStrength:     enemy.Strength,
		EnemyMaxStrength:  enemy.Strength,
		PlayerMorale:      startingMorale,
		EnemyMorale:       enemy.Morale,
		PlayerFirepower:   ship.Firepower,
		PlayerEvasion:     ship.Evasion,
		EnemyFirepower:    enemy.Firepower,
		EnemyEvasion:      enemy.Evasion,
		RoundHistory:      emptyHistory(),
		Status:            game.BattleActive,
		LastRoundTick:     tick,
	}
	if err := tx.Create(&battle).Error; err != nil {
		return nil, fmt.Errorf("creating battle for ship %d: %w", ship.ID, err)
	}

	if err := writeNotification(tx, ship.PlayerID, game.EventBattleStarted,
		fmt.Sprintf("%s engaged by %s in %s", ship.Name, enemy.Name, ship.SystemKey), tick,
		map[string]any{"battleId": battle.ID, "shipId": ship.ID}); err != nil {
		return nil, err
	}

	return []game.Event{{
		Name:     game.EventBattleStarted,
		PlayerID: ship.PlayerID,
		Payload: map[string]any{
			"battleId": battle.ID,
			"shipId":   ship.ID,
			"enemy":    enemy.Name,
			"system":   ship.SystemKey,
		},
	}}, nil
}

// escortProtectionFor sums the firepower of the player's other docked
// ships in the arrival system and applies the saturating curve.
func escortProtectionFor(tx *gorm.DB, ship model.Ship) (float64, error) {
	var escorts []model.Ship
	if err := tx.Where("player_id = ? AND system_key = ? AND status = ? AND id <> ?",
		ship.PlayerID, ship.SystemKey, game.ShipDocked, ship.ID).
		Find(&escorts).Error; err != nil {
		return 0, fmt.Errorf("loading escorts: %w", err)
	}

	firepower := make([]float64, 0, len(escorts))
	for _, e := range escorts {
		firepower = append(firepower, e.Firepower)
	}
	return combat.EscortProtection(firepower), nil
}

const startingMorale = 70.0

// DangerEncounterPolicy is the default roll: encounter chance grows with
// system danger, escorts cut the chance directly and the enemy's size by
// half the protection.
type DangerEncounterPolicy struct {
	// ChancePerDanger is the per-arrival encounter probability added by
	// each danger level.
	ChancePerDanger float64
}

var enemyNames = []string{"Corsair", "Reaver", "Hollow Wolf", "Ashfall Raider", "Pale Lantern"}

func (p DangerEncounterPolicy) RollEncounter(ship model.Ship, dangerLevel int,
	escortReduction float64, rng *rand.Rand) (EnemySpec, bool) {

	chance := float64(dangerLevel) * p.ChancePerDanger * combat.EscortChanceMultiplier(escortReduction)
	if rng.Float64() >= chance {
		return EnemySpec{}, false
	}

	severity := combat.EscortSeverityMultiplier(escortReduction)
	scale := float64(dangerLevel) * (0.8 + rng.Float64()*0.4) * severity
	return EnemySpec{
		Name:      enemyNames[rng.Intn(len(enemyNames))],
		Strength:  20 * scale,
		Morale:    startingMorale,
		Firepower: 2 * scale,
		Evasion:   5 * scale,
	}, true
}

func emptyHistory() datatypes.JSON {
	return datatypes.JSON("[]")
}

func writeNotification(tx *gorm.DB, playerID uint, kind, message string, tick uint64, refs map[string]any) error {
	raw, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encoding notification refs: %w", err)
	}
	n := model.Notification{
		PlayerID: playerID,
		Type:     kind,
		Message:  message,
		Refs:     datatypes.JSON(raw),
		Tick:     tick,
	}
	if err := tx.Create(&n).Error; err != nil {
		return fmt.Errorf("writing notification: %w", err)
	}
	return nil
}
