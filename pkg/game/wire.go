package game

import "fmt"

// Ship status values.
const (
	ShipDocked    = "docked"
	ShipInTransit = "in_transit"
)

// Battle status values.
const (
	BattleActive        = "active"
	BattlePlayerVictory = "player_victory"
	BattlePlayerDefeat  = "player_defeat"
	BattlePlayerRetreat = "player_retreat"
	BattleEnemyRetreat  = "enemy_retreat"
)

// ShipWire is the serialized representation of a ship as sent to clients
// and accepted back from trusted tooling. Transit fields are present only
// while the ship is in transit.
type ShipWire struct {
	ID             uint    `json:"id"`
	PlayerID       uint    `json:"playerId"`
	Name           string  `json:"name"`
	TypeKey        string  `json:"typeKey"`
	Status         string  `json:"status"`
	SystemKey      string  `json:"systemKey"`
	Fuel           int     `json:"fuel"`
	MaxFuel        int     `json:"maxFuel"`
	HullCurrent    int     `json:"hullCurrent"`
	HullMax        int     `json:"hullMax"`
	ShieldCurrent  int     `json:"shieldCurrent"`
	ShieldMax      int     `json:"shieldMax"`
	Speed          int     `json:"speed"`
	Firepower      float64 `json:"firepower"`
	Evasion        float64 `json:"evasion"`
	CargoUsed      int     `json:"cargoUsed"`
	CargoCapacity  int     `json:"cargoCapacity"`
	DestinationKey *string `json:"destinationKey,omitempty"`
	DepartureTick  *uint64 `json:"departureTick,omitempty"`
	ArrivalTick    *uint64 `json:"arrivalTick,omitempty"`
	ConvoyID       *uint   `json:"convoyId,omitempty"`
}

// Validate checks the transit invariants: a destination is set iff the
// ship is in transit, and arrival never precedes departure.
func (w *ShipWire) Validate() error {
	switch w.Status {
	case ShipDocked:
		if w.DestinationKey != nil {
			return fmt.Errorf("docked ship %d has destination %q", w.ID, *w.DestinationKey)
		}
	case ShipInTransit:
		if w.DestinationKey == nil {
			return fmt.Errorf("in-transit ship %d has no destination", w.ID)
		}
		if w.DepartureTick == nil || w.ArrivalTick == nil {
			return fmt.Errorf("in-transit ship %d missing transit ticks", w.ID)
		}
		if *w.ArrivalTick < *w.DepartureTick {
			return fmt.Errorf("ship %d arrival tick %d before departure %d", w.ID, *w.ArrivalTick, *w.DepartureTick)
		}
	default:
		return fmt.Errorf("ship %d has unknown status %q", w.ID, w.Status)
	}
	return nil
}
