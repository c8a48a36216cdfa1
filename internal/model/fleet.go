package model

import (
	"gorm.io/gorm"

	"github.com/startide/server/pkg/game"
)

////////////////////////
// PLAYERS AND FLEETS
////////////////////////

// Player owns ships, convoys, and a credit balance.
type Player struct {
	gorm.Model
	Name    string `json:"name" gorm:"size:64;uniqueIndex"`
	Credits int64  `json:"credits"`
}

func (*Player) TableName() string {
	return "players"
}

// Ship is the unit of travel, trade, and combat. The transit columns are
// populated only while Status is in_transit; the arrivals processor is
// the only writer that flips a ship back to docked.
type Ship struct {
	gorm.Model
	PlayerID       uint    `json:"playerId" gorm:"index"`
	Name           string  `json:"name" gorm:"size:64"`
	TypeKey        string  `json:"typeKey" gorm:"size:64"`
	Status         string  `json:"status" gorm:"size:16;index"`
	SystemKey      string  `json:"systemKey" gorm:"size:64;index"`
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
	DestinationKey *string `json:"destinationKey" gorm:"size:64"`
	DepartureTick  *uint64 `json:"departureTick"`
	ArrivalTick    *uint64 `json:"arrivalTick"`
	ConvoyID       *uint   `json:"convoyId" gorm:"index"`
}

func (*Ship) TableName() string {
	return "ships"
}

// InTransit reports whether the ship is currently between systems.
func (s *Ship) InTransit() bool {
	return s.Status == game.ShipInTransit
}

// ToWire converts the ship to its client-facing representation.
func (s *Ship) ToWire() game.ShipWire {
	return game.ShipWire{
		ID:             s.ID,
		PlayerID:       s.PlayerID,
		Name:           s.Name,
		TypeKey:        s.TypeKey,
		Status:         s.Status,
		SystemKey:      s.SystemKey,
		Fuel:           s.Fuel,
		MaxFuel:        s.MaxFuel,
		HullCurrent:    s.HullCurrent,
		HullMax:        s.HullMax,
		ShieldCurrent:  s.ShieldCurrent,
		ShieldMax:      s.ShieldMax,
		Speed:          s.Speed,
		Firepower:      s.Firepower,
		Evasion:        s.Evasion,
		CargoUsed:      s.CargoUsed,
		CargoCapacity:  s.CargoCapacity,
		DestinationKey: s.DestinationKey,
		DepartureTick:  s.DepartureTick,
		ArrivalTick:    s.ArrivalTick,
		ConvoyID:       s.ConvoyID,
	}
}

// ShipFromWire builds a Ship from its wire representation, enforcing the
// transit invariants before any field is accepted.
func ShipFromWire(w game.ShipWire) (Ship, error) {
	if err := w.Validate(); err != nil {
		return Ship{}, err
	}
	s := Ship{
		PlayerID:       w.PlayerID,
		Name:           w.Name,
		TypeKey:        w.TypeKey,
		Status:         w.Status,
		SystemKey:      w.SystemKey,
		Fuel:           w.Fuel,
		MaxFuel:        w.MaxFuel,
		HullCurrent:    w.HullCurrent,
		HullMax:        w.HullMax,
		ShieldCurrent:  w.ShieldCurrent,
		ShieldMax:      w.ShieldMax,
		Speed:          w.Speed,
		Firepower:      w.Firepower,
		Evasion:        w.Evasion,
		CargoUsed:      w.CargoUsed,
		CargoCapacity:  w.CargoCapacity,
		DestinationKey: w.DestinationKey,
		DepartureTick:  w.DepartureTick,
		ArrivalTick:    w.ArrivalTick,
		ConvoyID:       w.ConvoyID,
	}
	s.ID = w.ID
	return s, nil
}

// CargoItem is one stack of a good held in a ship's hold.
type CargoItem struct {
	gorm.Model
	ShipID   uint   `json:"shipId" gorm:"index:idx_cargo_pair,unique"`
	GoodKey  string `json:"goodKey" gorm:"size:64;index:idx_cargo_pair,unique"`
	Quantity int    `json:"quantity"`
}

func (*CargoItem) TableName() string {
	return "cargo_items"
}

// ShipUpgrade is an installed module occupying one named slot.
type ShipUpgrade struct {
	gorm.Model
	ShipID    uint   `json:"shipId" gorm:"index:idx_upgrade_pair,unique"`
	SlotKey   string `json:"slotKey" gorm:"size:64;index:idx_upgrade_pair,unique"`
	ModuleKey string `json:"moduleKey" gorm:"size:64"`
	Tier      int    `json:"tier"`
}

func (*ShipUpgrade) TableName() string {
	return "ship_upgrades"
}

// Convoy is a named group of ships that travel and refuel together.
type Convoy struct {
	gorm.Model
	PlayerID uint   `json:"playerId" gorm:"index"`
	Name     string `json:"name" gorm:"size:64"`
}

func (*Convoy) TableName() string {
	return "convoys"
}
