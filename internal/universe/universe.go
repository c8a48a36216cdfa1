// Package universe loads the static galaxy definition (systems,
// connections, stations, goods, ship and upgrade catalogs) from YAML,
// seeds the database with it, and serves it from an in-memory catalog.
package universe

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SystemDef is a star system node in the universe file.
type SystemDef struct {
	Key         string  `yaml:"key" json:"key"`
	Name        string  `yaml:"name" json:"name"`
	X           float64 `yaml:"x" json:"x"`
	Y           float64 `yaml:"y" json:"y"`
	DangerLevel int     `yaml:"danger_level" json:"dangerLevel"`
}

// ConnectionDef is a bidirectional weighted edge between two systems.
type ConnectionDef struct {
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
	FuelCost int    `yaml:"fuel_cost" json:"fuelCost"`
}

// GoodDef is a tradable commodity definition.
type GoodDef struct {
	Key          string  `yaml:"key" json:"key"`
	Name         string  `yaml:"name" json:"name"`
	BasePrice    int     `yaml:"base_price" json:"basePrice"`
	PriceFloor   float64 `yaml:"price_floor" json:"priceFloor"`
	PriceCeiling float64 `yaml:"price_ceiling" json:"priceCeiling"`
}

// StationDef is a trade post with its economy profile.
type StationDef struct {
	Key       string   `yaml:"key" json:"key"`
	Name      string   `yaml:"name" json:"name"`
	SystemKey string   `yaml:"system" json:"systemKey"`
	Produces  []string `yaml:"produces" json:"produces"`
	Consumes  []string `yaml:"consumes" json:"consumes"`
}

// ShipTypeDef is a purchasable hull with its base stats.
type ShipTypeDef struct {
	Key           string  `yaml:"key" json:"key"`
	Name          string  `yaml:"name" json:"name"`
	Price         int64   `yaml:"price" json:"price"`
	Speed         int     `yaml:"speed" json:"speed"`
	MaxFuel       int     `yaml:"max_fuel" json:"maxFuel"`
	HullMax       int     `yaml:"hull_max" json:"hullMax"`
	ShieldMax     int     `yaml:"shield_max" json:"shieldMax"`
	Firepower     float64 `yaml:"firepower" json:"firepower"`
	Evasion       float64 `yaml:"evasion" json:"evasion"`
	CargoCapacity int     `yaml:"cargo_capacity" json:"cargoCapacity"`
	Slots         []SlotDef `yaml:"slots" json:"slots"`
}

// SlotDef is an upgrade slot on a hull.
type SlotDef struct {
	Key  string `yaml:"key" json:"key"`
	Type string `yaml:"type" json:"type"` // weapon, engine, shield, cargo
}

// ModuleTierDef is one purchasable tier of an upgrade module.
type ModuleTierDef struct {
	Tier  int   `yaml:"tier" json:"tier"`
	Price int64 `yaml:"price" json:"price"`
	// Stat bonuses applied while installed.
	Firepower float64 `yaml:"firepower" json:"firepower"`
	Evasion   float64 `yaml:"evasion" json:"evasion"`
	Speed     int     `yaml:"speed" json:"speed"`
	ShieldMax int     `yaml:"shield_max" json:"shieldMax"`
	CargoCap  int     `yaml:"cargo_capacity" json:"cargoCapacity"`
}

// ModuleDef is an upgrade module family with its slot type and tiers.
type ModuleDef struct {
	Key      string          `yaml:"key" json:"key"`
	Name     string          `yaml:"name" json:"name"`
	SlotType string          `yaml:"slot_type" json:"slotType"`
	Tiers    []ModuleTierDef `yaml:"tiers" json:"tiers"`
}

// Universe is the full static galaxy definition.
type Universe struct {
	Systems     []SystemDef     `yaml:"systems"`
	Connections []ConnectionDef `yaml:"connections"`
	Goods       []GoodDef       `yaml:"goods"`
	Stations    []StationDef    `yaml:"stations"`
	ShipTypes   []ShipTypeDef   `yaml:"ship_types"`
	Modules     []ModuleDef     `yaml:"modules"`
}

// LoadFile reads and validates a universe YAML file.
func LoadFile(path string) (*Universe, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading universe file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates universe YAML.
func Parse(raw []byte) (*Universe, error) {
	var u Universe
	if err := yaml.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("parsing universe file: %w", err)
	}
	if err := u.validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

func (u *Universe) validate() error {
	systems := make(map[string]bool, len(u.Systems))
	for _, s := range u.Systems {
		if s.Key == "" {
			return fmt.Errorf("system with empty key")
		}
		if systems[s.Key] {
			return fmt.Errorf("duplicate system key %q", s.Key)
		}
		systems[s.Key] = true
	}
	for _, c := range u.Connections {
		if !systems[c.From] || !systems[c.To] {
			return fmt.Errorf("connection %s-%s references unknown system", c.From, c.To)
		}
		if c.FuelCost <= 0 {
			return fmt.Errorf("connection %s-%s has non-positive fuel cost", c.From, c.To)
		}
	}
	goods := make(map[string]bool, len(u.Goods))
	for _, g := range u.Goods {
		goods[g.Key] = true
	}
	for _, st := range u.Stations {
		if !systems[st.SystemKey] {
			return fmt.Errorf("station %q references unknown system %q", st.Key, st.SystemKey)
		}
		for _, g := range append(append([]string{}, st.Produces...), st.Consumes...) {
			if !goods[g] {
				return fmt.Errorf("station %q references unknown good %q", st.Key, g)
			}
		}
	}
	return nil
}
