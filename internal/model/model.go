package model

import (
	"time"

	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&World{},
	&StarSystem{},
	&SystemConnection{},
	&Station{},
	&Good{},
	&MarketEntry{},
	&Player{},
	&Ship{},
	&CargoItem{},
	&ShipUpgrade{},
	&Convoy{},
	&Battle{},
	&WorldEvent{},
	&Notification{},
}

////////////////////////
// WORLD CLOCK
////////////////////////

// World is the singleton simulation clock row. CurrentTick only ever
// moves forward, and only via the scheduler's conditional update.
type World struct {
	ID             uint `gorm:"primarykey"`
	CurrentTick    uint64
	TickIntervalMs int64
	LastTickAt     time.Time
}

func (*World) TableName() string {
	return "worlds"
}

// WorldID is the primary key of the singleton world row.
const WorldID uint = 1

////////////////////////
// STATIC GALAXY
////////////////////////

// StarSystem is a node in the travel graph. Seeded from the universe
// file at startup, never mutated by the tick pipeline.
type StarSystem struct {
	gorm.Model
	Key         string  `json:"key" gorm:"size:64;uniqueIndex"`
	Name        string  `json:"name" gorm:"size:127"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	DangerLevel int     `json:"dangerLevel"`
}

func (*StarSystem) TableName() string {
	return "star_systems"
}

// SystemConnection is a weighted, bidirectional edge between two systems.
// Each pair is stored once; the pathfinder treats it as traversable both ways.
type SystemConnection struct {
	gorm.Model
	FromKey  string `json:"fromKey" gorm:"size:64;index:idx_connection_pair,unique"`
	ToKey    string `json:"toKey" gorm:"size:64;index:idx_connection_pair,unique"`
	FuelCost int    `json:"fuelCost"`
}

func (*SystemConnection) TableName() string {
	return "system_connections"
}

// Station is a trade post inside a system. Produces and Consumes hold
// good keys and determine each market entry's equilibrium target.
type Station struct {
	gorm.Model
	Key       string `json:"key" gorm:"size:64;uniqueIndex"`
	Name      string `json:"name" gorm:"size:127"`
	SystemKey string `json:"systemKey" gorm:"size:64;index"`
	Produces  string `json:"produces" gorm:"size:512"` // comma-separated good keys
	Consumes  string `json:"consumes" gorm:"size:512"`
}

func (*Station) TableName() string {
	return "stations"
}

// Good is a tradable commodity with its pricing envelope.
type Good struct {
	gorm.Model
	Key          string  `json:"key" gorm:"size:64;uniqueIndex"`
	Name         string  `json:"name" gorm:"size:127"`
	BasePrice    int     `json:"basePrice"`
	PriceFloor   float64 `json:"priceFloor"`   // multiplier on BasePrice
	PriceCeiling float64 `json:"priceCeiling"` // multiplier on BasePrice
}

func (*Good) TableName() string {
	return "goods"
}

////////////////////////
// MARKET STATE
////////////////////////

// MarketEntry is the mutable supply/demand state for one (station, good)
// pair. Price is always derived, never stored.
type MarketEntry struct {
	gorm.Model
	StationKey string `json:"stationKey" gorm:"size:64;index:idx_market_pair,unique"`
	GoodKey    string `json:"goodKey" gorm:"size:64;index:idx_market_pair,unique"`
	Supply     int    `json:"supply"`
	Demand     int    `json:"demand"`
}

func (*MarketEntry) TableName() string {
	return "market_entries"
}
