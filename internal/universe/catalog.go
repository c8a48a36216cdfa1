package universe

import (
	"strings"
	"sync"
)

// Edge is one traversable hop as seen from a particular system.
type Edge struct {
	To       string
	FuelCost int
}

// Catalog is the process-wide read cache over the static universe.
// It is built once at startup and safe for concurrent readers; the
// pathfinder and validators never touch the database for static data.
type Catalog struct {
	mu sync.RWMutex

	systems   map[string]SystemDef
	adjacency map[string][]Edge
	goods     map[string]GoodDef
	stations  map[string]StationDef
	// stationsBySystem maps a system key to its station keys.
	stationsBySystem map[string][]string
	shipTypes        map[string]ShipTypeDef
	modules          map[string]ModuleDef
}

// NewCatalog indexes a parsed universe.
func NewCatalog(u *Universe) *Catalog {
	c := &Catalog{
		systems:          make(map[string]SystemDef, len(u.Systems)),
		adjacency:        make(map[string][]Edge),
		goods:            make(map[string]GoodDef, len(u.Goods)),
		stations:         make(map[string]StationDef, len(u.Stations)),
		stationsBySystem: make(map[string][]string),
		shipTypes:        make(map[string]ShipTypeDef, len(u.ShipTypes)),
		modules:          make(map[string]ModuleDef, len(u.Modules)),
	}
	c.Reload(u)
	return c
}

// Reload replaces the catalog contents, e.g. after a SIGHUP re-read.
func (c *Catalog) Reload(u *Universe) {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.systems)
	clear(c.adjacency)
	clear(c.goods)
	clear(c.stations)
	clear(c.stationsBySystem)
	clear(c.shipTypes)
	clear(c.modules)

	for _, s := range u.Systems {
		c.systems[s.Key] = s
	}
	for _, conn := range u.Connections {
		c.adjacency[conn.From] = append(c.adjacency[conn.From], Edge{To: conn.To, FuelCost: conn.FuelCost})
		c.adjacency[conn.To] = append(c.adjacency[conn.To], Edge{To: conn.From, FuelCost: conn.FuelCost})
	}
	for _, g := range u.Goods {
		c.goods[g.Key] = g
	}
	for _, st := range u.Stations {
		c.stations[st.Key] = st
		c.stationsBySystem[st.SystemKey] = append(c.stationsBySystem[st.SystemKey], st.Key)
	}
	for _, t := range u.ShipTypes {
		c.shipTypes[t.Key] = t
	}
	for _, m := range u.Modules {
		c.modules[m.Key] = m
	}
}

// Systems returns every system definition, in no particular order.
func (c *Catalog) Systems() []SystemDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SystemDef, 0, len(c.systems))
	for _, s := range c.systems {
		out = append(out, s)
	}
	return out
}

// System returns a system definition by key.
func (c *Catalog) System(key string) (SystemDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.systems[key]
	return s, ok
}

// Neighbors returns the outgoing edges from a system.
func (c *Catalog) Neighbors(key string) []Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adjacency[key]
}

// Good returns a good definition by key.
func (c *Catalog) Good(key string) (GoodDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.goods[key]
	return g, ok
}

// Station returns a station definition by key.
func (c *Catalog) Station(key string) (StationDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stations[key]
	return s, ok
}

// StationsIn returns the station keys located in a system.
func (c *Catalog) StationsIn(systemKey string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stationsBySystem[systemKey]
}

// ShipType returns a hull definition by key.
func (c *Catalog) ShipType(key string) (ShipTypeDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.shipTypes[key]
	return t, ok
}

// Module returns an upgrade module definition by key.
func (c *Catalog) Module(key string) (ModuleDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[key]
	return m, ok
}

// ModuleTier returns one tier of a module, if both exist.
func (c *Catalog) ModuleTier(moduleKey string, tier int) (ModuleDef, ModuleTierDef, bool) {
	m, ok := c.Module(moduleKey)
	if !ok {
		return ModuleDef{}, ModuleTierDef{}, false
	}
	for _, t := range m.Tiers {
		if t.Tier == tier {
			return m, t, true
		}
	}
	return ModuleDef{}, ModuleTierDef{}, false
}

// Relation describes a station's economic relationship to a good.
type Relation int

const (
	Neutral Relation = iota
	Produces
	Consumes
)

// StationRelation resolves how a station relates to a good.
func (c *Catalog) StationRelation(stationKey, goodKey string) Relation {
	st, ok := c.Station(stationKey)
	if !ok {
		return Neutral
	}
	for _, g := range st.Produces {
		if g == goodKey {
			return Produces
		}
	}
	for _, g := range st.Consumes {
		if g == goodKey {
			return Consumes
		}
	}
	return Neutral
}

// ParseRelationList splits a comma-separated good list as stored on the
// station row back into keys.
func ParseRelationList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
