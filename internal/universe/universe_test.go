package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validUniverseYAML = `
systems:
  - { key: sol, name: Sol, danger_level: 0 }
  - { key: vega, name: Vega, danger_level: 3 }
connections:
  - { from: sol, to: vega, fuel_cost: 4 }
goods:
  - { key: ore, name: Ore, base_price: 40, price_floor: 0.5, price_ceiling: 2.0 }
stations:
  - key: sol-port
    name: Sol Port
    system: sol
    produces: [ore]
ship_types:
  - key: scout
    name: Scout
    price: 5000
    speed: 5
    max_fuel: 40
    hull_max: 50
    shield_max: 20
    firepower: 4
    evasion: 30
    cargo_capacity: 20
    slots:
      - { key: w1, type: weapon }
modules:
  - key: laser
    name: Laser
    slot_type: weapon
    tiers:
      - { tier: 1, price: 500, firepower: 2 }
`

func TestParseValidUniverse(t *testing.T) {
	u, err := Parse([]byte(validUniverseYAML))

	require.NoError(t, err)
	assert.Len(t, u.Systems, 2)
	assert.Len(t, u.Connections, 1)
	assert.Equal(t, 4, u.Connections[0].FuelCost)
	assert.Equal(t, "sol", u.Stations[0].SystemKey)
	require.Len(t, u.ShipTypes, 1)
	assert.Equal(t, "weapon", u.ShipTypes[0].Slots[0].Type)
}

func TestParseRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			name: "duplicate system key",
			yaml: `
systems:
  - { key: sol, name: Sol }
  - { key: sol, name: Sol Again }
`,
		},
		{
			name: "connection to unknown system",
			yaml: `
systems:
  - { key: sol, name: Sol }
connections:
  - { from: sol, to: nowhere, fuel_cost: 2 }
`,
		},
		{
			name: "non-positive fuel cost",
			yaml: `
systems:
  - { key: sol, name: Sol }
  - { key: vega, name: Vega }
connections:
  - { from: sol, to: vega, fuel_cost: 0 }
`,
		},
		{
			name: "station in unknown system",
			yaml: `
systems:
  - { key: sol, name: Sol }
stations:
  - { key: lost-port, name: Lost Port, system: nowhere }
`,
		},
		{
			name: "station trading unknown good",
			yaml: `
systems:
  - { key: sol, name: Sol }
stations:
  - { key: sol-port, name: Sol Port, system: sol, produces: [unobtainium] }
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestCatalogLookups(t *testing.T) {
	u, err := Parse([]byte(validUniverseYAML))
	require.NoError(t, err)

	c := NewCatalog(u)

	sys, ok := c.System("vega")
	require.True(t, ok)
	assert.Equal(t, 3, sys.DangerLevel)

	_, ok = c.System("nowhere")
	assert.False(t, ok)

	edges := c.Neighbors("sol")
	require.Len(t, edges, 1)
	assert.Equal(t, "vega", edges[0].To)
	assert.Equal(t, 4, edges[0].FuelCost)

	// Connections are bidirectional.
	back := c.Neighbors("vega")
	require.Len(t, back, 1)
	assert.Equal(t, "sol", back[0].To)
}
