package actions

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/startide/server/internal/database"
	"github.com/startide/server/internal/model"
	"github.com/startide/server/internal/sim/pathfind"
	"github.com/startide/server/internal/universe"
	"github.com/startide/server/pkg/game"
)

func testUniverse() *universe.Universe {
	return &universe.Universe{
		Systems: []universe.SystemDef{
			{Key: "sol", Name: "Sol"},
			{Key: "vega", Name: "Vega", DangerLevel: 3},
		},
		Connections: []universe.ConnectionDef{
			{From: "sol", To: "vega", FuelCost: 4},
		},
		Goods: []universe.GoodDef{
			{Key: "ore", Name: "Ore", BasePrice: 100, PriceFloor: 0.5, PriceCeiling: 2.0},
		},
		Stations: []universe.StationDef{
			{Key: "sol-port", Name: "Sol Port", SystemKey: "sol", Produces: []string{"ore"}},
		},
		ShipTypes: []universe.ShipTypeDef{
			{
				Key: "scout", Name: "Scout", Price: 5000, Speed: 5, MaxFuel: 40,
				HullMax: 50, ShieldMax: 20, Firepower: 4, Evasion: 30, CargoCapacity: 20,
				Slots: []universe.SlotDef{
					{Key: "w1", Type: "weapon"},
					{Key: "e1", Type: "engine"},
				},
			},
		},
		Modules: []universe.ModuleDef{
			{
				Key: "laser", Name: "Laser", SlotType: "weapon",
				Tiers: []universe.ModuleTierDef{
					{Tier: 1, Price: 500, Firepower: 2},
					{Tier: 2, Price: 1500, Firepower: 5},
				},
			},
		},
	}
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := database.OpenSqlite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.DatabaseModels...))
	require.NoError(t, database.EnsureWorld(db, 30000))

	u := testUniverse()
	require.NoError(t, universe.Seed(db, u))

	svc := NewService(db, universe.NewCatalog(u), nil, nil, Pricing{FuelPerUnit: 3, HullPerPoint: 8})
	return svc, db
}

func seedPlayerAndShip(t *testing.T, db *gorm.DB, credits int64) (model.Player, model.Ship) {
	t.Helper()

	player := model.Player{Name: "cmdr-" + t.Name(), Credits: credits}
	require.NoError(t, db.Create(&player).Error)

	ship := model.Ship{
		PlayerID: player.ID, Name: "Wren", TypeKey: "scout",
		Status: game.ShipDocked, SystemKey: "sol",
		Fuel: 40, MaxFuel: 40, HullCurrent: 50, HullMax: 50,
		ShieldCurrent: 20, ShieldMax: 20, Speed: 5,
		Firepower: 4, Evasion: 30, CargoCapacity: 20,
	}
	require.NoError(t, db.Create(&ship).Error)
	return player, ship
}

func TestTradeBuyMovesCreditsCargoAndMarket(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 10000)

	res, err := svc.Trade(player.ID, ship.ID, "sol-port", "ore", 5, SideBuy)

	require.NoError(t, err)
	assert.Equal(t, 100, res.UnitPrice)
	assert.Equal(t, int64(500), res.Total)
	assert.Equal(t, int64(9500), res.CreditsAfter)
	assert.Equal(t, 45, res.NewSupply)

	var got model.Player
	require.NoError(t, db.First(&got, player.ID).Error)
	assert.Equal(t, int64(9500), got.Credits)

	var cargo model.CargoItem
	require.NoError(t, db.Where("ship_id = ? AND good_key = ?", ship.ID, "ore").First(&cargo).Error)
	assert.Equal(t, 5, cargo.Quantity)

	var gotShip model.Ship
	require.NoError(t, db.First(&gotShip, ship.ID).Error)
	assert.Equal(t, 5, gotShip.CargoUsed)
}

func TestTradeSellRoundTrip(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 10000)

	_, err := svc.Trade(player.ID, ship.ID, "sol-port", "ore", 5, SideBuy)
	require.NoError(t, err)

	res, err := svc.Trade(player.ID, ship.ID, "sol-port", "ore", 5, SideSell)
	require.NoError(t, err)
	assert.Equal(t, 50, res.NewSupply)

	var cargo []model.CargoItem
	require.NoError(t, db.Where("ship_id = ?", ship.ID).Find(&cargo).Error)
	assert.Empty(t, cargo)

	var gotShip model.Ship
	require.NoError(t, db.First(&gotShip, ship.ID).Error)
	assert.Zero(t, gotShip.CargoUsed)
}

// A buy that would overdraw credits must change nothing at all.
func TestTradeInsufficientCreditsLeavesStateUnchanged(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 100)

	_, err := svc.Trade(player.ID, ship.ID, "sol-port", "ore", 5, SideBuy)

	require.Error(t, err)
	assert.Equal(t, game.FailPrecondition, game.KindOf(err))

	var gotPlayer model.Player
	require.NoError(t, db.First(&gotPlayer, player.ID).Error)
	assert.Equal(t, int64(100), gotPlayer.Credits)

	var entry model.MarketEntry
	require.NoError(t, db.Where("station_key = ? AND good_key = ?", "sol-port", "ore").First(&entry).Error)
	assert.Equal(t, 50, entry.Supply)
	assert.Equal(t, 50, entry.Demand)

	var cargo []model.CargoItem
	require.NoError(t, db.Where("ship_id = ?", ship.ID).Find(&cargo).Error)
	assert.Empty(t, cargo)
}

func TestTradeRejectsZeroQuantity(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 10000)

	_, err := svc.Trade(player.ID, ship.ID, "sol-port", "ore", 0, SideBuy)

	require.Error(t, err)
	assert.Equal(t, game.FailValidation, game.KindOf(err))
}

func TestNavigatePlacesShipInTransit(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 0)

	res, err := svc.Navigate(player.ID, ship.ID, []string{"sol", "vega"})

	require.NoError(t, err)
	assert.Equal(t, game.ShipInTransit, res.Ship.Status)
	assert.Equal(t, 4, res.FuelSpent)
	require.NotNil(t, res.Ship.DestinationKey)
	assert.Equal(t, "vega", *res.Ship.DestinationKey)

	var got model.Ship
	require.NoError(t, db.First(&got, ship.ID).Error)
	assert.Equal(t, game.ShipInTransit, got.Status)
	assert.Equal(t, 36, got.Fuel)
	require.NotNil(t, got.ArrivalTick)
	assert.Equal(t, res.ArrivalTick, *got.ArrivalTick)
}

func TestNavigateRejectsRouteNotStartingAtShip(t *testing.T) {
	svc, _ := newTestService(t)
	player, ship := seedPlayerAndShipAt(t, svc, "sol")

	_, err := svc.Navigate(player.ID, ship.ID, []string{"vega", "sol"})

	require.Error(t, err)
	assert.Equal(t, game.FailValidation, game.KindOf(err))
}

func TestNavigateRejectsInTransitShip(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 0)

	_, err := svc.Navigate(player.ID, ship.ID, []string{"sol", "vega"})
	require.NoError(t, err)

	_, err = svc.Navigate(player.ID, ship.ID, []string{"sol", "vega"})
	require.Error(t, err)
	assert.Equal(t, game.FailPrecondition, game.KindOf(err))
}

// seedConvoyPair groups the seeded ship with a second, slower hull
// under one convoy.
func seedConvoyPair(t *testing.T, db *gorm.DB, player model.Player, lead model.Ship) (model.Convoy, model.Ship) {
	t.Helper()

	convoy := model.Convoy{PlayerID: player.ID, Name: "Caravan"}
	require.NoError(t, db.Create(&convoy).Error)
	require.NoError(t, db.Model(&model.Ship{}).Where("id = ?", lead.ID).
		Update("convoy_id", convoy.ID).Error)

	freighter := model.Ship{
		PlayerID: player.ID, Name: "Ox", TypeKey: "scout",
		Status: game.ShipDocked, SystemKey: "sol",
		Fuel: 40, MaxFuel: 40, HullCurrent: 50, HullMax: 50, Speed: 2,
		CargoCapacity: 20, ConvoyID: &convoy.ID,
	}
	require.NoError(t, db.Create(&freighter).Error)
	return convoy, freighter
}

func TestNavigateConvoyMovesAllShipsTogether(t *testing.T) {
	svc, db := newTestService(t)
	player, lead := seedPlayerAndShip(t, db, 0)
	convoy, freighter := seedConvoyPair(t, db, player, lead)

	res, err := svc.NavigateConvoy(player.ID, convoy.ID, []string{"sol", "vega"})

	require.NoError(t, err)
	require.Len(t, res.Ships, 2)
	assert.Equal(t, 8, res.FuelSpent)

	// The slowest member sets the pace for the whole convoy.
	assert.Equal(t, pathfind.HopDuration(4, freighter.Speed, pathfind.ReferenceSpeed), res.ArrivalTick)

	var members []model.Ship
	require.NoError(t, db.Where("convoy_id = ?", convoy.ID).Find(&members).Error)
	require.Len(t, members, 2)
	for _, m := range members {
		assert.Equal(t, game.ShipInTransit, m.Status)
		require.NotNil(t, m.DestinationKey)
		assert.Equal(t, "vega", *m.DestinationKey)
		require.NotNil(t, m.ArrivalTick)
		assert.Equal(t, res.ArrivalTick, *m.ArrivalTick)
		assert.Equal(t, 36, m.Fuel)
	}
}

// A member short on fuel draws the difference from the convoy's pooled
// reserve.
func TestNavigateConvoyDrawsFromPooledFuel(t *testing.T) {
	svc, db := newTestService(t)
	player, lead := seedPlayerAndShip(t, db, 0)
	convoy, freighter := seedConvoyPair(t, db, player, lead)

	require.NoError(t, db.Model(&model.Ship{}).Where("id = ?", lead.ID).
		Update("fuel", 1).Error)
	require.NoError(t, db.Model(&model.Ship{}).Where("id = ?", freighter.ID).
		Update("fuel", 10).Error)

	res, err := svc.NavigateConvoy(player.ID, convoy.ID, []string{"sol", "vega"})

	require.NoError(t, err)
	assert.Equal(t, 8, res.FuelSpent)

	var gotLead, gotFreighter model.Ship
	require.NoError(t, db.First(&gotLead, lead.ID).Error)
	require.NoError(t, db.First(&gotFreighter, freighter.ID).Error)
	assert.Equal(t, 0, gotLead.Fuel)
	assert.Equal(t, 3, gotFreighter.Fuel)
	assert.Equal(t, game.ShipInTransit, gotLead.Status)
	assert.Equal(t, game.ShipInTransit, gotFreighter.Status)
}

func TestNavigateConvoyRejectsInsufficientPooledFuel(t *testing.T) {
	svc, db := newTestService(t)
	player, lead := seedPlayerAndShip(t, db, 0)
	convoy, freighter := seedConvoyPair(t, db, player, lead)

	require.NoError(t, db.Model(&model.Ship{}).
		Where("id IN ?", []uint{lead.ID, freighter.ID}).
		Update("fuel", 3).Error)

	_, err := svc.NavigateConvoy(player.ID, convoy.ID, []string{"sol", "vega"})

	require.Error(t, err)
	assert.Equal(t, game.FailPrecondition, game.KindOf(err))

	// Nothing moved and no fuel was burned.
	var members []model.Ship
	require.NoError(t, db.Where("convoy_id = ?", convoy.ID).Find(&members).Error)
	for _, m := range members {
		assert.Equal(t, game.ShipDocked, m.Status)
		assert.Equal(t, 3, m.Fuel)
	}
}

func TestNavigateConvoyRejectsUndockedMember(t *testing.T) {
	svc, db := newTestService(t)
	player, lead := seedPlayerAndShip(t, db, 0)
	convoy, freighter := seedConvoyPair(t, db, player, lead)

	require.NoError(t, db.Model(&model.Ship{}).Where("id = ?", freighter.ID).
		Update("status", game.ShipInTransit).Error)

	_, err := svc.NavigateConvoy(player.ID, convoy.ID, []string{"sol", "vega"})

	require.Error(t, err)
	assert.Equal(t, game.FailPrecondition, game.KindOf(err))
}

func TestPurchaseShipDebitsCreditsAndCreatesHull(t *testing.T) {
	svc, db := newTestService(t)
	player := model.Player{Name: "buyer-" + t.Name(), Credits: 6000}
	require.NoError(t, db.Create(&player).Error)

	res, err := svc.PurchaseShip(player.ID, "sol", "scout", "Magpie")

	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.CreditsAfter)
	assert.Equal(t, "Magpie", res.Ship.Name)
	assert.Equal(t, game.ShipDocked, res.Ship.Status)
	assert.Equal(t, 40, res.Ship.Fuel)

	_, err = svc.PurchaseShip(player.ID, "sol", "scout", "Second")
	require.Error(t, err)
	assert.Equal(t, game.FailPrecondition, game.KindOf(err))
}

func TestInstallUpgradeAppliesBonuses(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 2000)

	res, err := svc.InstallUpgrade(player.ID, ship.ID, "w1", "laser", 1)

	require.NoError(t, err)
	assert.Equal(t, int64(1500), res.CreditsAfter)
	assert.Equal(t, 6.0, res.Ship.Firepower)

	// Same slot again is rejected without touching credits.
	_, err = svc.InstallUpgrade(player.ID, ship.ID, "w1", "laser", 2)
	require.Error(t, err)
	assert.Equal(t, game.FailPrecondition, game.KindOf(err))

	var got model.Player
	require.NoError(t, db.First(&got, player.ID).Error)
	assert.Equal(t, int64(1500), got.Credits)
}

func TestInstallUpgradeRejectsWrongSlotType(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 2000)

	_, err := svc.InstallUpgrade(player.ID, ship.ID, "e1", "laser", 1)

	require.Error(t, err)
	assert.Equal(t, game.FailPrecondition, game.KindOf(err))
}

func TestRemoveUpgradeRevertsBonuses(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 2000)

	_, err := svc.InstallUpgrade(player.ID, ship.ID, "w1", "laser", 1)
	require.NoError(t, err)

	res, err := svc.RemoveUpgrade(player.ID, ship.ID, "w1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Ship.Firepower)

	var ups []model.ShipUpgrade
	require.NoError(t, db.Where("ship_id = ?", ship.ID).Find(&ups).Error)
	assert.Empty(t, ups)
}

func TestRefuelAndRepairChargeStationRates(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 1000)
	require.NoError(t, db.Model(&model.Ship{}).Where("id = ?", ship.ID).
		Updates(map[string]any{"fuel": 10, "hull_current": 30}).Error)

	fuelRes, err := svc.Refuel(player.ID, ship.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(60), fuelRes.Cost)
	assert.Equal(t, 30, fuelRes.Ship.Fuel)

	repairRes, err := svc.Repair(player.ID, ship.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(80), repairRes.Cost)
	assert.Equal(t, 40, repairRes.Ship.HullCurrent)

	var got model.Player
	require.NoError(t, db.First(&got, player.ID).Error)
	assert.Equal(t, int64(860), got.Credits)
}

func TestRefuelOverCapacityRejected(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 1000)

	_, err := svc.Refuel(player.ID, ship.ID, 1)

	require.Error(t, err)
	assert.Equal(t, game.FailPrecondition, game.KindOf(err))
}

func TestServiceConvoyTopsUpDockedShips(t *testing.T) {
	svc, db := newTestService(t)
	player, ship := seedPlayerAndShip(t, db, 10000)

	convoy := model.Convoy{PlayerID: player.ID, Name: "Caravan"}
	require.NoError(t, db.Create(&convoy).Error)
	require.NoError(t, db.Model(&model.Ship{}).Where("id = ?", ship.ID).
		Updates(map[string]any{"convoy_id": convoy.ID, "fuel": 10, "hull_current": 20}).Error)

	res, err := svc.ServiceConvoy(player.ID, convoy.ID, 1.0)

	require.NoError(t, err)
	assert.Equal(t, 1, res.ShipsServiced)
	assert.Equal(t, 30, res.FuelAdded)
	assert.Equal(t, 30, res.HullRepaired)
	assert.Equal(t, int64(30*3+30*8), res.Cost)

	var got model.Ship
	require.NoError(t, db.First(&got, ship.ID).Error)
	assert.Equal(t, got.MaxFuel, got.Fuel)
	assert.Equal(t, got.HullMax, got.HullCurrent)
}

func TestServiceConvoyRejectsBadFraction(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ServiceConvoy(1, 1, 0)
	require.Error(t, err)
	assert.Equal(t, game.FailValidation, game.KindOf(err))

	_, err = svc.ServiceConvoy(1, 1, 1.5)
	require.Error(t, err)
	assert.Equal(t, game.FailValidation, game.KindOf(err))
}

func TestActionsOnForeignShipReadAsNotFound(t *testing.T) {
	svc, db := newTestService(t)
	_, ship := seedPlayerAndShip(t, db, 10000)
	other := model.Player{Name: "other-" + t.Name(), Credits: 10000}
	require.NoError(t, db.Create(&other).Error)

	_, err := svc.Refuel(other.ID, ship.ID, 5)

	require.Error(t, err)
	assert.Equal(t, game.FailNotFound, game.KindOf(err))
}

// seedPlayerAndShipAt mirrors seedPlayerAndShip for callers that only
// have the service.
func seedPlayerAndShipAt(t *testing.T, svc *Service, systemKey string) (model.Player, model.Ship) {
	t.Helper()

	player := model.Player{Name: "cmdr-" + t.Name(), Credits: 0}
	require.NoError(t, svc.db.Create(&player).Error)

	ship := model.Ship{
		PlayerID: player.ID, Name: "Wren", TypeKey: "scout",
		Status: game.ShipDocked, SystemKey: systemKey,
		Fuel: 40, MaxFuel: 40, HullCurrent: 50, HullMax: 50, Speed: 5,
		CargoCapacity: 20,
	}
	require.NoError(t, svc.db.Create(&ship).Error)
	return player, ship
}
