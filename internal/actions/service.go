// Package actions implements player-initiated mutations: navigation,
// trade, purchases, upgrades, and servicing. Each action runs in its own
// short transaction, independent of the tick pipeline, and re-reads every
// quantity it depends on inside that transaction so a stale pre-check can
// never silently apply.
package actions

import (
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/startide/server/internal/model"
	"github.com/startide/server/internal/sim/pathfind"
	"github.com/startide/server/internal/universe"
	"github.com/startide/server/pkg/game"
)

// Publisher receives the events an action emits after its transaction
// commits.
type Publisher interface {
	Publish(tick uint64, events []game.Event)
}

// Pricing holds station service rates.
type Pricing struct {
	FuelPerUnit  int
	HullPerPoint int
}

// Service executes player actions against the database.
type Service struct {
	db      *gorm.DB
	catalog *universe.Catalog
	hub     Publisher
	logger  Logger
	pricing Pricing
}

// NewService wires an action service.
func NewService(db *gorm.DB, catalog *universe.Catalog, hub Publisher, logger Logger, pricing Pricing) *Service {
	return &Service{db: db, catalog: catalog, hub: hub, logger: logger, pricing: pricing}
}

// NavigateResult reports an accepted navigation order.
type NavigateResult struct {
	Ship        game.ShipWire `json:"ship"`
	FuelSpent   int           `json:"fuelSpent"`
	ArrivalTick uint64        `json:"arrivalTick"`
}

// Navigate validates a multi-hop route and places the ship in transit.
// Fuel for the whole route is deducted up front; only the tick pipeline
// later flips the ship back to docked.
func (s *Service) Navigate(playerID, shipID uint, route []string) (*NavigateResult, error) {
	var (
		out    NavigateResult
		events []game.Event
		tick   uint64
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		ship, err := s.ownedShip(tx, playerID, shipID)
		if err != nil {
			return err
		}
		world, err := currentWorld(tx)
		if err != nil {
			return err
		}

		fuelCost, duration, ok := pathfind.RouteCost(s.catalog, route, ship.Speed)
		if !ok {
			return game.Validationf("bad_route", "route contains a hop with no connection")
		}
		if err := EvaluateNavigate(*ship, route, fuelCost); err != nil {
			return err
		}

		destination := route[len(route)-1]
		departure := world.CurrentTick
		arrival := departure + duration

		res := tx.Model(&model.Ship{}).
			Where("id = ? AND status = ? AND fuel >= ?", ship.ID, game.ShipDocked, fuelCost).
			Updates(map[string]any{
				"status":          game.ShipInTransit,
				"fuel":            gorm.Expr("fuel - ?", fuelCost),
				"destination_key": destination,
				"departure_tick":  departure,
				"arrival_tick":    arrival,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return game.Conflictf("state_changed", "ship %d changed while navigating, retry", ship.ID)
		}

		ship.Status = game.ShipInTransit
		ship.Fuel -= fuelCost
		ship.DestinationKey = &destination
		ship.DepartureTick = &departure
		ship.ArrivalTick = &arrival

		tick = world.CurrentTick
		out = NavigateResult{Ship: ship.ToWire(), FuelSpent: fuelCost, ArrivalTick: arrival}
		events = []game.Event{{
			Name:     game.EventShipDeparted,
			PlayerID: playerID,
			Payload:  out.Ship,
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(tick, events)
	return &out, nil
}

// ConvoyNavigateResult reports an accepted convoy navigation order.
type ConvoyNavigateResult struct {
	Ships       []game.ShipWire `json:"ships"`
	FuelSpent   int             `json:"fuelSpent"`
	ArrivalTick uint64          `json:"arrivalTick"`
}

// NavigateConvoy validates a route for a whole convoy and places every
// member in transit on the same schedule, the slowest member setting
// the pace. Fuel for the route is owed once per ship but drawn from the
// convoy's pooled reserve, members with spare fuel covering those
// running short.
func (s *Service) NavigateConvoy(playerID, convoyID uint, route []string) (*ConvoyNavigateResult, error) {
	var (
		out    ConvoyNavigateResult
		events []game.Event
		tick   uint64
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var convoy model.Convoy
		if err := tx.First(&convoy, convoyID).Error; err != nil {
			return wrapNotFound(err, "unknown_convoy", "no convoy %d", convoyID)
		}
		if convoy.PlayerID != playerID {
			return game.NotFoundf("unknown_convoy", "no convoy %d", convoyID)
		}

		var ships []model.Ship
		if err := tx.Where("convoy_id = ?", convoyID).Find(&ships).Error; err != nil {
			return err
		}
		if len(ships) == 0 {
			return game.Preconditionf("empty_convoy", "convoy %d has no ships", convoyID)
		}
		world, err := currentWorld(tx)
		if err != nil {
			return err
		}

		pace := ships[0].Speed
		for _, ship := range ships[1:] {
			if ship.Speed < pace {
				pace = ship.Speed
			}
		}
		fuelCost, duration, ok := pathfind.RouteCost(s.catalog, route, pace)
		if !ok {
			return game.Validationf("bad_route", "route contains a hop with no connection")
		}
		if err := EvaluateConvoyNavigate(ships, route, fuelCost); err != nil {
			return err
		}

		payments := convoyFuelPlan(ships, fuelCost)

		destination := route[len(route)-1]
		departure := world.CurrentTick
		arrival := departure + duration

		out = ConvoyNavigateResult{FuelSpent: fuelCost * len(ships), ArrivalTick: arrival}
		for i := range ships {
			ship := &ships[i]
			pay := payments[ship.ID]
			res := tx.Model(&model.Ship{}).
				Where("id = ? AND status = ? AND fuel >= ?", ship.ID, game.ShipDocked, pay).
				Updates(map[string]any{
					"status":          game.ShipInTransit,
					"fuel":            gorm.Expr("fuel - ?", pay),
					"destination_key": destination,
					"departure_tick":  departure,
					"arrival_tick":    arrival,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return game.Conflictf("state_changed", "ship %d changed while navigating, retry", ship.ID)
			}

			ship.Status = game.ShipInTransit
			ship.Fuel -= pay
			ship.DestinationKey = &destination
			ship.DepartureTick = &departure
			ship.ArrivalTick = &arrival

			wire := ship.ToWire()
			out.Ships = append(out.Ships, wire)
			events = append(events, game.Event{
				Name:     game.EventShipDeparted,
				PlayerID: playerID,
				Payload:  wire,
			})
		}

		tick = world.CurrentTick
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(tick, events)
	return &out, nil
}

// convoyFuelPlan splits the per-ship route cost across the convoy's
// pooled fuel: each ship pays what it can and members with spare fuel
// cover the remainder. Callers validate that the pool is sufficient.
func convoyFuelPlan(ships []model.Ship, costPerShip int) map[uint]int {
	pay := make(map[uint]int, len(ships))
	shortfall := 0
	for _, s := range ships {
		p := min(s.Fuel, costPerShip)
		pay[s.ID] = p
		shortfall += costPerShip - p
	}
	for _, s := range ships {
		if shortfall == 0 {
			break
		}
		extra := min(s.Fuel-pay[s.ID], shortfall)
		pay[s.ID] += extra
		shortfall -= extra
	}
	return pay
}

// TradeResult reports an executed trade with the authoritative amounts.
type TradeResult struct {
	UnitPrice      int   `json:"unitPrice"`
	Total          int64 `json:"total"`
	CreditsAfter   int64 `json:"creditsAfter"`
	QuantityTraded int   `json:"quantityTraded"`
	NewSupply      int   `json:"newSupply"`
	NewDemand      int   `json:"newDemand"`
}

// Trade buys or sells a good at a station in the ship's current system.
func (s *Service) Trade(playerID, shipID uint, stationKey, goodKey string, quantity int, side string) (*TradeResult, error) {
	goodDef, ok := s.catalog.Good(goodKey)
	if !ok {
		return nil, game.NotFoundf("unknown_good", "no good %q", goodKey)
	}
	station, ok := s.catalog.Station(stationKey)
	if !ok {
		return nil, game.NotFoundf("unknown_station", "no station %q", stationKey)
	}

	var (
		out    TradeResult
		events []game.Event
		tick   uint64
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		ship, err := s.ownedShip(tx, playerID, shipID)
		if err != nil {
			return err
		}
		if ship.SystemKey != station.SystemKey {
			return game.Preconditionf("wrong_system",
				"ship %d is at %s, station %s is in %s", ship.ID, ship.SystemKey, stationKey, station.SystemKey)
		}

		var player model.Player
		if err := tx.First(&player, playerID).Error; err != nil {
			return wrapNotFound(err, "unknown_player", "no player %d", playerID)
		}
		var entry model.MarketEntry
		if err := tx.Where("station_key = ? AND good_key = ?", stationKey, goodKey).
			First(&entry).Error; err != nil {
			return wrapNotFound(err, "unknown_market", "no market for %s at %s", goodKey, stationKey)
		}

		held := 0
		var cargo model.CargoItem
		err = tx.Where("ship_id = ? AND good_key = ?", ship.ID, goodKey).First(&cargo).Error
		switch {
		case err == nil:
			held = cargo.Quantity
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		delta, err := EvaluateTrade(player, *ship, entry, goodDef, side, quantity, held)
		if err != nil {
			return err
		}

		// Guarded writes close the window between the reads above and the
		// commit; a zero-row update means another writer got there first.
		res := tx.Model(&model.Player{}).
			Where("id = ? AND credits + ? >= 0", player.ID, delta.CreditsChange).
			Update("credits", gorm.Expr("credits + ?", delta.CreditsChange))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return game.Conflictf("state_changed", "credits changed while trading, retry")
		}

		res = tx.Model(&model.MarketEntry{}).
			Where("id = ? AND supply = ? AND demand = ?", entry.ID, entry.Supply, entry.Demand).
			Updates(map[string]any{"supply": delta.NewSupply, "demand": delta.NewDemand})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return game.Conflictf("state_changed", "market moved while trading, retry")
		}

		if err := s.applyCargoChange(tx, ship, cargo, goodKey, delta.CargoChange, held); err != nil {
			return err
		}

		world, err := currentWorld(tx)
		if err != nil {
			return err
		}
		tick = world.CurrentTick

		out = TradeResult{
			UnitPrice:      delta.UnitPrice,
			Total:          delta.Total,
			CreditsAfter:   player.Credits + delta.CreditsChange,
			QuantityTraded: quantity,
			NewSupply:      delta.NewSupply,
			NewDemand:      delta.NewDemand,
		}
		events = []game.Event{{
			Name:     game.EventTradeExecuted,
			PlayerID: playerID,
			Payload: map[string]any{
				"shipId":   ship.ID,
				"station":  stationKey,
				"good":     goodKey,
				"side":     side,
				"quantity": quantity,
				"total":    delta.Total,
			},
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(tick, events)
	return &out, nil
}

// PurchaseResult reports a completed hull purchase.
type PurchaseResult struct {
	Ship         game.ShipWire `json:"ship"`
	CreditsAfter int64         `json:"creditsAfter"`
}

// PurchaseShip buys a new hull, docked at the given system.
func (s *Service) PurchaseShip(playerID uint, systemKey, typeKey, name string) (*PurchaseResult, error) {
	hull, ok := s.catalog.ShipType(typeKey)
	if !ok {
		return nil, game.NotFoundf("unknown_ship_type", "no hull %q", typeKey)
	}
	if _, ok := s.catalog.System(systemKey); !ok {
		return nil, game.NotFoundf("unknown_system", "no system %q", systemKey)
	}
	if name == "" {
		name = hull.Name
	}

	var (
		out    PurchaseResult
		events []game.Event
		tick   uint64
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var player model.Player
		if err := tx.First(&player, playerID).Error; err != nil {
			return wrapNotFound(err, "unknown_player", "no player %d", playerID)
		}
		if err := EvaluatePurchase(player, hull); err != nil {
			return err
		}

		res := tx.Model(&model.Player{}).
			Where("id = ? AND credits >= ?", player.ID, hull.Price).
			Update("credits", gorm.Expr("credits - ?", hull.Price))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return game.Conflictf("state_changed", "credits changed while purchasing, retry")
		}

		ship := model.Ship{
			PlayerID:      playerID,
			Name:          name,
			TypeKey:       hull.Key,
			Status:        game.ShipDocked,
			SystemKey:     systemKey,
			Fuel:          hull.MaxFuel,
			MaxFuel:       hull.MaxFuel,
			HullCurrent:   hull.HullMax,
			HullMax:       hull.HullMax,
			ShieldCurrent: hull.ShieldMax,
			ShieldMax:     hull.ShieldMax,
			Speed:         hull.Speed,
			Firepower:     hull.Firepower,
			Evasion:       hull.Evasion,
			CargoCapacity: hull.CargoCapacity,
		}
		if err := tx.Create(&ship).Error; err != nil {
			return err
		}

		world, err := currentWorld(tx)
		if err != nil {
			return err
		}
		tick = world.CurrentTick

		out = PurchaseResult{Ship: ship.ToWire(), CreditsAfter: player.Credits - hull.Price}
		events = []game.Event{{
			Name:     game.EventShipPurchased,
			PlayerID: playerID,
			Payload:  out.Ship,
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(tick, events)
	return &out, nil
}

// UpgradeResult reports an install or removal with the ship's new stats.
type UpgradeResult struct {
	Ship         game.ShipWire `json:"ship"`
	CreditsAfter int64         `json:"creditsAfter"`
}

// InstallUpgrade fits a module tier into a free, type-matching slot and
// applies its stat bonuses.
func (s *Service) InstallUpgrade(playerID, shipID uint, slotKey, moduleKey string, tier int) (*UpgradeResult, error) {
	mod, tierDef, ok := s.catalog.ModuleTier(moduleKey, tier)
	if !ok {
		return nil, game.NotFoundf("unknown_module", "no module %q tier %d", moduleKey, tier)
	}

	var (
		out    UpgradeResult
		events []game.Event
		tick   uint64
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		ship, err := s.ownedShip(tx, playerID, shipID)
		if err != nil {
			return err
		}
		hull, ok := s.catalog.ShipType(ship.TypeKey)
		if !ok {
			return fmt.Errorf("ship %d has unknown hull type %q", ship.ID, ship.TypeKey)
		}

		var player model.Player
		if err := tx.First(&player, playerID).Error; err != nil {
			return wrapNotFound(err, "unknown_player", "no player %d", playerID)
		}
		var installed []model.ShipUpgrade
		if err := tx.Where("ship_id = ?", ship.ID).Find(&installed).Error; err != nil {
			return err
		}

		if err := EvaluateInstall(player, *ship, hull, installed, mod, tierDef, slotKey); err != nil {
			return err
		}

		res := tx.Model(&model.Player{}).
			Where("id = ? AND credits >= ?", player.ID, tierDef.Price).
			Update("credits", gorm.Expr("credits - ?", tierDef.Price))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return game.Conflictf("state_changed", "credits changed while installing, retry")
		}

		up := model.ShipUpgrade{ShipID: ship.ID, SlotKey: slotKey, ModuleKey: mod.Key, Tier: tierDef.Tier}
		if err := tx.Create(&up).Error; err != nil {
			return err
		}

		applyTier(ship, tierDef, +1)
		if err := tx.Model(&model.Ship{}).Where("id = ?", ship.ID).Updates(map[string]any{
			"firepower":      ship.Firepower,
			"evasion":        ship.Evasion,
			"speed":          ship.Speed,
			"shield_max":     ship.ShieldMax,
			"cargo_capacity": ship.CargoCapacity,
		}).Error; err != nil {
			return err
		}

		world, err := currentWorld(tx)
		if err != nil {
			return err
		}
		tick = world.CurrentTick

		out = UpgradeResult{Ship: ship.ToWire(), CreditsAfter: player.Credits - tierDef.Price}
		events = []game.Event{{
			Name:     game.EventUpgradeInstalled,
			PlayerID: playerID,
			Payload: map[string]any{
				"shipId": ship.ID, "slot": slotKey, "module": mod.Key, "tier": tierDef.Tier,
			},
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(tick, events)
	return &out, nil
}

// RemoveUpgrade strips a slot and reverts its stat bonuses. No refund is
// paid out.
func (s *Service) RemoveUpgrade(playerID, shipID uint, slotKey string) (*UpgradeResult, error) {
	var (
		out    UpgradeResult
		events []game.Event
		tick   uint64
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		ship, err := s.ownedShip(tx, playerID, shipID)
		if err != nil {
			return err
		}
		if ship.Status != game.ShipDocked {
			return game.Preconditionf("not_docked", "ship %d is not docked", ship.ID)
		}

		var up model.ShipUpgrade
		if err := tx.Where("ship_id = ? AND slot_key = ?", ship.ID, slotKey).First(&up).Error; err != nil {
			return wrapNotFound(err, "empty_slot", "ship %d slot %s holds nothing", ship.ID, slotKey)
		}
		_, tierDef, ok := s.catalog.ModuleTier(up.ModuleKey, up.Tier)
		if !ok {
			return fmt.Errorf("installed module %q tier %d missing from catalog", up.ModuleKey, up.Tier)
		}

		if ship.CargoUsed > ship.CargoCapacity-tierDef.CargoCap {
			return game.Preconditionf("cargo_in_use",
				"removing %s would strand %d units of cargo", up.ModuleKey,
				ship.CargoUsed-(ship.CargoCapacity-tierDef.CargoCap))
		}

		if err := tx.Unscoped().Delete(&up).Error; err != nil {
			return err
		}

		applyTier(ship, tierDef, -1)
		if err := tx.Model(&model.Ship{}).Where("id = ?", ship.ID).Updates(map[string]any{
			"firepower":      ship.Firepower,
			"evasion":        ship.Evasion,
			"speed":          ship.Speed,
			"shield_max":     ship.ShieldMax,
			"shield_current": min(ship.ShieldCurrent, ship.ShieldMax),
			"cargo_capacity": ship.CargoCapacity,
		}).Error; err != nil {
			return err
		}

		var player model.Player
		if err := tx.First(&player, playerID).Error; err != nil {
			return err
		}
		world, err := currentWorld(tx)
		if err != nil {
			return err
		}
		tick = world.CurrentTick

		ship.ShieldCurrent = min(ship.ShieldCurrent, ship.ShieldMax)
		out = UpgradeResult{Ship: ship.ToWire(), CreditsAfter: player.Credits}
		events = []game.Event{{
			Name:     game.EventUpgradeRemoved,
			PlayerID: playerID,
			Payload:  map[string]any{"shipId": ship.ID, "slot": slotKey, "module": up.ModuleKey},
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(tick, events)
	return &out, nil
}

// ServiceResult reports a refuel or repair.
type ServiceResult struct {
	Ship         game.ShipWire `json:"ship"`
	Amount       int           `json:"amount"`
	Cost         int64         `json:"cost"`
	CreditsAfter int64         `json:"creditsAfter"`
}

// Refuel buys fuel for a docked ship at the station rate.
func (s *Service) Refuel(playerID, shipID uint, amount int) (*ServiceResult, error) {
	return s.serviceShip(playerID, shipID, amount, "fuel")
}

// Repair buys hull points for a docked ship at the station rate.
func (s *Service) Repair(playerID, shipID uint, points int) (*ServiceResult, error) {
	return s.serviceShip(playerID, shipID, points, "hull")
}

func (s *Service) serviceShip(playerID, shipID uint, amount int, kind string) (*ServiceResult, error) {
	var out ServiceResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		ship, err := s.ownedShip(tx, playerID, shipID)
		if err != nil {
			return err
		}
		var player model.Player
		if err := tx.First(&player, playerID).Error; err != nil {
			return wrapNotFound(err, "unknown_player", "no player %d", playerID)
		}

		var (
			cost   int64
			column string
			cap    string
		)
		switch kind {
		case "fuel":
			cost, err = EvaluateRefuel(player, *ship, amount, s.pricing.FuelPerUnit)
			column, cap = "fuel", "max_fuel"
		case "hull":
			cost, err = EvaluateRepair(player, *ship, amount, s.pricing.HullPerPoint)
			column, cap = "hull_current", "hull_max"
		}
		if err != nil {
			return err
		}

		res := tx.Model(&model.Player{}).
			Where("id = ? AND credits >= ?", player.ID, cost).
			Update("credits", gorm.Expr("credits - ?", cost))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return game.Conflictf("state_changed", "credits changed while servicing, retry")
		}

		res = tx.Model(&model.Ship{}).
			Where(fmt.Sprintf("id = ? AND status = ? AND %s + ? <= %s", column, cap),
				ship.ID, game.ShipDocked, amount).
			Update(column, gorm.Expr(column+" + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return game.Conflictf("state_changed", "ship %d changed while servicing, retry", ship.ID)
		}

		if kind == "fuel" {
			ship.Fuel += amount
		} else {
			ship.HullCurrent += amount
		}
		out = ServiceResult{
			Ship:         ship.ToWire(),
			Amount:       amount,
			Cost:         cost,
			CreditsAfter: player.Credits - cost,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConvoyServiceResult reports a convoy-wide top-up.
type ConvoyServiceResult struct {
	ShipsServiced int   `json:"shipsServiced"`
	FuelAdded     int   `json:"fuelAdded"`
	HullRepaired  int   `json:"hullRepaired"`
	Cost          int64 `json:"cost"`
	CreditsAfter  int64 `json:"creditsAfter"`
}

// ServiceConvoy tops up fuel and hull for every docked ship in a convoy
// to the given fraction of its maximum, charging the combined cost in one
// transaction. Fraction must be in (0, 1].
func (s *Service) ServiceConvoy(playerID, convoyID uint, fraction float64) (*ConvoyServiceResult, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, game.Validationf("bad_fraction", "fraction must be in (0,1], got %g", fraction)
	}

	var (
		out    ConvoyServiceResult
		events []game.Event
		tick   uint64
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var convoy model.Convoy
		if err := tx.First(&convoy, convoyID).Error; err != nil {
			return wrapNotFound(err, "unknown_convoy", "no convoy %d", convoyID)
		}
		if convoy.PlayerID != playerID {
			return game.NotFoundf("unknown_convoy", "no convoy %d", convoyID)
		}

		var ships []model.Ship
		if err := tx.Where("convoy_id = ? AND status = ?", convoyID, game.ShipDocked).
			Find(&ships).Error; err != nil {
			return err
		}
		if len(ships) == 0 {
			return game.Preconditionf("no_docked_ships", "convoy %d has no docked ships", convoyID)
		}

		type topUp struct {
			shipID     uint
			fuel, hull int
		}
		var (
			plan      []topUp
			totalFuel int
			totalHull int
			totalCost int64
		)
		for _, ship := range ships {
			fuelUp := max(0, int(math.Ceil(float64(ship.MaxFuel)*fraction))-ship.Fuel)
			hullUp := max(0, int(math.Ceil(float64(ship.HullMax)*fraction))-ship.HullCurrent)
			if fuelUp == 0 && hullUp == 0 {
				continue
			}
			plan = append(plan, topUp{shipID: ship.ID, fuel: fuelUp, hull: hullUp})
			totalFuel += fuelUp
			totalHull += hullUp
			totalCost += int64(fuelUp)*int64(s.pricing.FuelPerUnit) +
				int64(hullUp)*int64(s.pricing.HullPerPoint)
		}
		if len(plan) == 0 {
			return game.Preconditionf("nothing_to_service", "convoy %d is already above %g", convoyID, fraction)
		}

		var player model.Player
		if err := tx.First(&player, playerID).Error; err != nil {
			return err
		}
		if player.Credits < totalCost {
			return game.Preconditionf("insufficient_credits",
				"servicing costs %d, player has %d", totalCost, player.Credits)
		}

		res := tx.Model(&model.Player{}).
			Where("id = ? AND credits >= ?", player.ID, totalCost).
			Update("credits", gorm.Expr("credits - ?", totalCost))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return game.Conflictf("state_changed", "credits changed while servicing, retry")
		}

		for _, t := range plan {
			res := tx.Model(&model.Ship{}).
				Where("id = ? AND status = ? AND fuel + ? <= max_fuel AND hull_current + ? <= hull_max",
					t.shipID, game.ShipDocked, t.fuel, t.hull).
				Updates(map[string]any{
					"fuel":         gorm.Expr("fuel + ?", t.fuel),
					"hull_current": gorm.Expr("hull_current + ?", t.hull),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return game.Conflictf("state_changed", "ship %d departed while servicing, retry", t.shipID)
			}
		}

		world, err := currentWorld(tx)
		if err != nil {
			return err
		}
		tick = world.CurrentTick

		out = ConvoyServiceResult{
			ShipsServiced: len(plan),
			FuelAdded:     totalFuel,
			HullRepaired:  totalHull,
			Cost:          totalCost,
			CreditsAfter:  player.Credits - totalCost,
		}
		events = []game.Event{{
			Name:     game.EventConvoyServiced,
			PlayerID: playerID,
			Payload:  map[string]any{"convoyId": convoyID, "ships": len(plan), "cost": totalCost},
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(tick, events)
	return &out, nil
}

// ownedShip loads a ship and checks ownership. A foreign ship reads as
// not found so probing other fleets leaks nothing.
func (s *Service) ownedShip(tx *gorm.DB, playerID, shipID uint) (*model.Ship, error) {
	var ship model.Ship
	if err := tx.First(&ship, shipID).Error; err != nil {
		return nil, wrapNotFound(err, "unknown_ship", "no ship %d", shipID)
	}
	if ship.PlayerID != playerID {
		return nil, game.NotFoundf("unknown_ship", "no ship %d", shipID)
	}
	return &ship, nil
}

func (s *Service) applyCargoChange(tx *gorm.DB, ship *model.Ship, cargo model.CargoItem,
	goodKey string, change, held int) error {

	if change == 0 {
		return nil
	}

	newHeld := held + change
	switch {
	case cargo.ID == 0:
		if err := tx.Create(&model.CargoItem{ShipID: ship.ID, GoodKey: goodKey, Quantity: newHeld}).Error; err != nil {
			return err
		}
	case newHeld == 0:
		if err := tx.Unscoped().Delete(&cargo).Error; err != nil {
			return err
		}
	default:
		res := tx.Model(&model.CargoItem{}).
			Where("id = ? AND quantity = ?", cargo.ID, held).
			Update("quantity", newHeld)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return game.Conflictf("state_changed", "cargo changed while trading, retry")
		}
	}

	guard := "cargo_used + ? <= cargo_capacity"
	if change < 0 {
		guard = "cargo_used + ? >= 0"
	}
	res := tx.Model(&model.Ship{}).
		Where("id = ? AND status = ? AND "+guard, ship.ID, game.ShipDocked, change).
		Update("cargo_used", gorm.Expr("cargo_used + ?", change))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return game.Conflictf("state_changed", "ship %d changed while trading, retry", ship.ID)
	}
	ship.CargoUsed += change
	return nil
}

func applyTier(ship *model.Ship, tier universe.ModuleTierDef, sign int) {
	f := float64(sign)
	ship.Firepower += f * tier.Firepower
	ship.Evasion += f * tier.Evasion
	ship.Speed += sign * tier.Speed
	ship.ShieldMax += sign * tier.ShieldMax
	ship.CargoCapacity += sign * tier.CargoCap
}

func (s *Service) publish(tick uint64, events []game.Event) {
	if s.hub == nil || len(events) == 0 {
		return
	}
	s.hub.Publish(tick, events)
	if s.logger != nil {
		s.logger.Debug("published action events", "tick", tick, "count", len(events))
	}
}

func currentWorld(tx *gorm.DB) (*model.World, error) {
	var world model.World
	if err := tx.First(&world, model.WorldID).Error; err != nil {
		return nil, fmt.Errorf("reading world row: %w", err)
	}
	return &world, nil
}

func wrapNotFound(err error, code, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return game.NotFoundf(code, format, args...)
	}
	return err
}
