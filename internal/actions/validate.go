package actions

import (
	"github.com/startide/server/internal/model"
	"github.com/startide/server/internal/sim/economy"
	"github.com/startide/server/internal/universe"
	"github.com/startide/server/pkg/game"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// TradeDelta is the state change a valid trade will apply. Computed by
// the pure validator, written by the service inside its transaction.
type TradeDelta struct {
	UnitPrice     int
	Total         int64
	CreditsChange int64
	CargoChange   int
	NewSupply     int
	NewDemand     int
}

// EvaluateTrade checks a trade against current rows and computes its
// deltas. Buying draws down station supply; selling restocks it and
// satisfies part of the station's demand.
func EvaluateTrade(player model.Player, ship model.Ship, entry model.MarketEntry,
	good universe.GoodDef, side string, quantity, held int) (TradeDelta, error) {

	if quantity <= 0 {
		return TradeDelta{}, game.Validationf("bad_quantity", "quantity must be positive, got %d", quantity)
	}
	if side != SideBuy && side != SideSell {
		return TradeDelta{}, game.Validationf("bad_side", "unknown trade side %q", side)
	}
	if ship.Status != game.ShipDocked {
		return TradeDelta{}, game.Preconditionf("not_docked", "ship %d is not docked", ship.ID)
	}

	price := economy.Price(good.BasePrice, entry.Supply, entry.Demand, good.PriceFloor, good.PriceCeiling)
	total := int64(price) * int64(quantity)

	d := TradeDelta{UnitPrice: price, Total: total}

	switch side {
	case SideBuy:
		if entry.Supply < quantity {
			return TradeDelta{}, game.Preconditionf("insufficient_supply",
				"station has %d of %s, wanted %d", entry.Supply, good.Key, quantity)
		}
		if player.Credits < total {
			return TradeDelta{}, game.Preconditionf("insufficient_credits",
				"trade costs %d, player has %d", total, player.Credits)
		}
		if ship.CargoUsed+quantity > ship.CargoCapacity {
			return TradeDelta{}, game.Preconditionf("insufficient_cargo",
				"cargo %d/%d cannot fit %d more", ship.CargoUsed, ship.CargoCapacity, quantity)
		}
		d.CreditsChange = -total
		d.CargoChange = quantity
		d.NewSupply = entry.Supply - quantity
		d.NewDemand = entry.Demand
	case SideSell:
		if held < quantity {
			return TradeDelta{}, game.Preconditionf("insufficient_goods",
				"ship holds %d of %s, wanted to sell %d", held, good.Key, quantity)
		}
		d.CreditsChange = total
		d.CargoChange = -quantity
		d.NewSupply = min(economy.MaxLevel, entry.Supply+quantity)
		d.NewDemand = max(economy.MinLevel, entry.Demand-quantity)
	}

	return d, nil
}

// EvaluateNavigate checks a proposed route against the mover's state. The
// route cost is computed by the caller from the travel graph.
func EvaluateNavigate(ship model.Ship, route []string, fuelCost int) error {
	if len(route) < 2 {
		return game.Validationf("bad_route", "route needs at least two systems, got %d", len(route))
	}
	if route[0] != ship.SystemKey {
		return game.Validationf("bad_route",
			"route starts at %s but ship %d is at %s", route[0], ship.ID, ship.SystemKey)
	}
	if ship.Status != game.ShipDocked {
		return game.Preconditionf("not_docked", "ship %d is not docked", ship.ID)
	}
	if fuelCost > ship.Fuel {
		return game.Preconditionf("insufficient_fuel",
			"route costs %d fuel, ship %d has %d", fuelCost, ship.ID, ship.Fuel)
	}
	return nil
}

// EvaluateConvoyNavigate checks a route for a convoy moving as one
// unit. Every member must be docked at the route head; fuel is checked
// against the convoy's pooled reserve, the per-ship cost applying once
// for each member.
func EvaluateConvoyNavigate(ships []model.Ship, route []string, fuelCostPerShip int) error {
	if len(route) < 2 {
		return game.Validationf("bad_route", "route needs at least two systems, got %d", len(route))
	}
	var pooled int
	for i := range ships {
		s := &ships[i]
		if route[0] != s.SystemKey {
			return game.Validationf("bad_route",
				"route starts at %s but ship %d is at %s", route[0], s.ID, s.SystemKey)
		}
		if s.Status != game.ShipDocked {
			return game.Preconditionf("not_docked", "ship %d is not docked", s.ID)
		}
		pooled += s.Fuel
	}
	if total := fuelCostPerShip * len(ships); total > pooled {
		return game.Preconditionf("insufficient_fuel",
			"route costs %d fuel across the convoy, pooled reserve is %d", total, pooled)
	}
	return nil
}

// EvaluatePurchase checks a hull purchase against the buyer's credits.
func EvaluatePurchase(player model.Player, hull universe.ShipTypeDef) error {
	if player.Credits < hull.Price {
		return game.Preconditionf("insufficient_credits",
			"hull %s costs %d, player has %d", hull.Key, hull.Price, player.Credits)
	}
	return nil
}

// EvaluateInstall checks an upgrade install: the slot must exist on the
// hull, match the module's slot type, and be free; the tier must exist
// and be affordable.
func EvaluateInstall(player model.Player, ship model.Ship, hull universe.ShipTypeDef,
	installed []model.ShipUpgrade, mod universe.ModuleDef, tier universe.ModuleTierDef,
	slotKey string) error {

	if ship.Status != game.ShipDocked {
		return game.Preconditionf("not_docked", "ship %d is not docked", ship.ID)
	}

	var slot *universe.SlotDef
	for i := range hull.Slots {
		if hull.Slots[i].Key == slotKey {
			slot = &hull.Slots[i]
			break
		}
	}
	if slot == nil {
		return game.Validationf("unknown_slot", "hull %s has no slot %q", hull.Key, slotKey)
	}
	if slot.Type != mod.SlotType {
		return game.Preconditionf("slot_mismatch",
			"module %s needs a %s slot, %s is %s", mod.Key, mod.SlotType, slotKey, slot.Type)
	}
	for _, up := range installed {
		if up.SlotKey == slotKey {
			return game.Preconditionf("slot_occupied",
				"slot %s already holds %s tier %d", slotKey, up.ModuleKey, up.Tier)
		}
	}
	if player.Credits < tier.Price {
		return game.Preconditionf("insufficient_credits",
			"%s tier %d costs %d, player has %d", mod.Key, tier.Tier, tier.Price, player.Credits)
	}
	return nil
}

// EvaluateRefuel checks a refuel request and returns the cost.
func EvaluateRefuel(player model.Player, ship model.Ship, amount, pricePerUnit int) (int64, error) {
	if amount <= 0 {
		return 0, game.Validationf("bad_amount", "amount must be positive, got %d", amount)
	}
	if ship.Status != game.ShipDocked {
		return 0, game.Preconditionf("not_docked", "ship %d is not docked", ship.ID)
	}
	if ship.Fuel+amount > ship.MaxFuel {
		return 0, game.Preconditionf("over_capacity",
			"ship %d fuel %d/%d cannot take %d more", ship.ID, ship.Fuel, ship.MaxFuel, amount)
	}
	cost := int64(amount) * int64(pricePerUnit)
	if player.Credits < cost {
		return 0, game.Preconditionf("insufficient_credits",
			"refuel costs %d, player has %d", cost, player.Credits)
	}
	return cost, nil
}

// EvaluateRepair checks a hull repair request and returns the cost.
func EvaluateRepair(player model.Player, ship model.Ship, points, pricePerPoint int) (int64, error) {
	if points <= 0 {
		return 0, game.Validationf("bad_amount", "points must be positive, got %d", points)
	}
	if ship.Status != game.ShipDocked {
		return 0, game.Preconditionf("not_docked", "ship %d is not docked", ship.ID)
	}
	if ship.HullCurrent+points > ship.HullMax {
		return 0, game.Preconditionf("over_capacity",
			"ship %d hull %d/%d cannot take %d more", ship.ID, ship.HullCurrent, ship.HullMax, points)
	}
	cost := int64(points) * int64(pricePerPoint)
	if player.Credits < cost {
		return 0, game.Preconditionf("insufficient_credits",
			"repair costs %d, player has %d", cost, player.Credits)
	}
	return cost, nil
}
