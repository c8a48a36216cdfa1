package server

import (
	"io"
	"net/http"

	"github.com/startide/server/internal/model"
	"github.com/startide/server/internal/notify"
	"github.com/startide/server/internal/sim/economy"
	"github.com/startide/server/internal/sim/pathfind"
	"github.com/startide/server/pkg/game"
)

func (s *Server) handleWorld(w http.ResponseWriter, r *http.Request) {
	var world model.World
	if err := s.db.First(&world, model.WorldID).Error; err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"currentTick":    world.CurrentTick,
		"tickIntervalMs": world.TickIntervalMs,
		"lastTickAt":     world.LastTickAt,
		"scheduler":      s.scheduler.Stats(),
	})
}

func (s *Server) handleSystems(w http.ResponseWriter, r *http.Request) {
	type connView struct {
		To       string `json:"to"`
		FuelCost int    `json:"fuelCost"`
	}
	type systemView struct {
		Key         string     `json:"key"`
		Name        string     `json:"name"`
		X           float64    `json:"x"`
		Y           float64    `json:"y"`
		DangerLevel int        `json:"dangerLevel"`
		Stations    []string   `json:"stations"`
		Connections []connView `json:"connections"`
	}

	systems := s.catalog.Systems()
	out := make([]systemView, 0, len(systems))
	for _, sys := range systems {
		edges := s.catalog.Neighbors(sys.Key)
		view := systemView{
			Key: sys.Key, Name: sys.Name, X: sys.X, Y: sys.Y, DangerLevel: sys.DangerLevel,
			Stations:    s.catalog.StationsIn(sys.Key),
			Connections: make([]connView, 0, len(edges)),
		}
		for _, e := range edges {
			view.Connections = append(view.Connections, connView{To: e.To, FuelCost: e.FuelCost})
		}
		out = append(out, view)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"systems": out})
}

// handleMarket lists one station's market with derived current prices.
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	stationKey := r.URL.Query().Get("station")
	if _, ok := s.catalog.Station(stationKey); !ok {
		s.writeError(w, game.NotFoundf("unknown_station", "no station %q", stationKey))
		return
	}

	var entries []model.MarketEntry
	if err := s.db.Where("station_key = ?", stationKey).Find(&entries).Error; err != nil {
		s.writeError(w, err)
		return
	}

	type entryView struct {
		Good         string `json:"good"`
		Supply       int    `json:"supply"`
		Demand       int    `json:"demand"`
		CurrentPrice int    `json:"currentPrice"`
		BasePrice    int    `json:"basePrice"`
	}

	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		good, ok := s.catalog.Good(e.GoodKey)
		if !ok {
			continue
		}
		out = append(out, entryView{
			Good:         e.GoodKey,
			Supply:       e.Supply,
			Demand:       e.Demand,
			CurrentPrice: economy.Price(good.BasePrice, e.Supply, e.Demand, good.PriceFloor, good.PriceCeiling),
			BasePrice:    good.BasePrice,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"station": stationKey, "entries": out})
}

// handleReachable runs the budget-pruned search from a ship's position.
func (s *Server) handleReachable(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	shipID, err := queryUint(r, "shipId")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var ship model.Ship
	if err := s.db.First(&ship, shipID).Error; err != nil {
		s.writeError(w, game.NotFoundf("unknown_ship", "no ship %d", shipID))
		return
	}
	if ship.PlayerID != playerID {
		s.writeError(w, game.NotFoundf("unknown_ship", "no ship %d", shipID))
		return
	}

	reachable := pathfind.ReachableSystems(s.catalog, ship.SystemKey, ship.Fuel, ship.Speed)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"origin":    ship.SystemKey,
		"fuel":      ship.Fuel,
		"reachable": reachable,
	})
}

// handleRoute resolves the cheapest path between two systems.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if _, ok := s.catalog.System(from); !ok {
		s.writeError(w, game.NotFoundf("unknown_system", "no system %q", from))
		return
	}
	if _, ok := s.catalog.System(to); !ok {
		s.writeError(w, game.NotFoundf("unknown_system", "no system %q", to))
		return
	}
	speed, err := queryInt(r, "speed")
	if err != nil {
		s.writeError(w, err)
		return
	}

	route := pathfind.ShortestPath(s.catalog, from, to, speed)
	if route == nil {
		s.writeError(w, game.NotFoundf("unreachable", "no route from %s to %s", from, to))
		return
	}
	s.writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var ships []model.Ship
	if err := s.db.Where("player_id = ?", playerID).Find(&ships).Error; err != nil {
		s.writeError(w, err)
		return
	}
	var convoys []model.Convoy
	if err := s.db.Where("player_id = ?", playerID).Find(&convoys).Error; err != nil {
		s.writeError(w, err)
		return
	}

	wires := make([]game.ShipWire, 0, len(ships))
	for i := range ships {
		wires = append(wires, ships[i].ToWire())
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ships": wires, "convoys": convoys})
}

func (s *Server) handleBattles(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var battles []model.Battle
	if err := s.db.Where("player_id = ? AND status = ?", playerID, game.BattleActive).
		Find(&battles).Error; err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"battles": battles})
}

func (s *Server) handleWorldEvents(w http.ResponseWriter, r *http.Request) {
	var events []model.WorldEvent
	if err := s.db.Find(&events).Error; err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cursor, err := queryUint(r, "cursor")
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}

	page, err := s.notes.List(playerID, notify.Query{
		Cursor:     cursor,
		Limit:      limit,
		Type:       r.URL.Query().Get("type"),
		UnreadOnly: r.URL.Query().Get("unread") == "true",
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var body struct {
		IDs []uint `json:"ids"`
		All bool   `json:"all"`
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, game.Validationf("bad_body", "reading request body: %v", err))
		return
	}
	if err := decode(raw, &body); err != nil {
		s.writeError(w, err)
		return
	}

	var changed int64
	if body.All {
		changed, err = s.notes.MarkAllRead(playerID)
	} else {
		changed, err = s.notes.MarkRead(playerID, body.IDs)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"updated": changed})
}
