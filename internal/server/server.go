// Package server exposes the simulation over HTTP: mutating actions
// routed through the action dispatcher, point-in-time read endpoints,
// and the WebSocket tick feed.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/startide/server/internal/actions"
	"github.com/startide/server/internal/hub"
	"github.com/startide/server/internal/notify"
	"github.com/startide/server/internal/tick"
	"github.com/startide/server/internal/universe"
	"github.com/startide/server/pkg/game"
)

// Server wires the HTTP surface over the simulation services.
type Server struct {
	db         *gorm.DB
	catalog    *universe.Catalog
	svc        *actions.Service
	dispatcher *actions.Dispatcher
	notes      *notify.Store
	hub        *hub.Hub
	scheduler  *tick.Scheduler
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
}

// New builds the server and registers every action handler on the
// dispatcher.
func New(db *gorm.DB, catalog *universe.Catalog, svc *actions.Service,
	dispatcher *actions.Dispatcher, notes *notify.Store, h *hub.Hub,
	scheduler *tick.Scheduler, logger zerolog.Logger) *Server {

	s := &Server{
		db:         db,
		catalog:    catalog,
		svc:        svc,
		dispatcher: dispatcher,
		notes:      notes,
		hub:        h,
		scheduler:  scheduler,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.registerActions()
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/actions/{action}", s.handleAction)

	mux.HandleFunc("GET /api/world", s.handleWorld)
	mux.HandleFunc("GET /api/systems", s.handleSystems)
	mux.HandleFunc("GET /api/market", s.handleMarket)
	mux.HandleFunc("GET /api/reachable", s.handleReachable)
	mux.HandleFunc("GET /api/route", s.handleRoute)
	mux.HandleFunc("GET /api/fleet", s.handleFleet)
	mux.HandleFunc("GET /api/battles", s.handleBattles)
	mux.HandleFunc("GET /api/events", s.handleWorldEvents)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("POST /api/notifications/read", s.handleMarkRead)

	mux.HandleFunc("GET /ws", s.handleTickFeed)

	return mux
}

// registerActions binds each mutating operation to a dispatcher handler
// that decodes its body and calls the service.
func (s *Server) registerActions() {
	s.dispatcher.Register("navigate", func(r actions.Request) (any, error) {
		var body struct {
			ShipID   uint     `json:"shipId"`
			ConvoyID uint     `json:"convoyId"`
			Route    []string `json:"route"`
		}
		if err := decode(r.Body, &body); err != nil {
			return nil, err
		}
		if body.ConvoyID != 0 {
			return s.svc.NavigateConvoy(r.PlayerID, body.ConvoyID, body.Route)
		}
		return s.svc.Navigate(r.PlayerID, body.ShipID, body.Route)
	})

	s.dispatcher.Register("trade", func(r actions.Request) (any, error) {
		var body struct {
			ShipID   uint   `json:"shipId"`
			Station  string `json:"station"`
			Good     string `json:"good"`
			Quantity int    `json:"quantity"`
			Side     string `json:"side"`
		}
		if err := decode(r.Body, &body); err != nil {
			return nil, err
		}
		return s.svc.Trade(r.PlayerID, body.ShipID, body.Station, body.Good, body.Quantity, body.Side)
	})

	s.dispatcher.Register("purchase_ship", func(r actions.Request) (any, error) {
		var body struct {
			System string `json:"system"`
			Type   string `json:"type"`
			Name   string `json:"name"`
		}
		if err := decode(r.Body, &body); err != nil {
			return nil, err
		}
		return s.svc.PurchaseShip(r.PlayerID, body.System, body.Type, body.Name)
	})

	s.dispatcher.Register("install_upgrade", func(r actions.Request) (any, error) {
		var body struct {
			ShipID uint   `json:"shipId"`
			Slot   string `json:"slot"`
			Module string `json:"module"`
			Tier   int    `json:"tier"`
		}
		if err := decode(r.Body, &body); err != nil {
			return nil, err
		}
		return s.svc.InstallUpgrade(r.PlayerID, body.ShipID, body.Slot, body.Module, body.Tier)
	})

	s.dispatcher.Register("remove_upgrade", func(r actions.Request) (any, error) {
		var body struct {
			ShipID uint   `json:"shipId"`
			Slot   string `json:"slot"`
		}
		if err := decode(r.Body, &body); err != nil {
			return nil, err
		}
		return s.svc.RemoveUpgrade(r.PlayerID, body.ShipID, body.Slot)
	})

	s.dispatcher.Register("refuel", func(r actions.Request) (any, error) {
		var body struct {
			ShipID uint `json:"shipId"`
			Amount int  `json:"amount"`
		}
		if err := decode(r.Body, &body); err != nil {
			return nil, err
		}
		return s.svc.Refuel(r.PlayerID, body.ShipID, body.Amount)
	})

	s.dispatcher.Register("repair", func(r actions.Request) (any, error) {
		var body struct {
			ShipID uint `json:"shipId"`
			Points int  `json:"points"`
		}
		if err := decode(r.Body, &body); err != nil {
			return nil, err
		}
		return s.svc.Repair(r.PlayerID, body.ShipID, body.Points)
	})

	s.dispatcher.Register("service_convoy", func(r actions.Request) (any, error) {
		var body struct {
			ConvoyID uint    `json:"convoyId"`
			Fraction float64 `json:"fraction"`
		}
		if err := decode(r.Body, &body); err != nil {
			return nil, err
		}
		return s.svc.ServiceConvoy(r.PlayerID, body.ConvoyID, body.Fraction)
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, game.Validationf("bad_body", "reading request body: %v", err))
		return
	}

	result, err := s.dispatcher.Dispatch(actions.Request{
		Action:   r.PathValue("action"),
		PlayerID: playerID,
		Body:     body,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// playerFrom resolves the acting player. Session resolution itself is an
// upstream concern; by the time requests land here the id is trusted.
func playerFrom(r *http.Request) (uint, error) {
	raw := r.Header.Get("X-Player-ID")
	if raw == "" {
		raw = r.URL.Query().Get("playerId")
	}
	if raw == "" {
		return 0, game.Validationf("missing_player", "no player id on request")
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, game.Validationf("bad_player", "invalid player id %q", raw)
	}
	return uint(id), nil
}

func decode(raw []byte, into any) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return game.Validationf("bad_body", "invalid request body: %v", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	message := "internal error"

	var ge *game.Error
	if errors.As(err, &ge) {
		code = ge.Code
		message = ge.Message
		switch ge.Kind {
		case game.FailValidation:
			status = http.StatusBadRequest
		case game.FailPrecondition:
			status = http.StatusUnprocessableEntity
		case game.FailConflict:
			status = http.StatusConflict
		case game.FailNotFound:
			status = http.StatusNotFound
		}
	} else {
		s.logger.Error().Err(err).Msg("Request failed")
	}

	s.writeJSON(w, status, map[string]any{
		"error":   code,
		"message": message,
	})
}

func queryUint(r *http.Request, key string) (uint, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, game.Validationf("bad_query", "invalid %s %q", key, raw)
	}
	return uint(v), nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, game.Validationf("bad_query", "invalid %s %q", key, raw)
	}
	return v, nil
}
