package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/startide/server/internal/actions"
	"github.com/startide/server/internal/database"
	"github.com/startide/server/internal/hub"
	"github.com/startide/server/internal/logging"
	"github.com/startide/server/internal/model"
	"github.com/startide/server/internal/notify"
	"github.com/startide/server/internal/tick"
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
			},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *gorm.DB, *hub.Hub) {
	t.Helper()

	db, err := database.OpenSqlite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.DatabaseModels...))
	require.NoError(t, database.EnsureWorld(db, 30000))

	u := testUniverse()
	require.NoError(t, universe.Seed(db, u))
	catalog := universe.NewCatalog(u)

	logger := zerolog.Nop()
	eventHub := hub.New(30000, logger)
	actionLogger := logging.NewActionLogger(logger)
	svc := actions.NewService(db, catalog, eventHub, actionLogger, actions.Pricing{FuelPerUnit: 3, HullPerPoint: 8})
	dispatcher, err := actions.NewDispatcher(actionLogger)
	require.NoError(t, err)
	scheduler := tick.NewScheduler(db, eventHub, nil, logger, time.Second)

	srv := New(db, catalog, svc, dispatcher, notify.NewStore(db), eventHub, scheduler, logger)
	return srv, db, eventHub
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

func postAction(t *testing.T, h http.Handler, playerID uint, action string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/actions/"+action, bytes.NewReader(raw))
	req.Header.Set("X-Player-ID", fmt.Sprint(playerID))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestActionRouteExecutesTrade(t *testing.T) {
	srv, db, _ := newTestServer(t)
	player, ship := seedPlayerAndShip(t, db, 10000)

	rec := postAction(t, srv.Handler(), player.ID, "trade", map[string]any{
		"shipId": ship.ID, "station": "sol-port", "good": "ore", "quantity": 5, "side": "buy",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		CreditsAfter int64 `json:"creditsAfter"`
		NewSupply    int   `json:"newSupply"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(9500), res.CreditsAfter)
	assert.Equal(t, 45, res.NewSupply)

	var got model.Player
	require.NoError(t, db.First(&got, player.ID).Error)
	assert.Equal(t, int64(9500), got.Credits)
}

func TestActionRouteUnknownActionIs404(t *testing.T) {
	srv, db, _ := newTestServer(t)
	player, _ := seedPlayerAndShip(t, db, 0)

	rec := postAction(t, srv.Handler(), player.ID, "teleport", map[string]any{})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_action")
}

func TestActionRouteRequiresPlayerID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/actions/trade", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_player")
}

func TestErrorKindsMapToStatusCodes(t *testing.T) {
	srv, db, _ := newTestServer(t)
	player, ship := seedPlayerAndShip(t, db, 100)

	// Precondition (cannot afford) maps to 422.
	rec := postAction(t, srv.Handler(), player.ID, "trade", map[string]any{
		"shipId": ship.ID, "station": "sol-port", "good": "ore", "quantity": 5, "side": "buy",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Validation (bad quantity) maps to 400.
	rec = postAction(t, srv.Handler(), player.ID, "trade", map[string]any{
		"shipId": ship.ID, "station": "sol-port", "good": "ore", "quantity": 0, "side": "buy",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Not found (unknown station) maps to 404.
	rec = postAction(t, srv.Handler(), player.ID, "trade", map[string]any{
		"shipId": ship.ID, "station": "nowhere", "good": "ore", "quantity": 5, "side": "buy",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarketEndpointDerivesPrices(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/market?station=sol-port", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Entries []struct {
			Good         string `json:"good"`
			Supply       int    `json:"supply"`
			CurrentPrice int    `json:"currentPrice"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "ore", res.Entries[0].Good)
	assert.Equal(t, 50, res.Entries[0].Supply)
	// Seeded at the balanced level, so the derived price is the base.
	assert.Equal(t, 100, res.Entries[0].CurrentPrice)
}

func TestSystemsEndpointListsStations(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/systems", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Systems []struct {
			Key      string   `json:"key"`
			Stations []string `json:"stations"`
		} `json:"systems"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Systems, 2)

	byKey := map[string][]string{}
	for _, sys := range res.Systems {
		byKey[sys.Key] = sys.Stations
	}
	assert.Equal(t, []string{"sol-port"}, byKey["sol"])
	assert.Empty(t, byKey["vega"])
}

func TestRouteEndpointFindsPath(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/route?from=sol&to=vega&speed=5", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var route struct {
		Path          []string `json:"path"`
		TotalFuelCost int      `json:"totalFuelCost"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))
	assert.Equal(t, []string{"sol", "vega"}, route.Path)
	assert.Equal(t, 4, route.TotalFuelCost)
}

func TestReachableEndpointScopedToOwnShip(t *testing.T) {
	srv, db, _ := newTestServer(t)
	_, ship := seedPlayerAndShip(t, db, 0)

	other := model.Player{Name: "other-" + t.Name()}
	require.NoError(t, db.Create(&other).Error)

	url := fmt.Sprintf("/api/reachable?playerId=%d&shipId=%d", other.ID, ship.ID)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationsEndpointPages(t *testing.T) {
	srv, db, _ := newTestServer(t)
	player, _ := seedPlayerAndShip(t, db, 0)

	for i := 0; i < 4; i++ {
		require.NoError(t, db.Create(&model.Notification{
			PlayerID: player.ID, Type: "battle_ended",
			Message: fmt.Sprintf("battle %d", i), Refs: []byte(`{}`),
		}).Error)
	}

	url := fmt.Sprintf("/api/notifications?playerId=%d&limit=3", player.ID)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items      []model.Notification `json:"items"`
		NextCursor uint                 `json:"nextCursor"`
		Total      int64                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Items, 3)
	assert.NotZero(t, page.NextCursor)
	assert.Equal(t, int64(4), page.Total)
}

func TestTickFeedSnapshotAndLiveTicks(t *testing.T) {
	srv, _, eventHub := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?playerId=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot game.TickMessage
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, uint64(0), snapshot.CurrentTick)
	assert.Equal(t, int64(30000), snapshot.TickRateMs)
	assert.Empty(t, snapshot.Events)

	require.Eventually(t, func() bool { return eventHub.SubscriberCount() == 1 },
		time.Second, 10*time.Millisecond)

	eventHub.Publish(1, []game.Event{
		{Name: game.EventMarketDrift, Payload: map[string]any{"moved": 3}},
		{Name: game.EventBattleRound, PlayerID: 2, Payload: map[string]any{"round": 1}},
	})

	var msg game.TickMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, uint64(1), msg.CurrentTick)
	assert.Contains(t, msg.Events, game.EventMarketDrift)
	// Player 2's battle round must not reach player 1.
	assert.Empty(t, msg.PlayerEvents)

	conn.Close()
	assert.Eventually(t, func() bool { return eventHub.SubscriberCount() == 0 },
		time.Second, 10*time.Millisecond)
}
