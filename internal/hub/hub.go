// Package hub implements the in-process event fan-out: one broadcaster
// per running process, fed by the tick pipeline and by player actions,
// draining into every attached observer. Delivery is synchronous,
// at-most-once, and best-effort; durability for offline observers lives
// in the notifications table, not here.
package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/startide/server/pkg/game"
)

// Callback receives one tick's worth of events, already filtered to the
// subscriber's player scope.
type Callback func(game.TickMessage)

type subscriber struct {
	playerID uint
	cb       Callback
}

// Hub routes tick event batches to subscribers. Safe for concurrent use;
// the subscriber set is guarded by a single mutex and callbacks run while
// it is held, so callbacks must not call back into the hub.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64

	tickRateMs int64
	logger     zerolog.Logger

	published metric.Int64Counter
}

// New creates a hub. tickRateMs is echoed in every message so clients
// can size their expectations without a separate query.
func New(tickRateMs int64, logger zerolog.Logger) *Hub {
	h := &Hub{
		subs:       make(map[uint64]*subscriber),
		tickRateMs: tickRateMs,
		logger:     logger,
	}

	m := otel.GetMeterProvider().Meter("startide-server/hub")

	var err error
	h.published, err = m.Int64Counter(
		"hub.batches.published",
		metric.WithDescription("Tick event batches broadcast to subscribers"),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create hub counter")
	}

	gauge, err := m.Int64ObservableGauge(
		"hub.subscribers",
		metric.WithDescription("Currently attached observers"),
	)
	if err == nil {
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(gauge, int64(h.SubscriberCount()))
			return nil
		}, gauge)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register hub gauge")
	}

	return h
}

// Subscribe registers a callback scoped to a player and returns the
// handle for Unsubscribe.
func (h *Hub) Subscribe(playerID uint, cb Callback) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.subs[h.nextID] = &subscriber{playerID: playerID, cb: cb}
	h.logger.Debug().Uint64("sub", h.nextID).Uint("player", playerID).Msg("Observer attached")
	return h.nextID
}

// Unsubscribe removes a callback. Safe to call with an unknown or
// already-removed handle.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[id]; ok {
		delete(h.subs, id)
		h.logger.Debug().Uint64("sub", id).Msg("Observer detached")
	}
}

// SubscriberCount returns the number of attached observers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Snapshot builds the greeting message sent to a freshly attached
// observer: the current tick with empty event maps.
func (h *Hub) Snapshot(tick uint64) game.TickMessage {
	return game.TickMessage{
		CurrentTick:  tick,
		TickRateMs:   h.tickRateMs,
		Events:       map[string][]any{},
		PlayerEvents: map[string][]any{},
	}
}

// Publish broadcasts one tick's event batch to every subscriber,
// partitioned into globally-visible events and events scoped to each
// subscriber's player.
func (h *Hub) Publish(tick uint64, events []game.Event) {
	global := map[string][]any{}
	perPlayer := map[uint]map[string][]any{}

	for _, e := range events {
		if e.Global() {
			global[e.Name] = append(global[e.Name], e.Payload)
			continue
		}
		byName := perPlayer[e.PlayerID]
		if byName == nil {
			byName = map[string][]any{}
			perPlayer[e.PlayerID] = byName
		}
		byName[e.Name] = append(byName[e.Name], e.Payload)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		scoped := perPlayer[sub.playerID]
		if scoped == nil {
			scoped = map[string][]any{}
		}
		sub.cb(game.TickMessage{
			CurrentTick:  tick,
			TickRateMs:   h.tickRateMs,
			Events:       global,
			PlayerEvents: scoped,
		})
	}

	if h.published != nil {
		h.published.Add(context.Background(), 1)
	}
}
