package server

import (
	"net/http"
	"time"

	"github.com/startide/server/internal/model"
	"github.com/startide/server/pkg/game"
)

const (
	wsWriteTimeout = 10 * time.Second
	// wsSendBuffer bounds how far a slow client can fall behind before
	// it starts missing ticks. Delivery is at-most-once by contract.
	wsSendBuffer = 16
)

// handleTickFeed upgrades to a WebSocket, sends the snapshot message,
// and then streams one message per advanced tick until the client
// disconnects.
func (s *Server) handleTickFeed(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	var world model.World
	if err := s.db.First(&world, model.WorldID).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to read world for snapshot")
		conn.Close()
		return
	}

	send := make(chan game.TickMessage, wsSendBuffer)
	subID := s.hub.Subscribe(playerID, func(m game.TickMessage) {
		select {
		case send <- m:
		default:
			// Slow consumer; this tick is lost to them, the durable
			// notifications cover the gap.
		}
	})

	s.logger.Debug().Uint("player", playerID).Uint64("sub", subID).Msg("Tick feed attached")

	// Reader: we never expect client frames, but reading is what detects
	// the disconnect.
	go func() {
		defer func() {
			s.hub.Unsubscribe(subID)
			close(send)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(m game.TickMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(m); err != nil {
			s.logger.Debug().Err(err).Uint("player", playerID).Msg("Tick feed write failed")
			return false
		}
		return true
	}

	if !write(s.hub.Snapshot(world.CurrentTick)) {
		conn.Close()
		return
	}

	for m := range send {
		if !write(m) {
			break
		}
	}
	conn.Close()
}
