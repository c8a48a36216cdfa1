// Package tick drives the simulation clock: a polling loop that advances
// the world exactly once per tick interval, guarded by an optimistic
// conditional update on the singleton world row, and runs the ordered
// processor pipeline inside one transaction.
package tick

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/startide/server/internal/model"
	"github.com/startide/server/pkg/game"
)

// Processor is one stage of the tick pipeline. It reads current rows
// from the transaction, writes next rows, and returns the domain events
// to publish after commit. Any error aborts the whole tick.
type Processor interface {
	Name() string
	Process(tx *gorm.DB, tick uint64) ([]game.Event, error)
}

// Publisher receives the committed tick's event batch.
type Publisher interface {
	Publish(tick uint64, events []game.Event)
}

// Recorder receives per-tick timings for the metrics pipeline.
type Recorder interface {
	RecordTick(tick uint64, duration time.Duration, events int)
}

// Sentinels for the two no-op outcomes of a tick attempt. Both roll the
// transaction back; neither is an error.
var (
	errNotDue   = errors.New("tick not due")
	errLostRace = errors.New("lost tick race")
)

// Stats is a point-in-time snapshot of scheduler activity.
type Stats struct {
	TicksAdvanced uint64        `json:"ticksAdvanced"`
	RacesLost     uint64        `json:"racesLost"`
	Errors        uint64        `json:"errors"`
	EventsEmitted uint64        `json:"eventsEmitted"`
	LastDuration  time.Duration `json:"lastDuration"`
}

// Scheduler owns the polling loop. Construct it at the composition root
// and inject it; there is no package-level instance.
type Scheduler struct {
	db         *gorm.DB
	hub        Publisher
	recorder   Recorder
	logger     zerolog.Logger
	poll       time.Duration
	processors []Processor

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   Stats
}

// NewScheduler wires a scheduler over the given processor pipeline, in
// order. recorder may be nil.
func NewScheduler(db *gorm.DB, hub Publisher, recorder Recorder, logger zerolog.Logger,
	poll time.Duration, processors ...Processor) *Scheduler {

	if poll <= 0 {
		poll = time.Second
	}
	return &Scheduler{
		db:         db,
		hub:        hub,
		recorder:   recorder,
		logger:     logger,
		poll:       poll,
		processors: processors,
	}
}

// EnsureStarted starts the polling loop if it is not already running.
// Idempotent.
func (s *Scheduler) EnsureStarted(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx)
	s.logger.Info().Dur("poll", s.poll).Msg("Tick scheduler started")
}

// Stop halts the polling loop and waits for the in-flight attempt, if
// any, to finish. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info().Msg("Tick scheduler stopped")
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.Tick(now); err != nil {
				s.logger.Error().Err(err).Msg("Tick attempt failed, will retry next poll")
			}
		}
	}
}

// Tick runs one advancement attempt against wall-clock time now. It
// returns true when the world advanced; a not-due interval or a lost
// race both return (false, nil). Processor errors roll the whole
// transaction back so the next poll retries the same boundary.
func (s *Scheduler) Tick(now time.Time) (bool, error) {
	start := time.Now()

	var (
		newTick uint64
		events  []game.Event
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var world model.World
		if err := tx.First(&world, model.WorldID).Error; err != nil {
			return fmt.Errorf("reading world row: %w", err)
		}
		if now.Sub(world.LastTickAt) < time.Duration(world.TickIntervalMs)*time.Millisecond {
			return errNotDue
		}

		// The optimistic gate: exactly one attempt per boundary can move
		// current_tick forward; everyone else sees zero rows affected and
		// backs off without doing any work.
		res := tx.Model(&model.World{}).
			Where("id = ? AND current_tick = ?", model.WorldID, world.CurrentTick).
			Updates(map[string]any{
				"current_tick": world.CurrentTick + 1,
				"last_tick_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("advancing world tick: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errLostRace
		}
		newTick = world.CurrentTick + 1

		for _, p := range s.processors {
			evs, err := p.Process(tx, newTick)
			if err != nil {
				return fmt.Errorf("processor %s: %w", p.Name(), err)
			}
			events = append(events, evs...)
		}
		return nil
	})

	switch {
	case errors.Is(err, errNotDue):
		return false, nil
	case errors.Is(err, errLostRace):
		s.mu.Lock()
		s.stats.RacesLost++
		s.mu.Unlock()
		return false, nil
	case err != nil:
		s.mu.Lock()
		s.stats.Errors++
		s.mu.Unlock()
		return false, err
	}

	// Publish only after the commit so observers never see a tick that
	// later rolled back.
	if s.hub != nil {
		s.hub.Publish(newTick, events)
	}

	elapsed := time.Since(start)
	s.mu.Lock()
	s.stats.TicksAdvanced++
	s.stats.EventsEmitted += uint64(len(events))
	s.stats.LastDuration = elapsed
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordTick(newTick, elapsed, len(events))
	}
	s.logger.Debug().Uint64("tick", newTick).Int("events", len(events)).
		Dur("duration", elapsed).Msg("Tick advanced")
	return true, nil
}
