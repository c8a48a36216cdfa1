package actions

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/startide/server/pkg/game"
)

// Request is one incoming player action from the request layer.
type Request struct {
	Action   string
	PlayerID uint
	Body     []byte
}

// HandlerFunc processes a request and returns its success payload.
type HandlerFunc func(Request) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Dispatcher routes named actions to registered handlers and keeps the
// request metrics.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	processed metric.Int64Counter
	rejected  metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewDispatcher creates a dispatcher using the global OTel meter
// (no-op if not configured).
func NewDispatcher(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}

	m := otel.GetMeterProvider().Meter("startide-server/actions")

	var err error

	d.processed, err = m.Int64Counter(
		"actions.processed",
		metric.WithDescription("Total player actions handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.rejected, err = m.Int64Counter(
		"actions.rejected",
		metric.WithDescription("Total player actions rejected, by failure kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}

	d.duration, err = m.Float64Histogram(
		"actions.duration",
		metric.WithDescription("Action handling duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given action name.
func (d *Dispatcher) Register(action string, h HandlerFunc) {
	d.handlers[action] = h
}

// HasHandler returns true if a handler is registered for the action.
func (d *Dispatcher) HasHandler(action string) bool {
	_, ok := d.handlers[action]
	return ok
}

// Dispatch routes a request to its handler, recording metrics and
// logging rejections with their failure kind.
func (d *Dispatcher) Dispatch(r Request) (any, error) {
	h, ok := d.handlers[r.Action]
	if !ok {
		return nil, game.NotFoundf("unknown_action", "no action %q", r.Action)
	}

	start := time.Now()
	result, err := h(r)
	elapsed := time.Since(start)

	actionAttr := attribute.String("action", r.Action)
	d.duration.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(actionAttr))

	if err != nil {
		kind := string(game.KindOf(err))
		if kind == "" {
			kind = "internal"
		}
		d.rejected.Add(context.Background(), 1, metric.WithAttributes(
			actionAttr, attribute.String("kind", kind)))
		d.logger.Debug("action rejected",
			"action", r.Action, "player", r.PlayerID, "kind", kind, "duration", elapsed, "error", err)
		return nil, err
	}

	d.processed.Add(context.Background(), 1, metric.WithAttributes(actionAttr))
	d.logger.Debug("action complete", "action", r.Action, "player", r.PlayerID, "duration", elapsed)
	return result, nil
}
