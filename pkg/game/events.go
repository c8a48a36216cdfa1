package game

// Event name constants for the tick feed protocol.
const (
	EventShipArrived      = "ship_arrived"
	EventShipDeparted     = "ship_departed"
	EventMarketDrift      = "market_drift"
	EventBattleStarted    = "battle_started"
	EventBattleRound      = "battle_round"
	EventBattleEnded      = "battle_ended"
	EventWorldEventPhase  = "world_event_phase"
	EventWorldEventEnded  = "world_event_ended"
	EventTradeExecuted    = "trade_executed"
	EventShipPurchased    = "ship_purchased"
	EventUpgradeInstalled = "upgrade_installed"
	EventUpgradeRemoved   = "upgrade_removed"
	EventConvoyServiced   = "convoy_serviced"
)

// Event is a single domain occurrence emitted by a tick processor or a
// player action. PlayerID of 0 marks a globally-visible event; any other
// value scopes delivery to that player's observers.
type Event struct {
	Name     string `json:"name"`
	PlayerID uint   `json:"playerId,omitempty"`
	Payload  any    `json:"payload"`
}

// Global reports whether the event is visible to every observer.
func (e Event) Global() bool {
	return e.PlayerID == 0
}

// TickMessage is one message on the tick feed: the tick that just
// completed plus its event batch, partitioned by visibility. The
// snapshot sent on connect uses the same shape with empty maps.
type TickMessage struct {
	CurrentTick  uint64           `json:"currentTick"`
	TickRateMs   int64            `json:"tickRate"`
	Events       map[string][]any `json:"events"`
	PlayerEvents map[string][]any `json:"playerEvents"`
}

// ShipArrivedPayload is emitted when a ship completes transit.
type ShipArrivedPayload struct {
	ShipID    uint   `json:"shipId"`
	SystemKey string `json:"systemKey"`
	Tick      uint64 `json:"tick"`
}

// BattleRoundPayload is emitted after each resolved combat round.
type BattleRoundPayload struct {
	BattleID     uint    `json:"battleId"`
	Round        int     `json:"round"`
	PlayerDamage float64 `json:"playerDamage"`
	EnemyDamage  float64 `json:"enemyDamage"`
	Status       string  `json:"status"`
}

// WorldEventPayload describes a phased world occurrence transition.
type WorldEventPayload struct {
	EventID   uint   `json:"eventId"`
	Type      string `json:"type"`
	SystemKey string `json:"systemKey"`
	Phase     string `json:"phase"`
	Severity  int    `json:"severity"`
}
