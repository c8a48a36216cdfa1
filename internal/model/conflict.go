package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// COMBAT
////////////////////////

// Battle is one active ship-vs-enemy engagement. RoundHistory holds the
// ordered JSON round records; the row is deleted (after archival into a
// notification) once Status turns terminal.
type Battle struct {
	gorm.Model
	ShipID            uint           `json:"shipId" gorm:"index"`
	PlayerID          uint           `json:"playerId" gorm:"index"`
	SystemKey         string         `json:"systemKey" gorm:"size:64"`
	EnemyName         string         `json:"enemyName" gorm:"size:127"`
	PlayerStrength    float64        `json:"playerStrength"`
	PlayerMaxStrength float64        `json:"playerMaxStrength"`
	EnemyStrength     float64        `json:"enemyStrength"`
	EnemyMaxStrength  float64        `json:"enemyMaxStrength"`
	PlayerMorale      float64        `json:"playerMorale"`
	EnemyMorale       float64        `json:"enemyMorale"`
	PlayerFirepower   float64        `json:"playerFirepower"`
	PlayerEvasion     float64        `json:"playerEvasion"`
	EnemyFirepower    float64        `json:"enemyFirepower"`
	EnemyEvasion      float64        `json:"enemyEvasion"`
	RoundsCompleted   int            `json:"roundsCompleted"`
	RoundHistory      datatypes.JSON `json:"roundHistory"`
	Status            string         `json:"status" gorm:"size:32;index"`
	LastRoundTick     uint64         `json:"lastRoundTick"`
}

func (*Battle) TableName() string {
	return "battles"
}

////////////////////////
// WORLD EVENTS
////////////////////////

// WorldEvent is a phased occurrence scoped to one system. It advances
// phase when the current tick passes PhaseStartTick+PhaseDuration and is
// deleted on reaching its terminal phase.
type WorldEvent struct {
	gorm.Model
	Type           string `json:"type" gorm:"size:32"`
	SystemKey      string `json:"systemKey" gorm:"size:64;index"`
	Phase          string `json:"phase" gorm:"size:32"`
	Severity       int    `json:"severity"`
	PhaseStartTick uint64 `json:"phaseStartTick"`
	PhaseDuration  uint64 `json:"phaseDuration"`
}

func (*WorldEvent) TableName() string {
	return "world_events"
}

// World event phases, in order. Resolved is terminal.
const (
	PhaseBrewing  = "brewing"
	PhaseActive   = "active"
	PhaseWaning   = "waning"
	PhaseResolved = "resolved"
)

// NextPhase returns the phase following p, or empty once terminal.
func NextPhase(p string) string {
	switch p {
	case PhaseBrewing:
		return PhaseActive
	case PhaseActive:
		return PhaseWaning
	case PhaseWaning:
		return PhaseResolved
	}
	return ""
}

////////////////////////
// NOTIFICATIONS
////////////////////////

// Notification is the durable per-player record written alongside hub
// publication, so observers who were offline can catch up on reconnect.
type Notification struct {
	gorm.Model
	PlayerID uint           `json:"playerId" gorm:"index:idx_notification_player"`
	Type     string         `json:"type" gorm:"size:64;index"`
	Message  string         `json:"message" gorm:"size:512"`
	Refs     datatypes.JSON `json:"refs"`
	Tick     uint64         `json:"tick"`
	Read     bool           `json:"read" gorm:"index"`
}

func (*Notification) TableName() string {
	return "notifications"
}
