package tick

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/startide/server/internal/model"
	"github.com/startide/server/internal/sim/combat"
	"github.com/startide/server/pkg/game"
)

// BountyPerEnemyStrength converts a defeated enemy's size into credits.
const BountyPerEnemyStrength = 2.0

// RoundRecorder receives every resolved combat round for the metrics
// pipeline. Implementations must not block the tick.
type RoundRecorder interface {
	RecordBattleRound(battleID uint, round int, playerDamage, enemyDamage float64)
}

// Battles advances every active battle that is due for a round and
// settles the ones that reach a terminal status.
type Battles struct {
	rng      *rand.Rand
	recorder RoundRecorder
}

// NewBattles builds the battle processor. recorder may be nil to skip
// round telemetry.
func NewBattles(rng *rand.Rand, recorder RoundRecorder) *Battles {
	return &Battles{rng: rng, recorder: recorder}
}

func (*Battles) Name() string { return "battles" }

func (b *Battles) Process(tx *gorm.DB, tick uint64) ([]game.Event, error) {
	var battles []model.Battle
	if err := tx.Where("status = ? AND last_round_tick + ? <= ?",
		game.BattleActive, combat.RoundInterval, tick).
		Find(&battles).Error; err != nil {
		return nil, fmt.Errorf("loading due battles: %w", err)
	}

	var events []game.Event
	for i := range battles {
		evs, err := b.advance(tx, &battles[i], tick)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

func (b *Battles) advance(tx *gorm.DB, battle *model.Battle, tick uint64) ([]game.Event, error) {
	st := &combat.State{
		Player: combat.Side{
			Strength:  battle.PlayerStrength,
			Morale:    battle.PlayerMorale,
			Firepower: battle.PlayerFirepower,
			Evasion:   battle.PlayerEvasion,
		},
		Enemy: combat.Side{
			Strength:  battle.EnemyStrength,
			Morale:    battle.EnemyMorale,
			Firepower: battle.EnemyFirepower,
			Evasion:   battle.EnemyEvasion,
		},
		Rounds: battle.RoundsCompleted,
		Status: battle.Status,
	}

	round := combat.AdvanceRound(st, b.rng)

	history, err := appendRound(battle.RoundHistory, round)
	if err != nil {
		return nil, fmt.Errorf("recording round for battle %d: %w", battle.ID, err)
	}

	if err := tx.Model(&model.Battle{}).Where("id = ?", battle.ID).
		Updates(map[string]any{
			"player_strength":  st.Player.Strength,
			"enemy_strength":   st.Enemy.Strength,
			"player_morale":    st.Player.Morale,
			"enemy_morale":     st.Enemy.Morale,
			"rounds_completed": st.Rounds,
			"round_history":    history,
			"status":           st.Status,
			"last_round_tick":  tick,
		}).Error; err != nil {
		return nil, fmt.Errorf("updating battle %d: %w", battle.ID, err)
	}

	if b.recorder != nil {
		b.recorder.RecordBattleRound(battle.ID, round.Round, round.PlayerDamage, round.EnemyDamage)
	}

	events := []game.Event{{
		Name:     game.EventBattleRound,
		PlayerID: battle.PlayerID,
		Payload: game.BattleRoundPayload{
			BattleID:     battle.ID,
			Round:        round.Round,
			PlayerDamage: round.PlayerDamage,
			EnemyDamage:  round.EnemyDamage,
			Status:       st.Status,
		},
	}}

	if st.Status == game.BattleActive {
		return events, nil
	}

	settled, err := b.settle(tx, battle, st, tick)
	if err != nil {
		return nil, err
	}
	return append(events, settled...), nil
}

// settle applies the terminal outcome to the ship, archives the battle
// into a notification, and removes the row.
func (b *Battles) settle(tx *gorm.DB, battle *model.Battle, st *combat.State, tick uint64) ([]game.Event, error) {
	var ship model.Ship
	if err := tx.First(&ship, battle.ShipID).Error; err != nil {
		return nil, fmt.Errorf("loading ship %d for settlement: %w", battle.ShipID, err)
	}

	hull, shield := splitStrength(st.Player.Strength, ship.HullMax, ship.ShieldMax)
	updates := map[string]any{
		"hull_current":   hull,
		"shield_current": shield,
	}

	var bounty int64
	switch st.Status {
	case game.BattlePlayerVictory, game.BattleEnemyRetreat:
		bounty = int64(math.Round(battle.EnemyMaxStrength * BountyPerEnemyStrength))
		if err := tx.Model(&model.Player{}).Where("id = ?", battle.PlayerID).
			Update("credits", gorm.Expr("credits + ?", bounty)).Error; err != nil {
			return nil, fmt.Errorf("paying bounty for battle %d: %w", battle.ID, err)
		}
	case game.BattlePlayerDefeat:
		// A defeated ship limps away stripped of its hold.
		updates["hull_current"] = 1
		updates["shield_current"] = 0
		updates["cargo_used"] = 0
		if err := tx.Unscoped().Where("ship_id = ?", ship.ID).
			Delete(&model.CargoItem{}).Error; err != nil {
			return nil, fmt.Errorf("clearing cargo after defeat: %w", err)
		}
	}

	if err := tx.Model(&model.Ship{}).Where("id = ?", ship.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("settling ship %d: %w", ship.ID, err)
	}

	message := fmt.Sprintf("Battle against %s ended: %s", battle.EnemyName, st.Status)
	if err := writeNotification(tx, battle.PlayerID, game.EventBattleEnded, message, tick,
		map[string]any{"battleId": battle.ID, "shipId": ship.ID, "status": st.Status, "bounty": bounty}); err != nil {
		return nil, err
	}

	if err := tx.Unscoped().Delete(&model.Battle{}, battle.ID).Error; err != nil {
		return nil, fmt.Errorf("archiving battle %d: %w", battle.ID, err)
	}

	return []game.Event{{
		Name:     game.EventBattleEnded,
		PlayerID: battle.PlayerID,
		Payload: map[string]any{
			"battleId": battle.ID,
			"shipId":   ship.ID,
			"status":   st.Status,
			"bounty":   bounty,
		},
	}}, nil
}

// splitStrength maps remaining combined strength back onto hull and
// shield, hull filling first.
func splitStrength(strength float64, hullMax, shieldMax int) (hull, shield int) {
	total := int(math.Round(strength))
	hull = min(hullMax, total)
	shield = min(shieldMax, total-hull)
	if shield < 0 {
		shield = 0
	}
	return hull, shield
}

func appendRound(history datatypes.JSON, round combat.RoundResult) (datatypes.JSON, error) {
	var rounds []combat.RoundResult
	if len(history) > 0 {
		if err := json.Unmarshal(history, &rounds); err != nil {
			return nil, err
		}
	}
	rounds = append(rounds, round)
	raw, err := json.Marshal(rounds)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
