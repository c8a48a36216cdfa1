// Package combat advances ship-vs-enemy engagements one round at a time.
// The resolver is pure; battle rows and round cadence belong to the tick
// pipeline.
package combat

import (
	"math"
	"math/rand"

	"github.com/startide/server/pkg/game"
)

// Resolver tuning. Damage scales linearly with firepower, evasion and
// escort protection both follow saturating curves so stacking never
// reaches full immunity.
const (
	FirepowerToDamage   = 4.0
	DamageVariance      = 0.25
	EvasionK            = 50.0
	MaxEvasionReduction = 0.6

	BaseMoraleGain       = 4.0
	BaseMoraleLoss       = 6.0
	LopsidedMoraleSwing  = 8.0
	MoraleBreakThreshold = 25.0
	MaxMorale            = 100.0

	EscortK            = 30.0
	MaxEscortReduction = 0.5

	// RoundInterval is the number of ticks between resolved rounds of an
	// active battle.
	RoundInterval = 2
)

// Side is one combatant's live stats.
type Side struct {
	Strength  float64
	Morale    float64
	Firepower float64
	Evasion   float64
}

// State is the resolver's view of a battle. AdvanceRound mutates it in
// place; persisting the result is the caller's job.
type State struct {
	Player Side
	Enemy  Side
	Rounds int
	Status string
}

// RoundResult records one resolved round. PlayerDamage is the damage the
// player dealt, EnemyDamage the damage the enemy dealt.
type RoundResult struct {
	Round        int     `json:"round"`
	PlayerDamage float64 `json:"playerDamage"`
	EnemyDamage  float64 `json:"enemyDamage"`
	Status       string  `json:"status"`
}

// AdvanceRound resolves one round of an active battle: simultaneous
// damage, morale adjustment, then the terminal check. Strength exhaustion
// wins over morale break when both trip in the same round.
func AdvanceRound(st *State, rng *rand.Rand) RoundResult {
	playerDealt := rollDamage(st.Player.Firepower, st.Enemy.Evasion, rng)
	enemyDealt := rollDamage(st.Enemy.Firepower, st.Player.Evasion, rng)

	st.Enemy.Strength = math.Max(0, st.Enemy.Strength-playerDealt)
	st.Player.Strength = math.Max(0, st.Player.Strength-enemyDealt)

	adjustMorale(st, playerDealt, enemyDealt)

	st.Rounds++
	st.Status = terminalStatus(st)

	return RoundResult{
		Round:        st.Rounds,
		PlayerDamage: playerDealt,
		EnemyDamage:  enemyDealt,
		Status:       st.Status,
	}
}

// rollDamage computes one side's damage output against the opponent's
// evasion curve.
func rollDamage(firepower, opponentEvasion float64, rng *rand.Rand) float64 {
	variance := (rng.Float64()*2 - 1) * DamageVariance
	raw := firepower * FirepowerToDamage * (1 + variance)
	reduction := math.Min(MaxEvasionReduction, opponentEvasion/(opponentEvasion+EvasionK))
	return raw * (1 - reduction)
}

func adjustMorale(st *State, playerDealt, enemyDealt float64) {
	if playerDealt == enemyDealt {
		return
	}

	winner, loser := &st.Player, &st.Enemy
	hi, lo := playerDealt, enemyDealt
	if enemyDealt > playerDealt {
		winner, loser = &st.Enemy, &st.Player
		hi, lo = enemyDealt, playerDealt
	}

	winner.Morale = math.Min(MaxMorale, winner.Morale+BaseMoraleGain)
	loser.Morale = math.Max(0, loser.Morale-BaseMoraleLoss)
	if lo <= 0 || hi/lo > 2 {
		loser.Morale = math.Max(0, loser.Morale-LopsidedMoraleSwing)
	}
}

func terminalStatus(st *State) string {
	switch {
	case st.Player.Strength <= 0:
		return game.BattlePlayerDefeat
	case st.Enemy.Strength <= 0:
		return game.BattlePlayerVictory
	case st.Player.Morale < MoraleBreakThreshold:
		return game.BattlePlayerRetreat
	case st.Enemy.Morale < MoraleBreakThreshold:
		return game.BattleEnemyRetreat
	}
	return game.BattleActive
}

// EscortProtection returns the damage-roll reduction granted by escorts
// travelling with a ship. Zero escorts give zero reduction; the curve is
// monotone in total firepower and saturates at MaxEscortReduction.
func EscortProtection(escortFirepower []float64) float64 {
	var total float64
	for _, fp := range escortFirepower {
		if fp > 0 {
			total += fp
		}
	}
	if total <= 0 {
		return 0
	}
	return math.Min(MaxEscortReduction, total/(total+EscortK))
}

// EscortChanceMultiplier scales the probability of an arrival damage roll
// triggering at all.
func EscortChanceMultiplier(reduction float64) float64 {
	return 1 - reduction
}

// EscortSeverityMultiplier scales the severity of a triggered roll; half
// the chance reduction applies.
func EscortSeverityMultiplier(reduction float64) float64 {
	return 1 - reduction/2
}
