package combat

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startide/server/pkg/game"
)

func TestAdvanceRoundDamagesBothSides(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	st := &State{
		Player: Side{Strength: 100, Morale: 80, Firepower: 10, Evasion: 20},
		Enemy:  Side{Strength: 100, Morale: 80, Firepower: 10, Evasion: 20},
		Status: game.BattleActive,
	}

	res := AdvanceRound(st, rng)

	assert.Equal(t, 1, res.Round)
	assert.Positive(t, res.PlayerDamage)
	assert.Positive(t, res.EnemyDamage)
	assert.Less(t, st.Player.Strength, 100.0)
	assert.Less(t, st.Enemy.Strength, 100.0)
}

// An outgunned player must end in player_defeat once strength runs out,
// as long as morale stays above the break threshold.
func TestOutgunnedPlayerIsDefeated(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	st := &State{
		Player: Side{Strength: 40, Morale: 1000, Firepower: 1, Evasion: 0},
		Enemy:  Side{Strength: 1000, Morale: 1000, Firepower: 30, Evasion: 0},
		Status: game.BattleActive,
	}

	for i := 0; i < 50 && st.Status == game.BattleActive; i++ {
		AdvanceRound(st, rng)
	}

	assert.Equal(t, game.BattlePlayerDefeat, st.Status)
	assert.Zero(t, st.Player.Strength)
}

// Morale collapse ends the battle as a retreat before strength exhaustion.
func TestMoraleBreakCausesRetreat(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	st := &State{
		// Enough strength to survive many rounds, but morale barely above
		// the break threshold while steadily losing the damage race.
		Player: Side{Strength: 10000, Morale: MoraleBreakThreshold + 1, Firepower: 1, Evasion: 0},
		Enemy:  Side{Strength: 10000, Morale: 1000, Firepower: 10, Evasion: 0},
		Status: game.BattleActive,
	}

	for i := 0; i < 50 && st.Status == game.BattleActive; i++ {
		AdvanceRound(st, rng)
	}

	assert.Equal(t, game.BattlePlayerRetreat, st.Status)
	assert.Positive(t, st.Player.Strength)
}

// Strength exhaustion in the same round as a morale break resolves as the
// strength outcome.
func TestStrengthOutcomeWinsOverMoraleBreak(t *testing.T) {
	st := &State{
		Player: Side{Strength: 0, Morale: 0},
		Enemy:  Side{Strength: 50, Morale: 50},
	}
	assert.Equal(t, game.BattlePlayerDefeat, terminalStatus(st))

	st = &State{
		Player: Side{Strength: 50, Morale: 0},
		Enemy:  Side{Strength: 0, Morale: 50},
	}
	assert.Equal(t, game.BattlePlayerVictory, terminalStatus(st))
}

func TestEvasionReductionIsCapped(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// Even absurd evasion leaves at least 1-MaxEvasionReduction of the raw
	// damage intact.
	dmg := rollDamage(10, 1e9, rng)
	floor := 10 * FirepowerToDamage * (1 - DamageVariance) * (1 - MaxEvasionReduction)
	assert.GreaterOrEqual(t, dmg, floor*0.999)
}

func TestEscortProtectionEmptyIsZero(t *testing.T) {
	assert.Zero(t, EscortProtection(nil))
	assert.Zero(t, EscortProtection([]float64{}))
}

func TestEscortProtectionMonotoneAndSaturating(t *testing.T) {
	prev := 0.0
	for _, fp := range []float64{0.1, 1, 5, 20, 100, 1000, 1e6} {
		cur := EscortProtection([]float64{fp})
		require.Greater(t, cur, 0.0)
		assert.GreaterOrEqual(t, cur, prev)
		assert.LessOrEqual(t, cur, MaxEscortReduction)
		prev = cur
	}

	assert.InDelta(t, MaxEscortReduction, EscortProtection([]float64{1e9}), 1e-6)
}

func TestEscortMultipliers(t *testing.T) {
	r := EscortProtection([]float64{30}) // 30/(30+30) = 0.5, at the cap
	assert.InDelta(t, 0.5, r, 1e-9)
	assert.InDelta(t, 0.5, EscortChanceMultiplier(r), 1e-9)
	assert.InDelta(t, 0.75, EscortSeverityMultiplier(r), 1e-9)
}
