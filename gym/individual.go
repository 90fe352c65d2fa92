package gym

import (
	"github.com/google/uuid"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/rules"
)

// Individual pairs one environment with the policy playing it.
type Individual struct {
	ID     uuid.UUID
	Father uuid.UUID
	Mother uuid.UUID
	State  *game.GameState
	Policy policy.Policy
}

// Frozen reports whether ind will not be stepped again this epoch. maxTurns
// <= 0 disables the turn ceiling.
func Frozen(ind Individual, maxTurns int32) bool {
	if ind.State == nil || ind.State.Status == game.GameOver {
		return true
	}
	return maxTurns > 0 && ind.State.Turn >= maxTurns
}

// StepIndividual advances ind by one engine step. Frozen individuals come
// back unchanged.
func StepIndividual(ind Individual, maxTurns int32, ctx policy.Context) Individual {
	if Frozen(ind, maxTurns) {
		return ind
	}
	action := ind.Policy.Decide(ind.State, ctx)
	ind.State = rules.Update(ind.State, action)
	return ind
}

// IsEpochFinished is true once every individual is frozen.
func IsEpochFinished(population []Individual, maxTurns int32) bool {
	for _, ind := range population {
		if !Frozen(ind, maxTurns) {
			return false
		}
	}
	return true
}
