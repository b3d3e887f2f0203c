package engine

import (
	"github.com/dreadlabs/dread-engine/pkg/classify"
)

// RollFunc supplies randomness for combat and risk rolls. Production wiring
// uses math/rand; tests inject fixed outcomes.
type RollFunc func() float64

// CombatChoices are offered when combat starts and re-offered after a
// failed attack.
var CombatChoices = []string{"Attack again", "Try to disengage"}

// CombatResult is the resolution of one combat-mode action.
type CombatResult struct {
	Verb    classify.Verb
	Success bool
}

// ResolveCombat interprets a player action taken while in combat.
// Disengaging always succeeds; an attack succeeds when the roll clears the
// scenario's attack success rate.
func ResolveCombat(action string, attackSuccess float64, roll RollFunc) CombatResult {
	verb := classify.CombatVerb(action)
	if verb == classify.VerbFlee {
		return CombatResult{Verb: verb, Success: true}
	}
	return CombatResult{Verb: verb, Success: roll() < attackSuccess}
}
