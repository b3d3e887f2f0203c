// Package classify centralizes the keyword detection that steers turn
// processing: threat detection over dispatch text, risky-action detection
// over player input, and combat verb interpretation. Keeping the keyword
// lists in one place keeps them tunable and independently testable.
package classify

import "strings"

// Kind tags a piece of text with the branch it should steer the turn into.
type Kind string

const (
	Threat     Kind = "threat"
	Risky      Kind = "risky"
	Transition Kind = "transition"
	Normal     Kind = "normal"
)

// Verb is a combat-mode interpretation of a player action.
type Verb string

const (
	VerbAttack Verb = "attack"
	VerbFlee   Verb = "flee"
)

// Classifier tags free text so the orchestrator can branch on it.
type Classifier interface {
	Classify(text string) Kind
}

// KeywordClassifier matches lowercased substrings against fixed keyword
// families, in priority order threat > risky > transition.
type KeywordClassifier struct {
	threat     []string
	risky      []string
	transition []string
}

var defaultThreatKeywords = []string{
	"hostile", "weapons raised", "weapon raised", "ambush", "lunges",
	"attacks you", "charges at", "surrounds you", "bares its teeth",
	"raises its blade", "closes in on you",
}

var defaultRiskyKeywords = []string{
	"climb", "jump", "leap", "force open", "break", "smash", "pry",
	"sneak past", "crawl through", "swim", "drink", "taste", "touch the",
}

var defaultTransitionKeywords = []string{
	"enter", "leave", "go to", "head to", "walk to", "descend", "ascend",
	"through the door", "into the",
}

// NewKeywordClassifier builds a classifier from explicit keyword lists.
// Empty lists fall back to the defaults.
func NewKeywordClassifier(threat, risky, transition []string) *KeywordClassifier {
	c := &KeywordClassifier{
		threat:     threat,
		risky:      risky,
		transition: transition,
	}
	if len(c.threat) == 0 {
		c.threat = defaultThreatKeywords
	}
	if len(c.risky) == 0 {
		c.risky = defaultRiskyKeywords
	}
	if len(c.transition) == 0 {
		c.transition = defaultTransitionKeywords
	}
	return c
}

// Default returns a classifier with the built-in keyword lists.
func Default() *KeywordClassifier {
	return NewKeywordClassifier(nil, nil, nil)
}

var _ Classifier = (*KeywordClassifier)(nil)

func (c *KeywordClassifier) Classify(text string) Kind {
	lower := strings.ToLower(text)
	if matchAny(lower, c.threat) {
		return Threat
	}
	if matchAny(lower, c.risky) {
		return Risky
	}
	if matchAny(lower, c.transition) {
		return Transition
	}
	return Normal
}

func matchAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var attackVerbs = []string{"attack", "fight", "strike", "hit", "swing", "shoot", "stab", "engage"}
var fleeVerbs = []string{"flee", "run", "escape", "disengage", "retreat", "back away", "withdraw"}

// CombatVerb interprets a player action while in combat. Flee-family verbs
// win on a tie so that "run from the attack" disengages. Anything that
// matches neither family is treated as an attack attempt.
func CombatVerb(action string) Verb {
	lower := strings.ToLower(action)
	if matchAny(lower, fleeVerbs) {
		return VerbFlee
	}
	return VerbAttack
}
