package engine

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dreadlabs/dread-engine/internal/services"
	"github.com/dreadlabs/dread-engine/pkg/prompts"
	"github.com/dreadlabs/dread-engine/pkg/world"
)

const historyWindow = 5

// EvolutionResult reports what the world evolution step did to the state.
type EvolutionResult struct {
	Event    string
	NoChange bool
}

// Evolver advances the hidden world by one small step per turn.
type Evolver struct {
	llm    services.LLMService
	logger *slog.Logger
}

func NewEvolver(llm services.LLMService, logger *slog.Logger) *Evolver {
	return &Evolver{llm: llm, logger: logger}
}

// Step runs one evolution call and applies the result to the world state.
// An empty or repeated reply means the world stagnated: the context stays
// untouched and the chaos level rises instead. Generation errors are
// returned so the caller can surface them; the state is untouched on error.
func (e *Evolver) Step(ctx context.Context, ws *world.WorldState, premise, consequence string, historyLines []string) (EvolutionResult, error) {
	messages := prompts.Evolution(premise, historyLines, ws.Phase, ws.ChaosLevel, ws.SpatialContext, consequence)

	resp, err := e.llm.Chat(ctx, messages)
	if err != nil {
		return EvolutionResult{}, err
	}

	event := strings.TrimSpace(resp.Message)
	if event == "" || e.isRepeat(ws, event) {
		ws.SetChaos(ws.ChaosLevel + 1)
		return EvolutionResult{NoChange: true}, nil
	}

	overflow := ws.Context.Push(event)
	if len(overflow) > 0 {
		e.condense(ctx, ws, overflow)
	}
	ws.RememberElements(ExtractElements(event))

	return EvolutionResult{Event: event}, nil
}

// isRepeat checks the new event against the rolling buffer and the core.
func (e *Evolver) isRepeat(ws *world.WorldState, event string) bool {
	if strings.EqualFold(event, strings.TrimSpace(ws.Context.Core)) {
		return true
	}
	for _, prior := range ws.Context.RecentEvents {
		if strings.EqualFold(event, prior) {
			return true
		}
	}
	return false
}

// condense folds overflowed events into the narrative core. If the
// condensation call fails, the overflow is appended verbatim so no world
// facts are lost.
func (e *Evolver) condense(ctx context.Context, ws *world.WorldState, overflow []string) {
	resp, err := e.llm.Chat(ctx, prompts.Condense(ws.Context.Core, overflow))
	if err == nil {
		if merged := strings.TrimSpace(resp.Message); merged != "" {
			ws.Context.Core = merged
			return
		}
	}
	if err != nil {
		e.logger.Warn("Context condensation failed, appending overflow verbatim", "error", err)
	}
	ws.Context.Core = strings.TrimSpace(ws.Context.Core + " " + strings.Join(overflow, " "))
}

var elementStopwords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "have": true,
	"there": true, "their": true, "something": true, "where": true,
	"through": true, "into": true, "onto": true, "about": true, "been": true,
	"were": true, "will": true, "what": true, "when": true, "your": true,
}

// ExtractElements pulls lowercase content words of at least four runes out
// of narrative text, for later choice grounding.
func ExtractElements(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	var elements []string
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) < 4 || elementStopwords[f] {
			continue
		}
		elements = append(elements, f)
	}
	return elements
}
