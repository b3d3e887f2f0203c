// Package prompts builds the message arrays for every generation call the
// turn pipeline makes: dispatch, world evolution, choice generation, the
// choice critic, and context condensation.
package prompts

import (
	"fmt"
	"strings"

	"github.com/dreadlabs/dread-engine/pkg/chat"
	"github.com/dreadlabs/dread-engine/pkg/world"
)

// DispatchSystemPrompt instructs the model to narrate the immediate
// consequence of a player action and decide survival, as strict JSON.
const DispatchSystemPrompt = `You are the game master of a slow-burn horror story. ` +
	`The player has just taken an action. Narrate the immediate consequence in 1-3 tense, ` +
	`grounded sentences. Decide whether the action kills the player; death should be rare ` +
	`and earned, never arbitrary. Keep the scene location unchanged unless the action ` +
	`clearly implies moving somewhere else. ` +
	`Reply with ONLY a JSON object of this exact shape: ` +
	`{"dispatch": "<consequence text>", "player_alive": <true|false>, "scene": "<one-line description of what is now visible>"}`

// EvolutionSystemPrompt instructs the model to advance the background world
// by one small step.
const EvolutionSystemPrompt = `You advance the hidden clockwork of a horror story between scenes. ` +
	`Given the premise, recent events, and the latest consequence, describe in ONE sentence ` +
	`what has changed in the wider world. Introduce or advance exactly one element. ` +
	`Do not address the player. Do not repeat a prior sentence verbatim. Reply with the sentence only.`

// CondenseSystemPrompt folds overflowing recent events into the core premise.
const CondenseSystemPrompt = `Merge the following story premise and past events into a single ` +
	`compact premise of at most three sentences, preserving every concrete fact that still matters. ` +
	`Reply with the merged premise only.`

// ChoiceSystemPrompt asks for short, physically concrete action options.
const ChoiceSystemPrompt = `You offer a horror-story player their next possible actions. ` +
	`Given the scene, propose %d short action phrases (3-6 words each, one per line). ` +
	`Each must be physically concrete and grounded ONLY in objects and paths that are visible ` +
	`or stated. Use varied verbs. Never use generic filler like "continue onward", ` +
	`"proceed carefully", "explore the area", or "investigate further". ` +
	`Reply with the action lines only, no numbering, no preamble.`

// CriticSystemPrompt is the secondary pass that trims the candidate list.
const CriticSystemPrompt = `You are reviewing proposed player actions for a horror story. ` +
	`Remove any action that is incoherent with the scene, references something not present, ` +
	`or repeats one of the recently offered actions. Keep 2-3 of the strongest, most distinct ` +
	`actions. Reply with the surviving actions only, one per line, unchanged.`

// phaseNudges bias the evolution step by tension tier.
var phaseNudges = map[world.Phase]string{
	world.PhaseNormal:     "Keep it quiet. Subtle wrongness only: small sounds, small absences, things slightly moved.",
	world.PhaseEscalating: "Pressure is building. Something should act, approach, or break, but leave room for doubt.",
	world.PhaseCritical:   "The situation is critical. Major events are frequent and the danger is overt and close.",
}

// PhaseNudge returns the tier-specific narrative nudge for the evolution
// prompt.
func PhaseNudge(p world.Phase) string {
	if nudge, ok := phaseNudges[p]; ok {
		return nudge
	}
	return phaseNudges[world.PhaseNormal]
}

// Dispatch builds the message array for the dispatch generation call.
// spatial is the last known scene description and may be empty on turn 1;
// refImage is an optional reference frame for vision-capable providers.
func Dispatch(premise, contextText, spatial, choice string, refImage []byte) []chat.Message {
	var sb strings.Builder
	sb.WriteString("Premise: " + premise)
	if contextText != "" {
		sb.WriteString("\n\nCurrent situation: " + contextText)
	}
	if spatial != "" {
		sb.WriteString("\n\nCurrent scene (for spatial consistency, do not change location unless the action implies a transition): " + spatial)
	}
	sb.WriteString("\n\nPlayer action: " + choice)

	userMsg := chat.Message{Role: chat.RoleUser, Content: sb.String()}
	if len(refImage) > 0 {
		userMsg.Images = [][]byte{refImage}
	}

	return []chat.Message{
		{Role: chat.RoleSystem, Content: DispatchSystemPrompt},
		userMsg,
	}
}

// Evolution builds the message array for the world evolution call.
// historyLines are the last few completed turns condensed to one line each.
func Evolution(premise string, historyLines []string, phase world.Phase, chaos int, spatial, consequence string) []chat.Message {
	var sb strings.Builder
	sb.WriteString("Premise: " + premise)
	if len(historyLines) > 0 {
		sb.WriteString("\n\nRecent turns:")
		for _, line := range historyLines {
			sb.WriteString("\n- " + line)
		}
	}
	sb.WriteString(fmt.Sprintf("\n\nTension: %s (chaos %d). %s", phase, chaos, PhaseNudge(phase)))
	if spatial != "" {
		sb.WriteString("\n\nCurrent scene: " + spatial)
	}
	sb.WriteString("\n\nLatest consequence: " + consequence)

	return []chat.Message{
		{Role: chat.RoleSystem, Content: EvolutionSystemPrompt},
		{Role: chat.RoleUser, Content: sb.String()},
	}
}

// Condense builds the message array that folds overflowed events into the
// narrative core.
func Condense(core string, events []string) []chat.Message {
	var sb strings.Builder
	sb.WriteString("Premise: " + core)
	sb.WriteString("\n\nPast events:")
	for _, ev := range events {
		sb.WriteString("\n- " + ev)
	}
	return []chat.Message{
		{Role: chat.RoleSystem, Content: CondenseSystemPrompt},
		{Role: chat.RoleUser, Content: sb.String()},
	}
}

// Choices builds the message array for raw choice generation.
func Choices(contextText string, n int, refImage []byte) []chat.Message {
	userMsg := chat.Message{
		Role:    chat.RoleUser,
		Content: "Scene: " + contextText,
	}
	if len(refImage) > 0 {
		userMsg.Images = [][]byte{refImage}
	}
	return []chat.Message{
		{Role: chat.RoleSystem, Content: fmt.Sprintf(ChoiceSystemPrompt, n)},
		userMsg,
	}
}

// Critic builds the message array for the choice-critic pass.
// recentChoices are the choices offered over the last two turns; the critic
// is forbidden from letting repeats through.
func Critic(contextText string, candidates, recentChoices []string) []chat.Message {
	var sb strings.Builder
	sb.WriteString("Scene: " + contextText)
	sb.WriteString("\n\nProposed actions:")
	for _, c := range candidates {
		sb.WriteString("\n- " + c)
	}
	if len(recentChoices) > 0 {
		sb.WriteString("\n\nRecently offered (must not repeat):")
		for _, c := range recentChoices {
			sb.WriteString("\n- " + c)
		}
	}
	return []chat.Message{
		{Role: chat.RoleSystem, Content: CriticSystemPrompt},
		{Role: chat.RoleUser, Content: sb.String()},
	}
}
