package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreadlabs/dread-engine/internal/services"
	"github.com/dreadlabs/dread-engine/internal/storage"
	"github.com/dreadlabs/dread-engine/pkg/classify"
	"github.com/dreadlabs/dread-engine/pkg/scenario"
	"github.com/dreadlabs/dread-engine/pkg/world"
)

const (
	gameOverText     = "The simulation has ended."
	choicePromptText = "What do you do?"
	combatPromptText = "It is here. What do you do?"
	stalledWorldText = "The world holds its breath."

	riskyBadFlavor  = "A misstep. Somewhere close, something notices."
	riskyGoodFlavor = "It holds. Luck, this time."
)

// Orchestrator runs the full turn pipeline for one player action: dispatch,
// death check, threat detection, world evolution, scene imagery, and choice
// generation, saving the world state after every phase.
type Orchestrator struct {
	store    storage.Store
	dispatch *DispatchGenerator
	evolver  *Evolver
	choices  *ChoiceGenerator
	logger   *slog.Logger

	// Optional image pipeline; when either is nil the phase is skipped.
	ImageGen services.ImageService
	Images   *services.ImageStore

	// Roll supplies combat and risk randomness; defaults to math/rand.
	Roll RollFunc
}

func NewOrchestrator(store storage.Store, llm services.LLMService, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		dispatch: NewDispatchGenerator(llm, logger),
		evolver:  NewEvolver(llm, logger),
		choices:  NewChoiceGenerator(llm, logger),
		logger:   logger,
		Roll:     rand.Float64,
	}
}

// ProcessTurn advances one session by one player action. It holds the
// session lock for the full read-modify-write span. The player_action feed
// entry was already written by the API when the action was accepted.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID uuid.UUID, action string) error {
	unlock := o.store.LockSession(sessionID)
	defer unlock()

	ws, err := o.store.LoadWorldState(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load world state: %w", err)
	}
	if ws == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}

	scen, err := o.store.GetScenario(ctx, ws.Scenario)
	if err != nil {
		o.logger.Warn("Scenario unavailable, using default",
			"session_id", sessionID.String(), "scenario", ws.Scenario, "error", err)
		scen = scenario.Default()
	}

	clf := classify.NewKeywordClassifier(scen.ThreatKeywords, scen.RiskyKeywords, nil)

	switch {
	case !ws.Player.Alive:
		return o.terminalTurn(ctx, ws, scen, action)
	case ws.InCombat:
		return o.combatTurn(ctx, ws, scen, action)
	default:
		return o.normalTurn(ctx, ws, scen, clf, action)
	}
}

// terminalTurn handles actions against a dead session. Only the restart
// choice does anything; everything else re-states the ending.
func (o *Orchestrator) terminalTurn(ctx context.Context, ws *world.WorldState, scen *scenario.Scenario, action string) error {
	if !strings.EqualFold(strings.TrimSpace(action), world.RestartChoiceLabel) {
		ws.AppendFeed(world.FeedGameOver, gameOverText)
		ws.AppendChoicePrompt(choicePromptText, []string{world.RestartChoiceLabel})
		return o.store.SaveWorldState(ctx, ws)
	}

	// Restart wipes everything the run produced: history log and generated
	// media go with the old state document.
	if err := o.store.DeleteWorldState(ctx, ws.ID); err != nil {
		o.logger.Warn("Failed to clear session artifacts on restart",
			"session_id", ws.ID.String(), "error", err)
	}

	fresh := world.NewWorldState(ws.Scenario, scen.OpeningContext, scen.Survivor.MaxHP)
	fresh.ID = ws.ID
	fresh.CreatedAt = ws.CreatedAt
	fresh.AppendFeed(world.FeedNarrative, scen.OpeningContext)
	fresh.AppendChoicePrompt(choicePromptText, fallback())
	fresh.RememberChoices(FallbackChoices)
	*ws = *fresh

	o.logger.Info("Session restarted", "session_id", ws.ID.String())
	return o.store.SaveWorldState(ctx, ws)
}

// combatTurn resolves one action inside the combat sub-state. A failed
// attack keeps the session in combat and does not advance the turn count.
func (o *Orchestrator) combatTurn(ctx context.Context, ws *world.WorldState, scen *scenario.Scenario, action string) error {
	res := ResolveCombat(action, scen.AttackSuccess, o.Roll)
	threat := ws.Threat
	if threat == "" {
		threat = "threat"
	}

	if res.Verb == classify.VerbFlee {
		ws.InCombat = false
		ws.Threat = ""
		exit := fmt.Sprintf("You tear yourself away and put distance between you and the %s.", threat)
		ws.AppendFeed(world.FeedNarrative, exit)
		return o.finishTurn(ctx, ws, scen, action, exit)
	}

	if res.Success {
		ws.InCombat = false
		ws.Threat = ""
		exit := fmt.Sprintf("Your strike lands. The %s crumples and goes still.", threat)
		ws.AppendFeed(world.FeedNarrative, exit)
		return o.finishTurn(ctx, ws, scen, action, exit)
	}

	// Failed attack: take damage through the survivor sheet.
	remaining := applyThreatDamage(scen.Survivor, ws.Player.Health, scen.ThreatDamage)
	ws.Player.Health = remaining

	if remaining <= 0 {
		ws.AppendFeed(world.FeedNarrative,
			fmt.Sprintf("The %s is faster. The blow lands hard, and the world goes dark.", threat))
		o.gameOver(ws)
		return o.store.SaveWorldState(ctx, ws)
	}

	ws.AppendFeed(world.FeedConsequence,
		fmt.Sprintf("The %s tears into you. You are hurt, but standing.", threat))
	ws.AppendChoicePrompt(combatPromptText, CombatChoices)
	ws.RememberChoices(CombatChoices)
	return o.store.SaveWorldState(ctx, ws)
}

// applyThreatDamage runs damage through the d20 character sheet so HP
// clamping stays consistent with the survivor spec. A sheet that fails to
// build degrades to plain subtraction.
func applyThreatDamage(spec scenario.SurvivorSpec, current, damage int) int {
	remaining := current - damage
	if remaining < 0 {
		remaining = 0
	}
	if remaining == 0 {
		return 0
	}
	actor, err := spec.BuildActorAt(current)
	if err != nil {
		return remaining
	}
	if err := actor.SetHP(remaining); err != nil {
		return remaining
	}
	return actor.HP()
}

// normalTurn is the full pipeline: risk flavor, dispatch, death check,
// threat detection, evolution, imagery, choices.
func (o *Orchestrator) normalTurn(ctx context.Context, ws *world.WorldState, scen *scenario.Scenario, clf classify.Classifier, action string) error {
	contextBefore := ws.Context.Render()

	if clf.Classify(action) == classify.Risky {
		if o.Roll() < 0.5 {
			ws.SetChaos(ws.ChaosLevel + 1)
			ws.AppendFeed(world.FeedNarrative, riskyBadFlavor)
		} else {
			ws.SetChaos(ws.ChaosLevel - 1)
			ws.AppendFeed(world.FeedNarrative, riskyGoodFlavor)
		}
	}

	var refImage []byte
	if o.Images != nil && ws.CurrentImage != "" {
		refImage, _ = o.Images.Load(ws.CurrentImage)
	}

	d := o.dispatch.Generate(ctx, scen.Premise, contextBefore, ws.SpatialContext, action, refImage)
	ws.LastChoice = action
	ws.AppendFeed(world.FeedNarrative, d.Dispatch)
	if d.Scene != "" {
		ws.SpatialContext = d.Scene
		ws.AppendFeed(world.FeedVision, d.Scene)
	}
	o.phaseSave(ctx, ws, "dispatch")

	if !d.PlayerAlive {
		o.gameOver(ws)
		err := o.store.SaveWorldState(ctx, ws)
		o.appendHistory(ctx, ws, action, d.Dispatch, contextBefore)
		return err
	}

	// Threat detection runs over the dispatch plus the scene description,
	// so a threat visible in the frame but unmentioned in prose still
	// triggers combat.
	if clf.Classify(d.Dispatch+" "+d.Scene) == classify.Threat {
		ws.InCombat = true
		ws.Threat = threatLabel(d.Scene)
		ws.SetChaos(ws.ChaosLevel + 1)
		ws.AppendChoicePrompt(combatPromptText, CombatChoices)
		ws.RememberChoices(CombatChoices)
		err := o.store.SaveWorldState(ctx, ws)
		o.appendHistory(ctx, ws, action, d.Dispatch, contextBefore)
		return err
	}

	lines := o.historyLines(ctx, ws.ID)
	evo, err := o.evolver.Step(ctx, ws, scen.Premise, d.Dispatch, lines)
	if err != nil {
		o.logger.Error("World evolution failed", "session_id", ws.ID.String(), "error", err)
		ws.AppendFeed(world.FeedError, stalledWorldText)
	} else if !evo.NoChange {
		ws.AppendFeed(world.FeedConsequence, evo.Event)
	}
	o.phaseSave(ctx, ws, "evolution")

	o.illustrateScene(ctx, ws)

	choices := o.choices.Generate(ctx, choiceContext(ws), ws.SeenElements, ws.RecentChoices, refImage)
	ws.AppendChoicePrompt(choicePromptText, choices)
	ws.RememberChoices(choices)
	ws.TurnCount++

	saveErr := o.store.SaveWorldState(ctx, ws)
	o.appendHistory(ctx, ws, action, d.Dispatch, contextBefore)
	return saveErr
}

// finishTurn completes a turn that exited combat: the world takes its
// evolution step off the exit narrative, choices are regenerated against the
// current context, and the turn count advances.
func (o *Orchestrator) finishTurn(ctx context.Context, ws *world.WorldState, scen *scenario.Scenario, action, exit string) error {
	contextBefore := ws.Context.Render()

	evo, err := o.evolver.Step(ctx, ws, scen.Premise, exit, o.historyLines(ctx, ws.ID))
	if err != nil {
		o.logger.Error("World evolution failed", "session_id", ws.ID.String(), "error", err)
		ws.AppendFeed(world.FeedError, stalledWorldText)
	} else if !evo.NoChange {
		ws.AppendFeed(world.FeedConsequence, evo.Event)
	}

	choices := o.choices.Generate(ctx, choiceContext(ws), ws.SeenElements, ws.RecentChoices, nil)
	ws.AppendChoicePrompt(choicePromptText, choices)
	ws.RememberChoices(choices)
	ws.TurnCount++

	saveErr := o.store.SaveWorldState(ctx, ws)
	o.appendHistory(ctx, ws, action, exit, contextBefore)
	return saveErr
}

// gameOver marks the player dead and writes the terminal feed entries. The
// restart prompt always follows the game_over entry.
func (o *Orchestrator) gameOver(ws *world.WorldState) {
	ws.Player.Alive = false
	ws.Player.Health = 0
	ws.InCombat = false
	ws.Threat = ""
	ws.AppendFeed(world.FeedGameOver, gameOverText)
	ws.AppendChoicePrompt(choicePromptText, []string{world.RestartChoiceLabel})
}

// illustrateScene generates and stores a scene image when the image
// pipeline is wired. Failures skip the phase; imagery is garnish.
func (o *Orchestrator) illustrateScene(ctx context.Context, ws *world.WorldState) {
	if o.ImageGen == nil || o.Images == nil || ws.SpatialContext == "" {
		return
	}

	data, err := o.ImageGen.GenerateImage(ctx, ws.SpatialContext)
	if err != nil {
		o.logger.Warn("Scene image generation failed, skipping",
			"session_id", ws.ID.String(), "error", err)
		return
	}
	name, err := o.Images.Save(ws.SpatialContext, data)
	if err != nil {
		o.logger.Warn("Scene image save failed, skipping",
			"session_id", ws.ID.String(), "error", err)
		return
	}
	ws.CurrentImage = name
	entry := ws.AppendFeed(world.FeedSceneImage, ws.SpatialContext)
	entry.Image = name
}

// phaseSave persists mid-turn progress. Mid-turn save failures are logged
// and the turn continues; only the final save is load-bearing.
func (o *Orchestrator) phaseSave(ctx context.Context, ws *world.WorldState, phase string) {
	if err := o.store.SaveWorldState(ctx, ws); err != nil {
		o.logger.Error("Mid-turn save failed, continuing",
			"session_id", ws.ID.String(), "phase", phase, "error", err)
	}
}

func (o *Orchestrator) historyLines(ctx context.Context, id uuid.UUID) []string {
	entries, err := o.store.History(ctx, id, historyWindow)
	if err != nil {
		o.logger.Warn("History unavailable for evolution prompt", "session_id", id.String(), "error", err)
		return nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Condensed())
	}
	return lines
}

func (o *Orchestrator) appendHistory(ctx context.Context, ws *world.WorldState, action, dispatch, contextBefore string) {
	entry := storage.HistoryEntry{
		Choice:        action,
		Dispatch:      dispatch,
		ContextBefore: contextBefore,
		ContextAfter:  ws.Context.Render(),
		Image:         ws.CurrentImage,
		Timestamp:     time.Now().UTC(),
	}
	if err := o.store.AppendHistory(ctx, ws.ID, entry); err != nil {
		o.logger.Warn("History append failed", "session_id", ws.ID.String(), "error", err)
	}
}

// LastFeedID reports the session's current high-water feed ID, for turn
// completion events. Unknown sessions report 0.
func (o *Orchestrator) LastFeedID(ctx context.Context, sessionID uuid.UUID) int {
	ws, err := o.store.LoadWorldState(ctx, sessionID)
	if err != nil || ws == nil {
		return 0
	}
	return ws.LastFeedID()
}

// choiceContext is the text choices must be grounded in: the narrative
// context plus whatever the current scene shows.
func choiceContext(ws *world.WorldState) string {
	return strings.TrimSpace(ws.Context.Render() + " " + ws.SpatialContext)
}

// threatLabel derives a short label for the active threat from the scene
// description.
func threatLabel(scene string) string {
	if scene == "" {
		return "something hostile"
	}
	if len([]rune(scene)) > 60 {
		return "something hostile"
	}
	return scene
}

