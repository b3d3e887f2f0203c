package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/dreadlabs/dread-engine/internal/services"
	"github.com/dreadlabs/dread-engine/internal/storage"
	"github.com/dreadlabs/dread-engine/pkg/chat"
	"github.com/dreadlabs/dread-engine/pkg/classify"
	"github.com/dreadlabs/dread-engine/pkg/scenario"
	"github.com/dreadlabs/dread-engine/pkg/world"
)

// turnScript answers each pipeline call by recognizing its system prompt.
type turnScript struct {
	dispatch  string
	evolution string
	choices   string
	critic    string
}

func scriptedLLM(s turnScript) *services.MockLLM {
	mock := services.NewMockLLM()
	mock.ChatFunc = func(ctx context.Context, messages []chat.Message) (*chat.Response, error) {
		system := messages[0].Content
		switch {
		case strings.Contains(system, "game master"):
			return &chat.Response{Message: s.dispatch}, nil
		case strings.Contains(system, "hidden clockwork"):
			return &chat.Response{Message: s.evolution}, nil
		case strings.Contains(system, "reviewing proposed player actions"):
			return &chat.Response{Message: s.critic}, nil
		case strings.Contains(system, "next possible actions"):
			return &chat.Response{Message: s.choices}, nil
		}
		return &chat.Response{Message: "Merged premise."}, nil
	}
	return mock
}

func newSession(t *testing.T, store *storage.MockStore) *world.WorldState {
	t.Helper()
	scen := scenario.Default()
	ws := world.NewWorldState("", scen.OpeningContext, scen.Survivor.MaxHP)
	if err := store.SaveWorldState(context.Background(), ws); err != nil {
		t.Fatal(err)
	}
	return ws
}

func feedTypes(ws *world.WorldState) []world.FeedType {
	out := make([]world.FeedType, 0, len(ws.Feed))
	for _, e := range ws.Feed {
		out = append(out, e.Type)
	}
	return out
}

var happyScript = turnScript{
	dispatch:  `{"dispatch": "The shed door swings open onto stacked crates.", "player_alive": true, "scene": "a cramped shed full of crates"}`,
	evolution: "Something shifts the gravel outside the fence.",
	choices:   "Search the stacked crates\nListen at the fence line\nStudy the gravel outside",
	critic:    "Search the stacked crates\nListen at the fence line",
}

func TestOrchestrator_HappyPathTurn(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)

	o := NewOrchestrator(store, scriptedLLM(happyScript), testLogger())
	o.Roll = func() float64 { return 0.9 }

	if err := o.ProcessTurn(context.Background(), ws.ID, "Open the shed"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	got, err := store.LoadWorldState(context.Background(), ws.ID)
	if err != nil {
		t.Fatal(err)
	}

	if got.TurnCount != 1 {
		t.Errorf("TurnCount = %d, want 1", got.TurnCount)
	}
	types := feedTypes(got)
	want := []world.FeedType{world.FeedNarrative, world.FeedVision, world.FeedConsequence, world.FeedChoicePrompt}
	if len(types) != len(want) {
		t.Fatalf("feed types = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("feed[%d] = %s, want %s", i, types[i], want[i])
		}
	}

	// Monotonic feed IDs.
	for i := 1; i < len(got.Feed); i++ {
		if got.Feed[i].ID <= got.Feed[i-1].ID {
			t.Errorf("feed IDs not increasing at %d", i)
		}
	}

	if got.SpatialContext != "a cramped shed full of crates" {
		t.Errorf("SpatialContext = %q", got.SpatialContext)
	}
	if len(got.Context.RecentEvents) != 1 {
		t.Errorf("RecentEvents = %v", got.Context.RecentEvents)
	}
	if len(got.RecentChoices) != 2 {
		t.Errorf("RecentChoices = %v", got.RecentChoices)
	}

	hist, err := store.History(context.Background(), ws.ID, 0)
	if err != nil || len(hist) != 1 {
		t.Fatalf("history = %v, %v", hist, err)
	}
	if hist[0].Choice != "Open the shed" {
		t.Errorf("history choice = %q", hist[0].Choice)
	}
}

func TestOrchestrator_AccumulativeContext(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)
	core := ws.Context.Core

	script := happyScript
	o := NewOrchestrator(store, scriptedLLM(script), testLogger())
	o.Roll = func() float64 { return 0.9 }

	if err := o.ProcessTurn(context.Background(), ws.ID, "Open the shed"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if got.Context.Core != core {
		t.Errorf("core premise must survive evolution: %q", got.Context.Core)
	}
	rendered := got.Context.Render()
	if !strings.Contains(rendered, core) || !strings.Contains(rendered, script.evolution) {
		t.Errorf("rendered context lost detail: %q", rendered)
	}
}

func TestOrchestrator_DeathShortCircuit(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)

	script := happyScript
	script.dispatch = `{"dispatch": "The floor gives way beneath you.", "player_alive": false}`
	o := NewOrchestrator(store, scriptedLLM(script), testLogger())

	if err := o.ProcessTurn(context.Background(), ws.ID, "Step onto the grate"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if got.Player.Alive {
		t.Fatal("player should be dead")
	}
	if got.TurnCount != 0 {
		t.Errorf("death turn must not advance turn count, got %d", got.TurnCount)
	}

	types := feedTypes(got)
	if types[len(types)-2] != world.FeedGameOver || types[len(types)-1] != world.FeedChoicePrompt {
		t.Fatalf("feed types = %v", types)
	}
	last := got.Feed[len(got.Feed)-1]
	if len(last.Choices) != 1 || last.Choices[0] != world.RestartChoiceLabel {
		t.Errorf("restart prompt = %v", last.Choices)
	}
}

func TestOrchestrator_TerminalStateIgnoresOtherActions(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)
	ws.Player.Alive = false
	ws.Player.Health = 0
	if err := store.SaveWorldState(context.Background(), ws); err != nil {
		t.Fatal(err)
	}

	o := NewOrchestrator(store, scriptedLLM(happyScript), testLogger())
	if err := o.ProcessTurn(context.Background(), ws.ID, "Open the shed"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if got.Player.Alive {
		t.Error("dead session must stay dead without restart")
	}
	types := feedTypes(got)
	if types[len(types)-2] != world.FeedGameOver {
		t.Errorf("expected game_over re-emit, feed = %v", types)
	}
}

func TestOrchestrator_Restart(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)
	ws.Player.Alive = false
	ws.TurnCount = 9
	ws.ChaosLevel = 7
	if err := store.SaveWorldState(context.Background(), ws); err != nil {
		t.Fatal(err)
	}

	o := NewOrchestrator(store, scriptedLLM(happyScript), testLogger())
	if err := o.ProcessTurn(context.Background(), ws.ID, world.RestartChoiceLabel); err != nil {
		t.Fatal(err)
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if got.ID != ws.ID {
		t.Error("restart must keep the session ID")
	}
	if !got.Player.Alive || got.TurnCount != 0 || got.ChaosLevel != 0 {
		t.Errorf("restart state: %+v", got)
	}
	types := feedTypes(got)
	if len(types) != 2 || types[0] != world.FeedNarrative || types[1] != world.FeedChoicePrompt {
		t.Errorf("restart feed = %v", types)
	}
	hist, err := store.History(context.Background(), ws.ID, 0)
	if err != nil || len(hist) != 0 {
		t.Errorf("restart must clear history, got %v, %v", hist, err)
	}
}

func TestOrchestrator_ThreatEntersCombat(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)

	script := happyScript
	script.dispatch = `{"dispatch": "Something lunges from between the sheds.", "player_alive": true, "scene": "a tall figure"}`
	o := NewOrchestrator(store, scriptedLLM(script), testLogger())

	if err := o.ProcessTurn(context.Background(), ws.ID, "Walk toward the sheds"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if !got.InCombat {
		t.Fatal("threat dispatch must enter combat")
	}
	if got.ChaosLevel != 1 {
		t.Errorf("threat must escalate chaos, got %d", got.ChaosLevel)
	}
	if got.TurnCount != 0 {
		t.Errorf("combat entry must not advance turn count, got %d", got.TurnCount)
	}

	last := got.Feed[len(got.Feed)-1]
	if last.Type != world.FeedChoicePrompt || len(last.Choices) != len(CombatChoices) {
		t.Errorf("combat prompt = %+v", last)
	}
	// No consequence entry: evolution is skipped on combat entry.
	for _, ft := range feedTypes(got) {
		if ft == world.FeedConsequence {
			t.Error("evolution must be skipped when combat starts")
		}
	}
}

func TestOrchestrator_CombatLossLoopToDeath(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)
	ws.InCombat = true
	ws.Threat = "tall figure"
	if err := store.SaveWorldState(context.Background(), ws); err != nil {
		t.Fatal(err)
	}

	o := NewOrchestrator(store, scriptedLLM(happyScript), testLogger())
	o.Roll = func() float64 { return 0.99 } // every attack misses

	scen := scenario.Default()
	health := scen.Survivor.MaxHP
	rounds := 0
	for {
		if err := o.ProcessTurn(context.Background(), ws.ID, "Attack the threat"); err != nil {
			t.Fatal(err)
		}
		got, _ := store.LoadWorldState(context.Background(), ws.ID)
		rounds++

		if !got.Player.Alive {
			if got.Player.Health != 0 {
				t.Errorf("dead player health = %d", got.Player.Health)
			}
			types := feedTypes(got)
			if types[len(types)-2] != world.FeedGameOver {
				t.Errorf("feed = %v", types)
			}
			break
		}

		health -= scen.ThreatDamage
		if got.Player.Health != health {
			t.Fatalf("round %d health = %d, want %d", rounds, got.Player.Health, health)
		}
		if !got.InCombat {
			t.Fatal("failed attack must stay in combat")
		}
		if got.TurnCount != 0 {
			t.Fatal("failed attack must not advance turn count")
		}
		last := got.Feed[len(got.Feed)-1]
		if last.Type != world.FeedChoicePrompt {
			t.Fatalf("expected re-emitted combat prompt, got %s", last.Type)
		}
		if rounds > 10 {
			t.Fatal("combat loop never terminated")
		}
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if got.TurnCount != 0 {
		t.Errorf("combat losses advanced turn count to %d", got.TurnCount)
	}
}

func TestOrchestrator_CombatWinExits(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)
	ws.InCombat = true
	ws.Threat = "tall figure"
	if err := store.SaveWorldState(context.Background(), ws); err != nil {
		t.Fatal(err)
	}

	o := NewOrchestrator(store, scriptedLLM(happyScript), testLogger())
	o.Roll = func() float64 { return 0.1 } // attack lands

	if err := o.ProcessTurn(context.Background(), ws.ID, "Attack the threat"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if got.InCombat || got.Threat != "" {
		t.Error("won combat must exit the sub-state")
	}
	if got.TurnCount != 1 {
		t.Errorf("TurnCount = %d, want 1", got.TurnCount)
	}
}

func TestOrchestrator_FleeAlwaysSucceeds(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)
	ws.InCombat = true
	ws.Threat = "tall figure"
	if err := store.SaveWorldState(context.Background(), ws); err != nil {
		t.Fatal(err)
	}

	o := NewOrchestrator(store, scriptedLLM(happyScript), testLogger())
	o.Roll = func() float64 { return 0.99 } // roll must not matter

	if err := o.ProcessTurn(context.Background(), ws.ID, "Try to disengage"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if got.InCombat {
		t.Error("disengage must always succeed")
	}
	if got.Player.Health != scenario.Default().Survivor.MaxHP {
		t.Errorf("flee must not cost health, got %d", got.Player.Health)
	}
	if got.TurnCount != 1 {
		t.Errorf("TurnCount = %d, want 1", got.TurnCount)
	}
}

func TestOrchestrator_CombatExitHistoryEntry(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)
	ws.InCombat = true
	ws.Threat = "tall figure"
	if err := store.SaveWorldState(context.Background(), ws); err != nil {
		t.Fatal(err)
	}
	contextBefore := ws.Context.Render()

	script := happyScript
	script.evolution = "" // stagnant world leaves the context untouched
	o := NewOrchestrator(store, scriptedLLM(script), testLogger())
	o.Roll = func() float64 { return 0.99 }

	if err := o.ProcessTurn(context.Background(), ws.ID, "Try to disengage"); err != nil {
		t.Fatal(err)
	}

	hist, err := store.History(context.Background(), ws.ID, 0)
	if err != nil || len(hist) != 1 {
		t.Fatalf("history = %v, %v", hist, err)
	}
	entry := hist[0]
	if entry.Choice != "Try to disengage" {
		t.Errorf("history choice = %q", entry.Choice)
	}
	if !strings.Contains(entry.Dispatch, "tear yourself away") {
		t.Errorf("history dispatch must record the combat exit, got %q", entry.Dispatch)
	}
	if entry.ContextBefore != contextBefore {
		t.Errorf("ContextBefore = %q, want %q", entry.ContextBefore, contextBefore)
	}
}

func TestOrchestrator_RiskyActionRollsChaos(t *testing.T) {
	tests := []struct {
		name      string
		roll      float64
		wantChaos int
	}{
		{"bad roll escalates", 0.2, 2},
		{"good roll releases", 0.8, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMockStore()
			ws := newSession(t, store)
			ws.SetChaos(1)
			if err := store.SaveWorldState(context.Background(), ws); err != nil {
				t.Fatal(err)
			}

			o := NewOrchestrator(store, scriptedLLM(happyScript), testLogger())
			o.Roll = func() float64 { return tt.roll }

			if err := o.ProcessTurn(context.Background(), ws.ID, "Climb the fence"); err != nil {
				t.Fatal(err)
			}

			got, _ := store.LoadWorldState(context.Background(), ws.ID)
			if got.ChaosLevel != tt.wantChaos {
				t.Errorf("chaos = %d, want %d", got.ChaosLevel, tt.wantChaos)
			}
			if feedTypes(got)[0] != world.FeedNarrative {
				t.Errorf("risky flavor entry missing: %v", feedTypes(got))
			}
		})
	}
}

func TestOrchestrator_StagnantEvolutionBumpsChaos(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)

	script := happyScript
	script.evolution = "" // stagnant world
	o := NewOrchestrator(store, scriptedLLM(script), testLogger())
	o.Roll = func() float64 { return 0.9 }

	if err := o.ProcessTurn(context.Background(), ws.ID, "Open the shed"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if got.ChaosLevel != 1 {
		t.Errorf("chaos = %d, want 1", got.ChaosLevel)
	}
	if len(got.Context.RecentEvents) != 0 {
		t.Errorf("context must stay untouched on stagnation: %v", got.Context.RecentEvents)
	}
	for _, ft := range feedTypes(got) {
		if ft == world.FeedConsequence {
			t.Error("no consequence entry expected on stagnation")
		}
	}
	if got.TurnCount != 1 {
		t.Errorf("stagnant turn still completes, TurnCount = %d", got.TurnCount)
	}
}

func TestOrchestrator_SceneImagePhase(t *testing.T) {
	store := storage.NewMockStore()
	ws := newSession(t, store)

	imgStore, err := services.NewImageStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	o := NewOrchestrator(store, scriptedLLM(happyScript), testLogger())
	o.Roll = func() float64 { return 0.9 }
	o.Images = imgStore
	o.ImageGen = &services.MockImageService{}

	if err := o.ProcessTurn(context.Background(), ws.ID, "Open the shed"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.LoadWorldState(context.Background(), ws.ID)
	if got.CurrentImage == "" {
		t.Fatal("expected a generated scene image")
	}
	found := false
	for _, e := range got.Feed {
		if e.Type == world.FeedSceneImage && e.Image == got.CurrentImage {
			found = true
		}
	}
	if !found {
		t.Errorf("scene_image feed entry missing: %v", feedTypes(got))
	}

	data, err := imgStore.Load(got.CurrentImage)
	if err != nil || data == nil {
		t.Errorf("stored image unreadable: %v", err)
	}
}

func TestOrchestrator_MissingSession(t *testing.T) {
	store := storage.NewMockStore()
	o := NewOrchestrator(store, services.NewMockLLM(), testLogger())

	ws := world.NewWorldState("", "x", 10)
	if err := o.ProcessTurn(context.Background(), ws.ID, "Wait"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestResolveCombat(t *testing.T) {
	tests := []struct {
		action  string
		roll    float64
		verb    classify.Verb
		success bool
	}{
		{"Attack the threat", 0.1, classify.VerbAttack, true},
		{"Attack the threat", 0.9, classify.VerbAttack, false},
		{"Try to disengage", 0.9, classify.VerbFlee, true},
		{"Run for the gate", 0.9, classify.VerbFlee, true},
		{"Throw a rock at it", 0.5, classify.VerbAttack, true},
	}

	for _, tt := range tests {
		got := ResolveCombat(tt.action, 0.6, func() float64 { return tt.roll })
		if got.Verb != tt.verb || got.Success != tt.success {
			t.Errorf("ResolveCombat(%q, roll=%v) = %+v", tt.action, tt.roll, got)
		}
	}
}

func TestApplyThreatDamage(t *testing.T) {
	spec := scenario.Default().Survivor

	if got := applyThreatDamage(spec, 10, 3); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
	if got := applyThreatDamage(spec, 2, 3); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}
