package world

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestPhaseForChaos(t *testing.T) {
	tests := []struct {
		level int
		want  Phase
	}{
		{0, PhaseNormal},
		{2, PhaseNormal},
		{3, PhaseEscalating},
		{5, PhaseEscalating},
		{6, PhaseCritical},
		{12, PhaseCritical},
	}
	for _, tt := range tests {
		if got := PhaseForChaos(tt.level); got != tt.want {
			t.Errorf("PhaseForChaos(%d) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestNewWorldState(t *testing.T) {
	ws := NewWorldState("outpost.yaml", "A desert outpost at dusk.", 0)

	if !ws.Player.Alive {
		t.Error("new state should have a living player")
	}
	if ws.Player.Health != DefaultHealth {
		t.Errorf("Player.Health = %d, want %d", ws.Player.Health, DefaultHealth)
	}
	if ws.TurnCount != 0 {
		t.Errorf("TurnCount = %d, want 0", ws.TurnCount)
	}
	if ws.Context.Core != "A desert outpost at dusk." {
		t.Errorf("Context.Core = %q", ws.Context.Core)
	}
	if ws.Phase != PhaseNormal {
		t.Errorf("Phase = %s, want %s", ws.Phase, PhaseNormal)
	}
	if ws.NextFeedID != 1 {
		t.Errorf("NextFeedID = %d, want 1", ws.NextFeedID)
	}
}

func TestApplyDefaults_MissingKeys(t *testing.T) {
	// Simulate a legacy document missing most keys.
	raw := `{"narrative_context":{"core":"desert outpost"},"player":{"alive":true}}`
	var ws WorldState
	if err := json.Unmarshal([]byte(raw), &ws); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ws.ApplyDefaults()

	if ws.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("ApplyDefaults should assign an ID")
	}
	if ws.Player.Health != DefaultHealth {
		t.Errorf("Player.Health = %d, want %d", ws.Player.Health, DefaultHealth)
	}
	if ws.Phase != PhaseNormal {
		t.Errorf("Phase = %s, want %s", ws.Phase, PhaseNormal)
	}
	if ws.NextFeedID != 1 {
		t.Errorf("NextFeedID = %d, want 1", ws.NextFeedID)
	}
	if ws.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestUnmarshal_PlayerKeyHandling(t *testing.T) {
	// A document with no player object loads as a living survivor.
	var ws WorldState
	if err := json.Unmarshal([]byte(`{"narrative_context":{"core":"desert outpost"}}`), &ws); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ws.Player.Alive || ws.Player.Health != DefaultHealth {
		t.Errorf("Player = %+v, want living defaults", ws.Player)
	}

	// An explicit dead player is terminal state and must survive the reload.
	var dead WorldState
	if err := json.Unmarshal([]byte(`{"player":{"alive":false,"health":0}}`), &dead); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if dead.Player.Alive || dead.Player.Health != 0 {
		t.Errorf("Player = %+v, want dead state preserved", dead.Player)
	}
}

func TestApplyDefaults_FeedIDRecovery(t *testing.T) {
	ws := WorldState{
		Feed: []FeedEntry{{ID: 3}, {ID: 7}},
	}
	ws.ApplyDefaults()
	if ws.NextFeedID != 8 {
		t.Errorf("NextFeedID = %d, want 8", ws.NextFeedID)
	}
}

func TestAppendFeed_MonotonicAndBounded(t *testing.T) {
	ws := NewWorldState("", "core", 10)

	for i := 0; i < FeedLimit+25; i++ {
		ws.AppendFeed(FeedNarrative, fmt.Sprintf("event %d", i))
	}

	if len(ws.Feed) != FeedLimit {
		t.Fatalf("feed length = %d, want %d", len(ws.Feed), FeedLimit)
	}
	// Newest entries survive; oldest dropped first.
	if ws.Feed[len(ws.Feed)-1].Text != fmt.Sprintf("event %d", FeedLimit+24) {
		t.Errorf("last entry = %q", ws.Feed[len(ws.Feed)-1].Text)
	}
	for i := 1; i < len(ws.Feed); i++ {
		if ws.Feed[i].ID != ws.Feed[i-1].ID+1 {
			t.Fatalf("feed IDs not monotonic at index %d", i)
		}
	}
}

func TestFeedAfter(t *testing.T) {
	ws := NewWorldState("", "core", 10)
	ws.AppendFeed(FeedPlayerAction, "one")
	ws.AppendFeed(FeedNarrative, "two")
	ws.AppendFeed(FeedConsequence, "three")

	got := ws.FeedAfter(1)
	if len(got) != 2 {
		t.Fatalf("FeedAfter(1) returned %d entries, want 2", len(got))
	}
	if got[0].Text != "two" || got[1].Text != "three" {
		t.Errorf("FeedAfter(1) = %q, %q", got[0].Text, got[1].Text)
	}
	if len(ws.FeedAfter(3)) != 0 {
		t.Error("FeedAfter(last) should be empty")
	}
}

func TestRememberChoices_Bounded(t *testing.T) {
	ws := NewWorldState("", "core", 10)
	for i := 0; i < 5; i++ {
		ws.RememberChoices([]string{
			fmt.Sprintf("choice %d a", i),
			fmt.Sprintf("choice %d b", i),
		})
	}
	if len(ws.RecentChoices) != RecentChoiceLimit {
		t.Fatalf("RecentChoices length = %d, want %d", len(ws.RecentChoices), RecentChoiceLimit)
	}
	if ws.RecentChoices[len(ws.RecentChoices)-1] != "choice 4 b" {
		t.Errorf("newest choice = %q", ws.RecentChoices[len(ws.RecentChoices)-1])
	}
}

func TestRememberElements_BoundedAndDeduped(t *testing.T) {
	ws := NewWorldState("", "core", 10)
	ws.RememberElements([]string{"key", "door", "key", ""})
	if len(ws.SeenElements) != 2 {
		t.Fatalf("SeenElements = %v, want 2 unique entries", ws.SeenElements)
	}

	for i := 0; i < SeenElementLimit+10; i++ {
		ws.RememberElements([]string{fmt.Sprintf("element-%d", i)})
	}
	if len(ws.SeenElements) != SeenElementLimit {
		t.Errorf("SeenElements length = %d, want %d", len(ws.SeenElements), SeenElementLimit)
	}
}

func TestNarrativeContext_PushOverflow(t *testing.T) {
	nc := NarrativeContext{Core: "core premise"}

	for i := 0; i < RecentEventLimit; i++ {
		if overflow := nc.Push(fmt.Sprintf("event %d", i)); overflow != nil {
			t.Fatalf("unexpected overflow at event %d: %v", i, overflow)
		}
	}

	overflow := nc.Push("one more")
	if len(overflow) != 1 || overflow[0] != "event 0" {
		t.Fatalf("overflow = %v, want [event 0]", overflow)
	}
	if len(nc.RecentEvents) != RecentEventLimit {
		t.Errorf("buffer length = %d, want %d", len(nc.RecentEvents), RecentEventLimit)
	}
	if nc.Latest() != "one more" {
		t.Errorf("Latest() = %q", nc.Latest())
	}
}

func TestNarrativeContext_Render(t *testing.T) {
	nc := NarrativeContext{Core: "A desert outpost."}
	nc.Push("A rusted key glints in your palm.")
	want := "A desert outpost. A rusted key glints in your palm."
	if got := nc.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestSetChaos(t *testing.T) {
	ws := NewWorldState("", "core", 10)
	ws.SetChaos(-2)
	if ws.ChaosLevel != 0 {
		t.Errorf("ChaosLevel = %d, want 0", ws.ChaosLevel)
	}
	ws.SetChaos(7)
	if ws.Phase != PhaseCritical {
		t.Errorf("Phase = %s, want %s", ws.Phase, PhaseCritical)
	}
}

func TestDeepCopy(t *testing.T) {
	ws := NewWorldState("outpost.yaml", "core", 10)
	ws.AppendFeed(FeedPlayerAction, "Search the shed")

	cp, err := ws.DeepCopy()
	if err != nil {
		t.Fatalf("DeepCopy: %v", err)
	}
	cp.Feed[0].Text = "mutated"
	cp.SetChaos(9)

	if ws.Feed[0].Text != "Search the shed" {
		t.Error("copy mutation leaked into original feed")
	}
	if ws.ChaosLevel != 0 {
		t.Error("copy mutation leaked into original chaos level")
	}
}
