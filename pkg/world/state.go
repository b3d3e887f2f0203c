package world

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Bounds for the lists carried inside a WorldState document. Insertion is
// always append; trimming always removes the oldest entries first.
const (
	FeedLimit          = 200
	RecentChoiceLimit  = 6
	SeenElementLimit   = 40
	RecentEventLimit   = 8
	DefaultHealth      = 10
	DefaultChaosLevel  = 0
	RestartChoiceLabel = "Restart Simulation"
)

// Phase is the tension tier derived from the chaos level. It biases how
// eventful and dangerous future turns are.
type Phase string

const (
	PhaseNormal     Phase = "normal"
	PhaseEscalating Phase = "escalating"
	PhaseCritical   Phase = "critical"
)

// PhaseForChaos maps a chaos level to its tension tier.
func PhaseForChaos(level int) Phase {
	switch {
	case level >= 6:
		return PhaseCritical
	case level >= 3:
		return PhaseEscalating
	default:
		return PhaseNormal
	}
}

// PlayerState tracks the survivor's vitals. Alive=false is terminal.
type PlayerState struct {
	Alive  bool `json:"alive"`
	Health int  `json:"health"`
}

// NarrativeContext holds "what is currently true" in the fiction as a fixed
// core premise plus a bounded rolling buffer of recent situation summaries.
// The buffer keeps evolution accumulative instead of replacing accumulated
// world detail with each turn's one-line output.
type NarrativeContext struct {
	Core         string   `json:"core"`
	RecentEvents []string `json:"recent_events,omitempty"`
}

// Push appends an event to the rolling buffer and returns any events that
// overflowed the bound, oldest first, for the caller to condense into Core.
func (nc *NarrativeContext) Push(event string) []string {
	nc.RecentEvents = append(nc.RecentEvents, event)
	if len(nc.RecentEvents) <= RecentEventLimit {
		return nil
	}
	overflow := nc.RecentEvents[:len(nc.RecentEvents)-RecentEventLimit]
	nc.RecentEvents = append([]string(nil), nc.RecentEvents[len(nc.RecentEvents)-RecentEventLimit:]...)
	return overflow
}

// Render joins the core premise and recent events into the single context
// string consumed by generation calls.
func (nc NarrativeContext) Render() string {
	out := nc.Core
	for _, ev := range nc.RecentEvents {
		if out != "" {
			out += " "
		}
		out += ev
	}
	return out
}

// Latest returns the most recent event in the buffer, or the core premise
// when the buffer is empty.
func (nc NarrativeContext) Latest() string {
	if len(nc.RecentEvents) > 0 {
		return nc.RecentEvents[len(nc.RecentEvents)-1]
	}
	return nc.Core
}

// WorldState is the single mutable document representing a session's ground
// truth. Exactly one writer may mutate it at a time; read-modify-write
// cycles run under the store's per-session lock.
type WorldState struct {
	ID        uuid.UUID `json:"id"`
	Scenario  string    `json:"scenario,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastSaved time.Time `json:"last_saved"`
	Version   int       `json:"version"`

	Context    NarrativeContext `json:"narrative_context"`
	ChaosLevel int              `json:"chaos_level"`
	Phase      Phase            `json:"phase"`
	Player     PlayerState      `json:"player"`
	InCombat   bool             `json:"in_combat"`
	Threat     string           `json:"threat,omitempty"`
	TurnCount  int              `json:"turn_count"`

	RecentChoices []string `json:"recent_choices,omitempty"`
	SeenElements  []string `json:"seen_elements,omitempty"`

	Feed       []FeedEntry `json:"feed,omitempty"`
	NextFeedID int         `json:"next_feed_id"`

	CurrentImage   string `json:"current_image,omitempty"`
	SpatialContext string `json:"spatial_context,omitempty"`
	LastChoice     string `json:"last_choice,omitempty"`
}

// NewWorldState creates a fresh session document with zeroed counters and
// the scenario's opening context as the narrative core.
func NewWorldState(scenarioName, openingContext string, health int) *WorldState {
	if health <= 0 {
		health = DefaultHealth
	}
	now := time.Now().UTC()
	return &WorldState{
		ID:         uuid.New(),
		Scenario:   scenarioName,
		CreatedAt:  now,
		UpdatedAt:  now,
		Context:    NarrativeContext{Core: openingContext},
		ChaosLevel: DefaultChaosLevel,
		Phase:      PhaseNormal,
		Player:     PlayerState{Alive: true, Health: health},
		NextFeedID: 1,
	}
}

// UnmarshalJSON distinguishes a document with no player object from one
// recording a dead player: an absent key gets the living defaults, while an
// explicit alive=false survives the reload.
func (ws *WorldState) UnmarshalJSON(data []byte) error {
	type plain WorldState
	aux := struct {
		Player *PlayerState `json:"player"`
		*plain
	}{plain: (*plain)(ws)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Player != nil {
		ws.Player = *aux.Player
	} else {
		ws.Player = PlayerState{Alive: true, Health: DefaultHealth}
	}
	return nil
}

// ApplyDefaults fills in safe values for keys missing from a loaded
// document, tolerating partially-written and legacy files.
func (ws *WorldState) ApplyDefaults() {
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	if ws.NextFeedID <= 0 {
		next := 1
		for _, e := range ws.Feed {
			if e.ID >= next {
				next = e.ID + 1
			}
		}
		ws.NextFeedID = next
	}
	if ws.Player.Health <= 0 && ws.Player.Alive {
		ws.Player.Health = DefaultHealth
	}
	if ws.ChaosLevel < 0 {
		ws.ChaosLevel = 0
	}
	if ws.Phase == "" {
		ws.Phase = PhaseForChaos(ws.ChaosLevel)
	}
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now().UTC()
	}
}

// SetChaos clamps the chaos level at zero and keeps the phase in sync.
func (ws *WorldState) SetChaos(level int) {
	if level < 0 {
		level = 0
	}
	ws.ChaosLevel = level
	ws.Phase = PhaseForChaos(level)
}

// AppendFeed adds an entry to the feed log, assigning the next monotonic ID
// and pruning the oldest entries past the feed bound.
func (ws *WorldState) AppendFeed(t FeedType, text string) *FeedEntry {
	entry := FeedEntry{
		ID:        ws.NextFeedID,
		Type:      t,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	ws.NextFeedID++
	ws.Feed = append(ws.Feed, entry)
	if len(ws.Feed) > FeedLimit {
		ws.Feed = append([]FeedEntry(nil), ws.Feed[len(ws.Feed)-FeedLimit:]...)
	}
	return &ws.Feed[len(ws.Feed)-1]
}

// AppendChoicePrompt adds a player_choice_prompt feed entry carrying the
// offered choices.
func (ws *WorldState) AppendChoicePrompt(text string, choices []string) *FeedEntry {
	entry := ws.AppendFeed(FeedChoicePrompt, text)
	entry.Choices = append([]string(nil), choices...)
	return entry
}

// FeedAfter returns the feed entries with IDs strictly greater than the
// given ID, for incremental polling.
func (ws *WorldState) FeedAfter(id int) []FeedEntry {
	out := make([]FeedEntry, 0)
	for _, e := range ws.Feed {
		if e.ID > id {
			out = append(out, e)
		}
	}
	return out
}

// LastFeedID returns the highest assigned feed ID, or 0 for an empty feed.
func (ws *WorldState) LastFeedID() int {
	return ws.NextFeedID - 1
}

// RememberChoices records the offered choices for the next turn's
// anti-repetition check, trimming the oldest past the bound.
func (ws *WorldState) RememberChoices(choices []string) {
	ws.RecentChoices = append(ws.RecentChoices, choices...)
	if len(ws.RecentChoices) > RecentChoiceLimit {
		ws.RecentChoices = append([]string(nil), ws.RecentChoices[len(ws.RecentChoices)-RecentChoiceLimit:]...)
	}
}

// RememberElements records newly mentioned nouns and phrases for later
// choice grounding, deduplicating and trimming the oldest past the bound.
func (ws *WorldState) RememberElements(elements []string) {
	for _, el := range elements {
		if el == "" || ws.hasElement(el) {
			continue
		}
		ws.SeenElements = append(ws.SeenElements, el)
	}
	if len(ws.SeenElements) > SeenElementLimit {
		ws.SeenElements = append([]string(nil), ws.SeenElements[len(ws.SeenElements)-SeenElementLimit:]...)
	}
}

func (ws *WorldState) hasElement(el string) bool {
	for _, e := range ws.SeenElements {
		if e == el {
			return true
		}
	}
	return false
}

// DeepCopy returns an independent copy of the world state, for handing to
// background goroutines without data races.
func (ws *WorldState) DeepCopy() (*WorldState, error) {
	data, err := json.Marshal(ws)
	if err != nil {
		return nil, err
	}
	var cp WorldState
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
