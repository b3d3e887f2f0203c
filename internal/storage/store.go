package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dreadlabs/dread-engine/pkg/scenario"
	"github.com/dreadlabs/dread-engine/pkg/world"
)

// HistoryEntry is one completed turn in a session's append-only history
// log. History feeds continuity context back into generation calls; it is
// not a replay or undo mechanism.
type HistoryEntry struct {
	Choice        string    `json:"choice"`
	Dispatch      string    `json:"dispatch"`
	ContextBefore string    `json:"context_before"`
	ContextAfter  string    `json:"context_after"`
	Image         string    `json:"image,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Condensed renders the entry as a single prompt line.
func (h HistoryEntry) Condensed() string {
	return fmt.Sprintf("%s -> %s", h.Choice, h.Dispatch)
}

// Store is the persistence boundary for world state, turn history, and
// scenario definitions.
type Store interface {
	// LoadWorldState reads a session document. It returns (nil, nil) when
	// the session does not exist. A corrupt document is replaced by a safe
	// default rather than returned as an error.
	LoadWorldState(ctx context.Context, id uuid.UUID) (*world.WorldState, error)

	// SaveWorldState persists the document with atomic-replace semantics,
	// stamping LastSaved and incrementing Version.
	SaveWorldState(ctx context.Context, ws *world.WorldState) error

	// DeleteWorldState removes the session document and its history log.
	DeleteWorldState(ctx context.Context, id uuid.UUID) error

	// AppendHistory appends one completed turn to the session's history
	// log. Best-effort; not covered by the session lock.
	AppendHistory(ctx context.Context, id uuid.UUID, entry HistoryEntry) error

	// History returns the last n history entries, oldest first.
	History(ctx context.Context, id uuid.UUID, n int) ([]HistoryEntry, error)

	// GetScenario loads a scenario by filename. An empty name returns the
	// built-in default scenario.
	GetScenario(ctx context.Context, name string) (*scenario.Scenario, error)

	// ListScenarios maps scenario display names to filenames.
	ListScenarios(ctx context.Context) (map[string]string, error)

	// LockSession acquires the per-session mutual-exclusion lock and
	// returns the unlock function. The lock must be held for the full
	// read-modify-write span of a turn.
	LockSession(id uuid.UUID) func()

	Ping(ctx context.Context) error
	Close() error
}
