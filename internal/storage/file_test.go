package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dreadlabs/dread-engine/pkg/world"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewFileStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ws := world.NewWorldState("outpost.yaml", "A desert outpost at dusk.", 10)
	ws.AppendFeed(world.FeedPlayerAction, "Search the shed")

	if err := store.SaveWorldState(ctx, ws); err != nil {
		t.Fatalf("SaveWorldState: %v", err)
	}
	if ws.Version != 1 {
		t.Errorf("Version = %d, want 1", ws.Version)
	}
	if ws.LastSaved.IsZero() {
		t.Error("LastSaved not stamped")
	}

	loaded, err := store.LoadWorldState(ctx, ws.ID)
	if err != nil {
		t.Fatalf("LoadWorldState: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadWorldState returned nil for existing session")
	}
	if loaded.Context.Core != ws.Context.Core {
		t.Errorf("Context.Core = %q", loaded.Context.Core)
	}
	if len(loaded.Feed) != 1 || loaded.Feed[0].Type != world.FeedPlayerAction {
		t.Errorf("feed not persisted: %+v", loaded.Feed)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)
	ws, err := store.LoadWorldState(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("LoadWorldState: %v", err)
	}
	if ws != nil {
		t.Error("missing session should load as nil")
	}
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	store := newTestStore(t)
	id := uuid.New()
	if err := os.WriteFile(store.sessionPath(id), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	ws, err := store.LoadWorldState(context.Background(), id)
	if err != nil {
		t.Fatalf("corrupt file must not error: %v", err)
	}
	if ws == nil {
		t.Fatal("corrupt file should yield a default document")
	}
	if ws.ID != id {
		t.Errorf("default document ID = %s, want %s", ws.ID, id)
	}
	if !ws.Player.Alive || ws.Player.Health != world.DefaultHealth {
		t.Errorf("default document player = %+v", ws.Player)
	}
}

func TestFileStore_LoadAppliesDefaults(t *testing.T) {
	store := newTestStore(t)
	id := uuid.New()
	// Valid JSON with most keys missing.
	doc := `{"id":"` + id.String() + `","player":{"alive":true}}`
	if err := os.WriteFile(store.sessionPath(id), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	ws, err := store.LoadWorldState(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadWorldState: %v", err)
	}
	if ws.Player.Health != world.DefaultHealth {
		t.Errorf("Health = %d, want default", ws.Player.Health)
	}
	if ws.Phase != world.PhaseNormal {
		t.Errorf("Phase = %s", ws.Phase)
	}
	if ws.NextFeedID != 1 {
		t.Errorf("NextFeedID = %d", ws.NextFeedID)
	}
}

func TestFileStore_AtomicReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ws := world.NewWorldState("", "core", 10)

	for i := 0; i < 5; i++ {
		ws.AppendFeed(world.FeedNarrative, "event")
		if err := store.SaveWorldState(ctx, ws); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(store.dataDir, "sessions"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			t.Errorf("leftover file after atomic save: %s", e.Name())
		}
	}
	if ws.Version != 5 {
		t.Errorf("Version = %d, want 5", ws.Version)
	}
}

func TestFileStore_DeleteWorldState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ws := world.NewWorldState("", "core", 10)

	if err := store.SaveWorldState(ctx, ws); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendHistory(ctx, ws.ID, HistoryEntry{Choice: "x", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteWorldState(ctx, ws.ID); err != nil {
		t.Fatalf("DeleteWorldState: %v", err)
	}

	loaded, err := store.LoadWorldState(ctx, ws.ID)
	if err != nil || loaded != nil {
		t.Errorf("session should be gone, got %v, %v", loaded, err)
	}
	hist, err := store.History(ctx, ws.ID, 0)
	if err != nil || len(hist) != 0 {
		t.Errorf("history should be gone, got %v, %v", hist, err)
	}

	// Deleting a missing session is not an error.
	if err := store.DeleteWorldState(ctx, uuid.New()); err != nil {
		t.Errorf("deleting missing session: %v", err)
	}
}

func TestFileStore_HistoryAppendAndWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	for i := 0; i < 7; i++ {
		entry := HistoryEntry{
			Choice:    "choice",
			Dispatch:  "dispatch",
			Timestamp: time.Now().UTC(),
		}
		if err := store.AppendHistory(ctx, id, entry); err != nil {
			t.Fatalf("AppendHistory %d: %v", i, err)
		}
	}

	all, err := store.History(ctx, id, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(all) != 7 {
		t.Errorf("len(all) = %d, want 7", len(all))
	}

	last3, err := store.History(ctx, id, 3)
	if err != nil {
		t.Fatalf("History(3): %v", err)
	}
	if len(last3) != 3 {
		t.Errorf("len(last3) = %d, want 3", len(last3))
	}
}

func TestFileStore_LockSessionSerializes(t *testing.T) {
	store := newTestStore(t)
	id := uuid.New()

	unlock := store.LockSession(id)
	acquired := make(chan struct{})
	go func() {
		u := store.LockSession(id)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func TestHistoryEntry_Condensed(t *testing.T) {
	entry := HistoryEntry{Choice: "Search the shed", Dispatch: "You find a rusted key."}
	want := "Search the shed -> You find a rusted key."
	if got := entry.Condensed(); got != want {
		t.Errorf("Condensed() = %q, want %q", got, want)
	}
}
