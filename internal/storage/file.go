package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreadlabs/dread-engine/pkg/scenario"
	"github.com/dreadlabs/dread-engine/pkg/world"
)

const (
	saveAttempts    = 3
	saveBackoffBase = 50 * time.Millisecond
)

// FileStore implements Store on top of the filesystem: one JSON document
// per session, one JSONL history log per session, and YAML scenario files.
type FileStore struct {
	dataDir string
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the data directories if needed.
func NewFileStore(dataDir string, logger *slog.Logger) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "./data"
	}
	for _, sub := range []string{"sessions", "scenarios", "media"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return &FileStore{
		dataDir: dataDir,
		logger:  logger,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}, nil
}

func (f *FileStore) sessionPath(id uuid.UUID) string {
	return filepath.Join(f.dataDir, "sessions", id.String()+".json")
}

func (f *FileStore) historyPath(id uuid.UUID) string {
	return filepath.Join(f.dataDir, "sessions", id.String()+".history.jsonl")
}

// LockSession returns the unlock func for the session's mutex, creating the
// mutex on first use.
func (f *FileStore) LockSession(id uuid.UUID) func() {
	f.mu.Lock()
	lock, ok := f.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[id] = lock
	}
	f.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (f *FileStore) LoadWorldState(ctx context.Context, id uuid.UUID) (*world.WorldState, error) {
	data, err := os.ReadFile(f.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var ws world.WorldState
	if err := json.Unmarshal(data, &ws); err != nil {
		// A partially-written or legacy file never fails the caller; it is
		// replaced with a safe default document.
		f.logger.Error("Corrupt session document, substituting default state",
			"session_id", id.String(), "error", err)
		ws = *world.NewWorldState("", "", world.DefaultHealth)
		ws.ID = id
		return &ws, nil
	}

	ws.ApplyDefaults()
	return &ws, nil
}

func (f *FileStore) SaveWorldState(ctx context.Context, ws *world.WorldState) error {
	now := time.Now().UTC()
	ws.UpdatedAt = now
	ws.LastSaved = now
	ws.Version++

	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal world state: %w", err)
	}

	path := f.sessionPath(ws.ID)
	backoff := saveBackoffBase
	var lastErr error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		lastErr = writeAtomic(path, data)
		if lastErr == nil {
			return nil
		}
		f.logger.Warn("World state save failed",
			"session_id", ws.ID.String(), "attempt", attempt, "error", lastErr)
		if attempt < saveAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	// Dump the full document for forensic recovery before giving up.
	f.logger.Error("World state save exhausted retries, dumping document",
		"session_id", ws.ID.String(), "error", lastErr, "document", string(data))
	return fmt.Errorf("failed to save world state after %d attempts: %w", saveAttempts, lastErr)
}

// writeAtomic writes to a temp file in the target directory and renames it
// over the destination.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (f *FileStore) DeleteWorldState(ctx context.Context, id uuid.UUID) error {
	// Remove the session's generated scene image before the state document
	// that names it.
	if ws, err := f.LoadWorldState(ctx, id); err == nil && ws != nil && ws.CurrentImage != "" {
		img := filepath.Join(f.dataDir, "media", filepath.Base(ws.CurrentImage))
		if err := os.Remove(img); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("Failed to remove session media", "path", img, "error", err)
		}
	}

	for _, path := range []string{f.sessionPath(id), f.historyPath(id)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	// The session mutex stays in the map: the restart path deletes and
	// recreates the document while holding it, and a fresh mutex here would
	// let a concurrent caller slip past that lock.
	return nil
}

func (f *FileStore) AppendHistory(ctx context.Context, id uuid.UUID, entry HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	file, err := os.OpenFile(f.historyPath(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history log: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (f *FileStore) History(ctx context.Context, id uuid.UUID, n int) ([]HistoryEntry, error) {
	file, err := os.Open(f.historyPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history log: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []HistoryEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			f.logger.Warn("Skipping malformed history line", "session_id", id.String(), "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history log: %w", err)
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func (f *FileStore) GetScenario(ctx context.Context, name string) (*scenario.Scenario, error) {
	if name == "" {
		return scenario.Default(), nil
	}
	return scenario.Load(filepath.Join(f.dataDir, "scenarios", name))
}

func (f *FileStore) ListScenarios(ctx context.Context) (map[string]string, error) {
	dir := filepath.Join(f.dataDir, "scenarios")
	scenarios := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		s, err := scenario.Load(path)
		if err != nil {
			f.logger.Warn("Skipping unreadable scenario file", "path", path, "error", err)
			return nil
		}
		scenarios[s.Name] = filepath.Base(path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	return scenarios, nil
}

func (f *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(f.dataDir); err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error {
	return nil
}
