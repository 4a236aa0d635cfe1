// Package snapshot owns the in-memory read model and its on-disk mirror.
// The in-memory value is the source of truth for a running process; the
// persisted document is a best-effort recovery aid.
package snapshot

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
	"go.uber.org/zap"
)

type Store struct {
	path      string
	staleness time.Duration

	mu  sync.RWMutex
	cur models.Snapshot

	// persistMu serializes document writes so concurrent Replace/Patch
	// calls cannot interleave their temp files.
	persistMu sync.Mutex

	now func() time.Time
}

func NewStore(path string, staleness time.Duration) *Store {
	return &Store{
		path:      path,
		staleness: staleness,
		now:       time.Now,
	}
}

// Load reads the persisted document into memory. It returns true when the
// caller should trigger a refresh: the file was missing or corrupt, the
// snapshot was never populated, or it is older than the staleness threshold.
// Load never fails; a broken mirror degrades to an empty snapshot.
func (s *Store) Load() (needsRefresh bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			zap.L().Error("Failed to read snapshot document", zap.String("path", s.path), zap.Error(err))
		}
		s.swap(models.Snapshot{})
		return true
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		zap.L().Error("Corrupt snapshot document, starting empty", zap.String("path", s.path), zap.Error(err))
		s.swap(models.Snapshot{})
		return true
	}

	s.swap(snap)

	if snap.LastUpdate == nil {
		return true
	}
	age := s.now().Sub(*snap.LastUpdate)
	if age > s.staleness {
		zap.L().Info("Loaded snapshot is stale", zap.Duration("age", age))
		return true
	}
	return false
}

// Replace swaps the whole snapshot and advances LastUpdate, then mirrors it
// to disk. A write failure is logged but does not roll back the swap.
func (s *Store) Replace(snap models.Snapshot) {
	now := s.now()
	snap.LastUpdate = &now
	s.swap(snap)
	s.persist()
}

// PatchEvents replaces only the events field and advances LastUpdate.
func (s *Store) PatchEvents(events models.EventList) {
	now := s.now()
	s.mu.Lock()
	s.cur.Events = events
	s.cur.LastUpdate = &now
	s.mu.Unlock()
	s.persist()
}

// PatchTasks replaces only the tasks field and advances LastUpdate.
func (s *Store) PatchTasks(tasks []models.Task) {
	now := s.now()
	s.mu.Lock()
	s.cur.Tasks = tasks
	s.cur.LastUpdate = &now
	s.mu.Unlock()
	s.persist()
}

// PatchBoardCards replaces only the board cards field and advances LastUpdate.
func (s *Store) PatchBoardCards(cards []models.Card) {
	now := s.now()
	s.mu.Lock()
	s.cur.BoardCards = cards
	s.cur.LastUpdate = &now
	s.mu.Unlock()
	s.persist()
}

// Read returns the current snapshot. It never blocks on I/O; consumers get a
// value copy and must treat the slices as read-only.
func (s *Store) Read() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) swap(snap models.Snapshot) {
	s.mu.Lock()
	s.cur = snap
	s.mu.Unlock()
}

// persist writes the current snapshot wholesale via temp file + rename so a
// crash mid-write never leaves a partial document behind.
func (s *Store) persist() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	// Re-read inside the lock so the last write always carries the newest
	// in-memory state even when persists queue up.
	snap := s.Read()

	data, err := json.Marshal(snap)
	if err != nil {
		zap.L().Error("Failed to encode snapshot document", zap.Error(err))
		return
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		zap.L().Error("Failed to create snapshot directory", zap.String("dir", dir), zap.Error(err))
		return
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		zap.L().Error("Failed to create snapshot temp file", zap.Error(err))
		return
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		zap.L().Error("Failed to write snapshot document", zap.Error(err))
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		zap.L().Error("Failed to sync snapshot document", zap.Error(err))
		return
	}
	if err := tmp.Close(); err != nil {
		zap.L().Error("Failed to close snapshot temp file", zap.Error(err))
		return
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		zap.L().Error("Failed to replace snapshot document", zap.String("path", s.path), zap.Error(err))
	}
}
