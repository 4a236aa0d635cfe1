package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
)

func testSnapshot() models.Snapshot {
	return models.Snapshot{
		Events: models.EventList{
			models.TimedEvent{
				ID: "ev-1", Summary: "Standup",
				Start: time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 6, 10, 10, 30, 0, 0, time.UTC),
			},
			models.AllDayEvent{ID: "ev-2", Summary: "Feriado", Date: "2024-06-12"},
		},
		Tasks:      []models.Task{{ID: "t-1", Title: "Pagar conta"}},
		BoardCards: []models.Card{{ID: "c-1", Name: "Revisar doc", ListName: "A Fazer", ShortURL: "https://trello.com/c/abc"}},
	}
}

func TestLoadMissingFileStartsEmptyAndNeedsRefresh(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.json"), 2*time.Hour)

	assert.True(t, s.Load())

	snap := s.Read()
	assert.Empty(t, snap.Events)
	assert.Nil(t, snap.LastUpdate)
}

func TestLoadCorruptFileStartsEmptyAndNeedsRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewStore(path, 2*time.Hour)
	assert.True(t, s.Load())
	assert.Nil(t, s.Read().LastUpdate)
}

func TestReplacePersistsAndRoundTripsTheEventUnion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	writer := NewStore(path, 2*time.Hour)
	writer.Replace(testSnapshot())

	reader := NewStore(path, 2*time.Hour)
	assert.False(t, reader.Load(), "a just-written snapshot is fresh")

	snap := reader.Read()
	require.Len(t, snap.Events, 2)
	timed, ok := snap.Events[0].(models.TimedEvent)
	require.True(t, ok)
	assert.Equal(t, "Standup", timed.Summary)
	allDay, ok := snap.Events[1].(models.AllDayEvent)
	require.True(t, ok)
	assert.Equal(t, "2024-06-12", allDay.Date)
	assert.Equal(t, "Pagar conta", snap.Tasks[0].Title)
	assert.Equal(t, "A Fazer", snap.BoardCards[0].ListName)
	require.NotNil(t, snap.LastUpdate)
}

func TestLoadFlagsStaleness(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		age       time.Duration
		wantStale bool
	}{
		{"older than threshold", 121 * time.Minute, true},
		{"within threshold", 60 * time.Minute, false},
		{"exactly at threshold", 120 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "snapshot.json")

			writer := NewStore(path, 2*time.Hour)
			writer.now = func() time.Time { return now.Add(-tt.age) }
			writer.Replace(testSnapshot())

			reader := NewStore(path, 2*time.Hour)
			reader.now = func() time.Time { return now }
			assert.Equal(t, tt.wantStale, reader.Load())
		})
	}
}

func TestPatchTouchesOnlyItsDomain(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "snapshot.json"), 2*time.Hour)
	s.Replace(testSnapshot())
	before := s.Read()

	newCards := []models.Card{{ID: "c-2", Name: "Nova", ListName: "To Do"}}
	s.PatchBoardCards(newCards)

	after := s.Read()
	assert.Equal(t, before.Events, after.Events)
	assert.Equal(t, before.Tasks, after.Tasks)
	assert.Equal(t, newCards, after.BoardCards)
	assert.False(t, after.LastUpdate.Before(*before.LastUpdate))
}

func TestLastUpdateIsMonotonic(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "snapshot.json"), 2*time.Hour)

	s.Replace(testSnapshot())
	first := s.Read().LastUpdate
	s.PatchTasks([]models.Task{{ID: "t-2", Title: "Outra"}})
	second := s.Read().LastUpdate
	s.PatchEvents(nil)
	third := s.Read().LastUpdate

	assert.False(t, second.Before(*first))
	assert.False(t, third.Before(*second))
}

func TestPersistNeverLeavesAPartialDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	s := NewStore(path, 2*time.Hour)
	for i := 0; i < 10; i++ {
		s.Replace(testSnapshot())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not outlive the rename")
	assert.Equal(t, "snapshot.json", entries[0].Name())

	reader := NewStore(path, 2*time.Hour)
	reader.Load()
	assert.Len(t, reader.Read().Events, 2)
}

func TestReadReturnsValueCopy(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "snapshot.json"), 2*time.Hour)
	s.Replace(testSnapshot())

	got := s.Read()
	got.Tasks = nil

	assert.NotEmpty(t, s.Read().Tasks, "mutating a read copy must not touch the store")
}
