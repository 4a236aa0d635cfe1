package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/conflict"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/refresh"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/snapshot"
)

type stubEventSource struct {
	events models.EventList
	err    error
}

func (s *stubEventSource) ListEvents(ctx context.Context, from, to time.Time) (models.EventList, error) {
	return s.events, s.err
}

type fakeCreator struct {
	created       []string
	allDayCreated []string
	err           error
}

func (f *fakeCreator) CreateEvent(ctx context.Context, summary string, start, end time.Time) (models.TimedEvent, error) {
	if f.err != nil {
		return models.TimedEvent{}, f.err
	}
	f.created = append(f.created, summary)
	return models.TimedEvent{ID: fmt.Sprintf("created-%d", len(f.created)), Summary: summary, Start: start, End: end}, nil
}

func (f *fakeCreator) CreateAllDayEvent(ctx context.Context, summary string, day time.Time) (models.AllDayEvent, error) {
	if f.err != nil {
		return models.AllDayEvent{}, f.err
	}
	f.allDayCreated = append(f.allDayCreated, summary)
	return models.AllDayEvent{ID: "created-allday", Summary: summary, Date: day.Format(time.DateOnly)}, nil
}

func testRouter(t *testing.T, calendarEvents models.EventList, creator *fakeCreator) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BookingRecord{}))

	store := snapshot.NewStore(filepath.Join(t.TempDir(), "snapshot.json"), 2*time.Hour)
	src := &stubEventSource{events: calendarEvents}

	h := &Handler{
		DB: db,
		Orchestrator: &refresh.Orchestrator{
			Store:  store,
			Events: src,
		},
		Engine: &conflict.Engine{
			Events:   src,
			Location: time.UTC,
		},
		Calendar: creator,
	}

	router := gin.New()
	group := router.Group("/api")
	group.GET("/health", h.HealthCheckHandler)
	group.POST("/refresh", h.RefreshHandler)
	group.POST("/bookings", h.BookingHandler)
	return router, h
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _ := testRouter(t, nil, &fakeCreator{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshHandlerRejectsUnknownDomain(t *testing.T) {
	router, _ := testRouter(t, nil, &fakeCreator{})

	w := postJSON(router, "/api/refresh?domain=everything", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshHandlerPatchesEvents(t *testing.T) {
	events := models.EventList{models.AllDayEvent{ID: "ev-1", Summary: "Feriado", Date: "2024-06-10"}}
	router, h := testRouter(t, events, &fakeCreator{})

	w := postJSON(router, "/api/refresh?domain=events", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, h.Orchestrator.Store.Read().Events, 1)
}

func TestBookingRejectedWhenStartIsInThePast(t *testing.T) {
	router, _ := testRouter(t, nil, &fakeCreator{})

	w := postJSON(router, "/api/bookings", map[string]any{
		"summary": "Call",
		"start":   time.Now().Add(-time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestBookingConflictReturnsSuggestions(t *testing.T) {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	existing := models.TimedEvent{
		ID:      "busy",
		Summary: "Review",
		Start:   start.Add(30 * time.Minute),
		End:     start.Add(90 * time.Minute),
	}
	creator := &fakeCreator{}
	router, _ := testRouter(t, models.EventList{existing}, creator)

	w := postJSON(router, "/api/bookings", map[string]any{
		"summary": "Call",
		"start":   start.Format(time.RFC3339),
		"end":     start.Add(time.Hour).Format(time.RFC3339),
	})

	require.Equal(t, http.StatusConflict, w.Code)
	var resp struct {
		Conflicts   []conflict.ConflictingEvent `json:"conflicts"`
		Suggestions []conflict.Suggestion       `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, "busy", resp.Conflicts[0].ID)
	assert.NotEmpty(t, resp.Suggestions)
	assert.Empty(t, creator.created, "a conflicting booking must not be created")
}

func TestBookingCreatesRecordsAndInvalidates(t *testing.T) {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	creator := &fakeCreator{}
	router, h := testRouter(t, nil, creator)

	w := postJSON(router, "/api/bookings", map[string]any{
		"summary": "Call",
		"start":   start.Format(time.RFC3339),
		"end":     start.Add(time.Hour).Format(time.RFC3339),
	})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, creator.created, 1)

	var count int64
	require.NoError(t, h.DB.Model(&models.BookingRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// The post-booking invalidation patched the events domain.
	assert.NotNil(t, h.Orchestrator.Store.Read().LastUpdate)
}

func TestBookingAllDaySkipsConflictCheck(t *testing.T) {
	start := time.Now().Add(48 * time.Hour).Truncate(24 * time.Hour)
	// Any same-day timed event would conflict if the check ran.
	existing := models.TimedEvent{
		ID:    "busy",
		Start: start.Add(10 * time.Hour),
		End:   start.Add(11 * time.Hour),
	}
	creator := &fakeCreator{}
	router, _ := testRouter(t, models.EventList{existing}, creator)

	w := postJSON(router, "/api/bookings", map[string]any{
		"summary": "Viagem",
		"start":   start.Format(time.RFC3339),
		"allDay":  true,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"Viagem"}, creator.allDayCreated)
}
