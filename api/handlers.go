package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/conflict"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/refresh"
)

// EventCreator is the write side of the calendar collaborator.
type EventCreator interface {
	CreateEvent(ctx context.Context, summary string, start, end time.Time) (models.TimedEvent, error)
	CreateAllDayEvent(ctx context.Context, summary string, day time.Time) (models.AllDayEvent, error)
}

type Handler struct {
	DB           *gorm.DB
	Orchestrator *refresh.Orchestrator
	Engine       *conflict.Engine
	Calendar     EventCreator
}

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RefreshHandler triggers a targeted invalidation. Domains already patched
// before a failure stay updated; the error only covers what was left undone.
func (h *Handler) RefreshHandler(c *gin.Context) {
	domainParam := c.DefaultQuery("domain", string(refresh.DomainAll))
	domain, err := refresh.ParseDomain(domainParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Orchestrator.Invalidate(c.Request.Context(), domain); err != nil {
		zap.L().Error("Manual invalidation failed", zap.String("domain", string(domain)), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Snapshot refreshed", "domain": string(domain)})
}

type bookingRequest struct {
	Summary string     `json:"summary" binding:"required"`
	Start   time.Time  `json:"start" binding:"required"`
	End     *time.Time `json:"end"`
	AllDay  bool       `json:"allDay"`
}

// BookingHandler validates and books an event: hard-invalid requests get
// 422, conflicting ones get 409 with alternative slots, and accepted ones
// are created in the calendar, recorded locally and followed by an events
// invalidation so the snapshot catches up.
func (h *Handler) BookingHandler(c *gin.Context) {
	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	cand := conflict.Candidate{
		Summary: req.Summary,
		Start:   req.Start,
		HasTime: !req.AllDay,
		End:     req.End,
	}

	validation := h.Engine.ValidateSchedulingContext(cand)
	if !validation.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validation.Reason})
		return
	}

	result, err := h.Engine.CheckConflicts(c.Request.Context(), cand)
	if err != nil {
		zap.L().Error("Conflict check failed", zap.String("summary", req.Summary), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not check calendar for conflicts"})
		return
	}
	if result.HasConflict {
		c.JSON(http.StatusConflict, gin.H{
			"conflicts":   result.Conflicts,
			"suggestions": result.Suggestions,
		})
		return
	}

	record, created, err := h.createEvent(c.Request.Context(), req)
	if err != nil {
		zap.L().Error("Failed to create calendar event", zap.String("summary", req.Summary), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not create calendar event"})
		return
	}

	if result := h.DB.Save(&record); result.Error != nil {
		// The calendar booking already happened; the ledger miss is logged only.
		zap.L().Error("Failed to record booking", zap.String("eventID", record.EventID), zap.Error(result.Error))
	}

	if err := h.Orchestrator.Invalidate(c.Request.Context(), refresh.DomainEvents); err != nil {
		zap.L().Warn("Post-booking events invalidation failed", zap.Error(err))
	}

	c.JSON(http.StatusCreated, gin.H{
		"event":    created,
		"warnings": validation.Warnings,
	})
}

func (h *Handler) createEvent(ctx context.Context, req bookingRequest) (models.BookingRecord, models.Event, error) {
	if req.AllDay {
		ev, err := h.Calendar.CreateAllDayEvent(ctx, req.Summary, req.Start)
		if err != nil {
			return models.BookingRecord{}, nil, err
		}
		return models.BookingRecord{
			EventID: ev.ID,
			Summary: ev.Summary,
			Start:   req.Start,
			End:     req.Start.AddDate(0, 0, 1),
		}, ev, nil
	}

	end := req.Start.Add(time.Hour)
	if req.End != nil {
		end = *req.End
	}
	ev, err := h.Calendar.CreateEvent(ctx, req.Summary, req.Start, end)
	if err != nil {
		return models.BookingRecord{}, nil, err
	}
	return models.BookingRecord{
		EventID: ev.ID,
		Summary: ev.Summary,
		Start:   ev.Start,
		End:     ev.End,
	}, ev, nil
}
