// Package conflict answers "does this booking collide?" against live
// calendar data and proposes alternative slots deterministically.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
)

// Candidate is a proposed booking. HasTime is false for date-only bookings,
// which never conflict-check.
type Candidate struct {
	Summary string
	Start   time.Time
	HasTime bool
	End     *time.Time
}

// ConflictingEvent describes one overlapping calendar entry, with start/end
// already formatted in the local zone for display.
type ConflictingEvent struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type Suggestion struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	OffsetMinutes int       `json:"offsetMinutes"`
	Label         string    `json:"label"`
}

type Result struct {
	HasConflict bool               `json:"hasConflict"`
	Conflicts   []ConflictingEvent `json:"conflicts,omitempty"`
	Suggestions []Suggestion       `json:"suggestions,omitempty"`
}

// Validation is the outcome of the pre-booking sanity check. Warnings never
// block a booking; they are display-only.
type Validation struct {
	Valid    bool     `json:"valid"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type EventSource interface {
	ListEvents(ctx context.Context, from, to time.Time) (models.EventList, error)
}

const defaultDuration = time.Hour

// probeOffsets are tried in this exact order when searching for free slots.
var probeOffsets = []int{-30, 30, 60, 90, 120}

type Engine struct {
	Events   EventSource
	Location *time.Location

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

func (g *Engine) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Engine) loc() *time.Location {
	if g.Location != nil {
		return g.Location
	}
	return time.Local
}

// overlaps applies the half-open interval rule: [s,e) and [s2,e2) intersect
// iff s < e2 && e > s2, so bookings touching at a boundary do not collide.
func overlaps(s, e, s2, e2 time.Time) bool {
	return s.Before(e2) && e.After(s2)
}

// CheckConflicts fetches the candidate day's events live, bypassing the
// snapshot cache, and reports every timed event the candidate overlaps plus
// up to three alternative slots.
func (g *Engine) CheckConflicts(ctx context.Context, cand Candidate) (Result, error) {
	if !cand.HasTime {
		return Result{}, nil
	}

	end := cand.Start.Add(defaultDuration)
	if cand.End != nil {
		end = *cand.End
	}

	dayEvents, err := g.fetchDay(ctx, cand.Start)
	if err != nil {
		return Result{}, fmt.Errorf("fetch day events: %w", err)
	}

	var conflicts []ConflictingEvent
	for _, ev := range dayEvents {
		e, ok := ev.(models.TimedEvent)
		if !ok {
			continue
		}
		if overlaps(cand.Start, end, e.Start, e.End) {
			conflicts = append(conflicts, ConflictingEvent{
				ID:      e.ID,
				Summary: e.Summary,
				Start:   e.Start.In(g.loc()).Format("02/01 15:04"),
				End:     e.End.In(g.loc()).Format("02/01 15:04"),
			})
		}
	}
	if len(conflicts) == 0 {
		return Result{}, nil
	}

	return Result{
		HasConflict: true,
		Conflicts:   conflicts,
		Suggestions: g.GenerateAlternatives(cand.Start, end.Sub(cand.Start), dayEvents),
	}, nil
}

func (g *Engine) fetchDay(ctx context.Context, ref time.Time) (models.EventList, error) {
	local := ref.In(g.loc())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc())
	return g.Events.ListEvents(ctx, dayStart, dayStart.AddDate(0, 0, 1))
}

// GenerateAlternatives probes the fixed offset list in order, keeping slots
// that are in the future and free of overlap, until three are collected or
// the list runs out. Results stay in probe order.
func (g *Engine) GenerateAlternatives(original time.Time, duration time.Duration, dayEvents models.EventList) []Suggestion {
	now := g.now()
	var out []Suggestion

	for _, offset := range probeOffsets {
		if len(out) == 3 {
			break
		}
		start := original.Add(time.Duration(offset) * time.Minute)
		if !start.After(now) {
			continue
		}
		end := start.Add(duration)
		if overlapsAny(start, end, dayEvents) {
			continue
		}
		out = append(out, Suggestion{
			Start:         start,
			End:           end,
			OffsetMinutes: offset,
			Label:         offsetLabel(offset),
		})
	}
	return out
}

func overlapsAny(start, end time.Time, events models.EventList) bool {
	for _, ev := range events {
		e, ok := ev.(models.TimedEvent)
		if !ok {
			continue
		}
		if overlaps(start, end, e.Start, e.End) {
			return true
		}
	}
	return false
}

func offsetLabel(offset int) string {
	switch {
	case offset < 0:
		return fmt.Sprintf("%d min antes", -offset)
	case offset > 0:
		return fmt.Sprintf("%d min depois", offset)
	default:
		return "horário sugerido"
	}
}

// maxReasonableDuration triggers an advisory warning, not a rejection.
const maxReasonableDuration = 3 * time.Hour

// ValidateSchedulingContext blocks a booking only when the start is missing
// or a timed start is already in the past. Everything else it flags as
// advisory warnings.
func (g *Engine) ValidateSchedulingContext(cand Candidate) Validation {
	if cand.Start.IsZero() {
		return Validation{Valid: false, Reason: "informe uma data de início"}
	}
	if cand.HasTime && cand.Start.Before(g.now()) {
		return Validation{Valid: false, Reason: "esse horário já passou"}
	}

	var warnings []string
	local := cand.Start.In(g.loc())
	if cand.HasTime {
		if local.Hour() < 6 {
			warnings = append(warnings, "horário muito cedo (antes das 6h)")
		}
		if local.Hour() >= 22 {
			warnings = append(warnings, "horário muito tarde (depois das 22h)")
		}
	}
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		warnings = append(warnings, "cai em um fim de semana")
	}
	if cand.End != nil && cand.End.Sub(cand.Start) > maxReasonableDuration {
		warnings = append(warnings, "duração acima de 3 horas")
	}

	return Validation{Valid: true, Warnings: warnings}
}
