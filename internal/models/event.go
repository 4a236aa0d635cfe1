package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is either a TimedEvent or an AllDayEvent. Events are created by a
// refresh cycle and never mutated in place afterwards.
type Event interface {
	EventID() string
	EventSummary() string
	// OccursOn reports whether the event falls on the calendar day of ref,
	// compared date-only in the given location.
	OccursOn(ref time.Time, loc *time.Location) bool
}

type TimedEvent struct {
	ID             string    `json:"id"`
	Summary        string    `json:"summary"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	ConferenceLink string    `json:"conferenceLink,omitempty"`
	RecurringID    string    `json:"recurringId,omitempty"`
}

func (e TimedEvent) EventID() string      { return e.ID }
func (e TimedEvent) EventSummary() string { return e.Summary }

func (e TimedEvent) OccursOn(ref time.Time, loc *time.Location) bool {
	return e.Start.In(loc).Format(time.DateOnly) == ref.In(loc).Format(time.DateOnly)
}

type AllDayEvent struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	// Date is the calendar day in "2006-01-02" form, as the calendar
	// backend reports it for date-only events.
	Date string `json:"date"`
}

func (e AllDayEvent) EventID() string      { return e.ID }
func (e AllDayEvent) EventSummary() string { return e.Summary }

func (e AllDayEvent) OccursOn(ref time.Time, loc *time.Location) bool {
	return e.Date == ref.In(loc).Format(time.DateOnly)
}

// EventList carries the tag needed to round-trip the Event union through the
// persisted snapshot document.
type EventList []Event

type eventDoc struct {
	Kind   string       `json:"kind"`
	Timed  *TimedEvent  `json:"timed,omitempty"`
	AllDay *AllDayEvent `json:"allDay,omitempty"`
}

const (
	kindTimed  = "timed"
	kindAllDay = "allDay"
)

func (l EventList) MarshalJSON() ([]byte, error) {
	docs := make([]eventDoc, 0, len(l))
	for _, ev := range l {
		switch e := ev.(type) {
		case TimedEvent:
			docs = append(docs, eventDoc{Kind: kindTimed, Timed: &e})
		case AllDayEvent:
			docs = append(docs, eventDoc{Kind: kindAllDay, AllDay: &e})
		default:
			return nil, fmt.Errorf("unknown event type %T", ev)
		}
	}
	return json.Marshal(docs)
}

func (l *EventList) UnmarshalJSON(data []byte) error {
	var docs []eventDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return err
	}
	out := make(EventList, 0, len(docs))
	for _, d := range docs {
		switch {
		case d.Kind == kindTimed && d.Timed != nil:
			out = append(out, *d.Timed)
		case d.Kind == kindAllDay && d.AllDay != nil:
			out = append(out, *d.AllDay)
		default:
			return fmt.Errorf("malformed event entry with kind %q", d.Kind)
		}
	}
	*l = out
	return nil
}
