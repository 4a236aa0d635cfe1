package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/spf13/viper"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
)

type CalendarClient struct {
	service *calendar.Service
}

func NewCalendarClient(ctx context.Context) (*CalendarClient, error) {
	settings := viper.Get("google.service_account")

	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal service account settings to JSON: %w", err)
	}

	// create credentials from JSON data
	config, err := google.JWTConfigFromJSON(jsonBytes, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account credentials from JSON: %w", err)
	}

	client := config.Client(ctx)

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	return &CalendarClient{service: srv}, nil
}

// googleTransient reports whether a Calendar API error is worth retrying.
func googleTransient(err error) bool {
	if gerr, ok := err.(*googleapi.Error); ok {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	// Non-API errors are network-level; retry those too.
	return true
}

// ListEvents returns the calendar entries between from and to, ascending by
// start time. Each entry is a TimedEvent or, for date-only entries, an
// AllDayEvent. Transient API failures are retried here; callers do not retry.
func (c *CalendarClient) ListEvents(ctx context.Context, from, to time.Time) (models.EventList, error) {
	calendarID := viper.GetString("google.calendar.calendar_id")
	if calendarID == "" {
		return nil, fmt.Errorf("google calendar ID is not configured")
	}

	var items []*calendar.Event
	err := retry.Do(func() error {
		resp, err := c.service.Events.List(calendarID).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		items = resp.Items
		return nil
	}, retry.Context(ctx), retry.Attempts(3), retry.Delay(time.Second), retry.RetryIf(googleTransient), retry.LastErrorOnly(true))
	if err != nil {
		return nil, fmt.Errorf("unable to list events from Google Calendar: %w", err)
	}

	events := make(models.EventList, 0, len(items))
	for _, item := range items {
		ev, err := mapEvent(item)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func mapEvent(item *calendar.Event) (models.Event, error) {
	if item.Start == nil {
		return nil, fmt.Errorf("event %s has no start", item.Id)
	}
	if item.Start.DateTime == "" {
		return models.AllDayEvent{
			ID:      item.Id,
			Summary: item.Summary,
			Date:    item.Start.Date,
		}, nil
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return nil, fmt.Errorf("event %s has invalid start '%s': %w", item.Id, item.Start.DateTime, err)
	}
	var end time.Time
	if item.End != nil && item.End.DateTime != "" {
		end, err = time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return nil, fmt.Errorf("event %s has invalid end '%s': %w", item.Id, item.End.DateTime, err)
		}
	} else {
		end = start.Add(time.Hour)
	}

	return models.TimedEvent{
		ID:             item.Id,
		Summary:        item.Summary,
		Start:          start,
		End:            end,
		ConferenceLink: item.HangoutLink,
		RecurringID:    item.RecurringEventId,
	}, nil
}

// CreateAllDayEvent books a date-only event on the given calendar day.
func (c *CalendarClient) CreateAllDayEvent(ctx context.Context, summary string, day time.Time) (models.AllDayEvent, error) {
	calendarID := viper.GetString("google.calendar.calendar_id")
	if calendarID == "" {
		return models.AllDayEvent{}, fmt.Errorf("google calendar ID is not configured")
	}

	date := day.Format(time.DateOnly)
	event := &calendar.Event{
		Summary: summary,
		Start: &calendar.EventDateTime{
			Date: date,
		},
		End: &calendar.EventDateTime{
			Date: day.AddDate(0, 0, 1).Format(time.DateOnly), // all-day event ends the next day
		},
	}

	var created *calendar.Event
	err := retry.Do(func() error {
		var err error
		created, err = c.service.Events.Insert(calendarID, event).Context(ctx).Do()
		return err
	}, retry.Context(ctx), retry.Attempts(3), retry.Delay(time.Second), retry.RetryIf(googleTransient), retry.LastErrorOnly(true))
	if err != nil {
		return models.AllDayEvent{}, fmt.Errorf("unable to create event in Google Calendar: %w", err)
	}

	return models.AllDayEvent{ID: created.Id, Summary: created.Summary, Date: date}, nil
}

// CreateEvent books a timed event and returns the created entry.
func (c *CalendarClient) CreateEvent(ctx context.Context, summary string, start, end time.Time) (models.TimedEvent, error) {
	calendarID := viper.GetString("google.calendar.calendar_id")
	if calendarID == "" {
		return models.TimedEvent{}, fmt.Errorf("google calendar ID is not configured")
	}

	event := &calendar.Event{
		Summary: summary,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
		},
	}

	var created *calendar.Event
	err := retry.Do(func() error {
		var err error
		created, err = c.service.Events.Insert(calendarID, event).Context(ctx).Do()
		return err
	}, retry.Context(ctx), retry.Attempts(3), retry.Delay(time.Second), retry.RetryIf(googleTransient), retry.LastErrorOnly(true))
	if err != nil {
		return models.TimedEvent{}, fmt.Errorf("unable to create event in Google Calendar: %w", err)
	}

	return models.TimedEvent{
		ID:             created.Id,
		Summary:        created.Summary,
		Start:          start,
		End:            end,
		ConferenceLink: created.HangoutLink,
	}, nil
}
