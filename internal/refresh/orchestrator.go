// Package refresh populates the snapshot store from the external read
// collaborators and composes the twice-daily digests.
package refresh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/snapshot"
	"go.uber.org/zap"
)

// Domain names one refreshable slice of the snapshot.
type Domain string

const (
	DomainEvents     Domain = "events"
	DomainTasks      Domain = "tasks"
	DomainBoardCards Domain = "boardCards"
	DomainAll        Domain = "all"
)

// ParseDomain validates a caller-supplied domain name.
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainEvents, DomainTasks, DomainBoardCards, DomainAll:
		return Domain(s), nil
	}
	return "", fmt.Errorf("unknown refresh domain %q", s)
}

type EventSource interface {
	ListEvents(ctx context.Context, from, to time.Time) (models.EventList, error)
}

type TaskSource interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
}

type CardSource interface {
	ListAllCards(ctx context.Context) ([]models.Card, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// eventWindow is how far ahead a full refresh reads the calendar.
const eventWindow = 12 * time.Hour

// todoListNames mark which board lists count as pending work in digests.
var todoListNames = []string{"a fazer", "to do", "todo"}

type Orchestrator struct {
	Store     *snapshot.Store
	Events    EventSource
	Tasks     TaskSource
	Cards     CardSource
	Messenger Messenger

	Recipients []string
	MaxTasks   int
	MaxCards   int
	Location   *time.Location

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) loc() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return time.Local
}

// RefreshAll fetches events, tasks and cards and replaces the snapshot
// wholesale. If any fetch fails the snapshot is left exactly as it was:
// stale data beats partial data on the scheduled path.
func (o *Orchestrator) RefreshAll(ctx context.Context) error {
	now := o.now()

	events, err := o.Events.ListEvents(ctx, now, now.Add(eventWindow))
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	tasks, err := o.Tasks.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	cards, err := o.Cards.ListAllCards(ctx)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}

	o.Store.Replace(models.Snapshot{Events: events, Tasks: tasks, BoardCards: cards})
	zap.L().Info("Snapshot refreshed",
		zap.Int("events", len(events)),
		zap.Int("tasks", len(tasks)),
		zap.Int("cards", len(cards)))
	return nil
}

// Invalidate refreshes a single domain in place. DomainAll patches events,
// tasks and boardCards in that order; the first failure aborts the rest of
// the call but already-patched domains stay updated. This is deliberately
// weaker than RefreshAll.
func (o *Orchestrator) Invalidate(ctx context.Context, domain Domain) error {
	switch domain {
	case DomainEvents:
		now := o.now()
		events, err := o.Events.ListEvents(ctx, now, now.Add(eventWindow))
		if err != nil {
			return fmt.Errorf("invalidate events: %w", err)
		}
		o.Store.PatchEvents(events)
	case DomainTasks:
		tasks, err := o.Tasks.ListTasks(ctx)
		if err != nil {
			return fmt.Errorf("invalidate tasks: %w", err)
		}
		o.Store.PatchTasks(tasks)
	case DomainBoardCards:
		cards, err := o.Cards.ListAllCards(ctx)
		if err != nil {
			return fmt.Errorf("invalidate boardCards: %w", err)
		}
		o.Store.PatchBoardCards(cards)
	case DomainAll:
		for _, d := range []Domain{DomainEvents, DomainTasks, DomainBoardCards} {
			if err := o.Invalidate(ctx, d); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown refresh domain %q", domain)
	}
	return nil
}

// SendMorningDigest composes today's agenda from the current snapshot and
// fans it out to every recipient. Delivery is best-effort per recipient.
func (o *Orchestrator) SendMorningDigest(ctx context.Context) {
	snap := o.Store.Read()
	now := o.now()
	text := o.composeDigest("Bom dia! Sua agenda de hoje:", snap, morningEvents(snap, now, o.loc()))
	o.fanOut(ctx, "morning digest", text)
}

// SendAfternoonDigest covers what is still ahead: all-day events plus timed
// events that have not started yet.
func (o *Orchestrator) SendAfternoonDigest(ctx context.Context) {
	snap := o.Store.Read()
	now := o.now()
	text := o.composeDigest("Boa tarde! O que ainda vem hoje:", snap, afternoonEvents(snap, now, o.loc()))
	o.fanOut(ctx, "afternoon digest", text)
}

func morningEvents(snap models.Snapshot, now time.Time, loc *time.Location) []models.Event {
	var out []models.Event
	for _, ev := range snap.Events {
		if ev.OccursOn(now, loc) {
			out = append(out, ev)
		}
	}
	return out
}

func afternoonEvents(snap models.Snapshot, now time.Time, loc *time.Location) []models.Event {
	var out []models.Event
	for _, ev := range snap.Events {
		switch e := ev.(type) {
		case models.AllDayEvent:
			if e.OccursOn(now, loc) {
				out = append(out, e)
			}
		case models.TimedEvent:
			if e.Start.After(now) {
				out = append(out, e)
			}
		}
	}
	return out
}

func (o *Orchestrator) composeDigest(header string, snap models.Snapshot, events []models.Event) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	if len(events) == 0 {
		b.WriteString("\nNenhum evento na agenda.\n")
	} else {
		b.WriteString("\nEventos:\n")
		for _, ev := range events {
			switch e := ev.(type) {
			case models.TimedEvent:
				fmt.Fprintf(&b, "• %s — %s\n", e.Start.In(o.loc()).Format("15:04"), e.Summary)
			case models.AllDayEvent:
				fmt.Fprintf(&b, "• (dia todo) %s\n", e.Summary)
			}
		}
	}

	if tasks := capTasks(snap.Tasks, o.MaxTasks); len(tasks) > 0 {
		b.WriteString("\nTarefas pendentes:\n")
		for _, t := range tasks {
			fmt.Fprintf(&b, "• %s\n", t.Title)
		}
	}

	if cards := todoCards(snap.BoardCards, o.MaxCards); len(cards) > 0 {
		b.WriteString("\nQuadro (a fazer):\n")
		for _, c := range cards {
			fmt.Fprintf(&b, "• %s (%s)\n", c.Name, c.ListName)
		}
	}

	return b.String()
}

func capTasks(tasks []models.Task, max int) []models.Task {
	if max > 0 && len(tasks) > max {
		return tasks[:max]
	}
	return tasks
}

// todoCards keeps cards whose list name looks like a to-do column.
func todoCards(cards []models.Card, max int) []models.Card {
	var out []models.Card
	for _, c := range cards {
		name := strings.ToLower(c.ListName)
		for _, needle := range todoListNames {
			if strings.Contains(name, needle) {
				out = append(out, c)
				break
			}
		}
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func (o *Orchestrator) fanOut(ctx context.Context, kind, text string) {
	for _, chatID := range o.Recipients {
		if err := o.Messenger.SendMessage(ctx, chatID, text); err != nil {
			zap.L().Warn("Failed to deliver digest to recipient",
				zap.String("kind", kind),
				zap.String("chatID", chatID),
				zap.Error(err))
		}
	}
}
