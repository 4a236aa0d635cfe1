// Package notify scans the snapshot on a fixed cadence and delivers each
// event's reminder at most once per process lifetime.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/snapshot"
	"go.uber.org/zap"
)

type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendMessageWithLink(ctx context.Context, chatID, text, linkLabel, linkURL string) error
}

// NotifiedSet tracks event IDs that already got their reminder. It lives only
// as long as the process: a restart inside an event's reminder window can
// drop or repeat that one reminder, which mirrors the assistant's historical
// behavior and is accepted.
type NotifiedSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewNotifiedSet() *NotifiedSet {
	return &NotifiedSet{ids: make(map[string]struct{})}
}

// MarkIfAbsent inserts id and reports whether it was newly added. The
// insert-if-absent step is what keeps reminders at-most-once when scan ticks
// overlap.
func (s *NotifiedSet) MarkIfAbsent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.ids[id]; seen {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

const (
	defaultWindowMin = 14 * time.Minute
	defaultWindowMax = 15*time.Minute + 30*time.Second
)

type Scheduler struct {
	Store      *snapshot.Store
	Messenger  Messenger
	Recipients []string
	Notified   *NotifiedSet

	// WindowMin/WindowMax bound the time-to-start range that makes an event
	// due. The defaults survive 60s polling without firing twice across
	// adjacent ticks.
	WindowMin time.Duration
	WindowMax time.Duration

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) window() (time.Duration, time.Duration) {
	min, max := s.WindowMin, s.WindowMax
	if min == 0 {
		min = defaultWindowMin
	}
	if max == 0 {
		max = defaultWindowMax
	}
	return min, max
}

// Scan walks the current snapshot and reminds about every timed event whose
// start falls inside the window. Events are marked notified before delivery;
// delivery failures are per-recipient and never unmark an event.
func (s *Scheduler) Scan(ctx context.Context) {
	snap := s.Store.Read()
	now := s.now()
	min, max := s.window()

	for _, ev := range snap.Events {
		e, ok := ev.(models.TimedEvent)
		if !ok {
			continue
		}
		until := e.Start.Sub(now)
		if until < min || until > max {
			continue
		}
		if !s.Notified.MarkIfAbsent(e.ID) {
			continue
		}
		s.deliver(ctx, e, until)
	}
}

func (s *Scheduler) deliver(ctx context.Context, e models.TimedEvent, until time.Duration) {
	minutes := int(until.Round(time.Minute) / time.Minute)
	text := fmt.Sprintf("Lembrete: \"%s\" começa em %d minutos.", e.Summary, minutes)

	for _, chatID := range s.Recipients {
		var err error
		if e.ConferenceLink != "" {
			err = s.Messenger.SendMessageWithLink(ctx, chatID, text, "Entrar na reunião", e.ConferenceLink)
		} else {
			err = s.Messenger.SendMessage(ctx, chatID, text)
		}
		if err != nil {
			zap.L().Warn("Failed to deliver reminder",
				zap.String("eventID", e.ID),
				zap.String("chatID", chatID),
				zap.Error(err))
		}
	}
	zap.L().Info("Reminder sent", zap.String("eventID", e.ID), zap.String("summary", e.Summary))
}
