// Package schedule isolates the rest of the core from the cron library.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Registrar registers periodic jobs. Callers may assume only that a
// registered job fires repeatedly at roughly the configured cadence and that
// invocations can overlap.
type Registrar interface {
	Register(spec string, job func()) error
}

// CronScheduler backs Registrar with robfig/cron using standard 5-field
// specs evaluated in the given location.
type CronScheduler struct {
	c *cron.Cron
}

func NewCronScheduler(loc *time.Location) *CronScheduler {
	return &CronScheduler{c: cron.New(cron.WithLocation(loc))}
}

func (s *CronScheduler) Register(spec string, job func()) error {
	_, err := s.c.AddFunc(spec, job)
	return err
}

func (s *CronScheduler) Start() {
	s.c.Start()
}

// Stop halts scheduling. The returned context is done once running jobs
// finish.
func (s *CronScheduler) Stop() context.Context {
	return s.c.Stop()
}
