package logging

import (
	"log"
	"sync"
	"time"
)

// Scheduler runs a task on a fixed interval until stopped.
// A task that is still running when the ticker fires delays the next run.
type Scheduler struct {
	task      func()
	immediate bool
	ticker    *time.Ticker
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewScheduler creates a Scheduler. When immediate is set the task also runs on Start.
func NewScheduler(interval time.Duration, immediate bool, task func()) *Scheduler {
	return &Scheduler{
		task:      task,
		immediate: immediate,
		ticker:    time.NewTicker(interval),
		stop:      make(chan struct{}),
	}
}

// NewCleanupScheduler runs cleaner immediately and then on every interval.
func NewCleanupScheduler(cleaner *Cleaner, interval time.Duration) *Scheduler {
	return NewScheduler(interval, true, func() {
		deleted, err := cleaner.Cleanup()
		if err != nil {
			log.Printf("Cleanup error: %v", err)
		} else if deleted > 0 {
			log.Printf("Cleaned up %d old log files", deleted)
		}
	})
}

func (s *Scheduler) Start() {
	go func() {
		if s.immediate {
			s.task()
		}
		for {
			select {
			case <-s.ticker.C:
				s.task()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.ticker.Stop()
		close(s.stop)
	})
}
