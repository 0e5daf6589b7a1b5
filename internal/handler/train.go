package handler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/drewdunne/releasetrain/internal/config"
	"github.com/drewdunne/releasetrain/internal/event"
	"github.com/drewdunne/releasetrain/internal/train"
)

const (
	defaultRetryDelay = 30 * time.Second
	maxBusyRetries    = 20
)

// Runner starts release train runs.
type Runner interface {
	Run(ctx context.Context, req train.Request) (*train.Report, error)
}

// TrainHandler handles events by running the release train in the background.
// At most one webhook-triggered run is in flight. Events that arrive during a
// run mark the train dirty and cause exactly one more run once it finishes.
type TrainHandler struct {
	runner     Runner
	retryDelay time.Duration
	wg         sync.WaitGroup

	mu      sync.Mutex
	running bool
	dirty   bool
	next    trigger // latest event, used for the next run
}

type trigger struct {
	evt *event.Event
	cfg *config.MergedConfig
}

// NewTrainHandler creates a new train handler.
func NewTrainHandler(runner Runner) *TrainHandler {
	return &TrainHandler{runner: runner, retryDelay: defaultRetryDelay}
}

// Handle schedules a run for the event and returns without waiting for it.
func (h *TrainHandler) Handle(ctx context.Context, evt *event.Event, cfg *config.MergedConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next = trigger{evt: evt, cfg: cfg}
	if h.running {
		h.dirty = true
		log.Printf("Train busy, queued rerun for %s on %s/%s", evt.Type, evt.RepoOwner, evt.RepoName)
		return nil
	}
	h.running = true

	h.wg.Add(1)
	go h.loop(context.WithoutCancel(ctx))
	return nil
}

func (h *TrainHandler) loop(ctx context.Context) {
	defer h.wg.Done()

	for {
		h.mu.Lock()
		t := h.next
		h.dirty = false
		h.mu.Unlock()

		h.run(ctx, t)

		h.mu.Lock()
		if !h.dirty {
			h.running = false
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()
	}
}

// run starts one train run, waiting out runs held by other triggers.
func (h *TrainHandler) run(ctx context.Context, t trigger) {
	req := train.Request{
		Version: t.cfg.Train.DefaultVersion,
		Trigger: "webhook",
	}

	for attempt := 0; ; attempt++ {
		report, err := h.runner.Run(ctx, req)
		switch {
		case errors.Is(err, train.ErrRunInProgress):
			if attempt >= maxBusyRetries {
				log.Printf("Train still busy after %d retries, dropping %s for %s/%s", attempt, t.evt.Type, t.evt.RepoOwner, t.evt.RepoName)
				return
			}
			log.Printf("Train busy, retrying %s for %s/%s in %s", t.evt.Type, t.evt.RepoOwner, t.evt.RepoName, h.retryDelay)
			time.Sleep(h.retryDelay)
			continue
		case err != nil:
			log.Printf("Train run triggered by %s failed: %v", t.evt.Type, err)
		default:
			log.Printf("Train run %s triggered by %s published %d proposals", report.RunID, t.evt.Type, len(report.Merged()))
		}
		return
	}
}

// Wait blocks until every run started by the handler has finished.
func (h *TrainHandler) Wait() {
	h.wg.Wait()
}
