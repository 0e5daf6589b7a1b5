package event

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/drewdunne/releasetrain/internal/config"
	"github.com/drewdunne/releasetrain/internal/metrics"
)

// Handler processes a normalized event with the merged config.
type Handler func(ctx context.Context, event *Event, cfg *config.MergedConfig) error

// Router filters events and passes the relevant ones to a handler.
type Router struct {
	serverCfg *config.Config
	handler   Handler
	debouncer *Debouncer
	reader    config.FileReader
}

// NewRouter creates a new event router.
// The reader is optional; without it the repo config is not consulted.
func NewRouter(serverCfg *config.Config, handler Handler, reader config.FileReader) *Router {
	debounceWindow := time.Duration(serverCfg.Train.DebounceSeconds) * time.Second
	if debounceWindow == 0 {
		debounceWindow = 10 * time.Second // Default
	}
	return &Router{
		serverCfg: serverCfg,
		handler:   handler,
		debouncer: NewDebouncer(debounceWindow),
		reader:    reader,
	}
}

// Route processes an event through the routing pipeline. Relevant events are
// debounced per repository and handled asynchronously.
func (r *Router) Route(ctx context.Context, event *Event) error {
	if !r.isEventEnabled(event.Type) {
		log.Printf("Event type disabled: %s", event.Type)
		return nil
	}

	repo := r.serverCfg.Repository
	if !strings.EqualFold(event.RepoOwner, repo.Owner) || !strings.EqualFold(event.RepoName, repo.Name) {
		log.Printf("Ignoring event for unconfigured repository %s/%s", event.RepoOwner, event.RepoName)
		return nil
	}

	merged, err := r.mergedConfig(ctx)
	if err != nil {
		return err
	}

	if !isRelevant(event, merged) {
		return nil
	}

	if r.debouncer.Redelivered(event) {
		log.Printf("Ignoring redelivered webhook %s", event.DeliveryID)
		return nil
	}

	// Only the last event of a burst reaches the handler, after the window.
	metrics.WebhookProcessed()
	handlerCtx := context.WithoutCancel(ctx)
	r.debouncer.Trigger(event.Key(), func() {
		if err := r.handler(handlerCtx, event, merged); err != nil {
			log.Printf("Handler failed for %s event on %s: %v", event.Type, event.Key(), err)
		}
	})
	return nil
}

// Flush hands pending events to the handler without waiting for the window.
func (r *Router) Flush() {
	r.debouncer.Flush()
}

func (r *Router) mergedConfig(ctx context.Context) (*config.MergedConfig, error) {
	repoCfg := &config.RepoConfig{}
	if r.reader != nil {
		repo := r.serverCfg.Repository
		loaded, err := config.LoadRepoConfig(ctx, r.reader, repo.Owner, repo.Name, repo.Trunk)
		if err != nil {
			return nil, err
		}
		repoCfg = loaded
	}
	return config.MergeConfigs(r.serverCfg, repoCfg), nil
}

// isRelevant reports whether the event can change what the train would publish.
func isRelevant(event *Event, cfg *config.MergedConfig) bool {
	switch event.Type {
	case TypeProposalLabeled, TypeProposalUnlabeled:
		return event.Label == cfg.Train.ReadyLabel
	case TypeTrunkPushed:
		return event.Branch == cfg.Repository.Trunk
	default:
		return false
	}
}

func (r *Router) isEventEnabled(t Type) bool {
	switch t {
	case TypeProposalLabeled:
		return r.serverCfg.Events.ProposalLabeled
	case TypeProposalUnlabeled:
		return r.serverCfg.Events.ProposalUnlabeled
	case TypeTrunkPushed:
		return r.serverCfg.Events.TrunkPushed
	default:
		return false
	}
}
