package metrics

import (
	"sync/atomic"
)

// Metrics tracks operational metrics.
type Metrics struct {
	RunsStarted       uint64 `json:"runs_started"`
	RunsSucceeded     uint64 `json:"runs_succeeded"`
	RunsFailed        uint64 `json:"runs_failed"`
	RunsRejected      uint64 `json:"runs_rejected"`
	ProposalsMerged   uint64 `json:"proposals_merged"`
	ProposalsSkipped  uint64 `json:"proposals_skipped"`
	WebhooksReceived  uint64 `json:"webhooks_received"`
	WebhooksProcessed uint64 `json:"webhooks_processed"`
}

var global = &Metrics{}

// RunStarted increments the count of train runs started.
func RunStarted() { atomic.AddUint64(&global.RunsStarted, 1) }

// RunSucceeded increments the count of runs that published a release.
func RunSucceeded() { atomic.AddUint64(&global.RunsSucceeded, 1) }

// RunFailed increments the count of runs that aborted.
func RunFailed() { atomic.AddUint64(&global.RunsFailed, 1) }

// RunRejected increments the count of runs refused because one was in progress.
func RunRejected() { atomic.AddUint64(&global.RunsRejected, 1) }

// ProposalMerged increments the count of proposals merged into a train.
func ProposalMerged() { atomic.AddUint64(&global.ProposalsMerged, 1) }

// ProposalSkipped increments the count of proposals skipped on conflict.
func ProposalSkipped() { atomic.AddUint64(&global.ProposalsSkipped, 1) }

// WebhookReceived increments the count of webhooks received.
func WebhookReceived() { atomic.AddUint64(&global.WebhooksReceived, 1) }

// WebhookProcessed increments the count of webhooks processed.
func WebhookProcessed() { atomic.AddUint64(&global.WebhooksProcessed, 1) }

// Get returns a snapshot of the current metrics.
func Get() Metrics {
	return Metrics{
		RunsStarted:       atomic.LoadUint64(&global.RunsStarted),
		RunsSucceeded:     atomic.LoadUint64(&global.RunsSucceeded),
		RunsFailed:        atomic.LoadUint64(&global.RunsFailed),
		RunsRejected:      atomic.LoadUint64(&global.RunsRejected),
		ProposalsMerged:   atomic.LoadUint64(&global.ProposalsMerged),
		ProposalsSkipped:  atomic.LoadUint64(&global.ProposalsSkipped),
		WebhooksReceived:  atomic.LoadUint64(&global.WebhooksReceived),
		WebhooksProcessed: atomic.LoadUint64(&global.WebhooksProcessed),
	}
}

// Reset resets all metrics to zero (useful for testing).
func Reset() {
	atomic.StoreUint64(&global.RunsStarted, 0)
	atomic.StoreUint64(&global.RunsSucceeded, 0)
	atomic.StoreUint64(&global.RunsFailed, 0)
	atomic.StoreUint64(&global.RunsRejected, 0)
	atomic.StoreUint64(&global.ProposalsMerged, 0)
	atomic.StoreUint64(&global.ProposalsSkipped, 0)
	atomic.StoreUint64(&global.WebhooksReceived, 0)
	atomic.StoreUint64(&global.WebhooksProcessed, 0)
}
