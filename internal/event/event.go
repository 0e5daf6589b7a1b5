package event

import (
	"time"
)

// Type represents the type of webhook event.
type Type string

const (
	TypeProposalLabeled   Type = "proposal_labeled"
	TypeProposalUnlabeled Type = "proposal_unlabeled"
	TypeTrunkPushed       Type = "trunk_pushed"
)

// Event represents a normalized webhook event that may start a train run.
type Event struct {
	// Type is the event type.
	Type Type

	// Provider is the git provider.
	Provider string

	// Repository information.
	RepoOwner string
	RepoName  string

	// Pull request and label for TypeProposalLabeled and TypeProposalUnlabeled.
	Number int
	Label  string

	// Branch and new head for TypeTrunkPushed.
	Branch string
	After  string

	// Actor who triggered the event.
	Actor string

	DeliveryID string
	Timestamp  time.Time
}

// Key returns the debouncing key. Every trigger for a repository runs the
// same train, so events for one repository share a key.
func (e *Event) Key() string {
	return e.Provider + "/" + e.RepoOwner + "/" + e.RepoName
}
