// Package history keeps a record of release train runs.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/drewdunne/releasetrain/internal/train"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Item is one proposal considered by a run.
type Item struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	Commit string `json:"commit,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Record is the stored summary of a run.
type Record struct {
	ID              string    `json:"id"`
	Repository      string    `json:"repository"`
	Version         string    `json:"version"`
	Trigger         string    `json:"trigger"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	TrunkSHA        string    `json:"trunk_sha,omitempty"`
	Tip             string    `json:"tip,omitempty"`
	ChangelogCommit string    `json:"changelog_commit,omitempty"`
	PullRequest     int       `json:"pull_request,omitempty"`
	PullRequestURL  string    `json:"pull_request_url,omitempty"`
	Merged          []Item    `json:"merged"`
	Skipped         []Item    `json:"skipped"`
	NewContributors []string  `json:"new_contributors"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Log             string    `json:"log,omitempty"`
}

// Store persists run records.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns up to limit records, most recent first.
	List(ctx context.Context, limit int) ([]Record, error)
	Close()
}

// FromReport converts a finished run into a Record.
func FromReport(r *train.Report) Record {
	rec := Record{
		ID:              r.RunID,
		Repository:      r.Repository,
		Version:         r.Version,
		Trigger:         r.Trigger,
		Status:          StatusSucceeded,
		TrunkSHA:        r.TrunkSHA,
		Tip:             r.Tip,
		ChangelogCommit: r.ChangelogCommit,
		Merged:          []Item{},
		Skipped:         []Item{},
		NewContributors: append([]string{}, r.NewContributors...),
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Log:             r.Log,
	}
	if r.Err != nil {
		rec.Status = StatusFailed
		rec.Error = r.Err.Error()
	}
	if r.PullRequest != nil {
		rec.PullRequest = r.PullRequest.Number
		rec.PullRequestURL = r.PullRequest.URL
	}
	for _, o := range r.Outcomes {
		item := Item{
			Number: o.Proposal.Number,
			Title:  o.Proposal.Title,
			Author: o.Proposal.Author,
			Commit: o.Commit,
			Reason: o.Reason(),
		}
		if o.Merged() {
			rec.Merged = append(rec.Merged, item)
		} else {
			rec.Skipped = append(rec.Skipped, item)
		}
	}
	return rec
}
