package train

import (
	"context"
	"errors"
	"fmt"

	"github.com/drewdunne/releasetrain/internal/metrics"
	"github.com/drewdunne/releasetrain/internal/provider"
)

// MergeOutcome is the result of merging one proposal. Err is nil when the
// proposal was merged and a *ConflictSkipped otherwise.
type MergeOutcome struct {
	Proposal provider.PullRequest `json:"proposal"`
	Commit   string               `json:"commit,omitempty"`
	Err      *ConflictSkipped     `json:"-"`
}

// Merged reports whether the proposal made it into the branch.
func (o MergeOutcome) Merged() bool { return o.Err == nil }

// MergeResult is the output of the merge engine.
type MergeResult struct {
	Tip      string
	Outcomes []MergeOutcome
}

// Merged returns the merged proposals in merge order.
func (r *MergeResult) Merged() []provider.PullRequest {
	var prs []provider.PullRequest
	for _, o := range r.Outcomes {
		if o.Merged() {
			prs = append(prs, o.Proposal)
		}
	}
	return prs
}

// MergeEngine merges proposals one after another into the integration branch.
type MergeEngine struct {
	Host provider.Host
	Log  *RunLog
}

// Merge merges each candidate into branch in order. Each merge lands on the
// tip left by the previous one. Conflicting or vanished proposals are skipped;
// any other failure aborts.
func (m *MergeEngine) Merge(ctx context.Context, owner, repo, branch, base string, candidates []provider.PullRequest) (*MergeResult, error) {
	result := &MergeResult{Tip: base}

	for _, pr := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		head := pr.HeadSHA
		if head == "" {
			head = pr.HeadRef
		}
		message := fmt.Sprintf("Merge #%d: %s", pr.Number, pr.Title)

		sha, err := m.Host.MergeBranches(ctx, owner, repo, branch, head, message)
		switch {
		case err == nil:
			result.Tip = sha
			result.Outcomes = append(result.Outcomes, MergeOutcome{Proposal: pr, Commit: sha})
			metrics.ProposalMerged()
			m.Log.Printf("Merged #%d (%s) -> %s", pr.Number, pr.HeadRef, sha)
		case errors.Is(err, provider.ErrMergeConflict), errors.Is(err, provider.ErrNotFound):
			skip := &ConflictSkipped{Number: pr.Number, Err: err}
			result.Outcomes = append(result.Outcomes, MergeOutcome{Proposal: pr, Err: skip})
			metrics.ProposalSkipped()
			m.Log.Printf("Skipped #%d (%s): %v", pr.Number, pr.HeadRef, err)
		default:
			return nil, external(fmt.Sprintf("merging #%d", pr.Number), err)
		}
	}

	return result, nil
}
