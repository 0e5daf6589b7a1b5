package train

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drewdunne/releasetrain/internal/provider"
)

// Request starts a run.
type Request struct {
	Version string // empty selects the configured default
	Trigger string // manual, webhook, schedule, cli
}

// Report describes a finished run, successful or not.
type Report struct {
	RunID           string
	Repository      string
	Version         string
	Trigger         string
	Trunk           string
	TrunkSHA        string
	Tip             string
	Outcomes        []MergeOutcome
	ChangelogCommit string
	NewContributors []string
	PullRequest     *provider.PullRequest
	StartedAt       time.Time
	FinishedAt      time.Time
	Log             string
	Err             error
}

// Merged returns the proposals merged by the run, in merge order.
func (r *Report) Merged() []provider.PullRequest {
	return (&MergeResult{Outcomes: r.Outcomes}).Merged()
}

// Skipped returns the outcomes of proposals the run left out.
func (r *Report) Skipped() []MergeOutcome {
	var out []MergeOutcome
	for _, o := range r.Outcomes {
		if !o.Merged() {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded reports whether the run reached the end of the pipeline.
func (r *Report) Succeeded() bool { return r.Err == nil }

// Reason summarizes why a proposal was skipped. It is empty for merged proposals.
func (o MergeOutcome) Reason() string {
	switch {
	case o.Err == nil:
		return ""
	case errors.Is(o.Err, provider.ErrMergeConflict):
		return "merge conflict"
	case errors.Is(o.Err, provider.ErrNotFound):
		return "head no longer exists"
	default:
		return o.Err.Err.Error()
	}
}

func pullRequestTitle(template, version string) string {
	return strings.ReplaceAll(template, "{version}", version)
}

func pullRequestBody(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release train for **%s**, built on %s at `%s`.\n", r.Version, r.Trunk, shortSHA(r.TrunkSHA))

	merged := r.Merged()
	b.WriteString("\n### Merged\n\n")
	if len(merged) == 0 {
		b.WriteString("No proposals were merged.\n")
	}
	for _, pr := range merged {
		fmt.Fprintf(&b, "- #%d %s\n", pr.Number, pr.Title)
	}

	if skipped := r.Skipped(); len(skipped) > 0 {
		b.WriteString("\n### Skipped\n\n")
		for _, o := range skipped {
			fmt.Fprintf(&b, "- #%d %s (%s)\n", o.Proposal.Number, o.Proposal.Title, o.Reason())
		}
	}
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
