package train

import (
	"context"
	"sort"

	"github.com/drewdunne/releasetrain/internal/label"
	"github.com/drewdunne/releasetrain/internal/provider"
)

// listPageSize bounds the proposal listing. Larger result sets are not paged.
const listPageSize = 100

// Selector picks the open proposals marked ready.
type Selector struct {
	Host       provider.Host
	Classifier label.Classifier
}

// Select returns the ready proposals ordered by creation time, oldest first.
func (s *Selector) Select(ctx context.Context, owner, repo string) ([]provider.PullRequest, error) {
	prs, err := s.Host.ListPullRequests(ctx, owner, repo, provider.ListOptions{
		State:     "open",
		Sort:      "created",
		Direction: "asc",
		PerPage:   listPageSize,
	})
	if err != nil {
		return nil, external("listing pull requests", err)
	}

	var ready []provider.PullRequest
	for _, pr := range prs {
		if s.Classifier.IsReady(pr.Labels) {
			ready = append(ready, pr)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready, nil
}
