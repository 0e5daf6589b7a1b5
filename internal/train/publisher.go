package train

import (
	"context"
	"errors"

	"github.com/drewdunne/releasetrain/internal/provider"
)

// Publication describes what the publisher should expose.
type Publication struct {
	Trunk    string
	Proposed string // public branch moved to Tip
	Prepare  string // integration branch removed after the move
	Tip      string
	Title    string
	Body     string
}

// Publisher moves the proposed branch and keeps one pull request open for it.
type Publisher struct {
	Host provider.Host
	Log  *RunLog
}

// Publish points the proposed branch at p.Tip, creating it if needed, removes
// the integration branch, and creates or updates the proposed pull request.
func (pb *Publisher) Publish(ctx context.Context, owner, repo string, p Publication) (*provider.PullRequest, error) {
	ref := provider.BranchRef(p.Proposed)
	err := pb.Host.UpdateRef(ctx, owner, repo, ref, p.Tip, true)
	if errors.Is(err, provider.ErrNotFound) {
		pb.Log.Printf("Branch %s does not exist yet, creating it", p.Proposed)
		err = pb.Host.CreateRef(ctx, owner, repo, ref, p.Tip)
	}
	if err != nil {
		return nil, external("moving "+p.Proposed+" branch", err)
	}
	pb.Log.Printf("Moved %s to %s", p.Proposed, p.Tip)

	if p.Prepare != "" {
		err := pb.Host.DeleteRef(ctx, owner, repo, provider.BranchRef(p.Prepare))
		if err != nil && !errors.Is(err, provider.ErrNotFound) {
			pb.Log.Printf("Warning: could not delete %s branch: %v", p.Prepare, err)
		}
	}

	open, err := pb.Host.ListPullRequests(ctx, owner, repo, provider.ListOptions{
		State:   "open",
		Head:    owner + ":" + p.Proposed,
		Base:    p.Trunk,
		PerPage: listPageSize,
	})
	if err != nil {
		return nil, external("listing proposed pull requests", err)
	}
	for _, pr := range open {
		if pr.HeadRef != p.Proposed {
			continue
		}
		updated, err := pb.Host.UpdatePullRequest(ctx, owner, repo, pr.Number, provider.PullRequestUpdate{
			Title: p.Title,
			Body:  p.Body,
		})
		if err != nil {
			return nil, external("updating pull request", err)
		}
		pb.Log.Printf("Updated pull request #%d", updated.Number)
		return updated, nil
	}

	created, err := pb.Host.CreatePullRequest(ctx, owner, repo, provider.NewPullRequest{
		Title: p.Title,
		Head:  p.Proposed,
		Base:  p.Trunk,
		Body:  p.Body,
	})
	if err != nil {
		return nil, external("creating pull request", err)
	}
	pb.Log.Printf("Created pull request #%d", created.Number)
	return created, nil
}
