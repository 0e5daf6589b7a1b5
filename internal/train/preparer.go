package train

import (
	"context"
	"errors"
	"fmt"

	"github.com/drewdunne/releasetrain/internal/provider"
)

// Preparer recreates the integration branch at the trunk's head.
type Preparer struct {
	Host provider.Host
	Log  *RunLog
}

// Prepare deletes branch if it exists and creates it again at trunk's head,
// returning the trunk commit.
func (p *Preparer) Prepare(ctx context.Context, owner, repo, trunk, branch string) (string, error) {
	trunkSHA, err := p.Host.GetRef(ctx, owner, repo, provider.BranchRef(trunk))
	if errors.Is(err, provider.ErrNotFound) {
		return "", &ValidationError{Msg: fmt.Sprintf("trunk branch %q not found", trunk), Err: err}
	}
	if err != nil {
		return "", external("reading trunk head", err)
	}

	ref := provider.BranchRef(branch)
	err = p.Host.DeleteRef(ctx, owner, repo, ref)
	switch {
	case err == nil:
		p.Log.Printf("Deleted stale %s branch", branch)
	case errors.Is(err, provider.ErrNotFound):
	default:
		return "", external("deleting "+branch+" branch", err)
	}

	if err := p.Host.CreateRef(ctx, owner, repo, ref, trunkSHA); err != nil {
		return "", external("creating "+branch+" branch", err)
	}
	p.Log.Printf("Created %s branch at %s (%s)", branch, trunkSHA, trunk)
	return trunkSHA, nil
}
