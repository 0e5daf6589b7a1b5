package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRefMissing indicates a ref operation targeted a ref that does not exist.
	ErrRefMissing = fmt.Errorf("reference missing: %w", ErrNotFound)

	// ErrMergeConflict indicates the head cannot be merged into the base.
	ErrMergeConflict = errors.New("merge conflict")
)

// Host defines the operations the release train needs from a hosted repository service.
// Refs are given without the "refs/" prefix, e.g. "heads/main" (see BranchRef).
type Host interface {
	// Name returns the host name (github).
	Name() string

	// ListPullRequests returns a single page of pull requests.
	ListPullRequests(ctx context.Context, owner, repo string, opts ListOptions) ([]PullRequest, error)

	// GetRef returns the commit SHA the ref points at.
	GetRef(ctx context.Context, owner, repo, ref string) (string, error)

	// CreateRef creates a ref pointing at sha.
	CreateRef(ctx context.Context, owner, repo, ref, sha string) error

	// UpdateRef moves an existing ref. Returns ErrRefMissing if the ref does not exist.
	UpdateRef(ctx context.Context, owner, repo, ref, sha string, force bool) error

	// DeleteRef removes a ref. Returns an error wrapping ErrNotFound if it does not exist.
	DeleteRef(ctx context.Context, owner, repo, ref string) error

	// MergeBranches merges head into the base branch and returns the resulting commit.
	// Returns ErrMergeConflict when the merge cannot be performed automatically.
	MergeBranches(ctx context.Context, owner, repo, base, head, message string) (string, error)

	// GetFileContents reads a file at ref.
	GetFileContents(ctx context.Context, owner, repo, path, ref string) (*FileContent, error)

	// CreateOrUpdateFile commits a file to a branch and returns the new commit SHA.
	CreateOrUpdateFile(ctx context.Context, owner, repo string, update FileUpdate) (string, error)

	// CreatePullRequest opens a pull request.
	CreatePullRequest(ctx context.Context, owner, repo string, pr NewPullRequest) (*PullRequest, error)

	// UpdatePullRequest edits a pull request's metadata.
	UpdatePullRequest(ctx context.Context, owner, repo string, number int, update PullRequestUpdate) (*PullRequest, error)

	// RenderMarkdown renders markdown to HTML. repoContext is "owner/repo" and may be empty.
	RenderMarkdown(ctx context.Context, text, repoContext string) (string, error)
}
