package provider

import "time"

// PullRequest represents a change proposal on the hosted repository.
type PullRequest struct {
	Number    int
	Title     string
	Body      string
	HeadRef   string // branch name of the proposal's head
	HeadSHA   string
	BaseRef   string
	Labels    []string
	Author    string
	URL       string
	State     string // open, closed
	CreatedAt time.Time
}

// ListOptions controls pull request listing.
type ListOptions struct {
	State     string // open, closed, all
	Head      string // "owner:branch"
	Base      string
	Sort      string // created, updated
	Direction string // asc, desc
	PerPage   int
}

// FileContent is a file read at a given ref. Content is already decoded.
type FileContent struct {
	Path    string
	Content []byte
	SHA     string // blob SHA, required when updating the file
}

// FileUpdate describes a single-file commit.
type FileUpdate struct {
	Path    string
	Message string
	Content []byte
	Branch  string
	SHA     string // blob SHA of the file being replaced, empty when creating
}

// NewPullRequest holds the fields used to open a pull request.
type NewPullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// PullRequestUpdate holds the editable metadata of a pull request.
// Empty fields are left unchanged.
type PullRequestUpdate struct {
	Title string
	Body  string
}

// BranchRef returns the ref path of a branch as used by the ref operations.
func BranchRef(branch string) string {
	return "heads/" + branch
}
