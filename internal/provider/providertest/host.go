// Package providertest provides an in-memory provider.Host for tests.
package providertest

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drewdunne/releasetrain/internal/provider"
)

// Ensure Host implements provider.Host.
var _ provider.Host = (*Host)(nil)

// Host simulates a single hosted repository. Commits are snapshots of files;
// merges copy the base snapshot and overlay the head's files.
type Host struct {
	Owner string
	Repo  string

	mu       sync.Mutex
	branches map[string]string            // branch -> commit
	commits  map[string]map[string][]byte // commit -> path -> content
	pulls    []provider.PullRequest
	nextPR   int
	seq      int

	// Conflicts lists merge heads that fail with ErrMergeConflict.
	Conflicts map[string]bool

	// MergeSHAs, when set, supplies the commit SHAs produced by successive merges.
	MergeSHAs []string

	// Fail injects an error for the named operation (e.g. "CreateRef").
	Fail map[string]error

	// Calls records every operation in order, e.g. "MergeBranches prepare feature".
	Calls []string
}

// New creates a host whose trunk branch points at trunkSHA with the given files.
func New(owner, repo, trunk, trunkSHA string, files map[string]string) *Host {
	h := &Host{
		Owner:     owner,
		Repo:      repo,
		branches:  map[string]string{trunk: trunkSHA},
		commits:   map[string]map[string][]byte{},
		nextPR:    1,
		Conflicts: map[string]bool{},
		Fail:      map[string]error{},
	}
	snapshot := map[string][]byte{}
	for path, content := range files {
		snapshot[path] = []byte(content)
	}
	h.commits[trunkSHA] = snapshot
	return h
}

// AddProposal registers an open pull request and a head branch carrying files.
func (h *Host) AddProposal(pr provider.PullRequest, files map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if pr.State == "" {
		pr.State = "open"
	}
	if pr.HeadSHA == "" {
		pr.HeadSHA = h.newSHALocked("head")
	}
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(pr.Number) * time.Minute)
	}
	snapshot := map[string][]byte{}
	for path, content := range files {
		snapshot[path] = []byte(content)
	}
	h.commits[pr.HeadSHA] = snapshot
	if pr.HeadRef != "" {
		h.branches[pr.HeadRef] = pr.HeadSHA
	}
	if pr.Number >= h.nextPR {
		h.nextPR = pr.Number + 1
	}
	h.pulls = append(h.pulls, pr)
}

// Branch returns the commit a branch points at and whether it exists.
func (h *Host) Branch(name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sha, ok := h.branches[name]
	return sha, ok
}

// SetBranch points a branch at an existing commit.
func (h *Host) SetBranch(name, sha string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.branches[name] = sha
}

// File returns a file's content at a commit.
func (h *Host) File(sha, path string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	content, ok := h.commits[sha][path]
	return string(content), ok
}

// PullRequests returns a copy of every pull request.
func (h *Host) PullRequests() []provider.PullRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]provider.PullRequest(nil), h.pulls...)
}

// CallsWithPrefix returns the recorded calls whose operation matches op.
func (h *Host) CallsWithPrefix(op string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, c := range h.Calls {
		if strings.HasPrefix(c, op) {
			out = append(out, c)
		}
	}
	return out
}

func (h *Host) record(op string, args ...string) error {
	h.Calls = append(h.Calls, strings.TrimSpace(op+" "+strings.Join(args, " ")))
	if err := h.Fail[op]; err != nil {
		return err
	}
	return nil
}

func (h *Host) newSHALocked(prefix string) string {
	h.seq++
	return fmt.Sprintf("%s%03d", prefix, h.seq)
}

func branchName(ref string) (string, error) {
	if !strings.HasPrefix(ref, "heads/") {
		return "", fmt.Errorf("unsupported ref %q", ref)
	}
	return strings.TrimPrefix(ref, "heads/"), nil
}

// resolve finds the commit for a branch name or commit SHA.
func (h *Host) resolve(name string) (string, bool) {
	if sha, ok := h.branches[name]; ok {
		return sha, true
	}
	if _, ok := h.commits[name]; ok {
		return name, true
	}
	return "", false
}

// Name returns the host name.
func (h *Host) Name() string {
	return "memory"
}

// ListPullRequests lists pull requests honoring state, head, base and direction.
func (h *Host) ListPullRequests(ctx context.Context, owner, repo string, opts provider.ListOptions) ([]provider.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("ListPullRequests", opts.Head); err != nil {
		return nil, err
	}

	var out []provider.PullRequest
	for _, pr := range h.pulls {
		if opts.State != "" && opts.State != "all" && pr.State != opts.State {
			continue
		}
		if opts.Head != "" && opts.Head != owner+":"+pr.HeadRef {
			continue
		}
		if opts.Base != "" && opts.Base != pr.BaseRef {
			continue
		}
		out = append(out, pr)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if opts.Direction == "asc" {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.PerPage > 0 && len(out) > opts.PerPage {
		out = out[:opts.PerPage]
	}
	return out, nil
}

// GetRef returns the commit a branch ref points at.
func (h *Host) GetRef(ctx context.Context, owner, repo, ref string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("GetRef", ref); err != nil {
		return "", err
	}
	name, err := branchName(ref)
	if err != nil {
		return "", err
	}
	sha, ok := h.branches[name]
	if !ok {
		return "", fmt.Errorf("fetching ref %s: %w", ref, provider.ErrNotFound)
	}
	return sha, nil
}

// CreateRef creates a branch ref.
func (h *Host) CreateRef(ctx context.Context, owner, repo, ref, sha string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("CreateRef", ref, sha); err != nil {
		return err
	}
	name, err := branchName(ref)
	if err != nil {
		return err
	}
	if _, ok := h.branches[name]; ok {
		return fmt.Errorf("creating ref %s: reference already exists", ref)
	}
	if _, ok := h.commits[sha]; !ok {
		return fmt.Errorf("creating ref %s: %w", ref, provider.ErrNotFound)
	}
	h.branches[name] = sha
	return nil
}

// UpdateRef moves an existing branch ref.
func (h *Host) UpdateRef(ctx context.Context, owner, repo, ref, sha string, force bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("UpdateRef", ref, sha); err != nil {
		return err
	}
	name, err := branchName(ref)
	if err != nil {
		return err
	}
	if _, ok := h.branches[name]; !ok {
		return fmt.Errorf("updating ref %s: %w", ref, provider.ErrRefMissing)
	}
	h.branches[name] = sha
	return nil
}

// DeleteRef removes a branch ref.
func (h *Host) DeleteRef(ctx context.Context, owner, repo, ref string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("DeleteRef", ref); err != nil {
		return err
	}
	name, err := branchName(ref)
	if err != nil {
		return err
	}
	if _, ok := h.branches[name]; !ok {
		return fmt.Errorf("deleting ref %s: %w", ref, provider.ErrRefMissing)
	}
	delete(h.branches, name)
	return nil
}

// MergeBranches merges head (branch or SHA) into the base branch.
func (h *Host) MergeBranches(ctx context.Context, owner, repo, base, head, message string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("MergeBranches", base, head); err != nil {
		return "", err
	}
	baseSHA, ok := h.branches[base]
	if !ok {
		return "", fmt.Errorf("merging %s into %s: base %w", head, base, provider.ErrNotFound)
	}
	headSHA, ok := h.resolve(head)
	if !ok {
		return "", fmt.Errorf("merging %s into %s: head %w", head, base, provider.ErrNotFound)
	}
	if h.Conflicts[head] {
		return "", fmt.Errorf("merging %s into %s: %w", head, base, provider.ErrMergeConflict)
	}

	snapshot := map[string][]byte{}
	for path, content := range h.commits[baseSHA] {
		snapshot[path] = content
	}
	for path, content := range h.commits[headSHA] {
		snapshot[path] = content
	}

	var sha string
	if len(h.MergeSHAs) > 0 {
		sha, h.MergeSHAs = h.MergeSHAs[0], h.MergeSHAs[1:]
	} else {
		sha = h.newSHALocked("merge")
	}
	h.commits[sha] = snapshot
	h.branches[base] = sha
	return sha, nil
}

// GetFileContents reads a file at a branch or commit.
func (h *Host) GetFileContents(ctx context.Context, owner, repo, path, ref string) (*provider.FileContent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("GetFileContents", path, ref); err != nil {
		return nil, err
	}
	sha, ok := h.resolve(ref)
	if !ok {
		return nil, fmt.Errorf("fetching %s at %s: %w", path, ref, provider.ErrNotFound)
	}
	content, ok := h.commits[sha][path]
	if !ok {
		return nil, fmt.Errorf("fetching %s at %s: %w", path, ref, provider.ErrNotFound)
	}
	return &provider.FileContent{Path: path, Content: content, SHA: blobSHA(content)}, nil
}

// CreateOrUpdateFile commits a file on top of a branch.
func (h *Host) CreateOrUpdateFile(ctx context.Context, owner, repo string, update provider.FileUpdate) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("CreateOrUpdateFile", update.Path, update.Branch); err != nil {
		return "", err
	}
	parent, ok := h.branches[update.Branch]
	if !ok {
		return "", fmt.Errorf("committing %s: branch %w", update.Path, provider.ErrNotFound)
	}
	if existing, ok := h.commits[parent][update.Path]; ok && blobSHA(existing) != update.SHA {
		return "", fmt.Errorf("committing %s: sha does not match", update.Path)
	}

	snapshot := map[string][]byte{}
	for path, content := range h.commits[parent] {
		snapshot[path] = content
	}
	snapshot[update.Path] = append([]byte(nil), update.Content...)

	sha := h.newSHALocked("commit")
	h.commits[sha] = snapshot
	h.branches[update.Branch] = sha
	return sha, nil
}

// CreatePullRequest opens a pull request.
func (h *Host) CreatePullRequest(ctx context.Context, owner, repo string, pr provider.NewPullRequest) (*provider.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("CreatePullRequest", pr.Head, pr.Base); err != nil {
		return nil, err
	}
	created := provider.PullRequest{
		Number:    h.nextPR,
		Title:     pr.Title,
		Body:      pr.Body,
		HeadRef:   pr.Head,
		BaseRef:   pr.Base,
		State:     "open",
		URL:       fmt.Sprintf("https://example.test/%s/%s/pull/%d", owner, repo, h.nextPR),
		CreatedAt: time.Now(),
	}
	h.nextPR++
	h.pulls = append(h.pulls, created)
	return &created, nil
}

// UpdatePullRequest edits a pull request.
func (h *Host) UpdatePullRequest(ctx context.Context, owner, repo string, number int, update provider.PullRequestUpdate) (*provider.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("UpdatePullRequest", fmt.Sprint(number)); err != nil {
		return nil, err
	}
	for i := range h.pulls {
		if h.pulls[i].Number != number {
			continue
		}
		if update.Title != "" {
			h.pulls[i].Title = update.Title
		}
		if update.Body != "" {
			h.pulls[i].Body = update.Body
		}
		pr := h.pulls[i]
		return &pr, nil
	}
	return nil, fmt.Errorf("updating pull request #%d: %w", number, provider.ErrNotFound)
}

// RenderMarkdown wraps the text in a pre element.
func (h *Host) RenderMarkdown(ctx context.Context, text, repoContext string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("RenderMarkdown", repoContext); err != nil {
		return "", err
	}
	return "<pre>" + text + "</pre>", nil
}

func blobSHA(content []byte) string {
	h := fnv.New32a()
	h.Write(content)
	return fmt.Sprintf("blob%08x", h.Sum32())
}
