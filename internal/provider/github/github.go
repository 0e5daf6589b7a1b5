package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/drewdunne/releasetrain/internal/provider"
	"github.com/google/go-github/v60/github"
)

// Ensure GitHubProvider implements provider.Host.
var _ provider.Host = (*GitHubProvider)(nil)

// GitHubProvider implements provider.Host for GitHub.
type GitHubProvider struct {
	client *github.Client
}

// Option configures the GitHub provider.
type Option func(*GitHubProvider)

// WithBaseURL sets a custom API base URL (GitHub Enterprise, tests).
func WithBaseURL(url string) Option {
	return func(p *GitHubProvider) {
		p.client.BaseURL, _ = p.client.BaseURL.Parse(strings.TrimSuffix(url, "/") + "/")
	}
}

// New creates a new GitHub provider.
func New(token string, opts ...Option) *GitHubProvider {
	httpClient := &http.Client{
		Transport: &tokenTransport{token: token},
	}
	client := github.NewClient(httpClient)

	p := &GitHubProvider{client: client}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// tokenTransport adds authorization header to requests.
type tokenTransport struct {
	token string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return http.DefaultTransport.RoundTrip(req)
}

// Name returns the provider name.
func (p *GitHubProvider) Name() string {
	return "github"
}

// ListPullRequests returns one page of pull requests.
func (p *GitHubProvider) ListPullRequests(ctx context.Context, owner, repo string, opts provider.ListOptions) ([]provider.PullRequest, error) {
	prs, _, err := p.client.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State:     opts.State,
		Head:      opts.Head,
		Base:      opts.Base,
		Sort:      opts.Sort,
		Direction: opts.Direction,
		ListOptions: github.ListOptions{
			PerPage: opts.PerPage,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", classify(err))
	}

	result := make([]provider.PullRequest, len(prs))
	for i, pr := range prs {
		result[i] = convertPullRequest(pr)
	}
	return result, nil
}

// GetRef returns the commit SHA a ref points at.
func (p *GitHubProvider) GetRef(ctx context.Context, owner, repo, ref string) (string, error) {
	r, _, err := p.client.Git.GetRef(ctx, owner, repo, ref)
	if err != nil {
		return "", fmt.Errorf("fetching ref %s: %w", ref, classify(err))
	}
	return r.GetObject().GetSHA(), nil
}

// CreateRef creates a ref pointing at sha.
func (p *GitHubProvider) CreateRef(ctx context.Context, owner, repo, ref, sha string) error {
	_, _, err := p.client.Git.CreateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/" + ref),
		Object: &github.GitObject{SHA: github.String(sha)},
	})
	if err != nil {
		return fmt.Errorf("creating ref %s: %w", ref, classify(err))
	}
	return nil
}

// UpdateRef moves an existing ref, optionally allowing non-fast-forward updates.
func (p *GitHubProvider) UpdateRef(ctx context.Context, owner, repo, ref, sha string, force bool) error {
	_, _, err := p.client.Git.UpdateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/" + ref),
		Object: &github.GitObject{SHA: github.String(sha)},
	}, force)
	if err != nil {
		return fmt.Errorf("updating ref %s: %w", ref, classify(err))
	}
	return nil
}

// DeleteRef removes a ref.
func (p *GitHubProvider) DeleteRef(ctx context.Context, owner, repo, ref string) error {
	_, err := p.client.Git.DeleteRef(ctx, owner, repo, ref)
	if err != nil {
		return fmt.Errorf("deleting ref %s: %w", ref, classify(err))
	}
	return nil
}

// MergeBranches merges head into base and returns the resulting commit SHA.
// When there is nothing to merge GitHub answers 204 and the base tip is returned.
func (p *GitHubProvider) MergeBranches(ctx context.Context, owner, repo, base, head, message string) (string, error) {
	commit, _, err := p.client.Repositories.Merge(ctx, owner, repo, &github.RepositoryMergeRequest{
		Base:          github.String(base),
		Head:          github.String(head),
		CommitMessage: github.String(message),
	})
	if err != nil {
		var ge *github.ErrorResponse
		if errors.As(err, &ge) && ge.Response != nil && ge.Response.StatusCode == http.StatusConflict {
			return "", fmt.Errorf("merging %s into %s: %w: %s", head, base, provider.ErrMergeConflict, ge.Message)
		}
		return "", fmt.Errorf("merging %s into %s: %w", head, base, classify(err))
	}

	if sha := commit.GetSHA(); sha != "" {
		return sha, nil
	}
	return p.GetRef(ctx, owner, repo, provider.BranchRef(base))
}

// GetFileContents reads a file at ref.
func (p *GitHubProvider) GetFileContents(ctx context.Context, owner, repo, path, ref string) (*provider.FileContent, error) {
	file, _, _, err := p.client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("fetching %s at %s: %w", path, ref, classify(err))
	}
	if file == nil {
		return nil, fmt.Errorf("fetching %s at %s: not a file", path, ref)
	}

	var content []byte
	if file.GetEncoding() == "none" {
		// Files over 1 MB come back without content; read the blob instead.
		content, _, err = p.client.Git.GetBlobRaw(ctx, owner, repo, file.GetSHA())
		if err != nil {
			return nil, fmt.Errorf("fetching blob of %s: %w", path, classify(err))
		}
	} else {
		decoded, err := file.GetContent()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		content = []byte(decoded)
	}

	return &provider.FileContent{
		Path:    file.GetPath(),
		Content: content,
		SHA:     file.GetSHA(),
	}, nil
}

// CreateOrUpdateFile commits a single file to a branch.
func (p *GitHubProvider) CreateOrUpdateFile(ctx context.Context, owner, repo string, update provider.FileUpdate) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(update.Message),
		Content: update.Content,
		Branch:  github.String(update.Branch),
	}

	var (
		resp *github.RepositoryContentResponse
		err  error
	)
	if update.SHA == "" {
		resp, _, err = p.client.Repositories.CreateFile(ctx, owner, repo, update.Path, opts)
	} else {
		opts.SHA = github.String(update.SHA)
		resp, _, err = p.client.Repositories.UpdateFile(ctx, owner, repo, update.Path, opts)
	}
	if err != nil {
		return "", fmt.Errorf("committing %s to %s: %w", update.Path, update.Branch, classify(err))
	}
	return resp.Commit.GetSHA(), nil
}

// CreatePullRequest opens a pull request.
func (p *GitHubProvider) CreatePullRequest(ctx context.Context, owner, repo string, pr provider.NewPullRequest) (*provider.PullRequest, error) {
	created, _, err := p.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
		Body:  github.String(pr.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", classify(err))
	}

	result := convertPullRequest(created)
	return &result, nil
}

// UpdatePullRequest edits a pull request's title and body.
func (p *GitHubProvider) UpdatePullRequest(ctx context.Context, owner, repo string, number int, update provider.PullRequestUpdate) (*provider.PullRequest, error) {
	edit := &github.PullRequest{}
	if update.Title != "" {
		edit.Title = github.String(update.Title)
	}
	if update.Body != "" {
		edit.Body = github.String(update.Body)
	}

	updated, _, err := p.client.PullRequests.Edit(ctx, owner, repo, number, edit)
	if err != nil {
		return nil, fmt.Errorf("updating pull request #%d: %w", number, classify(err))
	}

	result := convertPullRequest(updated)
	return &result, nil
}

// RenderMarkdown renders GitHub flavored markdown in the context of a repository.
func (p *GitHubProvider) RenderMarkdown(ctx context.Context, text, repoContext string) (string, error) {
	html, _, err := p.client.Markdown.Render(ctx, text, &github.MarkdownOptions{
		Mode:    "gfm",
		Context: repoContext,
	})
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", classify(err))
	}
	return html, nil
}

func convertPullRequest(pr *github.PullRequest) provider.PullRequest {
	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return provider.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		HeadRef:   pr.GetHead().GetRef(),
		HeadSHA:   pr.GetHead().GetSHA(),
		BaseRef:   pr.GetBase().GetRef(),
		Labels:    labels,
		Author:    pr.GetUser().GetLogin(),
		URL:       pr.GetHTMLURL(),
		State:     pr.GetState(),
		CreatedAt: pr.GetCreatedAt().Time,
	}
}

// classify maps GitHub API failures onto the provider sentinels.
// GitHub answers 422 "Reference does not exist" for updates and deletes of missing refs.
func classify(err error) error {
	var ge *github.ErrorResponse
	if !errors.As(err, &ge) || ge.Response == nil {
		return err
	}

	switch ge.Response.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	case http.StatusUnprocessableEntity:
		if strings.Contains(ge.Message, "Reference does not exist") {
			return fmt.Errorf("%w: %w", provider.ErrRefMissing, err)
		}
	}
	return err
}
