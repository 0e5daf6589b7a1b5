package train

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drewdunne/releasetrain/internal/changelog"
	"github.com/drewdunne/releasetrain/internal/config"
	"github.com/drewdunne/releasetrain/internal/label"
	"github.com/drewdunne/releasetrain/internal/metrics"
	"github.com/drewdunne/releasetrain/internal/provider"
)

// Recorder receives every finished report.
type Recorder func(ctx context.Context, report *Report)

// Runner drives the release train for one repository.
type Runner struct {
	host      provider.Host
	cfg       *config.Config
	lease     *Lease
	recorders []Recorder
	newID     func() string
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLease shares a lease between runners that use the same branches.
func WithLease(l *Lease) Option {
	return func(r *Runner) {
		r.lease = l
	}
}

// WithRecorder adds a recorder called after every run.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorders = append(r.recorders, rec)
	}
}

// NewRunner creates a Runner for the repository named in cfg.
func NewRunner(host provider.Host, cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		host:  host,
		cfg:   cfg,
		lease: NewLease(),
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run selects, merges and publishes the ready proposals. The returned report
// is non-nil whenever the run started, including failed runs.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	version, err := r.version(req.Version)
	if err != nil {
		return nil, err
	}

	release, err := r.lease.Acquire(r.cfg.Train.PrepareBranch)
	if err != nil {
		metrics.RunRejected()
		return nil, err
	}
	defer release()

	report := &Report{
		RunID:      r.newID(),
		Repository: r.cfg.Repository.FullName(),
		Version:    version,
		Trigger:    req.Trigger,
		StartedAt:  r.now(),
	}
	rl := NewRunLog(report.RunID)
	metrics.RunStarted()
	rl.Printf("Starting release train %q for %s (trigger: %s)", version, report.Repository, req.Trigger)

	err = r.run(ctx, report, rl)
	report.FinishedAt = r.now()
	if err != nil {
		report.Err = err
		metrics.RunFailed()
		rl.Printf("Run failed: %v", err)
	} else {
		metrics.RunSucceeded()
		rl.Printf("Run finished: %d merged, %d skipped", len(report.Merged()), len(report.Skipped()))
	}
	report.Log = rl.String()

	recordCtx := context.WithoutCancel(ctx)
	for _, rec := range r.recorders {
		rec(recordCtx, report)
	}
	return report, err
}

func (r *Runner) run(ctx context.Context, report *Report, rl *RunLog) error {
	settings, err := r.settings(ctx)
	if err != nil {
		return err
	}
	repo, tc := settings.Repository, settings.Train
	report.Trunk = repo.Trunk

	selector := &Selector{Host: r.host, Classifier: classifier(tc)}
	candidates, err := selector.Select(ctx, repo.Owner, repo.Name)
	if err != nil {
		return err
	}
	rl.Printf("Found %d ready proposals", len(candidates))

	preparer := &Preparer{Host: r.host, Log: rl}
	trunkSHA, err := preparer.Prepare(ctx, repo.Owner, repo.Name, repo.Trunk, tc.PrepareBranch)
	if err != nil {
		return err
	}
	report.TrunkSHA = trunkSHA
	report.Tip = trunkSHA

	engine := &MergeEngine{Host: r.host, Log: rl}
	merged, err := engine.Merge(ctx, repo.Owner, repo.Name, tc.PrepareBranch, trunkSHA, candidates)
	if err != nil {
		return err
	}
	report.Outcomes = merged.Outcomes
	report.Tip = merged.Tip

	commit, result, err := r.commitChangelog(ctx, settings, report.Version, merged, rl)
	if err != nil {
		return err
	}
	report.ChangelogCommit = commit
	report.Tip = commit
	for _, ref := range result.NewContributors {
		report.NewContributors = append(report.NewContributors, ref.Key)
	}

	publisher := &Publisher{Host: r.host, Log: rl}
	pr, err := publisher.Publish(ctx, repo.Owner, repo.Name, Publication{
		Trunk:    repo.Trunk,
		Proposed: tc.ProposedBranch,
		Prepare:  tc.PrepareBranch,
		Tip:      commit,
		Title:    pullRequestTitle(tc.PullRequestTitle, report.Version),
		Body:     pullRequestBody(report),
	})
	if err != nil {
		return err
	}
	report.PullRequest = pr
	return nil
}

// commitChangelog synthesizes the changelog at the merge tip and commits it to
// the integration branch.
func (r *Runner) commitChangelog(ctx context.Context, settings *config.MergedConfig, version string, merged *MergeResult, rl *RunLog) (string, *changelog.Result, error) {
	repo := settings.Repository
	file, err := r.host.GetFileContents(ctx, repo.Owner, repo.Name, repo.ChangelogPath, merged.Tip)
	if errors.Is(err, provider.ErrNotFound) {
		return "", nil, &ValidationError{Msg: fmt.Sprintf("changelog %s not found", repo.ChangelogPath), Err: err}
	}
	if err != nil {
		return "", nil, external("fetching changelog", err)
	}

	result, err := changelog.Synthesize(string(file.Content), merged.Merged(), r.changelogOptions(settings, version))
	if err != nil {
		return "", nil, &ValidationError{Msg: "malformed changelog " + repo.ChangelogPath, Err: err}
	}
	if result.VersionExisted {
		rl.Printf("Warning: %s already has a section for %s, adding another one", repo.ChangelogPath, version)
	}

	commit, err := r.host.CreateOrUpdateFile(ctx, repo.Owner, repo.Name, provider.FileUpdate{
		Path:    repo.ChangelogPath,
		Message: "Update changelog for " + version,
		Content: []byte(result.Text),
		Branch:  settings.Train.PrepareBranch,
		SHA:     file.SHA,
	})
	if err != nil {
		return "", nil, external("committing changelog", err)
	}
	rl.Printf("Committed %s (%d groups, %d new contributors) -> %s", repo.ChangelogPath, len(result.Groups), len(result.NewContributors), commit)
	return commit, result, nil
}

// Preview is a changelog rendered without committing anything.
type Preview struct {
	Version   string
	Proposals []provider.PullRequest
	Markdown  string
	HTML      string
}

// Preview synthesizes the changelog against the trunk as if every ready
// proposal merged cleanly, and renders it.
func (r *Runner) Preview(ctx context.Context, version string) (*Preview, error) {
	version, err := r.version(version)
	if err != nil {
		return nil, err
	}
	settings, err := r.settings(ctx)
	if err != nil {
		return nil, err
	}
	repo := settings.Repository

	selector := &Selector{Host: r.host, Classifier: classifier(settings.Train)}
	candidates, err := selector.Select(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, err
	}

	file, err := r.host.GetFileContents(ctx, repo.Owner, repo.Name, repo.ChangelogPath, repo.Trunk)
	if errors.Is(err, provider.ErrNotFound) {
		return nil, &ValidationError{Msg: fmt.Sprintf("changelog %s not found", repo.ChangelogPath), Err: err}
	}
	if err != nil {
		return nil, external("fetching changelog", err)
	}

	result, err := changelog.Synthesize(string(file.Content), candidates, r.changelogOptions(settings, version))
	if err != nil {
		return nil, &ValidationError{Msg: "malformed changelog " + repo.ChangelogPath, Err: err}
	}

	html, err := r.host.RenderMarkdown(ctx, result.Text, repo.FullName())
	if err != nil {
		return nil, external("rendering changelog", err)
	}

	return &Preview{
		Version:   version,
		Proposals: candidates,
		Markdown:  result.Text,
		HTML:      html,
	}, nil
}

func (r *Runner) version(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		v = r.cfg.Train.DefaultVersion
	}
	if v == "" || strings.ContainsAny(v, "\r\n") {
		return "", &ValidationError{Msg: fmt.Sprintf("invalid version %q", v)}
	}
	return v, nil
}

// settings applies the repository's own config file, read from the trunk.
func (r *Runner) settings(ctx context.Context) (*config.MergedConfig, error) {
	repo := r.cfg.Repository
	repoCfg, err := config.LoadRepoConfig(ctx, NewFileReader(r.host), repo.Owner, repo.Name, repo.Trunk)
	if err != nil {
		var ext *ExternalServiceError
		if errors.As(err, &ext) {
			return nil, err
		}
		return nil, &ValidationError{Msg: "invalid " + config.RepoConfigPath, Err: err}
	}
	return config.MergeConfigs(r.cfg, repoCfg), nil
}

func (r *Runner) changelogOptions(settings *config.MergedConfig, version string) changelog.Options {
	web := strings.TrimSuffix(r.cfg.Providers.GitHub.WebURL, "/")
	return changelog.Options{
		Version:          version,
		Classifier:       classifier(settings.Train),
		DefaultCategory:  settings.Train.DefaultCategory,
		PriorityCategory: settings.Train.PriorityCategory,
		ProfileBaseURL:   web,
		RepositoryURL:    web + "/" + settings.Repository.FullName(),
	}
}

func classifier(tc config.TrainConfig) label.Classifier {
	return label.Classifier{Ready: tc.ReadyLabel, CategoryPrefix: tc.CategoryPrefix}
}

// NewFileReader adapts a provider.Host to config.FileReader. Missing files
// are reported as config.ErrConfigNotFound.
func NewFileReader(host provider.Host) config.FileReader {
	return hostReader{host: host}
}

type hostReader struct {
	host provider.Host
}

func (h hostReader) ReadFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	file, err := h.host.GetFileContents(ctx, owner, repo, path, ref)
	if errors.Is(err, provider.ErrNotFound) {
		return nil, config.ErrConfigNotFound
	}
	if err != nil {
		return nil, external("reading "+path, err)
	}
	return file.Content, nil
}
