package changelog

import (
	"fmt"
	"strings"

	"github.com/drewdunne/releasetrain/internal/label"
	"github.com/drewdunne/releasetrain/internal/provider"
)

// Options controls changelog synthesis.
type Options struct {
	Version          string
	Classifier       label.Classifier
	DefaultCategory  string // category of pull requests without a category label
	PriorityCategory string // category rendered first
	ProfileBaseURL   string // e.g. https://github.com
	RepositoryURL    string // e.g. https://github.com/owner/repo
}

func (o Options) profileURL(login string) string {
	base := strings.TrimSuffix(o.ProfileBaseURL, "/")
	if app, ok := strings.CutSuffix(login, "[bot]"); ok {
		return base + "/apps/" + app
	}
	return base + "/" + login
}

func (o Options) pullRequestURL(number int) string {
	return fmt.Sprintf("%s/pull/%d", strings.TrimSuffix(o.RepositoryURL, "/"), number)
}

// Result is the outcome of a synthesis.
type Result struct {
	Text            string
	Groups          []Group
	NewContributors []Reference
	// VersionExisted reports that a section for the version was already present.
	// The new section is added regardless.
	VersionExisted bool
}

// Synthesize adds a section for opts.Version describing the merged pull requests
// to the existing changelog and returns the formatted document.
func Synthesize(existing string, merged []provider.PullRequest, opts Options) (*Result, error) {
	doc, err := Parse(existing)
	if err != nil {
		return nil, err
	}
	versionExisted := doc.HasVersion(opts.Version)

	entries := Entries(merged, opts.Classifier, opts.DefaultCategory)
	groups := GroupEntries(entries, opts.PriorityCategory)

	var b strings.Builder
	b.WriteString(versionHeadingPrefix + opts.Version + "\n")

	var cited []int
	for _, g := range groups {
		b.WriteString("\n### " + g.Category + "\n\n")
		for _, e := range g.Entries {
			text := loginShorthandPattern.ReplaceAllStringFunc(e.Text, func(m string) string {
				login := unescapeLabel(loginShorthandPattern.FindStringSubmatch(m)[1])
				if label, ok := doc.Register(login, opts.profileURL(login)); ok {
					return "[@" + label + "]"
				}
				return m
			})

			refs := fmt.Sprintf("[#%d]", e.Number)
			if e.Author != "" {
				if label, ok := doc.Register(e.Author, opts.profileURL(e.Author)); ok {
					refs += ", by [@" + label + "]"
				} else {
					refs += ", by @" + e.Author
				}
			}
			b.WriteString(bullet(text, refs) + "\n")
			cited = append(cited, e.Number)
		}
	}

	if len(cited) > 0 {
		b.WriteString("\n")
		for _, n := range cited {
			b.WriteString(pullRequestRef(n, opts.pullRequestURL(n)) + "\n")
		}
	}

	doc.InsertSection(b.String())

	return &Result{
		Text:            Format(doc.String()),
		Groups:          groups,
		NewContributors: doc.Added(),
		VersionExisted:  versionExisted,
	}, nil
}
