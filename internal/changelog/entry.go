package changelog

import (
	"regexp"
	"strings"

	"github.com/drewdunne/releasetrain/internal/label"
	"github.com/drewdunne/releasetrain/internal/provider"
)

var (
	changelogMarkerPattern = regexp.MustCompile(`(?i)^###\s+changelog\s*#*\s*$`)
	sectionEndPattern      = regexp.MustCompile(`^#{1,3}\s`)
	htmlCommentPattern     = regexp.MustCompile(`(?s)<!--.*?-->`)
	leadingBulletPattern   = regexp.MustCompile(`^[-*+]\s+`)
)

// Entry is one changelog bullet derived from a merged pull request.
type Entry struct {
	Number   int
	Category string
	Author   string
	Text     string // excerpt as written in the pull request description
}

// Excerpt returns the text following the "### Changelog" heading of a pull request
// description, up to the next heading of level three or higher.
// ok is false when the marker is missing or the excerpt is empty.
func Excerpt(description string) (text string, ok bool) {
	description = htmlCommentPattern.ReplaceAllString(strings.ReplaceAll(description, "\r\n", "\n"), "")
	lines := strings.Split(description, "\n")

	start := -1
	for i, line := range lines {
		if changelogMarkerPattern.MatchString(strings.TrimSpace(line)) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", false
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if sectionEndPattern.MatchString(lines[i]) {
			end = i
			break
		}
	}

	text = strings.Trim(strings.Join(lines[start:end], "\n"), "\n \t")
	return text, text != ""
}

// Entries extracts one entry per pull request that carries a changelog excerpt.
// Pull requests without one are skipped.
func Entries(prs []provider.PullRequest, classifier label.Classifier, defaultCategory string) []Entry {
	var entries []Entry
	for _, pr := range prs {
		text, ok := Excerpt(pr.Body)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Number:   pr.Number,
			Category: classifier.Category(pr.Labels, defaultCategory),
			Author:   pr.Author,
			Text:     text,
		})
	}
	return entries
}

// Group is the entries of one category.
type Group struct {
	Category string
	Entries  []Entry
}

// GroupEntries groups entries by category. The priority category comes first,
// the others follow in order of first appearance. Entry order is preserved.
func GroupEntries(entries []Entry, priority string) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.Category]
		if !ok {
			i = len(groups)
			index[e.Category] = i
			groups = append(groups, Group{Category: e.Category})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}

	if i, ok := index[priority]; ok && i > 0 {
		first := groups[i]
		copy(groups[1:i+1], groups[:i])
		groups[0] = first
	}
	return groups
}

// bullet renders an entry as a list item. Continuation lines are indented under the
// bullet and the pull request and author references are appended to the last line.
func bullet(text, refs string) string {
	lines := strings.Split(leadingBulletPattern.ReplaceAllString(text, ""), "\n")
	for i := range lines {
		switch {
		case i == 0:
			lines[i] = "- " + lines[i]
		case strings.TrimSpace(lines[i]) == "":
			lines[i] = ""
		default:
			lines[i] = "  " + lines[i]
		}
	}

	last := len(lines) - 1
	if isFence(lines[last]) {
		lines = append(lines, "  "+refs)
	} else {
		lines[last] += " " + refs
	}
	return strings.Join(lines, "\n")
}
