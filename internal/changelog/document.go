// Package changelog parses a markdown changelog and splices new release sections into it.
//
// A changelog is a sequence of version sections ("## <version>") followed somewhere by
// a contiguous block of contributor reference definitions ("[@login]: <profile url>").
// Pull request references ("[#123]: <url>") live at the end of each version section.
package changelog

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoContributorBlock is returned when the changelog has no contributor reference block.
var ErrNoContributorBlock = errors.New("changelog has no contributor reference block")

// loginPattern matches a GitHub login as written in a reference label. App
// logins end in "[bot]"; the brackets are escaped so the label stays a valid
// link reference.
const loginPattern = `[A-Za-z0-9][A-Za-z0-9-]*(?:\\\[bot\\\])?`

var (
	contributorRefPattern = regexp.MustCompile(`^\[@(` + loginPattern + `)\]:[ \t]*(\S+)`)
	loginShorthandPattern = regexp.MustCompile(`\[@(` + loginPattern + `)\]`)
	validLoginPattern     = regexp.MustCompile(`^` + loginPattern + `$`)
	labelEscaper          = strings.NewReplacer("[", `\[`, "]", `\]`)
	labelUnescaper        = strings.NewReplacer(`\[`, "[", `\]`, "]")
	versionHeadingPrefix  = "## "
)

// Reference is a link reference definition.
type Reference struct {
	Key string // login for contributors, number for pull requests
	URL string
}

// Section is one version section: its heading line and the lines up to the next one.
type Section struct {
	Heading string
	Body    []string
}

// Version returns the heading text without the "## " marker.
func (s Section) Version() string {
	return strings.TrimSpace(strings.TrimPrefix(s.Heading, versionHeadingPrefix))
}

// Document is a parsed changelog. Mutations keep every original line in place.
type Document struct {
	lines    []string
	refStart int // first line of the contributor block
	refEnd   int // one past the last line of the contributor block
	known    map[string]string
	added    []Reference
	blocks   *layout // nil after an insert
}

// Parse reads a changelog. The contributor reference block must be present.
// Reference-like lines inside code blocks do not count.
func Parse(text string) (*Document, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	d := &Document{
		lines:    strings.Split(strings.TrimRight(text, "\n"), "\n"),
		refStart: -1,
		known:    make(map[string]string),
	}

	blocks := analyze(d.String())
	for i, line := range d.lines {
		m := contributorRefPattern.FindStringSubmatch(line)
		if m == nil || blocks.code[i] || !blocks.isReference("@"+m[1]) {
			continue
		}
		d.known[strings.ToLower(m[1])] = m[1]
		if d.refStart < 0 {
			d.refStart = i
			d.refEnd = i + 1
		} else if d.refEnd == i {
			d.refEnd = i + 1
		}
	}

	if d.refStart < 0 {
		return nil, ErrNoContributorBlock
	}
	return d, nil
}

// Sections returns the version sections in document order.
func (d *Document) Sections() []Section {
	var sections []Section
	for i, line := range d.lines {
		if d.isVersionHeading(i, line) {
			sections = append(sections, Section{Heading: line})
			continue
		}
		if len(sections) > 0 {
			last := &sections[len(sections)-1]
			last.Body = append(last.Body, line)
		}
	}
	return sections
}

// HasVersion reports whether a section for version already exists.
// Headings such as "## v1 (2024-01-01)" match version "v1".
func (d *Document) HasVersion(version string) bool {
	for _, s := range d.Sections() {
		v := s.Version()
		if v == version || strings.HasPrefix(v, version+" ") {
			return true
		}
	}
	return false
}

// Added returns the contributor references registered since Parse.
func (d *Document) Added() []Reference {
	return append([]Reference(nil), d.added...)
}

// Register returns the label spelling of login, appending a reference to the
// end of the contributor block if the login is not yet known. Logins are matched
// case-insensitively. ok is false for logins that cannot be written as a label.
func (d *Document) Register(login, profileURL string) (string, bool) {
	label := labelEscaper.Replace(login)
	if !validLoginPattern.MatchString(label) {
		return "", false
	}
	key := strings.ToLower(label)
	if canonical, ok := d.known[key]; ok {
		return canonical, true
	}

	d.insert(d.refEnd, "[@"+label+"]: "+profileURL)
	d.refEnd++
	d.known[key] = label
	d.added = append(d.added, Reference{Key: login, URL: profileURL})
	return label, true
}

// InsertSection places a rendered version section immediately before the first
// existing version heading, or before the contributor block when there is none.
func (d *Document) InsertSection(section string) {
	at := d.refStart
	for i, line := range d.lines {
		if d.isVersionHeading(i, line) {
			at = i
			break
		}
	}

	lines := strings.Split(strings.TrimRight(section, "\n"), "\n")
	lines = append(lines, "")
	d.insert(at, lines...)
	if at <= d.refStart {
		d.refStart += len(lines)
		d.refEnd += len(lines)
	}
}

// String renders the document.
func (d *Document) String() string {
	return strings.Join(d.lines, "\n") + "\n"
}

func (d *Document) insert(at int, lines ...string) {
	out := make([]string, 0, len(d.lines)+len(lines))
	out = append(out, d.lines[:at]...)
	out = append(out, lines...)
	out = append(out, d.lines[at:]...)
	d.lines = out
	d.blocks = nil
}

// isVersionHeading reports whether line i is a "## " heading. It is evaluated
// against the current text, so it stays correct as lines are inserted.
func (d *Document) isVersionHeading(i int, line string) bool {
	if !strings.HasPrefix(line, versionHeadingPrefix) {
		return false
	}
	if d.blocks == nil {
		d.blocks = analyze(d.String())
	}
	return d.blocks.headings[i] == 2
}

func unescapeLabel(label string) string {
	return labelUnescaper.Replace(label)
}

func isFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

func pullRequestRef(number int, url string) string {
	return "[#" + strconv.Itoa(number) + "]: " + url
}
