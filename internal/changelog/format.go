package changelog

import (
	"regexp"
	"strings"
)

var (
	headingPattern   = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)[ \t]*$`)
	altBulletPattern = regexp.MustCompile(`^(\s*)[*+]([ \t]+)`)
)

// Format rewrites markdown into the canonical changelog style: "-" list markers,
// single-spaced ATX headings surrounded by blank lines, no trailing whitespace,
// no repeated blank lines and a single final newline. Code and HTML blocks are
// left untouched and prose is not rewrapped.
func Format(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	blocks := analyze(text)
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	lastBlank := func() bool {
		return len(out) == 0 || out[len(out)-1] == ""
	}

	afterHeading := false
	for i, line := range lines {
		if blocks.code[i] {
			if afterHeading && !lastBlank() {
				out = append(out, "")
			}
			afterHeading = false
			out = append(out, line)
			continue
		}

		line = strings.TrimRight(line, " \t")
		if line == "" {
			if !lastBlank() {
				out = append(out, "")
			}
			continue
		}

		if blocks.headings[i] > 0 {
			if m := headingPattern.FindStringSubmatch(line); m != nil {
				if !lastBlank() {
					out = append(out, "")
				}
				out = append(out, m[1]+" "+m[2])
				afterHeading = true
				continue
			}
		}

		if afterHeading && !lastBlank() {
			out = append(out, "")
		}
		afterHeading = false

		if blocks.items[i] {
			line = altBulletPattern.ReplaceAllString(line, "${1}-${2}")
		}
		out = append(out, line)
	}

	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n") + "\n"
}
