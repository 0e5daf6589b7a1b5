package changelog

import (
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var markdownParser = goldmark.DefaultParser()

// layout maps the block structure of a markdown document back onto its lines.
type layout struct {
	code     map[int]bool // lines inside code or HTML blocks, kept verbatim
	headings map[int]int  // line -> heading level
	items    map[int]bool // first line of an item in a "*" or "+" list
	ctx      parser.Context
}

func analyze(src string) *layout {
	source := []byte(src)
	starts := []int{0}
	for i, c := range source {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	lineOf := func(offset int) int {
		return sort.SearchInts(starts, offset+1) - 1
	}

	l := &layout{
		code:     make(map[int]bool),
		headings: make(map[int]int),
		items:    make(map[int]bool),
		ctx:      parser.NewContext(),
	}
	doc := markdownParser.Parse(text.NewReader(source), parser.WithContext(l.ctx))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				l.code[lineOf(lines.At(i).Start)] = true
			}
			return ast.WalkSkipChildren, nil
		case *ast.Heading:
			if node.Lines().Len() > 0 {
				l.headings[lineOf(node.Lines().At(0).Start)] = node.Level
			}
		case *ast.List:
			if node.Marker != '*' && node.Marker != '+' {
				break
			}
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				if start, ok := firstSegment(item); ok {
					l.items[lineOf(start)] = true
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return l
}

// isReference reports whether label is defined by a link reference definition.
func (l *layout) isReference(label string) bool {
	_, ok := l.ctx.Reference(util.ToLinkReference([]byte(label)))
	return ok
}

// firstSegment returns the source offset of the first text inside n.
func firstSegment(n ast.Node) (int, bool) {
	for c := n.FirstChild(); c != nil; c = c.FirstChild() {
		if c.Type() == ast.TypeBlock && c.Lines().Len() > 0 {
			return c.Lines().At(0).Start, true
		}
		if c.Type() != ast.TypeBlock {
			break
		}
	}
	return 0, false
}
