// Package label classifies pull request labels for the release train.
package label

import "strings"

// Kind is the role a label plays in the release train.
type Kind int

const (
	KindOther Kind = iota
	KindReady
	KindCategory
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindCategory:
		return "category"
	default:
		return "other"
	}
}

// Label is a classified label. Category is set only for KindCategory.
type Label struct {
	Kind     Kind
	Name     string
	Category string
}

// Classifier recognizes the readiness label and category labels.
type Classifier struct {
	Ready          string // e.g. "c:ready"
	CategoryPrefix string // e.g. "category:"
}

// Classify returns the kind of a single label.
func (c Classifier) Classify(name string) Label {
	switch {
	case name == c.Ready:
		return Label{Kind: KindReady, Name: name}
	case c.CategoryPrefix != "" && strings.HasPrefix(name, c.CategoryPrefix):
		category := strings.TrimSpace(strings.TrimPrefix(name, c.CategoryPrefix))
		if category == "" {
			return Label{Kind: KindOther, Name: name}
		}
		return Label{Kind: KindCategory, Name: name, Category: category}
	default:
		return Label{Kind: KindOther, Name: name}
	}
}

// IsReady reports whether any of the labels is the readiness label.
func (c Classifier) IsReady(labels []string) bool {
	for _, name := range labels {
		if c.Classify(name).Kind == KindReady {
			return true
		}
	}
	return false
}

// Category returns the category of the first category label, or def when there is none.
func (c Classifier) Category(labels []string, def string) string {
	for _, name := range labels {
		if l := c.Classify(name); l.Kind == KindCategory {
			return l.Category
		}
	}
	return def
}
