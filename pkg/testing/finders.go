package testing

import (
	"fmt"
	"strings"

	"github.com/go-drift/beam/pkg/stage"
)

// Finder locates nodes on the stage.
type Finder interface {
	// Evaluate returns all matching nodes under root (depth-first pre-order,
	// root excluded).
	Evaluate(root *stage.Node) []*stage.Node
	// Description returns a human-readable description for error messages.
	Description() string
}

// FinderResult wraps finder results with convenient accessors.
type FinderResult struct {
	nodes  []*stage.Node
	finder Finder
}

// First returns the first match. Panics if no matches.
func (r FinderResult) First() *stage.Node {
	if len(r.nodes) == 0 {
		panic(fmt.Sprintf("Finder found no nodes: %s", r.describe()))
	}
	return r.nodes[0]
}

// FirstOrNil returns the first match, or nil if none.
func (r FinderResult) FirstOrNil() *stage.Node {
	if len(r.nodes) == 0 {
		return nil
	}
	return r.nodes[0]
}

// At returns the match at index. Panics if out of range.
func (r FinderResult) At(index int) *stage.Node {
	if index < 0 || index >= len(r.nodes) {
		panic(fmt.Sprintf("Finder index %d out of range (found %d): %s", index, len(r.nodes), r.describe()))
	}
	return r.nodes[index]
}

// All returns all matches in traversal order.
func (r FinderResult) All() []*stage.Node {
	return r.nodes
}

// Count returns the number of matches.
func (r FinderResult) Count() int {
	return len(r.nodes)
}

// Exists returns true if at least one match was found.
func (r FinderResult) Exists() bool {
	return len(r.nodes) > 0
}

func (r FinderResult) describe() string {
	if r.finder == nil {
		return "unknown"
	}
	return r.finder.Description()
}

// predicateFinder matches nodes satisfying a predicate.
type predicateFinder struct {
	fn   func(*stage.Node) bool
	desc string
}

func (f *predicateFinder) Evaluate(root *stage.Node) []*stage.Node {
	return collectMatches(root, f.fn)
}

func (f *predicateFinder) Description() string {
	return f.desc
}

// ByPredicate returns a finder that matches nodes satisfying fn.
func ByPredicate(fn func(*stage.Node) bool) Finder {
	return &predicateFinder{fn: fn, desc: "ByPredicate(...)"}
}

// ByType returns a finder that matches nodes of the given type.
func ByType(typ string) Finder {
	return &predicateFinder{
		fn:   func(n *stage.Node) bool { return n.Type() == typ },
		desc: fmt.Sprintf("ByType(%s)", typ),
	}
}

// ByProp returns a finder that matches nodes whose prop equals value.
func ByProp(prop string, value any) Finder {
	return &predicateFinder{
		fn: func(n *stage.Node) bool {
			v, ok := n.Get(prop)
			return ok && v == value
		},
		desc: fmt.Sprintf("ByProp(%s=%v)", prop, value),
	}
}

// ByText returns a finder that matches nodes whose content is text.
func ByText(text string) Finder {
	return &predicateFinder{
		fn: func(n *stage.Node) bool {
			v, ok := n.Get("content")
			return ok && fmt.Sprint(v) == text
		},
		desc: fmt.Sprintf("ByText(%q)", text),
	}
}

// ByTextContaining returns a finder that matches nodes whose content
// contains substring.
func ByTextContaining(substring string) Finder {
	return &predicateFinder{
		fn: func(n *stage.Node) bool {
			v, ok := n.Get("content")
			return ok && strings.Contains(fmt.Sprint(v), substring)
		},
		desc: fmt.Sprintf("ByTextContaining(%q)", substring),
	}
}

// descendantFinder finds nodes matching 'matching' that are descendants
// of nodes matching 'of'.
type descendantFinder struct {
	of       Finder
	matching Finder
}

func (f *descendantFinder) Evaluate(root *stage.Node) []*stage.Node {
	var results []*stage.Node
	seen := make(map[*stage.Node]bool)
	for _, ancestor := range f.of.Evaluate(root) {
		for _, match := range f.matching.Evaluate(ancestor) {
			if !seen[match] {
				seen[match] = true
				results = append(results, match)
			}
		}
	}
	return results
}

func (f *descendantFinder) Description() string {
	return fmt.Sprintf("Descendant(of: %s, matching: %s)", f.of.Description(), f.matching.Description())
}

// Descendant returns a finder that matches nodes satisfying 'matching'
// that are descendants of nodes matching 'of'.
func Descendant(of, matching Finder) Finder {
	return &descendantFinder{of: of, matching: matching}
}

// collectMatches walks the live subtree below root.
func collectMatches(root *stage.Node, match func(*stage.Node) bool) []*stage.Node {
	var out []*stage.Node
	var walk func(n *stage.Node)
	walk = func(n *stage.Node) {
		for _, c := range n.Children() {
			if match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}
