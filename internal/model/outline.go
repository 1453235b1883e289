package model

import (
	"strings"
)

// OutlineNode is one heading in the outline tree. Level is the number of
// leading '#' characters (1-4); children are nested under it.
type OutlineNode struct {
	Heading  string         `json:"heading"`
	Level    int            `json:"level"`
	Children []*OutlineNode `json:"children,omitempty"`
}

// Outline is the full heading tree produced by Stage 3. Two versions are
// created (draft, then refined); the refined one is canonical.
type Outline struct {
	Root []*OutlineNode `json:"root"`
}

// TopLevel returns the root nodes in document order: the level-1 ('#')
// headings, plus any sub-heading that had no level-1 heading above it.
func (o *Outline) TopLevel() []*OutlineNode {
	return o.Root
}

// Render reproduces the Markdown heading lines for the outline, in the
// exact format the parser accepts, so Render(Parse(s)) == s modulo
// trailing whitespace.
func (o *Outline) Render() string {
	var b strings.Builder
	var walk func(n *OutlineNode)
	walk = func(n *OutlineNode) {
		b.WriteString(strings.Repeat("#", n.Level))
		b.WriteString(" ")
		b.WriteString(n.Heading)
		b.WriteString("\n")
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, n := range o.Root {
		walk(n)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Headings flattens the tree into a document-ordered slice.
func (o *Outline) Headings() []*OutlineNode {
	var out []*OutlineNode
	var walk func(n *OutlineNode)
	walk = func(n *OutlineNode) {
		out = append(out, n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, n := range o.Root {
		walk(n)
	}
	return out
}
