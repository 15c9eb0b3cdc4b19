// Package htmldoc adapts parsed HTML to the hql.Node interface. Documents
// are parsed with golang.org/x/net/html and mirrored into an immutable
// tree that keeps only element and text nodes; comments and doctypes are
// dropped. The mirrored tree is read-only and safe for concurrent queries.
package htmldoc

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hql-lang/hql"
)

// Document is a parsed HTML document ready to be queried.
type Document struct {
	root *Node
}

// Parse reads and parses a full HTML document. The returned document's
// root is a synthetic "#document" element whose children are the
// document's top-level elements, so pipelines address the <html> element
// as /html.
func Parse(r io.Reader) (*Document, error) {
	n, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	root := &Node{kind: hql.ElementNode, tag: "#document", src: n}
	convertChildren(n, root)
	return &Document{root: root}, nil
}

// ParseString parses a full HTML document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// ParseFragment parses an HTML fragment as if it appeared inside a <body>
// element. The returned document's root is a synthetic "#fragment"
// element whose children are the fragment's top-level nodes.
func ParseFragment(r io.Reader) (*Document, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(r, ctx)
	if err != nil {
		return nil, err
	}
	root := &Node{kind: hql.ElementNode, tag: "#fragment"}
	for _, n := range nodes {
		convert(n, root)
	}
	return &Document{root: root}, nil
}

// ParseFragmentString parses an HTML fragment from a string.
func ParseFragmentString(s string) (*Document, error) {
	return ParseFragment(strings.NewReader(s))
}

// Root returns the document's root node.
func (d *Document) Root() *Node {
	return d.root
}

// Node is one mirrored document node. It implements hql.Node. Nodes are
// pointer-identified, so the evaluator's identity-based deduplication
// works across repeated traversals.
type Node struct {
	kind     hql.NodeKind
	tag      string
	text     string
	attrs    []html.Attribute
	parent   *Node
	children []*Node

	// src is the underlying parse node, kept for rendering. Nil for the
	// synthetic fragment root.
	src *html.Node
}

// convert mirrors src (and its subtree) under parent, skipping node types
// the engine has no use for.
func convert(src *html.Node, parent *Node) {
	switch src.Type {
	case html.ElementNode:
		n := &Node{
			kind:   hql.ElementNode,
			tag:    src.Data,
			attrs:  src.Attr,
			parent: parent,
			src:    src,
		}
		parent.children = append(parent.children, n)
		convertChildren(src, n)
	case html.TextNode:
		n := &Node{
			kind:   hql.TextNode,
			text:   src.Data,
			parent: parent,
			src:    src,
		}
		parent.children = append(parent.children, n)
	default:
		// Comments, doctypes and parse errors are invisible to queries.
	}
}

func convertChildren(src *html.Node, parent *Node) {
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		convert(c, parent)
	}
}

// Kind implements hql.Node.
func (n *Node) Kind() hql.NodeKind { return n.kind }

// Tag implements hql.Node. Tag names arrive lower-cased from the HTML
// parser.
func (n *Node) Tag() string { return n.tag }

// Text implements hql.Node.
func (n *Node) Text() string { return n.text }

// Attr implements hql.Node. Attribute keys arrive lower-cased from the
// HTML parser; lookup is exact.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// Children implements hql.Node.
func (n *Node) Children() []hql.Node {
	out := make([]hql.Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

// Parent implements hql.Node.
func (n *Node) Parent() hql.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Render writes the node back out as markup: elements serialize their
// whole subtree, text nodes their escaped content.
func (n *Node) Render(w io.Writer) error {
	if n.src != nil {
		return html.Render(w, n.src)
	}
	for _, c := range n.children {
		if err := c.Render(w); err != nil {
			return err
		}
	}
	return nil
}
