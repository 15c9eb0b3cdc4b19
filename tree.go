package hql

// NodeKind distinguishes the two node flavors the evaluator understands.
type NodeKind int

const (
	// ElementNode is a tagged element with attributes and children.
	ElementNode NodeKind = iota
	// TextNode is a leaf carrying character data.
	TextNode
)

// String returns a human-readable kind name for diagnostics.
func (k NodeKind) String() string {
	switch k {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	default:
		return "unknown"
	}
}

// Node abstracts the document tree the evaluator queries. Implementations
// may wrap an HTML DOM, an XML tree, or any other ordered tree of tagged
// elements and text leaves.
//
// The engine is read-only over the tree and performs no mutation.
// Implementations must be comparable (typically a pointer type) so the
// evaluator can deduplicate node sets by identity, and their accessors must
// be safe for concurrent readers if pipelines are evaluated in parallel.
type Node interface {
	// Kind reports whether the node is an element or a text leaf.
	Kind() NodeKind

	// Tag returns the element's tag name; empty for text nodes.
	Tag() string

	// Text returns the character data of a text node; empty for elements.
	Text() string

	// Attr looks up an attribute by name. The second return reports
	// whether the attribute is present.
	Attr(name string) (string, bool)

	// Children returns the node's direct children in document order.
	Children() []Node

	// Parent returns the parent node, or nil for the root.
	Parent() Node
}
