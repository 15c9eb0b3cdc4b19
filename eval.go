package hql

import (
	"strings"

	"go.uber.org/zap"
)

// ValueKind distinguishes the two value variants a pipeline carries.
type ValueKind int

const (
	// NodeSetValue is an ordered, duplicate-free set of nodes.
	NodeSetValue ValueKind = iota
	// TextValue is extracted scalar text.
	TextValue
)

// String returns a human-readable kind name for diagnostics.
func (k ValueKind) String() string {
	switch k {
	case NodeSetValue:
		return "node set"
	case TextValue:
		return "text"
	default:
		return "unknown"
	}
}

// Value is the single evolving value a pipeline evaluation carries between
// stages: a NodeSet while map stages run, Text once an extract stage ran.
type Value interface {
	ValueKind() ValueKind
}

// NodeSet is an ordered sequence of nodes in document order with
// duplicates removed.
type NodeSet []Node

// ValueKind implements Value.
func (NodeSet) ValueKind() ValueKind { return NodeSetValue }

// Text is scalar text produced by an extract stage.
type Text string

// ValueKind implements Value.
func (Text) ValueKind() ValueKind { return TextValue }

// evaluator runs a compiled pipeline over a node set. It holds no state
// between runs beyond the logger, so a single evaluator is safe for
// concurrent use.
type evaluator struct {
	logger *zap.Logger
}

// run processes the stages strictly left to right, threading one Value
// through. The context set is copied so the caller's slice is never
// aliased.
func (e *evaluator) run(p *Pipeline, context []Node) (Value, error) {
	var cur Value = NodeSet(append([]Node(nil), context...))

	for _, stage := range p.Stages {
		e.logger.Debug("applying stage",
			zap.String("stage", stage.Name()),
			zap.Bool("map", stage.Map()),
		)
		next, err := e.apply(stage, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// apply dispatches one stage over the closed set of stage variants.
func (e *evaluator) apply(stage Stage, cur Value) (Value, error) {
	switch s := stage.(type) {
	case FlatStage:
		nodes, err := wantNodeSet(stage, cur)
		if err != nil {
			return nil, err
		}
		return evalFlat(nodes), nil
	case PathStage:
		nodes, err := wantNodeSet(stage, cur)
		if err != nil {
			return nil, err
		}
		return evalPath(s, nodes), nil
	case AttrStage:
		nodes, err := wantNodeSet(stage, cur)
		if err != nil {
			return nil, err
		}
		return evalAttr(s, nodes), nil
	case IDStage:
		nodes, err := wantNodeSet(stage, cur)
		if err != nil {
			return nil, err
		}
		return evalID(s, nodes), nil
	case ClassStage:
		nodes, err := wantNodeSet(stage, cur)
		if err != nil {
			return nil, err
		}
		return evalClass(s, nodes), nil
	case ChildStage:
		nodes, err := wantNodeSet(stage, cur)
		if err != nil {
			return nil, err
		}
		return evalChild(s, nodes), nil
	case TextStage:
		nodes, err := wantNodeSet(stage, cur)
		if err != nil {
			return nil, err
		}
		return evalText(nodes), nil
	case TrimStage:
		text, err := wantText(stage, cur)
		if err != nil {
			return nil, err
		}
		return Text(strings.Trim(string(text), " \t\r\n")), nil
	case TrimPrefixStage:
		text, err := wantText(stage, cur)
		if err != nil {
			return nil, err
		}
		return Text(strings.TrimPrefix(string(text), s.Text)), nil
	case TrimSuffixStage:
		text, err := wantText(stage, cur)
		if err != nil {
			return nil, err
		}
		return Text(strings.TrimSuffix(string(text), s.Text)), nil
	case AttrExtractStage:
		nodes, err := wantNodeSet(stage, cur)
		if err != nil {
			return nil, err
		}
		return evalAttrExtract(s, nodes), nil
	default:
		return nil, &EvalError{
			Code:     ErrTypeMismatch,
			Stage:    stage.Name(),
			Expected: "a built-in stage",
			Got:      stage.Name(),
			Pos:      stage.Pos(),
		}
	}
}

// wantNodeSet asserts the current value is a node set.
func wantNodeSet(stage Stage, v Value) (NodeSet, error) {
	nodes, ok := v.(NodeSet)
	if !ok {
		return nil, &EvalError{
			Code:     ErrTypeMismatch,
			Stage:    stage.Name(),
			Expected: NodeSetValue.String(),
			Got:      v.ValueKind().String(),
			Pos:      stage.Pos(),
		}
	}
	return nodes, nil
}

// wantText asserts the current value is text.
func wantText(stage Stage, v Value) (Text, error) {
	text, ok := v.(Text)
	if !ok {
		return "", &EvalError{
			Code:     ErrTypeMismatch,
			Stage:    stage.Name(),
			Expected: TextValue.String(),
			Got:      v.ValueKind().String(),
			Pos:      stage.Pos(),
		}
	}
	return text, nil
}

// --- Map stages ---

func evalFlat(nodes NodeSet) NodeSet {
	var out []Node
	for _, n := range nodes {
		out = append(out, subtree(n)...)
	}
	return dedupe(out)
}

func evalPath(s PathStage, nodes NodeSet) NodeSet {
	cur := nodes
	for _, step := range s.Steps {
		var out []Node
		for _, n := range cur {
			var candidates []Node
			switch step.Kind {
			case PathChild:
				candidates = n.Children()
			case PathDescendant:
				candidates = subtree(n)
			}
			for _, c := range candidates {
				if c.Kind() == ElementNode && asciiFoldEqual(c.Tag(), step.Tag) {
					out = append(out, c)
				}
			}
		}
		cur = dedupe(out)
	}
	return cur
}

func evalAttr(s AttrStage, nodes NodeSet) NodeSet {
	out := make(NodeSet, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind() != ElementNode {
			continue
		}
		v, ok := n.Attr(s.Field)
		if !ok {
			continue
		}
		// Attribute values compare byte-for-byte, unlike tag names.
		if s.HasValue && v != s.Value {
			continue
		}
		out = append(out, n)
	}
	return out
}

func evalID(s IDStage, nodes NodeSet) NodeSet {
	out := make(NodeSet, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind() != ElementNode {
			continue
		}
		id, ok := n.Attr("id")
		if !ok {
			continue
		}
		if matchValue(id, s.Value, s.CaseSensitive) {
			out = append(out, n)
		}
	}
	return out
}

func evalClass(s ClassStage, nodes NodeSet) NodeSet {
	out := make(NodeSet, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind() != ElementNode {
			continue
		}
		classes, ok := n.Attr("class")
		if !ok {
			continue
		}
		for _, token := range strings.Fields(classes) {
			if matchValue(token, s.Value, s.CaseSensitive) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func evalChild(s ChildStage, nodes NodeSet) NodeSet {
	var out []Node
	for _, n := range nodes {
		children := n.Children()
		index := s.Index
		if index < 0 {
			index += len(children)
		}
		if index < 0 || index >= len(children) {
			// Out of range is not an error: the node contributes nothing.
			continue
		}
		out = append(out, children[index])
	}
	return dedupe(out)
}

// --- Extract stages ---

func evalText(nodes NodeSet) Text {
	var b strings.Builder
	for _, n := range nodes {
		if n.Kind() == TextNode {
			b.WriteString(n.Text())
			continue
		}
		for _, d := range subtree(n) {
			if d.Kind() == TextNode {
				b.WriteString(d.Text())
			}
		}
	}
	return Text(b.String())
}

func evalAttrExtract(s AttrExtractStage, nodes NodeSet) Text {
	var b strings.Builder
	for _, n := range nodes {
		if v, ok := n.Attr(s.Field); ok {
			b.WriteString(v)
		}
	}
	return Text(b.String())
}

// --- Traversal helpers ---

// subtree returns n and all of its descendants in document order. The
// traversal uses an explicit stack so arbitrarily deep trees cannot
// overflow the goroutine stack.
func subtree(n Node) []Node {
	var out []Node
	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)

		children := cur.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out
}

// dedupe removes duplicate nodes, keeping the first occurrence. Since the
// input is produced by visiting an in-document-order set node by node, the
// first occurrence order is document order.
func dedupe(nodes []Node) NodeSet {
	seen := make(map[Node]bool, len(nodes))
	out := make(NodeSet, 0, len(nodes))
	for _, n := range nodes {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// matchValue compares a document value against a query value, exactly or
// ASCII-case-folded.
func matchValue(have, want string, caseSensitive bool) bool {
	if caseSensitive {
		return have == want
	}
	return asciiFoldEqual(have, want)
}

// asciiFoldEqual reports whether a and b are equal after folding ASCII
// letters to lower case. Deliberately not locale-aware and not Unicode
// simple folding: matching stays deterministic byte arithmetic.
func asciiFoldEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
