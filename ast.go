package hql

// Pos represents a position in the input string.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// PathKind selects the traversal mode of a single path step.
type PathKind int

const (
	// PathChild matches direct children only ("/tag").
	PathChild PathKind = iota
	// PathDescendant matches any node in the subtree ("//tag").
	PathDescendant
)

// PathStep is one traversal directive inside a @path literal:
// a traversal kind plus the element tag to match.
type PathStep struct {
	Kind PathKind `json:"kind"`
	Tag  string   `json:"tag"`
}

// Stage is one parsed pipeline operator. The set of implementations is
// closed: map stages (@-prefixed) narrow a node set into another node set,
// extract stages (#-prefixed) convert a node set into a terminal text value.
// The evaluator dispatches over the concrete types.
type Stage interface {
	// Name returns the operator spelling, e.g. "@path" or "#trim".
	Name() string
	// Map reports whether the stage is a map stage (node set in, node set
	// out) as opposed to an extract stage.
	Map() bool
	// Pos returns the position of the stage's operator token in the input.
	Pos() Pos
}

// FlatStage flattens every node in the current set into its full subtree,
// including the node itself.
type FlatStage struct {
	At Pos `json:"pos"`
}

func (s FlatStage) Name() string { return "@flat" }
func (s FlatStage) Map() bool    { return true }
func (s FlatStage) Pos() Pos     { return s.At }

// PathStage applies one or more traversal steps in sequence, keeping only
// elements whose tag matches each step.
type PathStage struct {
	Steps []PathStep `json:"steps"`
	At    Pos        `json:"pos"`
}

func (s PathStage) Name() string { return "@path" }
func (s PathStage) Map() bool    { return true }
func (s PathStage) Pos() Pos     { return s.At }

// AttrStage retains elements carrying the named attribute. When HasValue is
// set, the attribute's value must additionally be byte-for-byte equal to
// Value.
type AttrStage struct {
	Field    string `json:"field"`
	Value    string `json:"value,omitempty"`
	HasValue bool   `json:"hasValue,omitempty"`
	At       Pos    `json:"pos"`
}

func (s AttrStage) Name() string { return "@attr" }
func (s AttrStage) Map() bool    { return true }
func (s AttrStage) Pos() Pos     { return s.At }

// IDStage retains elements whose id attribute equals Value, exactly or
// ASCII-case-folded depending on CaseSensitive.
type IDStage struct {
	Value         string `json:"value"`
	CaseSensitive bool   `json:"caseSensitive"`
	At            Pos    `json:"pos"`
}

func (s IDStage) Name() string { return "@id" }
func (s IDStage) Map() bool    { return true }
func (s IDStage) Pos() Pos     { return s.At }

// ClassStage retains elements whose class attribute, treated as a
// whitespace-separated token list, contains Value under the case policy.
type ClassStage struct {
	Value         string `json:"value"`
	CaseSensitive bool   `json:"caseSensitive"`
	At            Pos    `json:"pos"`
}

func (s ClassStage) Name() string { return "@class" }
func (s ClassStage) Map() bool    { return true }
func (s ClassStage) Pos() Pos     { return s.At }

// ChildStage selects the Index-th direct child of every node in the set.
// Negative indexes count from the end (-1 is the last child). Nodes without
// a child at that index contribute nothing.
type ChildStage struct {
	Index int `json:"index"`
	At    Pos `json:"pos"`
}

func (s ChildStage) Name() string { return "@child" }
func (s ChildStage) Map() bool    { return true }
func (s ChildStage) Pos() Pos     { return s.At }

// TextStage extracts the concatenated text content of every node in the
// set, in document order, with no separator.
type TextStage struct {
	At Pos `json:"pos"`
}

func (s TextStage) Name() string { return "#text" }
func (s TextStage) Map() bool    { return false }
func (s TextStage) Pos() Pos     { return s.At }

// TrimStage strips leading and trailing whitespace (space, tab, CR, LF)
// from the current text value.
type TrimStage struct {
	At Pos `json:"pos"`
}

func (s TrimStage) Name() string { return "#trim" }
func (s TrimStage) Map() bool    { return false }
func (s TrimStage) Pos() Pos     { return s.At }

// TrimPrefixStage removes at most one leading occurrence of Text from the
// current text value.
type TrimPrefixStage struct {
	Text string `json:"text"`
	At   Pos    `json:"pos"`
}

func (s TrimPrefixStage) Name() string { return "#trimPrefix" }
func (s TrimPrefixStage) Map() bool    { return false }
func (s TrimPrefixStage) Pos() Pos     { return s.At }

// TrimSuffixStage removes at most one trailing occurrence of Text from the
// current text value.
type TrimSuffixStage struct {
	Text string `json:"text"`
	At   Pos    `json:"pos"`
}

func (s TrimSuffixStage) Name() string { return "#trimSuffix" }
func (s TrimSuffixStage) Map() bool    { return false }
func (s TrimSuffixStage) Pos() Pos     { return s.At }

// AttrExtractStage reads the named attribute from every node in the set and
// concatenates the values in document order. Nodes without the attribute
// contribute the empty string.
type AttrExtractStage struct {
	Field string `json:"field"`
	At    Pos    `json:"pos"`
}

func (s AttrExtractStage) Name() string { return "#attr" }
func (s AttrExtractStage) Map() bool    { return false }
func (s AttrExtractStage) Pos() Pos     { return s.At }

// Pipeline is a compiled HQL expression: an ordered, non-empty sequence of
// stages. It is immutable after Compile and may be shared freely across
// goroutines and evaluated against many trees.
type Pipeline struct {
	Stages []Stage `json:"stages"`
}
