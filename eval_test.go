package hql

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNode is a minimal in-memory Node implementation for evaluator tests.
type testNode struct {
	kind     NodeKind
	tag      string
	text     string
	attrs    map[string]string
	children []*testNode
	parent   *testNode
}

func elem(tag string, attrs map[string]string, children ...*testNode) *testNode {
	n := &testNode{kind: ElementNode, tag: tag, attrs: attrs, children: children}
	for _, c := range children {
		c.parent = n
	}
	return n
}

func txt(s string) *testNode {
	return &testNode{kind: TextNode, text: s}
}

func (n *testNode) Kind() NodeKind { return n.kind }
func (n *testNode) Tag() string    { return n.tag }
func (n *testNode) Text() string   { return n.text }

func (n *testNode) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

func (n *testNode) Children() []Node {
	out := make([]Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *testNode) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// fixture builds:
//
//	<body>
//	  <div id="main" class="content wrapper">
//	    <span>Hi </span><b>there</b>
//	  </div>
//	  <div class="sidebar">
//	    <a href="#">top</a>
//	    <a href="https://example.com" target="_blank">out</a>
//	  </div>
//	</body>
type fixture struct {
	body, main, sidebar  *testNode
	span, bold           *testNode
	anchorTop, anchorOut *testNode
}

func newFixture() *fixture {
	f := &fixture{}
	f.span = elem("span", nil, txt("Hi "))
	f.bold = elem("b", nil, txt("there"))
	f.main = elem("div", map[string]string{"id": "main", "class": "content wrapper"}, f.span, f.bold)
	f.anchorTop = elem("a", map[string]string{"href": "#"}, txt("top"))
	f.anchorOut = elem("a", map[string]string{"href": "https://example.com", "target": "_blank"}, txt("out"))
	f.sidebar = elem("div", map[string]string{"class": "sidebar"}, f.anchorTop, f.anchorOut)
	f.body = elem("body", nil, f.main, f.sidebar)
	return f
}

// runStages evaluates hand-built stages against a context set.
func runStages(t *testing.T, context []Node, stages ...Stage) Value {
	t.Helper()
	v, err := (&Pipeline{Stages: stages}).Run(context...)
	require.NoError(t, err)
	return v
}

func TestEvalFlat(t *testing.T) {
	f := newFixture()

	v := runStages(t, []Node{f.body}, FlatStage{})
	nodes, ok := v.(NodeSet)
	require.True(t, ok)

	// body, main div, span, "Hi ", b, "there", sidebar div, a, "top", a, "out"
	assert.Len(t, nodes, 11)
	assert.Equal(t, Node(f.body), nodes[0], "subtree includes the start node first")
	assert.Equal(t, Node(f.main), nodes[1], "document order")

	// Overlapping context: the sidebar's subtree is already inside body's.
	v = runStages(t, []Node{f.body, f.sidebar}, FlatStage{})
	assert.Len(t, v.(NodeSet), 11, "duplicates removed, first occurrence kept")
}

func TestEvalPath(t *testing.T) {
	f := newFixture()

	t.Run("child step selects direct children only", func(t *testing.T) {
		v := runStages(t, []Node{f.body}, PathStage{Steps: []PathStep{{Kind: PathChild, Tag: "div"}}})
		assert.Equal(t, NodeSet{f.main, f.sidebar}, v)
	})

	t.Run("child step does not reach grandchildren", func(t *testing.T) {
		v := runStages(t, []Node{f.body}, PathStage{Steps: []PathStep{{Kind: PathChild, Tag: "a"}}})
		assert.Empty(t, v.(NodeSet))
	})

	t.Run("descendant step reaches any depth", func(t *testing.T) {
		v := runStages(t, []Node{f.body}, PathStage{Steps: []PathStep{{Kind: PathDescendant, Tag: "a"}}})
		assert.Equal(t, NodeSet{f.anchorTop, f.anchorOut}, v)
	})

	t.Run("descendant step includes the context node itself", func(t *testing.T) {
		v := runStages(t, []Node{f.main}, PathStage{Steps: []PathStep{{Kind: PathDescendant, Tag: "div"}}})
		assert.Equal(t, NodeSet{f.main}, v)
	})

	t.Run("consecutive steps narrow in sequence", func(t *testing.T) {
		v := runStages(t, []Node{f.body}, PathStage{Steps: []PathStep{
			{Kind: PathChild, Tag: "div"},
			{Kind: PathChild, Tag: "a"},
		}})
		assert.Equal(t, NodeSet{f.anchorTop, f.anchorOut}, v)
	})

	t.Run("tag match folds ASCII case", func(t *testing.T) {
		upper := elem("DIV", nil)
		root := elem("body", nil, upper)
		v := runStages(t, []Node{root}, PathStage{Steps: []PathStep{{Kind: PathChild, Tag: "div"}}})
		assert.Equal(t, NodeSet{upper}, v)
	})

	t.Run("text nodes never match a tag", func(t *testing.T) {
		v := runStages(t, []Node{f.span}, PathStage{Steps: []PathStep{{Kind: PathDescendant, Tag: "span"}}})
		assert.Equal(t, NodeSet{f.span}, v, "only the element itself, not its text child")
	})
}

func TestEvalAttr(t *testing.T) {
	f := newFixture()
	anchors := []Node{f.anchorTop, f.anchorOut}

	t.Run("existence check matches regardless of value", func(t *testing.T) {
		v := runStages(t, anchors, AttrStage{Field: "href"})
		assert.Equal(t, NodeSet{f.anchorTop, f.anchorOut}, v)
	})

	t.Run("value check requires exact equality", func(t *testing.T) {
		v := runStages(t, anchors, AttrStage{Field: "href", Value: "#", HasValue: true})
		assert.Equal(t, NodeSet{f.anchorTop}, v)
	})

	t.Run("value comparison is byte-for-byte", func(t *testing.T) {
		v := runStages(t, anchors, AttrStage{Field: "target", Value: "_BLANK", HasValue: true})
		assert.Empty(t, v.(NodeSet))
	})

	t.Run("missing attribute filters the node out", func(t *testing.T) {
		v := runStages(t, anchors, AttrStage{Field: "target"})
		assert.Equal(t, NodeSet{f.anchorOut}, v)
	})
}

func TestEvalID(t *testing.T) {
	upper := elem("div", map[string]string{"id": "FOO"})

	t.Run("case sensitive does not match different casing", func(t *testing.T) {
		v := runStages(t, []Node{upper}, IDStage{Value: "foo", CaseSensitive: true})
		assert.Empty(t, v.(NodeSet))
	})

	t.Run("case insensitive folds ASCII", func(t *testing.T) {
		v := runStages(t, []Node{upper}, IDStage{Value: "foo", CaseSensitive: false})
		assert.Equal(t, NodeSet{upper}, v)
	})

	t.Run("id is a whole-value match", func(t *testing.T) {
		f := newFixture()
		v := runStages(t, []Node{f.main}, IDStage{Value: "mai", CaseSensitive: true})
		assert.Empty(t, v.(NodeSet))

		v = runStages(t, []Node{f.main}, IDStage{Value: "main", CaseSensitive: true})
		assert.Equal(t, NodeSet{f.main}, v)
	})
}

func TestEvalClass(t *testing.T) {
	node := elem("div", map[string]string{"class": "baz bar qux"})
	long := elem("div", map[string]string{"class": "barricade"})

	t.Run("matches a whitespace-separated token", func(t *testing.T) {
		v := runStages(t, []Node{node, long}, ClassStage{Value: "bar", CaseSensitive: true})
		assert.Equal(t, NodeSet{node}, v, "token match, not substring match")
	})

	t.Run("case flag folds tokens", func(t *testing.T) {
		upper := elem("div", map[string]string{"class": "NAV active"})
		v := runStages(t, []Node{upper}, ClassStage{Value: "nav", CaseSensitive: true})
		assert.Empty(t, v.(NodeSet))

		v = runStages(t, []Node{upper}, ClassStage{Value: "nav", CaseSensitive: false})
		assert.Equal(t, NodeSet{upper}, v)
	})
}

func TestEvalChild(t *testing.T) {
	f := newFixture()

	t.Run("zero-based index", func(t *testing.T) {
		v := runStages(t, []Node{f.main}, ChildStage{Index: 0})
		assert.Equal(t, NodeSet{f.span}, v)
	})

	t.Run("negative index counts from the end", func(t *testing.T) {
		v := runStages(t, []Node{f.main}, ChildStage{Index: -1})
		assert.Equal(t, NodeSet{f.bold}, v)
	})

	t.Run("out of range contributes nothing", func(t *testing.T) {
		// f.main has 2 children, the empty div has none: only the last
		// child of f.main survives.
		empty := elem("div", nil)
		v := runStages(t, []Node{f.main, empty}, ChildStage{Index: -1})
		assert.Equal(t, NodeSet{f.bold}, v)

		v = runStages(t, []Node{f.main}, ChildStage{Index: 5})
		assert.Empty(t, v.(NodeSet))
	})

	t.Run("text children count", func(t *testing.T) {
		v := runStages(t, []Node{f.span}, ChildStage{Index: 0})
		require.Len(t, v.(NodeSet), 1)
		assert.Equal(t, TextNode, v.(NodeSet)[0].Kind())
	})
}

func TestEvalTextExtraction(t *testing.T) {
	f := newFixture()

	t.Run("element concatenates descendant text in document order", func(t *testing.T) {
		v := runStages(t, []Node{f.main}, TextStage{})
		assert.Equal(t, Text("Hi there"), v)
	})

	t.Run("set contributions concatenate without separator", func(t *testing.T) {
		v := runStages(t, []Node{f.anchorTop, f.anchorOut}, TextStage{})
		assert.Equal(t, Text("topout"), v)
	})

	t.Run("text nodes contribute their own content", func(t *testing.T) {
		hi := txt(" hello ")
		v := runStages(t, []Node{hi}, TextStage{}, TrimStage{})
		assert.Equal(t, Text("hello"), v)
	})
}

func TestEvalTrimFamily(t *testing.T) {
	source := txt("Hi  there\t\r\n")

	t.Run("trim strips both ends once", func(t *testing.T) {
		v := runStages(t, []Node{source}, TextStage{}, TrimStage{})
		assert.Equal(t, Text("Hi  there"), v)
	})

	t.Run("trimPrefix removes one literal occurrence", func(t *testing.T) {
		v := runStages(t, []Node{txt("HiHi there")}, TextStage{}, TrimPrefixStage{Text: "Hi"})
		assert.Equal(t, Text("Hi there"), v)
	})

	t.Run("trimPrefix keeps following whitespace", func(t *testing.T) {
		v := runStages(t, []Node{txt("Hi  there")}, TextStage{}, TrimPrefixStage{Text: "Hi"})
		assert.Equal(t, Text("  there"), v)
	})

	t.Run("trimPrefix is a no-op when absent", func(t *testing.T) {
		v := runStages(t, []Node{txt("there")}, TextStage{}, TrimPrefixStage{Text: "Hi"})
		assert.Equal(t, Text("there"), v)
	})

	t.Run("trimSuffix removes one literal occurrence", func(t *testing.T) {
		v := runStages(t, []Node{txt("out there there")}, TextStage{}, TrimSuffixStage{Text: " there"})
		assert.Equal(t, Text("out there"), v)
	})
}

func TestEvalAttrExtract(t *testing.T) {
	f := newFixture()

	t.Run("concatenates values in document order", func(t *testing.T) {
		v := runStages(t, []Node{f.anchorTop, f.anchorOut}, AttrExtractStage{Field: "href"})
		assert.Equal(t, Text("#https://example.com"), v)
	})

	t.Run("missing attribute contributes empty string", func(t *testing.T) {
		v := runStages(t, []Node{f.anchorTop, f.anchorOut}, AttrExtractStage{Field: "target"})
		assert.Equal(t, Text("_blank"), v)
	})
}

func TestEvalTypeMismatch(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		stages []Stage
		stage  string
	}{
		{"text after text", []Stage{TextStage{}, TextStage{}}, "#text"},
		{"flat after extract", []Stage{TextStage{}, FlatStage{}}, "@flat"},
		{"path after extract", []Stage{TextStage{}, PathStage{Steps: []PathStep{{Kind: PathChild, Tag: "a"}}}}, "@path"},
		{"child after extract", []Stage{TextStage{}, ChildStage{Index: 0}}, "@child"},
		{"attr extract after extract", []Stage{TextStage{}, AttrExtractStage{Field: "href"}}, "#attr"},
		{"trim on a node set", []Stage{TrimStage{}}, "#trim"},
		{"trimPrefix on a node set", []Stage{TrimPrefixStage{Text: "x"}}, "#trimPrefix"},
		{"trimSuffix on a node set", []Stage{TrimSuffixStage{Text: "x"}}, "#trimSuffix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Pipeline{Stages: tt.stages}).Run(f.body)
			require.Error(t, err)

			var evalErr *EvalError
			require.ErrorAs(t, err, &evalErr)
			assert.Equal(t, ErrTypeMismatch, evalErr.Code)
			assert.Equal(t, tt.stage, evalErr.Stage)
		})
	}
}

func TestQuerierReuse(t *testing.T) {
	f := newFixture()

	pipeline, err := Compile("@path(`//a`) | #attr(`href`)")
	require.NoError(t, err)
	querier := NewQuerier(pipeline)

	// A compiled pipeline is immutable: concurrent queries over the same
	// tree must agree.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := querier.Query(f.body)
			assert.NoError(t, err)
			assert.Equal(t, Text("#https://example.com"), v)
		}()
	}
	wg.Wait()
}

func TestQueryReturnsNodeSetWithoutExtract(t *testing.T) {
	f := newFixture()

	pipeline, err := Compile("@path(`/div`) | @class(`sidebar`)")
	require.NoError(t, err)

	v, err := pipeline.Run(f.body)
	require.NoError(t, err)
	assert.Equal(t, NodeSetValue, v.ValueKind())
	assert.Equal(t, NodeSet{f.sidebar}, v)
}

func TestQueryDoesNotMutateContext(t *testing.T) {
	f := newFixture()
	context := []Node{f.body}

	_, err := (&Pipeline{Stages: []Stage{FlatStage{}}}).Run(context...)
	require.NoError(t, err)
	assert.Equal(t, []Node{f.body}, context)
}
