// Package hql implements HQL, a small pipeline language for querying
// tree-structured markup documents.
//
// An HQL expression is a sequence of stages separated by '|'. Map stages
// (@-prefixed) narrow the current node set; extract stages (#-prefixed)
// convert the node set into terminal text:
//
//	@path(`//div/a`) | @attr(`href`) | #attr(`href`)
//	@path(`/html//p`) | @class(`intro`, 0) | #text() | #trim()
//
// Compile turns an expression into an immutable Pipeline; a Querier (or
// Pipeline.Run) evaluates it against any tree exposed through the Node
// interface. The htmldoc subpackage supplies a Node implementation backed
// by parsed HTML.
package hql

import "go.uber.org/zap"

// Querier evaluates one compiled pipeline, optionally logging each applied
// stage. It is immutable after construction and safe for concurrent Query
// calls.
type Querier struct {
	pipeline *Pipeline
	logger   *zap.Logger
}

// QuerierOption configures a Querier.
type QuerierOption func(*Querier)

// WithLogger attaches a logger; each applied stage is logged at debug
// level. The default is a no-op logger.
func WithLogger(logger *zap.Logger) QuerierOption {
	return func(q *Querier) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQuerier wraps a compiled pipeline for evaluation.
func NewQuerier(pipeline *Pipeline, opts ...QuerierOption) *Querier {
	q := &Querier{
		pipeline: pipeline,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Query runs the pipeline with the given nodes as the initial set,
// typically a document root. It returns the final value as-is: a NodeSet
// if only map stages ran, Text once an extract stage ran. Evaluation is a
// pure function over the pipeline and the (read-only) tree.
func (q *Querier) Query(context ...Node) (Value, error) {
	e := &evaluator{logger: q.logger}
	return e.run(q.pipeline, context)
}

// Run evaluates the pipeline without logging. It is shorthand for
// NewQuerier(p).Query(context...).
func (p *Pipeline) Run(context ...Node) (Value, error) {
	return NewQuerier(p).Query(context...)
}
