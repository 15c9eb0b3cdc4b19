package hql

import (
	"fmt"
	"sort"
	"strconv"
)

// Compile parses the input string into an executable Pipeline.
// Compilation is purely syntactic and all-or-nothing: the first structural
// error aborts it with a *ParseError. The "extract stage terminates the
// pipeline" rule is deliberately not enforced here — a map stage following
// an extract stage compiles fine and fails at evaluation time with a type
// mismatch.
func Compile(input string) (*Pipeline, error) {
	tok := newTokenizer(input)
	tokens, err := tok.tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{
		tokens: tokens,
		tzer:   tok,
	}
	return p.parsePipeline()
}

// --- Token types ---

type tokenType int

const (
	tokenOp      tokenType = iota // operator: @flat, @path, #text, ...
	tokenLiteral                  // backtick-quoted `...`
	tokenNumber                   // signed integer
	tokenPipe                     // |
	tokenLParen                   // (
	tokenRParen                   // )
	tokenComma                    // ,
	tokenEOF
)

func tokenTypeName(t tokenType) string {
	switch t {
	case tokenOp:
		return "operator"
	case tokenLiteral:
		return "backtick literal"
	case tokenNumber:
		return "number"
	case tokenPipe:
		return "'|'"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenComma:
		return "','"
	case tokenEOF:
		return "end of input"
	default:
		return "unknown"
	}
}

type token struct {
	typ tokenType
	val string
	pos int // byte offset in input
}

// --- Tokenizer ---

type tokenizer struct {
	input      string
	pos        int
	tokens     []token
	lineStarts []int // byte offsets where each line starts
}

func newTokenizer(input string) *tokenizer {
	t := &tokenizer{
		input:      input,
		lineStarts: []int{0}, // line 1 starts at offset 0
	}
	// Pre-scan for newlines to build lineStarts table
	for i := 0; i < len(input); i++ {
		if input[i] == '\n' && i+1 <= len(input) {
			t.lineStarts = append(t.lineStarts, i+1)
		}
	}
	return t
}

// posAt converts a byte offset into a Pos with line and column.
func (t *tokenizer) posAt(offset int) Pos {
	// Binary search for the line containing this offset
	line := sort.Search(len(t.lineStarts), func(i int) bool {
		return t.lineStarts[i] > offset
	})
	// line is now the index of the first lineStart > offset, so the actual line is line (1-based)
	col := offset - t.lineStarts[line-1] + 1
	return Pos{Offset: offset, Line: line, Column: col}
}

func (t *tokenizer) tokenize() ([]token, error) {
	for t.pos < len(t.input) {
		ch := t.input[t.pos]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			t.pos++
			continue
		}
		switch {
		case ch == '|':
			t.emit(tokenPipe, "|")
		case ch == '(':
			t.emit(tokenLParen, "(")
		case ch == ')':
			t.emit(tokenRParen, ")")
		case ch == ',':
			t.emit(tokenComma, ",")
		case ch == '@' || ch == '#':
			if err := t.readOperator(); err != nil {
				return nil, err
			}
		case ch == '`':
			if err := t.readLiteral(); err != nil {
				return nil, err
			}
		case ch == '-' || isDigit(ch):
			if err := t.readNumber(); err != nil {
				return nil, err
			}
		default:
			return nil, &ParseError{
				Code:    ErrMalformedStage,
				Message: fmt.Sprintf("unexpected character %q", string(ch)),
				Pos:     t.posAt(t.pos),
				Got:     string(ch),
			}
		}
	}
	t.tokens = append(t.tokens, token{typ: tokenEOF, pos: t.pos})
	return t.tokens, nil
}

func (t *tokenizer) emit(typ tokenType, val string) {
	t.tokens = append(t.tokens, token{typ: typ, val: val, pos: t.pos})
	t.pos++
}

// readOperator consumes "@name" or "#name". The name is letters only.
func (t *tokenizer) readOperator() error {
	start := t.pos
	t.pos++ // skip @ or #
	for t.pos < len(t.input) && isLetter(t.input[t.pos]) {
		t.pos++
	}
	if t.pos == start+1 {
		return &ParseError{
			Code:     ErrMalformedStage,
			Message:  fmt.Sprintf("expected operator name after %q", string(t.input[start])),
			Pos:      t.posAt(start),
			Got:      string(t.input[start]),
			Expected: "operator name",
		}
	}
	t.tokens = append(t.tokens, token{typ: tokenOp, val: t.input[start:t.pos], pos: start})
	return nil
}

// readLiteral consumes a backtick-quoted literal. The raw content between
// the backticks is kept verbatim; the parser validates it against the
// character class the surrounding operator requires.
func (t *tokenizer) readLiteral() error {
	start := t.pos
	t.pos++ // skip opening backtick
	for t.pos < len(t.input) {
		if t.input[t.pos] == '`' {
			t.tokens = append(t.tokens, token{typ: tokenLiteral, val: t.input[start+1 : t.pos], pos: start})
			t.pos++
			return nil
		}
		t.pos++
	}
	return &ParseError{
		Code:    ErrUnterminatedLiteral,
		Message: "unterminated backtick literal",
		Pos:     t.posAt(start),
		Got:     t.input[start:],
	}
}

// readNumber consumes an optionally negated digit run. Leading zeros are
// ordinary decimal digits, not an error.
func (t *tokenizer) readNumber() error {
	start := t.pos
	if t.input[t.pos] == '-' {
		t.pos++
	}
	digits := 0
	for t.pos < len(t.input) && isDigit(t.input[t.pos]) {
		t.pos++
		digits++
	}
	if digits == 0 {
		return &ParseError{
			Code:    ErrInvalidNumber,
			Message: "expected digits after '-'",
			Pos:     t.posAt(start),
			Got:     t.input[start:t.pos],
		}
	}
	t.tokens = append(t.tokens, token{typ: tokenNumber, val: t.input[start:t.pos], pos: start})
	return nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// isTagChar matches the tag character class: [A-Za-z_-]
func isTagChar(ch byte) bool {
	return isLetter(ch) || ch == '_' || ch == '-'
}

// isFieldChar matches the field literal character class: [A-Za-z0-9_-]
func isFieldChar(ch byte) bool {
	return isTagChar(ch) || isDigit(ch)
}

// --- Recursive Descent Parser ---

// knownOperators is the closed operator set of the grammar.
var knownOperators = map[string]bool{
	"@flat":       true,
	"@path":       true,
	"@attr":       true,
	"@id":         true,
	"@class":      true,
	"@child":      true,
	"#text":       true,
	"#trim":       true,
	"#trimPrefix": true,
	"#trimSuffix": true,
	"#attr":       true,
}

type parser struct {
	tokens []token
	pos    int
	tzer   *tokenizer
}

func (p *parser) peek() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokenEOF, pos: len(p.tzer.input)}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.peek()
	if tok.typ != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ tokenType) (token, error) {
	tok := p.advance()
	if tok.typ != typ {
		got := tok.val
		if tok.typ == tokenEOF {
			got = "end of input"
		}
		return tok, &ParseError{
			Code:     ErrMalformedStage,
			Message:  fmt.Sprintf("expected %s", tokenTypeName(typ)),
			Pos:      p.tzer.posAt(tok.pos),
			Got:      got,
			Expected: tokenTypeName(typ),
		}
	}
	return tok, nil
}

// parsePipeline parses the top level: stage ('|' stage)*
func (p *parser) parsePipeline() (*Pipeline, error) {
	if p.peek().typ == tokenEOF {
		return nil, &ParseError{
			Code:    ErrMalformedStage,
			Message: "empty pipeline",
			Pos:     p.tzer.posAt(p.peek().pos),
			Got:     "end of input",
		}
	}

	pipeline := &Pipeline{}
	for {
		stage, err := p.parseStage()
		if err != nil {
			return nil, err
		}
		pipeline.Stages = append(pipeline.Stages, stage)

		if p.peek().typ == tokenPipe {
			p.advance()
			continue
		}
		if p.peek().typ == tokenEOF {
			break
		}

		tok := p.peek()
		return nil, &ParseError{
			Code:     ErrMalformedStage,
			Message:  "expected '|' or end of input",
			Pos:      p.tzer.posAt(tok.pos),
			Got:      tok.val,
			Expected: "'|' or end of input",
		}
	}
	return pipeline, nil
}

// parseStage parses one operator call: op '(' args ')'
func (p *parser) parseStage() (Stage, error) {
	opTok := p.advance()
	if opTok.typ != tokenOp {
		got := opTok.val
		if opTok.typ == tokenEOF {
			got = "end of input"
		}
		return nil, &ParseError{
			Code:     ErrMalformedStage,
			Message:  "expected stage operator",
			Pos:      p.tzer.posAt(opTok.pos),
			Got:      got,
			Expected: "operator",
		}
	}

	at := p.tzer.posAt(opTok.pos)

	if !knownOperators[opTok.val] {
		return nil, &ParseError{
			Code:    ErrUnknownOperator,
			Message: fmt.Sprintf("unknown operator %q", opTok.val),
			Pos:     at,
			Got:     opTok.val,
		}
	}

	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}

	var stage Stage
	var err error
	switch opTok.val {
	case "@flat":
		stage, err = FlatStage{At: at}, p.expectNoArgs(opTok.val)
	case "@path":
		stage, err = p.parsePathStage(at)
	case "@attr":
		stage, err = p.parseAttrStage(at)
	case "@id":
		value, cs, idErr := p.parseValueWithCaseFlag(opTok.val)
		stage, err = IDStage{Value: value, CaseSensitive: cs, At: at}, idErr
	case "@class":
		value, cs, clErr := p.parseValueWithCaseFlag(opTok.val)
		stage, err = ClassStage{Value: value, CaseSensitive: cs, At: at}, clErr
	case "@child":
		stage, err = p.parseChildStage(at)
	case "#text":
		stage, err = TextStage{At: at}, p.expectNoArgs(opTok.val)
	case "#trim":
		stage, err = TrimStage{At: at}, p.expectNoArgs(opTok.val)
	case "#trimPrefix":
		text, tpErr := p.parseTextLiteral()
		stage, err = TrimPrefixStage{Text: text, At: at}, tpErr
	case "#trimSuffix":
		text, tsErr := p.parseTextLiteral()
		stage, err = TrimSuffixStage{Text: text, At: at}, tsErr
	case "#attr":
		field, aeErr := p.parseFieldLiteral()
		stage, err = AttrExtractStage{Field: field, At: at}, aeErr
	}
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}
	return stage, nil
}

// expectNoArgs verifies a zero-argument operator's argument list is empty.
// The closing paren itself is consumed by parseStage.
func (p *parser) expectNoArgs(op string) error {
	if p.peek().typ != tokenRParen {
		tok := p.peek()
		return &ParseError{
			Code:     ErrMalformedStage,
			Message:  fmt.Sprintf("%s takes no arguments", op),
			Pos:      p.tzer.posAt(tok.pos),
			Got:      tok.val,
			Expected: "')'",
		}
	}
	return nil
}

// parsePathStage parses the single backtick literal of @path and
// decomposes it into consecutive path steps.
func (p *parser) parsePathStage(at Pos) (Stage, error) {
	tok, err := p.expect(tokenLiteral)
	if err != nil {
		return nil, err
	}

	steps, err := parsePathLiteral(tok.val, p.tzer.posAt(tok.pos))
	if err != nil {
		return nil, err
	}
	return PathStage{Steps: steps, At: at}, nil
}

// parsePathLiteral decomposes a path literal into steps. Each step begins
// with "/" (child) or "//" (descendant) immediately followed by a tag.
func parsePathLiteral(content string, at Pos) ([]PathStep, error) {
	if content == "" {
		return nil, &ParseError{
			Code:    ErrMalformedStage,
			Message: "empty path literal",
			Pos:     at,
		}
	}

	var steps []PathStep
	i := 0
	for i < len(content) {
		if content[i] != '/' {
			return nil, &ParseError{
				Code:    ErrMalformedStage,
				Message: "path step must start with '/' or '//'",
				Pos:     at,
				Got:     content[i:],
			}
		}
		kind := PathChild
		i++
		if i < len(content) && content[i] == '/' {
			kind = PathDescendant
			i++
		}

		start := i
		for i < len(content) && isTagChar(content[i]) {
			i++
		}
		if i == start {
			return nil, &ParseError{
				Code:    ErrMalformedStage,
				Message: "empty tag in path",
				Pos:     at,
				Got:     content,
			}
		}
		steps = append(steps, PathStep{Kind: kind, Tag: content[start:i]})
	}
	return steps, nil
}

// parseAttrStage parses @attr's arguments: one required field literal and
// one optional value literal.
func (p *parser) parseAttrStage(at Pos) (Stage, error) {
	if p.peek().typ == tokenRParen {
		return nil, p.arityError("@attr", "at least 1 argument")
	}

	field, err := p.parseFieldLiteral()
	if err != nil {
		return nil, err
	}

	stage := AttrStage{Field: field, At: at}
	if p.peek().typ == tokenComma {
		p.advance()
		value, err := p.parseFieldLiteral()
		if err != nil {
			return nil, err
		}
		stage.Value = value
		stage.HasValue = true
	}
	if p.peek().typ == tokenComma {
		return nil, p.arityError("@attr", "at most 2 arguments")
	}
	return stage, nil
}

// parseValueWithCaseFlag parses the shared @id/@class argument shape: one
// required field literal plus an optional 0/1 case-sensitivity flag
// (default 1, case-sensitive).
func (p *parser) parseValueWithCaseFlag(op string) (string, bool, error) {
	if p.peek().typ == tokenRParen {
		return "", false, p.arityError(op, "at least 1 argument")
	}

	value, err := p.parseFieldLiteral()
	if err != nil {
		return "", false, err
	}

	caseSensitive := true
	if p.peek().typ == tokenComma {
		p.advance()
		tok, err := p.expect(tokenNumber)
		if err != nil {
			return "", false, err
		}
		switch tok.val {
		case "0":
			caseSensitive = false
		case "1":
			caseSensitive = true
		default:
			return "", false, &ParseError{
				Code:     ErrMalformedStage,
				Message:  "case flag must be 0 or 1",
				Pos:      p.tzer.posAt(tok.pos),
				Got:      tok.val,
				Expected: "'0' or '1'",
			}
		}
	}
	if p.peek().typ == tokenComma {
		return "", false, p.arityError(op, "at most 2 arguments")
	}
	return value, caseSensitive, nil
}

// parseChildStage parses @child's single signed integer argument.
func (p *parser) parseChildStage(at Pos) (Stage, error) {
	tok, err := p.expect(tokenNumber)
	if err != nil {
		return nil, err
	}
	index, convErr := strconv.Atoi(tok.val)
	if convErr != nil {
		return nil, &ParseError{
			Code:    ErrInvalidNumber,
			Message: "invalid child index",
			Pos:     p.tzer.posAt(tok.pos),
			Got:     tok.val,
		}
	}
	return ChildStage{Index: index, At: at}, nil
}

// parseFieldLiteral parses a backtick literal constrained to [A-Za-z0-9_-]+.
func (p *parser) parseFieldLiteral() (string, error) {
	tok, err := p.expect(tokenLiteral)
	if err != nil {
		return "", err
	}
	if tok.val == "" {
		return "", &ParseError{
			Code:    ErrMalformedStage,
			Message: "empty field literal",
			Pos:     p.tzer.posAt(tok.pos),
		}
	}
	for i := 0; i < len(tok.val); i++ {
		if !isFieldChar(tok.val[i]) {
			return "", &ParseError{
				Code:     ErrMalformedStage,
				Message:  fmt.Sprintf("invalid character %q in field literal", string(tok.val[i])),
				Pos:      p.tzer.posAt(tok.pos),
				Got:      tok.val,
				Expected: "letters, digits, '_' or '-'",
			}
		}
	}
	return tok.val, nil
}

// parseTextLiteral parses a backtick literal constrained to [A-Za-z]+.
func (p *parser) parseTextLiteral() (string, error) {
	tok, err := p.expect(tokenLiteral)
	if err != nil {
		return "", err
	}
	if tok.val == "" {
		return "", &ParseError{
			Code:    ErrMalformedStage,
			Message: "empty text literal",
			Pos:     p.tzer.posAt(tok.pos),
		}
	}
	for i := 0; i < len(tok.val); i++ {
		if !isLetter(tok.val[i]) {
			return "", &ParseError{
				Code:     ErrMalformedStage,
				Message:  fmt.Sprintf("invalid character %q in text literal", string(tok.val[i])),
				Pos:      p.tzer.posAt(tok.pos),
				Got:      tok.val,
				Expected: "letters",
			}
		}
	}
	return tok.val, nil
}

func (p *parser) arityError(op, want string) error {
	tok := p.peek()
	got := tok.val
	if tok.typ == tokenEOF {
		got = "end of input"
	}
	return &ParseError{
		Code:     ErrArityMismatch,
		Message:  fmt.Sprintf("%s takes %s", op, want),
		Pos:      p.tzer.posAt(tok.pos),
		Got:      got,
		Expected: want,
	}
}
