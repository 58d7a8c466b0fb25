// internal/service/condition.go
package service

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
)

// Condition is a compiled workflow trigger expression. The language is a
// closed grammar evaluated against document fields: comparisons
// (== != > >= < <=), boolean combinators (and/or/not, also &&/||/!),
// parentheses, string/number/bool literals, field references as doc.field or
// a bare field name, and the postfix tests "is set" / "is not set".
// Arbitrary host-language code is deliberately not executable here.
type Condition struct {
	source string
	root   condNode
}

// CompileCondition parses an expression. An empty expression compiles to a
// condition that is always true. Parse errors are ValidationErrors, surfaced
// at rule-save time.
func CompileCondition(source string) (*Condition, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return &Condition{source: source}, nil
	}

	tokens, err := tokenizeCondition(trimmed)
	if err != nil {
		return nil, err
	}

	p := &condParser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, appErrors.NewValidation("unexpected %q in condition", p.peek().text)
	}

	return &Condition{source: source, root: root}, nil
}

// Eval evaluates the condition against a document. Runtime errors (a field
// compared against an incompatible type, for example) are returned so the
// engine can log them; the engine treats any error as condition-not-met.
func (c *Condition) Eval(doc *model.Document) (bool, error) {
	if c.root == nil {
		return true, nil
	}
	v, err := c.root.eval(doc)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func (c *Condition) String() string {
	return c.source
}

// ====================== Lexer ======================

type condTokenKind int

const (
	tokIdent condTokenKind = iota
	tokNumber
	tokString
	tokOp // == != > >= < <= && || ! ( )
)

type condToken struct {
	kind condTokenKind
	text string
}

func tokenizeCondition(src string) ([]condToken, error) {
	tokens := []condToken{}
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(' || ch == ')':
			tokens = append(tokens, condToken{tokOp, string(ch)})
			i++
		case ch == '\'' || ch == '"':
			quote := ch
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, appErrors.NewValidation("unterminated string in condition")
			}
			tokens = append(tokens, condToken{tokString, src[i+1 : j]})
			i = j + 1
		case strings.HasPrefix(src[i:], "=="), strings.HasPrefix(src[i:], "!="),
			strings.HasPrefix(src[i:], ">="), strings.HasPrefix(src[i:], "<="),
			strings.HasPrefix(src[i:], "&&"), strings.HasPrefix(src[i:], "||"):
			tokens = append(tokens, condToken{tokOp, src[i : i+2]})
			i += 2
		case ch == '>' || ch == '<' || ch == '!':
			tokens = append(tokens, condToken{tokOp, string(ch)})
			i++
		case unicode.IsDigit(rune(ch)) || (ch == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			tokens = append(tokens, condToken{tokNumber, src[i:j]})
			i = j
		case unicode.IsLetter(rune(ch)) || ch == '_':
			j := i + 1
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_' || src[j] == '.') {
				j++
			}
			tokens = append(tokens, condToken{tokIdent, src[i:j]})
			i = j
		default:
			return nil, appErrors.NewValidation("unexpected character %q in condition", string(ch))
		}
	}
	return tokens, nil
}

// ====================== Parser ======================

type condParser struct {
	tokens []condToken
	pos    int
}

func (p *condParser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *condParser) peek() condToken {
	if p.atEnd() {
		return condToken{}
	}
	return p.tokens[p.pos]
}

func (p *condParser) next() condToken {
	t := p.peek()
	p.pos++
	return t
}

func (p *condParser) match(kind condTokenKind, texts ...string) bool {
	if p.atEnd() || p.peek().kind != kind {
		return false
	}
	for _, text := range texts {
		if p.peek().text == text {
			p.pos++
			return true
		}
	}
	return false
}

func (p *condParser) parseOr() (condNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tokIdent, "or") || p.match(tokOp, "||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseAnd() (condNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.match(tokIdent, "and") || p.match(tokOp, "&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseUnary() (condNode, error) {
	if p.match(tokIdent, "not") || p.match(tokOp, "!") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *condParser) parseComparison() (condNode, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	// postfix: is set / is not set
	if p.match(tokIdent, "is") {
		negated := p.match(tokIdent, "not")
		if !p.match(tokIdent, "set") {
			return nil, appErrors.NewValidation("expected 'set' after 'is' in condition")
		}
		return &isSetNode{operand: left, negated: negated}, nil
	}

	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if p.match(tokOp, op) {
			right, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			return &compareNode{op: op, left: left, right: right}, nil
		}
	}

	return left, nil
}

func (p *condParser) parseOperand() (condNode, error) {
	if p.atEnd() {
		return nil, appErrors.NewValidation("condition ends unexpectedly")
	}

	if p.match(tokOp, "(") {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(tokOp, ")") {
			return nil, appErrors.NewValidation("missing closing parenthesis in condition")
		}
		return inner, nil
	}

	t := p.next()
	switch t.kind {
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, appErrors.NewValidation("bad number %q in condition", t.text)
		}
		return &literalNode{value: n}, nil
	case tokString:
		return &literalNode{value: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true", "True":
			return &literalNode{value: true}, nil
		case "false", "False":
			return &literalNode{value: false}, nil
		case "and", "or", "not", "is", "set":
			return nil, appErrors.NewValidation("unexpected keyword %q in condition", t.text)
		}
		return &fieldNode{name: strings.TrimPrefix(t.text, "doc.")}, nil
	}
	return nil, appErrors.NewValidation("unexpected %q in condition", t.text)
}

// ====================== Evaluation ======================

type condNode interface {
	eval(doc *model.Document) (any, error)
}

type literalNode struct {
	value any
}

func (n *literalNode) eval(*model.Document) (any, error) {
	return n.value, nil
}

type fieldNode struct {
	name string
}

func (n *fieldNode) eval(doc *model.Document) (any, error) {
	v, _ := doc.Get(n.name)
	return v, nil
}

type isSetNode struct {
	operand condNode
	negated bool
}

func (n *isSetNode) eval(doc *model.Document) (any, error) {
	v, err := n.operand.eval(doc)
	if err != nil {
		return nil, err
	}
	set := v != nil && fmt.Sprintf("%v", v) != ""
	if n.negated {
		return !set, nil
	}
	return set, nil
}

type notNode struct {
	inner condNode
}

func (n *notNode) eval(doc *model.Document) (any, error) {
	v, err := n.inner.eval(doc)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

type binaryNode struct {
	op          string // and, or
	left, right condNode
}

func (n *binaryNode) eval(doc *model.Document) (any, error) {
	lv, err := n.left.eval(doc)
	if err != nil {
		return nil, err
	}
	if n.op == "and" && !truthy(lv) {
		return false, nil
	}
	if n.op == "or" && truthy(lv) {
		return true, nil
	}
	rv, err := n.right.eval(doc)
	if err != nil {
		return nil, err
	}
	return truthy(rv), nil
}

type compareNode struct {
	op          string
	left, right condNode
}

func (n *compareNode) eval(doc *model.Document) (any, error) {
	lv, err := n.left.eval(doc)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(doc)
	if err != nil {
		return nil, err
	}

	// Numeric comparison when both sides coerce, cint/flt style.
	lf, lok := toFloat(lv)
	rf, rok := toFloat(rv)
	if lok && rok {
		switch n.op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}

	ls := stringify(lv)
	rs := stringify(rv)
	switch n.op {
	case "==":
		return ls == rs, nil
	case "!=":
		return ls != rs, nil
	case ">":
		return ls > rs, nil
	case ">=":
		return ls >= rs, nil
	case "<":
		return ls < rs, nil
	case "<=":
		return ls <= rs, nil
	}
	return nil, fmt.Errorf("unknown comparison operator %q", n.op)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
