package service

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	appErrors "github.com/flexsched/engine/pkg/errors"
)

// forbiddenIdentifiers are rejected at compile time. Template bodies are
// plain boolean/arithmetic expressions over the evaluation environment; any
// attempt to reach host-level execution primitives fails registration.
var forbiddenIdentifiers = map[string]struct{}{
	"eval":        {},
	"require":     {},
	"Function":    {},
	"function":    {},
	"setTimeout":  {},
	"setInterval": {},
	"import":      {},
	"process":     {},
	"exec":        {},
}

// exprFunctions is the fixed helper allowlist available inside expressions.
var exprFunctions = map[string]func(args []any) (any, error){
	"contains": func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
		}
		switch hay := args[0].(type) {
		case string:
			needle, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("contains on a string needs a string needle")
			}
			return strings.Contains(hay, needle), nil
		case []any:
			for _, v := range hay {
				eq, err := valuesEqual(v, args[1])
				if err != nil {
					return nil, err
				}
				if eq {
					return true, nil
				}
			}
			return false, nil
		default:
			return nil, fmt.Errorf("contains: unsupported haystack type %T", args[0])
		}
	},
	"len": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("len expects 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		default:
			return nil, fmt.Errorf("len: unsupported type %T", args[0])
		}
	},
	"lower": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("lower expects 1 argument, got %d", len(args))
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("lower: expected string, got %T", args[0])
		}
		return strings.ToLower(s), nil
	},
	"abs": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("abs expects 1 argument, got %d", len(args))
		}
		n, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return -n, nil
		}
		return n, nil
	},
	"min": numericPair("min", func(a, b float64) float64 {
		if a < b {
			return a
		}
		return b
	}),
	"max": numericPair("max", func(a, b float64) float64 {
		if a > b {
			return a
		}
		return b
	}),
	"hoursBetween": func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("hoursBetween expects 2 arguments, got %d", len(args))
		}
		a, err := toTime(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toTime(args[1])
		if err != nil {
			return nil, err
		}
		d := b.Sub(a)
		if d < 0 {
			d = -d
		}
		return d.Hours(), nil
	},
}

func numericPair(name string, fn func(a, b float64) float64) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s expects 2 arguments, got %d", name, len(args))
		}
		a, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toNumber(args[1])
		if err != nil {
			return nil, err
		}
		return fn(a, b), nil
	}
}

// CompiledExpr is an immutable, reusable expression. Evaluation is pure with
// respect to the environment, so a compiled instance is safe for concurrent
// use.
type CompiledExpr struct {
	source string
	root   exprNode
}

// Source returns the text the expression was compiled from.
func (e *CompiledExpr) Source() string { return e.source }

// Eval evaluates the expression against env. Missing identifiers resolve to
// nil; type mismatches surface as errors, never panics.
func (e *CompiledExpr) Eval(env map[string]any) (any, error) {
	return e.root.eval(env)
}

// EvalBool evaluates and coerces the result to a boolean verdict.
func (e *CompiledExpr) EvalBool(env map[string]any) (bool, error) {
	v, err := e.root.eval(env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not produce a boolean, got %T", e.source, v)
	}
	return b, nil
}

// CompileExpr parses src into an executable tree. Any forbidden identifier
// anywhere in the source fails compilation.
func CompileExpr(src string) (*CompiledExpr, error) {
	tokens, err := tokenizeExpr(src)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTemplateInvalid.Code, appErrors.ErrTemplateInvalid.Status, "cannot tokenize expression")
	}
	p := &exprParser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTemplateInvalid.Code, appErrors.ErrTemplateInvalid.Status, "cannot parse expression")
	}
	if p.pos != len(p.tokens) {
		return nil, appErrors.Clone(appErrors.ErrTemplateInvalid, fmt.Sprintf("unexpected trailing input at %q", p.tokens[p.pos].text))
	}
	return &CompiledExpr{source: src, root: root}, nil
}

type exprTokenKind int

const (
	tokNumber exprTokenKind = iota
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type exprToken struct {
	kind exprTokenKind
	text string
}

func tokenizeExpr(src string) ([]exprToken, error) {
	var tokens []exprToken
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			tokens = append(tokens, exprToken{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, exprToken{tokRParen, ")"})
			i++
		case c == ',':
			tokens = append(tokens, exprToken{tokComma, ","})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string literal at offset %d", i)
			}
			tokens = append(tokens, exprToken{tokString, string(runes[i+1 : j])})
			i = j + 1
		case unicode.IsDigit(c):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, exprToken{tokNumber, string(runes[i:j])})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '.') {
				j++
			}
			word := string(runes[i:j])
			for _, part := range strings.Split(word, ".") {
				if _, bad := forbiddenIdentifiers[part]; bad {
					return nil, fmt.Errorf("identifier %q is not permitted in constraint expressions", part)
				}
			}
			tokens = append(tokens, exprToken{tokIdent, word})
			i = j
		default:
			for _, op := range []string{"&&", "||", "==", "!=", "<=", ">=", "<", ">", "+", "-", "*", "/", "!"} {
				if strings.HasPrefix(string(runes[i:]), op) {
					tokens = append(tokens, exprToken{tokOp, op})
					i += len(op)
					goto next
				}
			}
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		next:
		}
	}
	return tokens, nil
}

type exprNode interface {
	eval(env map[string]any) (any, error)
}

type literalNode struct{ value any }

func (n literalNode) eval(map[string]any) (any, error) { return n.value, nil }

type identNode struct{ path []string }

func (n identNode) eval(env map[string]any) (any, error) {
	switch n.path[0] {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	}
	var cur any = env
	for _, part := range n.path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}
		cur = m[part]
	}
	return cur, nil
}

type callNode struct {
	name string
	args []exprNode
}

func (n callNode) eval(env map[string]any) (any, error) {
	fn, ok := exprFunctions[n.name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", n.name)
	}
	args := make([]any, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn(args)
}

type unaryNode struct {
	op      string
	operand exprNode
}

func (n unaryNode) eval(env map[string]any) (any, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("operator ! needs a boolean, got %T", v)
		}
		return !b, nil
	case "-":
		num, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		return -num, nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.op)
}

type binaryNode struct {
	op          string
	left, right exprNode
}

func (n binaryNode) eval(env map[string]any) (any, error) {
	// Short-circuit logical operators before evaluating the right side.
	if n.op == "&&" || n.op == "||" {
		lv, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}
		lb, ok := lv.(bool)
		if !ok {
			return nil, fmt.Errorf("operator %s needs booleans, got %T", n.op, lv)
		}
		if n.op == "&&" && !lb {
			return false, nil
		}
		if n.op == "||" && lb {
			return true, nil
		}
		rv, err := n.right.eval(env)
		if err != nil {
			return nil, err
		}
		rb, ok := rv.(bool)
		if !ok {
			return nil, fmt.Errorf("operator %s needs booleans, got %T", n.op, rv)
		}
		return rb, nil
	}

	lv, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		eq, err := valuesEqual(lv, rv)
		if err != nil {
			return nil, err
		}
		return eq, nil
	case "!=":
		eq, err := valuesEqual(lv, rv)
		if err != nil {
			return nil, err
		}
		return !eq, nil
	case "+":
		if ls, ok := lv.(string); ok {
			rs, ok := rv.(string)
			if !ok {
				return nil, fmt.Errorf("cannot concatenate string with %T", rv)
			}
			return ls + rs, nil
		}
	}

	// Times compare chronologically, everything else numerically.
	if lt, lok := lv.(time.Time); lok {
		rt, err := toTime(rv)
		if err != nil {
			return nil, err
		}
		return compareOrdered(n.op, float64(lt.UnixNano()), float64(rt.UnixNano()))
	}

	ln, err := toNumber(lv)
	if err != nil {
		return nil, fmt.Errorf("operator %s: %w", n.op, err)
	}
	rn, err := toNumber(rv)
	if err != nil {
		return nil, fmt.Errorf("operator %s: %w", n.op, err)
	}
	switch n.op {
	case "+":
		return ln + rn, nil
	case "-":
		return ln - rn, nil
	case "*":
		return ln * rn, nil
	case "/":
		if rn == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return ln / rn, nil
	}
	return compareOrdered(n.op, ln, rn)
}

func compareOrdered(op string, a, b float64) (any, error) {
	switch op {
	case "<":
		return a < b, nil
	case "<=":
		return a <= b, nil
	case ">":
		return a > b, nil
	case ">=":
		return a >= b, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

type exprParser struct {
	tokens []exprToken
	pos    int
}

func (p *exprParser) peek() (exprToken, bool) {
	if p.pos >= len(p.tokens) {
		return exprToken{}, false
	}
	return p.tokens[p.pos], true
}

func (p *exprParser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || tok.text != "||" {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "||", left: left, right: right}
	}
}

func (p *exprParser) parseAnd() (exprNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || tok.text != "&&" {
			return left, nil
		}
		p.pos++
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "&&", left: left, right: right}
	}
}

func (p *exprParser) parseComparison() (exprNode, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	tok, ok := p.peek()
	if !ok || tok.kind != tokOp {
		return left, nil
	}
	switch tok.text {
	case "==", "!=", "<", "<=", ">", ">=":
		p.pos++
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: tok.text, left: left, right: right}, nil
	}
	return left, nil
}

func (p *exprParser) parseAdditive() (exprNode, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.text, left: left, right: right}
	}
}

func (p *exprParser) parseMultiplicative() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.text, left: left, right: right}
	}
}

func (p *exprParser) parseUnary() (exprNode, error) {
	tok, ok := p.peek()
	if ok && tok.kind == tokOp && (tok.text == "!" || tok.text == "-") {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tok.text, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	switch tok.kind {
	case tokNumber:
		p.pos++
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", tok.text, err)
		}
		return literalNode{value: n}, nil
	case tokString:
		p.pos++
		return literalNode{value: tok.text}, nil
	case tokIdent:
		p.pos++
		next, hasNext := p.peek()
		if hasNext && next.kind == tokLParen {
			if strings.Contains(tok.text, ".") {
				return nil, fmt.Errorf("method calls are not permitted: %q", tok.text)
			}
			if _, known := exprFunctions[tok.text]; !known {
				return nil, fmt.Errorf("unknown function %q", tok.text)
			}
			return p.parseCall(tok.text)
		}
		return identNode{path: strings.Split(tok.text, ".")}, nil
	case tokLParen:
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	}
	return nil, fmt.Errorf("unexpected token %q", tok.text)
}

func (p *exprParser) parseCall(name string) (exprNode, error) {
	p.pos++ // consume (
	var args []exprNode
	for {
		tok, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated call to %q", name)
		}
		if tok.kind == tokRParen {
			p.pos++
			return callNode{name: name, args: args}, nil
		}
		if len(args) > 0 {
			if tok.kind != tokComma {
				return nil, fmt.Errorf("expected comma in arguments of %q, got %q", name, tok.text)
			}
			p.pos++
		}
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
}

func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case nil:
		return 0, fmt.Errorf("cannot use null as a number")
	default:
		return 0, fmt.Errorf("cannot use %T as a number", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp: %w", t, err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("cannot use %T as a timestamp", v)
	}
}

// valuesEqual compares two operands. Numbers compare by value across the
// coercible numeric types. Lists and maps are not comparable and report a
// type error instead of panicking inside the runtime.
func valuesEqual(a, b any) (bool, error) {
	if an, err := toNumber(a); err == nil {
		if bn, err := toNumber(b); err == nil {
			return an == bn, nil
		}
	}
	if !comparableOperand(a) || !comparableOperand(b) {
		return false, fmt.Errorf("cannot compare %T and %T", a, b)
	}
	return a == b, nil
}

func comparableOperand(v any) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}
