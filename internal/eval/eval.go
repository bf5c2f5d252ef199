// Package eval implements a restricted arithmetic evaluator: the four
// basic operators, unary minus, parentheses and numeric literals. Nothing
// else parses — no identifiers, no calls, no assignment — so client
// expressions can never reach anything but arithmetic.
package eval

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrDivisionByZero is reported when an expression divides by zero.
var ErrDivisionByZero = errors.New("division by zero")

// Default limits applied when an Evaluator field is zero.
const (
	DefaultMaxLen   = 256
	DefaultMaxDepth = 32
)

// Evaluator evaluates expressions within configured bounds.
type Evaluator struct {
	// MaxLen bounds the expression length in bytes.
	MaxLen int
	// MaxDepth bounds parenthesis and unary-minus nesting.
	MaxDepth int
}

// Evaluate parses and computes expr. Any lexical, syntactic or arithmetic
// problem is returned as an error; the evaluator never panics on input.
func (e *Evaluator) Evaluate(expr string) (float64, error) {
	maxLen := e.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	maxDepth := e.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	if len(expr) > maxLen {
		return 0, fmt.Errorf("expression longer than %d bytes", maxLen)
	}
	if strings.TrimSpace(expr) == "" {
		return 0, errors.New("empty expression")
	}

	p := &parser{input: expr, maxDepth: maxDepth}
	v, err := p.parseExpr(0)
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.New("result out of range")
	}
	return v, nil
}

// FormatResult renders a result the way responses expect: integral values
// without a decimal point, everything else in shortest decimal form.
func FormatResult(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type parser struct {
	input    string
	pos      int
	maxDepth int
}

// parseExpr handles addition and subtraction.
func (p *parser) parseExpr(depth int) (float64, error) {
	left, err := p.parseTerm(depth)
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm(depth)
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm(depth)
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

// parseTerm handles multiplication and division.
func (p *parser) parseTerm(depth int) (float64, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseUnary(depth)
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseUnary(depth)
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary(depth int) (float64, error) {
	if depth >= p.maxDepth {
		return 0, fmt.Errorf("expression nested deeper than %d", p.maxDepth)
	}
	p.skipSpaces()
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary(depth + 1)
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePrimary(depth)
}

func (p *parser) parsePrimary(depth int) (float64, error) {
	p.skipSpaces()
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		v, err := p.parseExpr(depth + 1)
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("expected ')' at position %d", p.pos)
		}
		p.pos++
		return v, nil
	case c >= '0' && c <= '9', c == '.':
		return p.parseNumber()
	case c == 0:
		return 0, errors.New("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected character %q at position %d", c, p.pos)
	}
}

func (p *parser) parseNumber() (float64, error) {
	start := p.pos
	seenDot := false
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			p.pos++
			continue
		}
		break
	}
	lit := p.input[start:p.pos]
	if lit == "" || lit == "." {
		return 0, fmt.Errorf("invalid number at position %d", start)
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q at position %d", lit, start)
	}
	return v, nil
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c != ' ' && c != '\t' {
			break
		}
		p.pos++
	}
}
