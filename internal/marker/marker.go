// Package marker implements PEP 508 environment markers
// (https://peps.python.org/pep-0508/#environment-markers): the boolean
// expressions attached to a Requirement that decide whether it applies in
// a given Python environment ("python_version >= '3.8' and sys_platform ==
// 'linux'").
package marker

import (
	"fmt"
	"strings"

	"github.com/wheelhouse-dev/wheelhouse/internal/pep440"
)

// Marker is a parsed PEP 508 environment marker expression.
type Marker interface {
	String() string
	// Eval evaluates the marker against env and the set of extras the
	// requiring package was installed with.
	Eval(env Environment, extras map[string]bool) bool
}

// Parse parses a PEP 508 marker expression, the part of a requirement
// string following the first unparenthesized ";".
func Parse(raw string) (Marker, error) {
	p := &parser{input: raw}
	m, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("marker: %w", err)
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("marker: unexpected trailing text %q", p.input[p.pos:])
	}
	return m, nil
}

type orExpr struct{ left, right Marker }

func (o orExpr) String() string { return fmt.Sprintf("(%s or %s)", o.left, o.right) }
func (o orExpr) Eval(env Environment, extras map[string]bool) bool {
	return o.left.Eval(env, extras) || o.right.Eval(env, extras)
}

type andExpr struct{ left, right Marker }

func (a andExpr) String() string { return fmt.Sprintf("(%s and %s)", a.left, a.right) }
func (a andExpr) Eval(env Environment, extras map[string]bool) bool {
	return a.left.Eval(env, extras) && a.right.Eval(env, extras)
}

// varNode is one operand of a marker_expr: either a named environment
// variable (name != "") or a quoted string literal (name == "").
type varNode struct {
	name    string
	literal string
}

func (v varNode) String() string {
	if v.name != "" {
		return v.name
	}
	return fmt.Sprintf("%q", v.literal)
}

func (v varNode) resolve(env Environment) string {
	if v.name == "" {
		return v.literal
	}
	if v.name == "extra" {
		return "" // extras are handled specially in cmpExpr.Eval
	}
	return env.asMap()[v.name]
}

// cmpExpr is a binary comparison between two marker_var operands.
type cmpExpr struct {
	op          op
	left, right varNode
}

func (c cmpExpr) String() string { return fmt.Sprintf("%s %s %s", c.left, c.op, c.right) }

// Eval prefers a PEP 440 version comparison when both resolved operands
// parse as versions (and the operator isn't "===", which PEP 440 reserves
// for exact string comparison), and otherwise falls back to Python-style
// string comparison, mirroring pip's own marker evaluator.
func (c cmpExpr) Eval(env Environment, extras map[string]bool) bool {
	if c.left.name == "extra" || c.right.name == "extra" {
		e := c.left.literal
		if c.left.name == "extra" {
			e = c.right.literal
		}
		return extras[e]
	}

	lv := c.left.resolve(env)
	rv := c.right.resolve(env)

	if c.op != opEqualEqualEqual {
		if lver, err := pep440.Parse(lv); err == nil {
			if spec, err := pep440.ParseSpecifier(c.op.String() + rv); err == nil {
				return spec.Contains(lver, true)
			}
		}
	}

	switch c.op {
	case opLessEqual:
		return lv <= rv
	case opLess:
		return lv < rv
	case opNotEqual:
		return lv != rv
	case opEqualEqual, opEqualEqualEqual:
		return lv == rv
	case opGreaterEqual:
		return lv >= rv
	case opGreater:
		return lv > rv
	case opIn:
		return strings.Contains(rv, lv)
	case opNotIn:
		return !strings.Contains(rv, lv)
	default:
		return false
	}
}

type op byte

const (
	opUnknown op = iota
	opLessEqual
	opLess
	opNotEqual
	opEqualEqual
	opGreaterEqual
	opGreater
	opTildeEqual
	opEqualEqualEqual
	opIn
	opNotIn
)

func (o op) String() string {
	switch o {
	case opLessEqual:
		return "<="
	case opLess:
		return "<"
	case opNotEqual:
		return "!="
	case opEqualEqual:
		return "=="
	case opGreaterEqual:
		return ">="
	case opGreater:
		return ">"
	case opTildeEqual:
		return "~="
	case opEqualEqualEqual:
		return "==="
	case opIn:
		return "in"
	case opNotIn:
		return "not in"
	default:
		return "?"
	}
}

// opsByLength lists the fixed-width operator spellings in descending
// length order so the parser can try the longest match first ("===" before
// "==" before nothing).
var opsByLength = []op{
	opEqualEqualEqual,
	opLessEqual, opNotEqual, opEqualEqual, opGreaterEqual, opTildeEqual, opIn,
	opLess, opGreater,
}
