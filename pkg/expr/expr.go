// Package expr compiles template binding expressions.
//
// Expressions are translated to starlark (see Translate) and compiled once
// into a function of the component scope. Every $name becomes an attribute
// read on the scope, so evaluation inside an effect records exactly the
// reactive keys the expression touched.
package expr

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Scope resolves $names. Lookups of missing names yield nil.
type Scope interface {
	Lookup(name string) (any, bool)
}

// ScopeFunc adapts a function to Scope.
type ScopeFunc func(name string) (any, bool)

// Lookup calls f.
func (f ScopeFunc) Lookup(name string) (any, bool) { return f(name) }

// Chain resolves names against each scope in turn.
func Chain(scopes ...Scope) Scope {
	return ScopeFunc(func(name string) (any, bool) {
		for _, s := range scopes {
			if s == nil {
				continue
			}
			if v, ok := s.Lookup(name); ok {
				return v, true
			}
		}
		return nil, false
	})
}

// Vars is a fixed scope, used for loop variables.
type Vars map[string]any

// Lookup implements Scope.
func (v Vars) Lookup(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

// Program is a compiled expression.
type Program struct {
	source     string
	translated string
	refs       []string
	fn         starlark.Value
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// predeclared names available to every expression.
var predeclared = starlark.StringDict{
	"Math": &starlarkstruct.Module{
		Name: "Math",
		Members: starlark.StringDict{
			"min":   mathFunc("min", 2, func(a []float64) float64 { return math.Min(a[0], a[1]) }),
			"max":   mathFunc("max", 2, func(a []float64) float64 { return math.Max(a[0], a[1]) }),
			"round": mathFunc("round", 1, func(a []float64) float64 { return math.Round(a[0]) }),
			"floor": mathFunc("floor", 1, func(a []float64) float64 { return math.Floor(a[0]) }),
			"ceil":  mathFunc("ceil", 1, func(a []float64) float64 { return math.Ceil(a[0]) }),
			"abs":   mathFunc("abs", 1, func(a []float64) float64 { return math.Abs(a[0]) }),
			"PI":    starlark.Float(math.Pi),
		},
	},
}

// Compile translates and compiles src.
func Compile(src string) (*Program, error) {
	translated, refs, err := Translate(src)
	if err != nil {
		return nil, err
	}
	if translated == "" {
		return nil, fmt.Errorf("expr: empty expression")
	}
	outer, err := starlark.ExprFuncOptions(fileOptions, "template", "lambda "+scopeIdent+": ("+translated+")", predeclared)
	if err != nil {
		return nil, fmt.Errorf("expr: compile %q: %w", src, err)
	}
	thread := &starlark.Thread{Name: "compile"}
	fn, err := starlark.Call(thread, outer, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("expr: compile %q: %w", src, err)
	}
	return &Program{source: src, translated: translated, refs: refs, fn: fn}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the expression as written in the template.
func (p *Program) Source() string { return p.source }

// Starlark returns the translated starlark source.
func (p *Program) Starlark() string { return p.translated }

// Refs returns the $names the expression reads.
func (p *Program) Refs() []string { return p.refs }

// Eval evaluates the expression against scope and converts the result to
// plain Go (see FromValue). Starlark values returned by callbacks are
// unwrapped the same way.
func (p *Program) Eval(scope Scope) (any, error) {
	v, err := p.EvalValue(scope)
	if err != nil {
		return nil, err
	}
	return FromValue(v), nil
}

// EvalValue evaluates the expression and returns the raw starlark value.
func (p *Program) EvalValue(scope Scope) (starlark.Value, error) {
	thread := &starlark.Thread{Name: "expr"}
	v, err := starlark.Call(thread, p.fn, starlark.Tuple{&scopeValue{scope: scope}}, nil)
	if err != nil {
		return nil, fmt.Errorf("expr: eval %q: %w", p.source, err)
	}
	return v, nil
}

// scopeValue is the lambda argument that $name reads resolve against.
type scopeValue struct {
	scope Scope
}

var _ starlark.HasAttrs = (*scopeValue)(nil)

func (s *scopeValue) String() string        { return "scope" }
func (s *scopeValue) Type() string          { return "scope" }
func (s *scopeValue) Freeze()               {}
func (s *scopeValue) Truth() starlark.Bool  { return starlark.True }
func (s *scopeValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: scope") }
func (s *scopeValue) AttrNames() []string   { return nil }

func (s *scopeValue) Attr(name string) (starlark.Value, error) {
	if s.scope == nil {
		return starlark.None, nil
	}
	v, _ := s.scope.Lookup(name)
	return ToValue(v), nil
}

func mathFunc(name string, arity int, fn func([]float64) float64) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		if len(args) != arity {
			return nil, fmt.Errorf("Math.%s: got %d arguments, want %d", name, len(args), arity)
		}
		in := make([]float64, arity)
		for i, a := range args {
			f, ok := starlark.AsFloat(a)
			if !ok {
				return nil, fmt.Errorf("Math.%s: argument %d is %s, want number", name, i+1, a.Type())
			}
			in[i] = f
		}
		out := fn(in)
		if out == math.Trunc(out) && math.Abs(out) < 1<<53 {
			return starlark.MakeInt64(int64(out)), nil
		}
		return starlark.Float(out), nil
	})
}
