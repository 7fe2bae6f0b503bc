package codegen

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-drift/beam/pkg/expr"
	"github.com/go-drift/beam/pkg/reactivity"
)

// valueFunc produces an attribute value from a scope.
type valueFunc func(scope expr.Scope) (any, error)

// compiledValue is an attribute value ready for render: either a constant
// or a function of the instance scope.
type compiledValue struct {
	constant any
	fn       valueFunc
}

func (v compiledValue) reactive() bool { return v.fn != nil }

func (v compiledValue) eval(scope expr.Scope) (any, error) {
	if v.fn == nil {
		return v.constant, nil
	}
	return v.fn(scope)
}

// compileValue compiles the raw value of an attribute. bound forces an
// expression (":" attributes); otherwise values are expressions only when
// they reference $names.
func compileValue(raw string, bound bool) (compiledValue, error) {
	raw = strings.TrimSpace(raw)

	if entries, ok := expr.ObjectEntries(raw); ok {
		return compileObject(entries, bound)
	}
	if strings.Contains(raw, "{{") {
		return compileInterpolation(raw)
	}
	if !bound && !strings.Contains(raw, "$") {
		return compiledValue{constant: coerce(raw)}, nil
	}
	p, err := expr.Compile(raw)
	if err != nil {
		return compiledValue{}, err
	}
	if len(p.Refs()) == 0 {
		// constant expression such as :w="100 * 2"
		if v, err := p.Eval(nil); err == nil {
			return compiledValue{constant: v}, nil
		}
	}
	return compiledValue{fn: p.Eval}, nil
}

// compileObject splits a structured value into per-key values so modifier
// entries written with bare words ({easing: ease-in}) stay literal.
func compileObject(entries [][2]string, bound bool) (compiledValue, error) {
	keys := make([]string, len(entries))
	values := make([]compiledValue, len(entries))
	reactive := false
	for i, e := range entries {
		keys[i] = e[0]
		v, err := compileEntry(e[1], bound)
		if err != nil {
			return compiledValue{}, fmt.Errorf("key %q: %w", e[0], err)
		}
		values[i] = v
		reactive = reactive || v.reactive()
	}
	if !reactive {
		m := make(map[string]any, len(keys))
		for i, k := range keys {
			m[k] = values[i].constant
		}
		return compiledValue{constant: m}, nil
	}
	return compiledValue{fn: func(scope expr.Scope) (any, error) {
		m := make(map[string]any, len(keys))
		for i, k := range keys {
			v, err := values[i].eval(scope)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	}}, nil
}

func compileEntry(raw string, bound bool) (compiledValue, error) {
	if entries, ok := expr.ObjectEntries(raw); ok {
		return compileObject(entries, bound)
	}
	if strings.Contains(raw, "$") {
		p, err := expr.Compile(raw)
		if err != nil {
			return compiledValue{}, err
		}
		return compiledValue{fn: p.Eval}, nil
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		return compiledValue{constant: unq}, nil
	}
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		return compiledValue{constant: raw[1 : len(raw)-1]}, nil
	}
	return compiledValue{constant: coerce(raw)}, nil
}

// compileInterpolation compiles text with {{ expression }} segments into a
// string-valued function.
func compileInterpolation(raw string) (compiledValue, error) {
	type part struct {
		text string
		prog *expr.Program
	}
	var parts []part
	rest := raw
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			parts = append(parts, part{text: rest})
			break
		}
		end := strings.Index(rest[open:], "}}")
		if end < 0 {
			return compiledValue{}, fmt.Errorf("unclosed {{ in %q", raw)
		}
		if open > 0 {
			parts = append(parts, part{text: rest[:open]})
		}
		p, err := expr.Compile(rest[open+2 : open+end])
		if err != nil {
			return compiledValue{}, err
		}
		parts = append(parts, part{prog: p})
		rest = rest[open+end+2:]
	}
	return compiledValue{fn: func(scope expr.Scope) (any, error) {
		var b strings.Builder
		for _, p := range parts {
			if p.prog == nil {
				b.WriteString(p.text)
				continue
			}
			v, err := p.prog.Eval(scope)
			if err != nil {
				return nil, err
			}
			if v != nil {
				fmt.Fprint(&b, v)
			}
		}
		return b.String(), nil
	}}, nil
}

// coerce converts a literal attribute value: numbers to float64, true and
// false to bool. Everything else stays a string.
func coerce(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "":
		return s
	}
	if c := s[0]; c == '-' || c == '+' || c == '.' || c >= '0' && c <= '9' {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// truthy mirrors the truthiness template authors expect from :if and :show.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case float64:
		return v != 0
	case reactivity.Container:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Func, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// toList converts a :for source to a slice.
func toList(v any) ([]any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case reactivity.Container:
		return nil, fmt.Errorf(":for source is an object, not a list")
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	case reflect.Int:
		// :for="i in 5"
		out := make([]any, rv.Int())
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	return nil, fmt.Errorf(":for source %T is not a list", v)
}
