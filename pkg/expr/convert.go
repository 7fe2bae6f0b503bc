package expr

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"go.starlark.net/starlark"

	"github.com/go-drift/beam/pkg/reactivity"
)

// ToValue converts a Go value into a starlark value. Reactive containers
// stay live: reading an attribute of the result goes through the container
// and is tracked. Unknown types are wrapped opaquely.
func ToValue(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return v
	case reactivity.Container:
		return &containerValue{c: v}
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case []byte:
		return starlark.Bytes(v)
	case int:
		return starlark.MakeInt(v)
	case int8:
		return starlark.MakeInt(int(v))
	case int16:
		return starlark.MakeInt(int(v))
	case int32:
		return starlark.MakeInt(int(v))
	case int64:
		return starlark.MakeInt64(v)
	case uint:
		return starlark.MakeUint(v)
	case uint8:
		return starlark.MakeUint(uint(v))
	case uint16:
		return starlark.MakeUint(uint(v))
	case uint32:
		return starlark.MakeUint(uint(v))
	case uint64:
		return starlark.MakeUint64(v)
	case float32:
		return starlark.Float(v)
	case float64:
		return starlark.Float(v)
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = ToValue(e)
		}
		return starlark.NewList(elems)
	case map[string]any:
		return &mapValue{m: v}
	case func(args ...any) any:
		return starlark.NewBuiltin("func", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
			goArgs := make([]any, len(args))
			for i, a := range args {
				goArgs[i] = FromValue(a)
			}
			return ToValue(v(goArgs...)), nil
		})
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return reflectFunc(rv)
	case reflect.Slice, reflect.Array:
		elems := make([]starlark.Value, rv.Len())
		for i := range elems {
			elems[i] = ToValue(rv.Index(i).Interface())
		}
		return starlark.NewList(elems)
	}
	return &opaque{v: v}
}

// FromValue converts a starlark value back to plain Go: integers become int
// (or float64 when they overflow), floats float64, lists []any, dicts
// map[string]any. Live containers and opaque values are unwrapped.
func FromValue(v starlark.Value) any {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(v)
	case starlark.String:
		return string(v)
	case starlark.Bytes:
		return []byte(v)
	case starlark.Int:
		if i, ok := v.Int64(); ok && i >= math.MinInt && i <= math.MaxInt {
			return int(i)
		}
		f, _ := starlark.AsFloat(v)
		return f
	case starlark.Float:
		return float64(v)
	case *starlark.List:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = FromValue(v.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = FromValue(e)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			key := item[0]
			if s, ok := key.(starlark.String); ok {
				out[string(s)] = FromValue(item[1])
			} else {
				out[key.String()] = FromValue(item[1])
			}
		}
		return out
	case *containerValue:
		return v.c
	case *mapValue:
		return v.m
	case *opaque:
		return v.v
	}
	return v
}

// reflectFunc exposes an arbitrary Go function. Arguments are converted
// with FromValue and then to the parameter types; a trailing error result
// becomes a starlark error.
func reflectFunc(fn reflect.Value) starlark.Value {
	ft := fn.Type()
	return starlark.NewBuiltin("func", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		in := make([]reflect.Value, 0, len(args))
		for i, a := range args {
			var pt reflect.Type
			switch {
			case ft.IsVariadic() && i >= ft.NumIn()-1:
				pt = ft.In(ft.NumIn() - 1).Elem()
			case i < ft.NumIn():
				pt = ft.In(i)
			default:
				return nil, fmt.Errorf("%s: too many arguments", b.Name())
			}
			arg, err := convertArg(FromValue(a), pt)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", b.Name(), i+1, err)
			}
			in = append(in, arg)
		}
		minArgs := ft.NumIn()
		if ft.IsVariadic() {
			minArgs--
		}
		for len(in) < minArgs {
			in = append(in, reflect.Zero(ft.In(len(in))))
		}

		out := fn.Call(in)
		if n := len(out); n > 0 && ft.Out(n-1) == reflect.TypeOf((*error)(nil)).Elem() {
			if err, _ := out[n-1].Interface().(error); err != nil {
				return nil, err
			}
			out = out[:n-1]
		}
		switch len(out) {
		case 0:
			return starlark.None, nil
		case 1:
			return ToValue(out[0].Interface()), nil
		}
		tuple := make(starlark.Tuple, len(out))
		for i, o := range out {
			tuple[i] = ToValue(o.Interface())
		}
		return tuple, nil
	})
}

func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case rv.Type().ConvertibleTo(t) && rv.Kind() != reflect.String && t.Kind() != reflect.String:
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

// containerValue exposes a reactive container to expressions. Attribute
// and index reads go through Container.Get and are therefore tracked.
type containerValue struct {
	c reactivity.Container
}

var (
	_ starlark.HasAttrs = (*containerValue)(nil)
	_ starlark.Mapping  = (*containerValue)(nil)
)

func (v *containerValue) String() string        { return fmt.Sprint(v.c.Raw()) }
func (v *containerValue) Type() string          { return "reactive" }
func (v *containerValue) Freeze()               {}
func (v *containerValue) Truth() starlark.Bool  { return len(v.c.Keys()) > 0 }
func (v *containerValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: reactive") }

func (v *containerValue) Attr(name string) (starlark.Value, error) {
	return ToValue(v.c.Get(name)), nil
}

func (v *containerValue) AttrNames() []string {
	return v.c.Keys()
}

func (v *containerValue) Get(key starlark.Value) (starlark.Value, bool, error) {
	s, ok := key.(starlark.String)
	if !ok {
		return nil, false, fmt.Errorf("reactive key must be a string, got %s", key.Type())
	}
	if !v.c.Has(string(s)) {
		return starlark.None, false, nil
	}
	return ToValue(v.c.Get(string(s))), true, nil
}

// mapValue exposes a plain map with both attribute ($item.label) and index
// ($item["label"]) access. Missing attributes read as None.
type mapValue struct {
	m map[string]any
}

var (
	_ starlark.HasAttrs = (*mapValue)(nil)
	_ starlark.Mapping  = (*mapValue)(nil)
	_ starlark.Sequence = (*mapValue)(nil)
)

func (v *mapValue) String() string        { return fmt.Sprint(v.m) }
func (v *mapValue) Type() string          { return "object" }
func (v *mapValue) Freeze()               {}
func (v *mapValue) Truth() starlark.Bool  { return len(v.m) > 0 }
func (v *mapValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: object") }
func (v *mapValue) Len() int              { return len(v.m) }

func (v *mapValue) Attr(name string) (starlark.Value, error) {
	return ToValue(v.m[name]), nil
}

func (v *mapValue) AttrNames() []string { return v.keys() }

func (v *mapValue) Get(key starlark.Value) (starlark.Value, bool, error) {
	s, ok := key.(starlark.String)
	if !ok {
		return nil, false, fmt.Errorf("object key must be a string, got %s", key.Type())
	}
	val, found := v.m[string(s)]
	if !found {
		return starlark.None, false, nil
	}
	return ToValue(val), true, nil
}

// Iterate yields the keys in sorted order.
func (v *mapValue) Iterate() starlark.Iterator {
	keys := v.keys()
	elems := make([]starlark.Value, len(keys))
	for i, k := range keys {
		elems[i] = starlark.String(k)
	}
	return starlark.NewList(elems).Iterate()
}

func (v *mapValue) keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// opaque carries a Go value through an expression untouched.
type opaque struct {
	v any
}

func (o *opaque) String() string        { return fmt.Sprint(o.v) }
func (o *opaque) Type() string          { return fmt.Sprintf("%T", o.v) }
func (o *opaque) Freeze()               {}
func (o *opaque) Truth() starlark.Bool  { return o.v != nil }
func (o *opaque) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %T", o.v) }
