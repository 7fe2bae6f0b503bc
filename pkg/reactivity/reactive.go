// Package reactivity implements fine-grained dependency tracking between
// reactive containers and effects.
//
// A Container wraps a plain map. Reading a key while an Effect runs links
// the key to that effect; writing the key re-runs every linked effect
// before Set returns. Nested maps are wrapped into containers of the same
// mode, so dot paths such as "user.name" are tracked key by key.
//
// Two container strategies share the Container interface and behave the
// same from the outside:
//
//   - ModeProxy keeps a lazily populated dependency table keyed by name.
//   - ModeDefineProperty allocates one cell per key when the container is
//     created and appends cells for keys added later. It exists for hosts
//     that want a fixed, index-addressed layout.
//
// Writes of a value identical to the stored one are skipped. Values that
// cannot be compared (maps, slices, funcs) always notify.
package reactivity

import (
	"fmt"
	"reflect"
	"strings"
)

// Mode selects the container strategy.
type Mode int

const (
	// ModeProxy is the default strategy.
	ModeProxy Mode = iota
	// ModeDefineProperty is the compatibility strategy.
	ModeDefineProperty
)

func (m Mode) String() string {
	switch m {
	case ModeDefineProperty:
		return "defineProperty"
	default:
		return "proxy"
	}
}

// ParseMode converts a settings value to a Mode. The empty string selects
// ModeProxy.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "proxy":
		return ModeProxy, nil
	case "defineproperty", "define-property":
		return ModeDefineProperty, nil
	default:
		return ModeProxy, fmt.Errorf("unknown reactivity mode %q", s)
	}
}

// Container is a reactive key/value store.
type Container interface {
	// Get returns the value stored under key and records a dependency.
	Get(key string) any
	// Set stores value and re-runs the effects that read key.
	Set(key string, value any)
	// Has reports whether key is present. It records a dependency.
	Has(key string) bool
	// Delete removes key and re-runs the effects that read it.
	Delete(key string)
	// Keys returns the keys in insertion order and records a dependency on
	// the key set.
	Keys() []string
	// Raw returns a deep plain copy of the contents without tracking.
	Raw() map[string]any
	// Mode reports the strategy backing the container.
	Mode() Mode
}

// Reactive wraps target into a container bound to the tracker. The target
// map is copied; later changes to it are not observed.
func (t *Tracker) Reactive(target map[string]any, mode Mode) Container {
	switch mode {
	case ModeDefineProperty:
		return newCellContainer(t, target)
	default:
		return newMapContainer(t, target)
	}
}

// Raw unwraps containers (deeply, including inside slices and maps) into
// plain values. Other values are returned unchanged.
func Raw(v any) any {
	switch v := v.(type) {
	case Container:
		return v.Raw()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = Raw(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = Raw(e)
		}
		return out
	default:
		return v
	}
}

// GetPath walks a dot path ("user.address.city") through nested containers.
// The second result is false when an intermediate value is not a container.
func GetPath(c Container, path string) (any, bool) {
	var cur any = c
	for _, part := range strings.Split(path, ".") {
		next, ok := cur.(Container)
		if !ok {
			return nil, false
		}
		cur = next.Get(part)
	}
	return cur, true
}

// wrap converts nested plain maps into containers of the same mode.
func wrap(t *Tracker, mode Mode, v any) any {
	if m, ok := v.(map[string]any); ok {
		return t.Reactive(m, mode)
	}
	return v
}

// unchanged reports whether writing next over prev can be skipped.
func unchanged(prev, next any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	if prev == nil || next == nil {
		return prev == nil && next == nil
	}
	tp, tn := reflect.TypeOf(prev), reflect.TypeOf(next)
	if tp != tn || !tp.Comparable() {
		return false
	}
	return prev == next
}

func rawMap(keys []string, get func(string) any) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = Raw(get(k))
	}
	return out
}
