package component

import (
	"reflect"
	"strings"

	"github.com/go-drift/beam/pkg/reactivity"
)

type watcher struct {
	effect *reactivity.Effect
	force  bool
}

// watch registers a watcher effect for a dot path. The first run only
// records the current value; later runs call fn when the value changed or
// when Trigger forced the run.
func (c *Instance) watch(path string, fn func(c *Instance, value, old any)) {
	if fn == nil {
		return
	}
	w := &watcher{}
	var old any
	primed := false
	e := c.app.tracker.Effect(func() {
		if !c.lc.Alive() {
			return
		}
		value := c.path(path)
		force := w.force
		w.force = false
		if !primed {
			primed = true
			old = value
			return
		}
		if !force && same(old, value) {
			return
		}
		prev := old
		old = value
		c.callHook("watch", func() { fn(c, value, prev) })
	})
	w.effect = e
	c.track(e)
	c.watchers[path] = w
}

// Trigger re-runs the watcher of path and calls it even if the value did
// not change. It reports whether such a watcher exists.
func (c *Instance) Trigger(path string) bool {
	w, ok := c.watchers[path]
	if !ok {
		return false
	}
	w.force = true
	w.effect.Run()
	return true
}

// path resolves a dot path against the instance scope and nested values.
func (c *Instance) path(path string) any {
	parts := strings.Split(path, ".")
	v, _ := c.Lookup(parts[0])
	for _, p := range parts[1:] {
		switch t := v.(type) {
		case reactivity.Container:
			v = t.Get(p)
		case map[string]any:
			v = t[p]
		default:
			return nil
		}
	}
	return v
}

// same reports whether a watched value is unchanged. Values that cannot be
// compared count as changed.
func same(a, b any) (eq bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
