package reactivity

import "sort"

// mapContainer backs ModeProxy: values live in a map and dependency sets
// are created on first read of a key.
type mapContainer struct {
	t      *Tracker
	values map[string]any
	order  []string
	deps   map[string]*dep
	keys   dep
}

func newMapContainer(t *Tracker, target map[string]any) *mapContainer {
	c := &mapContainer{
		t:      t,
		values: make(map[string]any, len(target)),
		deps:   make(map[string]*dep),
	}
	for _, k := range sortedKeys(target) {
		c.values[k] = wrap(t, ModeProxy, target[k])
		c.order = append(c.order, k)
	}
	return c
}

func (c *mapContainer) depFor(key string) *dep {
	d, ok := c.deps[key]
	if !ok {
		d = &dep{}
		c.deps[key] = d
	}
	return d
}

func (c *mapContainer) Get(key string) any {
	c.t.track(c.depFor(key))
	return c.values[key]
}

func (c *mapContainer) Has(key string) bool {
	c.t.track(c.depFor(key))
	_, ok := c.values[key]
	return ok
}

func (c *mapContainer) Set(key string, value any) {
	prev, existed := c.values[key]
	if existed && unchanged(prev, value) {
		return
	}
	c.values[key] = wrap(c.t, ModeProxy, value)
	if !existed {
		c.order = append(c.order, key)
		c.t.trigger(&c.keys)
	}
	c.t.trigger(c.deps[key])
}

func (c *mapContainer) Delete(key string) {
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.t.trigger(&c.keys)
	c.t.trigger(c.deps[key])
}

func (c *mapContainer) Keys() []string {
	c.t.track(&c.keys)
	return append([]string(nil), c.order...)
}

func (c *mapContainer) Raw() map[string]any {
	return rawMap(c.order, func(k string) any { return c.values[k] })
}

func (c *mapContainer) Mode() Mode { return ModeProxy }

// cell is one property slot of a cellContainer.
type cell struct {
	value   any
	present bool
	seq     int
	dep     dep
}

// cellContainer backs ModeDefineProperty: every key owns a cell created up
// front (or on first access for keys added later) that keeps its value and
// subscriber set together.
type cellContainer struct {
	t     *Tracker
	cells map[string]*cell
	seq   int
	keys  dep
}

func newCellContainer(t *Tracker, target map[string]any) *cellContainer {
	c := &cellContainer{
		t:     t,
		cells: make(map[string]*cell, len(target)),
	}
	for _, k := range sortedKeys(target) {
		c.define(k).assign(wrap(t, ModeDefineProperty, target[k]), c.nextSeq())
	}
	return c
}

func (c *cellContainer) nextSeq() int {
	c.seq++
	return c.seq
}

// define returns the cell for key, creating an absent one if needed.
func (c *cellContainer) define(key string) *cell {
	cl, ok := c.cells[key]
	if !ok {
		cl = &cell{}
		c.cells[key] = cl
	}
	return cl
}

func (cl *cell) assign(v any, seq int) {
	cl.value = v
	if !cl.present {
		cl.present = true
		cl.seq = seq
	}
}

func (c *cellContainer) Get(key string) any {
	cl := c.define(key)
	c.t.track(&cl.dep)
	if !cl.present {
		return nil
	}
	return cl.value
}

func (c *cellContainer) Has(key string) bool {
	cl := c.define(key)
	c.t.track(&cl.dep)
	return cl.present
}

func (c *cellContainer) Set(key string, value any) {
	cl := c.define(key)
	if cl.present && unchanged(cl.value, value) {
		return
	}
	added := !cl.present
	cl.assign(wrap(c.t, ModeDefineProperty, value), c.nextSeq())
	if added {
		c.t.trigger(&c.keys)
	}
	c.t.trigger(&cl.dep)
}

func (c *cellContainer) Delete(key string) {
	cl, ok := c.cells[key]
	if !ok || !cl.present {
		return
	}
	cl.present = false
	cl.value = nil
	c.t.trigger(&c.keys)
	c.t.trigger(&cl.dep)
}

func (c *cellContainer) Keys() []string {
	c.t.track(&c.keys)
	return c.presentKeys()
}

func (c *cellContainer) presentKeys() []string {
	keys := make([]string, 0, len(c.cells))
	for k, cl := range c.cells {
		if cl.present {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return c.cells[keys[i]].seq < c.cells[keys[j]].seq })
	return keys
}

func (c *cellContainer) Raw() map[string]any {
	return rawMap(c.presentKeys(), func(k string) any { return c.cells[k].value })
}

func (c *cellContainer) Mode() Mode { return ModeDefineProperty }

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
