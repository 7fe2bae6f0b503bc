package component

import (
	"time"

	"github.com/go-drift/beam/pkg/engine"
)

// SetTimeout runs fn once after d on the App loop. The timer is cleared
// when the instance is destroyed. A destroyed instance schedules nothing
// and returns the zero TimerID.
func (c *Instance) SetTimeout(fn func(), d time.Duration) engine.TimerID {
	if c.disposed || fn == nil {
		return 0
	}
	var id engine.TimerID
	id = c.app.loop.SetTimeout(func() {
		delete(c.timers, id)
		if c.lc.Alive() {
			fn()
		}
	}, d)
	c.timers[id] = struct{}{}
	return id
}

// ClearTimeout cancels a timeout created by SetTimeout.
func (c *Instance) ClearTimeout(id engine.TimerID) {
	c.clearTimer(id)
}

// SetInterval runs fn every d until cleared or until the instance is
// destroyed.
func (c *Instance) SetInterval(fn func(), d time.Duration) engine.TimerID {
	if c.disposed || fn == nil {
		return 0
	}
	id := c.app.loop.SetInterval(func() {
		if c.lc.Alive() {
			fn()
		}
	}, d)
	c.timers[id] = struct{}{}
	return id
}

// ClearInterval cancels an interval created by SetInterval.
func (c *Instance) ClearInterval(id engine.TimerID) {
	c.clearTimer(id)
}

func (c *Instance) clearTimer(id engine.TimerID) {
	if _, ok := c.timers[id]; !ok {
		return
	}
	delete(c.timers, id)
	c.app.loop.ClearTimer(id)
}

// Timers returns the number of pending timeouts and intervals.
func (c *Instance) Timers() int {
	return len(c.timers)
}
