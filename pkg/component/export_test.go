package component

// Tracked reports how many effects and cleanups the instance holds.
func (c *Instance) Tracked() (effects, disposers int) {
	return len(c.effects), len(c.disposers)
}
