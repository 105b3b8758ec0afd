// Package sigchan is a coalescing wake-up signal: any number of Emits before a receive collapse
// into one.
package sigchan

type Chan struct {
	c chan struct{}
}

// New returns a signal with room for one pending wake-up.
func New() *Chan {
	return &Chan{c: make(chan struct{}, 1)}
}

// Emit never blocks.
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C is the receive side, for select.
func (c *Chan) C() <-chan struct{} {
	return c.c
}

