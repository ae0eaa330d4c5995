package control

import "sync/atomic"

// Power is the externally toggled drive gate. Safe for concurrent use;
// the HTTP service flips it while the control loop reads it.
type Power struct {
	on atomic.Bool
}

func (p *Power) On() bool {
	return p.on.Load()
}

func (p *Power) Set(on bool) {
	p.on.Store(on)
}

// Toggle flips the state and returns the new value.
func (p *Power) Toggle() bool {
	for {
		cur := p.on.Load()
		if p.on.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}
