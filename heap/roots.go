package heap

import (
	"fmt"

	"github.com/chazu/ikheap/value"
)

// RootSlots is the number of registrable root slots.
const RootSlots = 10

// RegisterRoot makes the value at loc a root. The collector reads it and
// rewrites it in place when its referent moves. loc must stay valid until
// the slot is unregistered.
func (p *PCB) RegisterRoot(slot int, loc *value.Word) error {
	if slot < 0 || slot >= RootSlots {
		return fmt.Errorf("register slot %d: %w", slot, ErrBadRootSlot)
	}
	p.roots[slot] = loc
	return nil
}

// UnregisterRoot clears a root slot.
func (p *PCB) UnregisterRoot(slot int) error {
	if slot < 0 || slot >= RootSlots {
		return fmt.Errorf("unregister slot %d: %w", slot, ErrBadRootSlot)
	}
	p.roots[slot] = nil
	return nil
}

// Root returns the location registered in slot, or nil.
func (p *PCB) Root(slot int) (*value.Word, error) {
	if slot < 0 || slot >= RootSlots {
		return nil, fmt.Errorf("root slot %d: %w", slot, ErrBadRootSlot)
	}
	return p.roots[slot], nil
}

// ---------------------------------------------------------------------------
// Callback locatives
// ---------------------------------------------------------------------------

// CallbackID names an exported callback locative.
type CallbackID int

// callbackLocative ties a native entry point to the value it calls back
// into. The data value is a root for as long as the locative is live.
type callbackLocative struct {
	callable uintptr
	closure  uintptr
	data     value.Word
	live     bool
}

// ExportCallback registers a callback locative and returns its id.
func (p *PCB) ExportCallback(callable, closure uintptr, data value.Word) CallbackID {
	loc := callbackLocative{callable: callable, closure: closure, data: data, live: true}
	if n := len(p.freeCallbacks); n > 0 {
		i := p.freeCallbacks[n-1]
		p.freeCallbacks = p.freeCallbacks[:n-1]
		p.callbacks[i] = loc
		return CallbackID(i)
	}
	p.callbacks = append(p.callbacks, loc)
	return CallbackID(len(p.callbacks) - 1)
}

// ReleaseCallback drops a locative; its data stops being a root.
func (p *PCB) ReleaseCallback(id CallbackID) error {
	loc, err := p.callback(id)
	if err != nil {
		return err
	}
	*loc = callbackLocative{}
	p.freeCallbacks = append(p.freeCallbacks, int(id))
	return nil
}

// CallbackData returns the current value of a live locative.
func (p *PCB) CallbackData(id CallbackID) (value.Word, error) {
	loc, err := p.callback(id)
	if err != nil {
		return 0, err
	}
	return loc.data, nil
}

// CallbackAddrs returns the native addresses recorded for a locative.
func (p *PCB) CallbackAddrs(id CallbackID) (callable, closure uintptr, err error) {
	loc, err := p.callback(id)
	if err != nil {
		return 0, 0, err
	}
	return loc.callable, loc.closure, nil
}

func (p *PCB) callback(id CallbackID) (*callbackLocative, error) {
	if id < 0 || int(id) >= len(p.callbacks) || !p.callbacks[id].live {
		return nil, fmt.Errorf("callback %d: %w", id, ErrUnknownCallback)
	}
	return &p.callbacks[id], nil
}

// ---------------------------------------------------------------------------
// Temporary roots
// ---------------------------------------------------------------------------

// protect keeps the given locals alive and up to date across allocations.
// The returned function pops them and must be called in LIFO order.
func (p *PCB) protect(locs ...*value.Word) func() {
	n := len(p.temps)
	p.temps = append(p.temps, locs...)
	return func() {
		clear(p.temps[n:])
		p.temps = p.temps[:n]
	}
}

func (p *PCB) protectSlice(ws []value.Word) func() {
	n := len(p.temps)
	for i := range ws {
		p.temps = append(p.temps, &ws[i])
	}
	return func() {
		clear(p.temps[n:])
		p.temps = p.temps[:n]
	}
}

// forEachRoot visits every root location held outside the heap.
func (p *PCB) forEachRoot(fn func(*value.Word)) {
	for _, loc := range p.roots {
		if loc != nil {
			fn(loc)
		}
	}
	for i := range p.callbacks {
		if p.callbacks[i].live {
			fn(&p.callbacks[i].data)
		}
	}
	for i := range p.stack {
		fn(&p.stack[i])
	}
	fn(&p.nextK)
	fn(&p.baseRTD)
	for _, loc := range p.temps {
		fn(loc)
	}
	forEachMapRoot(p.symbols, fn)
	forEachMapRoot(p.gensyms, fn)
}

func forEachMapRoot(m map[string]value.Word, fn func(*value.Word)) {
	for k, w := range m {
		fn(&w)
		m[k] = w
	}
}
