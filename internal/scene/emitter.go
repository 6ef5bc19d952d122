package scene

import (
	"sort"

	"hotspot-map/internal/surface"
)

// emitter keeps handlers per event in subscription order.
type emitter struct {
	next     int
	handlers map[surface.Event]map[int]func()
}

func (e *emitter) On(ev surface.Event, fn func()) func() {
	if fn == nil {
		return func() {}
	}
	if e.handlers == nil {
		e.handlers = make(map[surface.Event]map[int]func())
	}
	if e.handlers[ev] == nil {
		e.handlers[ev] = make(map[int]func())
	}
	e.next++
	id := e.next
	e.handlers[ev][id] = fn
	return func() {
		if hs, ok := e.handlers[ev]; ok {
			delete(hs, id)
		}
	}
}

// fire snapshots the handler set first, so handlers may subscribe or detach while running.
func (e *emitter) fire(ev surface.Event) int {
	hs := e.handlers[ev]
	if len(hs) == 0 {
		return 0
	}
	ids := make([]int, 0, len(hs))
	for id := range hs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, hs[id])
	}
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (e *emitter) count(ev surface.Event) int { return len(e.handlers[ev]) }

func (e *emitter) reset() { e.handlers = nil }
