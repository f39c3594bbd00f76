package event

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/edgesync/backend/internal/domain/shared"
)

// routes is an immutable snapshot of the subscriptions.
type routes struct {
	byType map[string][]shared.EventHandler
	all    []shared.EventHandler // subscribed without event types
}

// handlerTable routes event types to handlers. Publishers read the current
// snapshot without locking; subscription changes copy it.
type handlerTable struct {
	mu      sync.Mutex
	current atomic.Pointer[routes]
}

func newHandlerTable() *handlerTable {
	t := &handlerTable{}
	t.current.Store(&routes{byType: map[string][]shared.EventHandler{}})
	return t
}

// update applies fn to a copy of the current snapshot and publishes it.
func (t *handlerTable) update(fn func(r *routes)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.current.Load()
	next := &routes{byType: maps.Clone(old.byType), all: slices.Clone(old.all)}
	fn(next)
	t.current.Store(next)
}

func (t *handlerTable) add(handler shared.EventHandler, eventTypes ...string) {
	t.update(func(r *routes) {
		if len(eventTypes) == 0 {
			r.all = append(r.all, handler)
			return
		}
		for _, et := range eventTypes {
			r.byType[et] = append(slices.Clip(r.byType[et]), handler)
		}
	})
}

func (t *handlerTable) remove(handler shared.EventHandler) {
	same := func(h shared.EventHandler) bool { return h == handler }
	t.update(func(r *routes) {
		r.all = slices.DeleteFunc(r.all, same)
		for et, hs := range r.byType {
			if hs = slices.DeleteFunc(slices.Clone(hs), same); len(hs) == 0 {
				delete(r.byType, et)
			} else {
				r.byType[et] = hs
			}
		}
	})
}

// lookup returns the handlers of eventType, then the catch-all handlers.
func (t *handlerTable) lookup(eventType string) []shared.EventHandler {
	r := t.current.Load()
	return slices.Concat(r.byType[eventType], r.all)
}
