package docstore

import "sync"

// hub fans committed changes out to per-type subscribers.
type hub struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[string]map[int64]ChangeHandler
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int64]ChangeHandler)}
}

func (h *hub) subscribe(typ string, fn ChangeHandler) CancelFunc {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if h.subs[typ] == nil {
		h.subs[typ] = make(map[int64]ChangeHandler)
	}
	h.subs[typ][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[typ], id)
	}
}

func (h *hub) publish(change Change) {
	h.mu.RLock()
	handlers := make([]ChangeHandler, 0, len(h.subs[change.Type]))
	for _, fn := range h.subs[change.Type] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(change)
	}
}
