package recordstore

import "sync"

// hub tracks live subscriptions per owner. A signal channel has a buffer of
// one, so bursts of changes collapse into a single pending reload.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan struct{}]struct{})}
}

func (h *hub) add(owner string) chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[owner]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[owner] = set
	}
	set[ch] = struct{}{}
	return ch
}

func (h *hub) remove(owner string, ch chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[owner]
	delete(set, ch)
	if len(set) == 0 {
		delete(h.subs, owner)
	}
}

// notify marks every subscription of owner as stale.
func (h *hub) notify(owner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[owner] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *hub) count(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[owner])
}
