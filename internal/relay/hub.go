package relay

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/haimi-h/shopify-clone-sub000/internal/chat"
)

// hub tracks open connections per user.
type hub struct {
	mu      sync.RWMutex
	byUser  map[string]map[*client]struct{}
	metrics *Metrics
	onEmpty func(userID string)
}

func newHub(metrics *Metrics, onEmpty func(string)) *hub {
	return &hub{
		byUser:  make(map[string]map[*client]struct{}),
		metrics: metrics,
		onEmpty: onEmpty,
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byUser[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.byUser[c.userID] = set
	}
	set[c] = struct{}{}
	h.metrics.connections.Inc()
}

// remove unregisters c and closes its send queue. Safe to call twice.
func (h *hub) remove(c *client) {
	h.mu.Lock()
	set, ok := h.byUser[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	c.close()
	h.metrics.connections.Dec()
	empty := len(set) == 0
	if empty {
		delete(h.byUser, c.userID)
	}
	h.mu.Unlock()

	if empty && h.onEmpty != nil {
		h.onEmpty(c.userID)
	}
}

// broadcast queues an event on every connection of userID and returns how
// many connections received it. Connections whose queue is full are dropped.
func (h *hub) broadcast(userID, event string, v any) (int, error) {
	env, err := chat.NewEnvelope(event, v)
	if err != nil {
		return 0, err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return 0, err
	}

	var slow []*client
	delivered := 0
	h.mu.RLock()
	for c := range h.byUser[userID] {
		switch err := c.queue(frame); {
		case err == nil:
			delivered++
		case errors.Is(err, errQueueFull):
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		c.log.Warn("dropping slow client")
		h.metrics.reject(ReasonSlowClient)
		h.remove(c)
	}
	return delivered, nil
}

// connCount returns the number of open connections for userID.
func (h *hub) connCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// closeAll unregisters every connection, which makes their write pumps send
// a close frame.
func (h *hub) closeAll() {
	h.mu.RLock()
	var all []*client
	for _, set := range h.byUser {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.remove(c)
	}
}
