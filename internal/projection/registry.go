package projection

import (
	"log/slog"
	"sync"
)

// Event is one push-channel notification fanned out to dashboards.
type Event struct {
	Name    string
	Payload []byte
}

// Registry tracks the connections that completed the admin handshake.
// Only registered connections receive broadcasts; delivery to each is
// best-effort and a subscriber that falls behind loses events, which
// its next full refetch reconciles.
type Registry struct {
	log    *slog.Logger
	mu     sync.Mutex
	nextID int64
	admins map[int64]chan Event
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log, admins: make(map[int64]chan Event)}
}

// RegisterAdmin completes the handshake for one connection and returns
// its id and event channel.
func (r *Registry) RegisterAdmin(buffer int) (int64, <-chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	ch := make(chan Event, buffer)
	r.admins[r.nextID] = ch
	r.log.Info("admin subscriber registered", "subscriber_id", r.nextID)
	return r.nextID, ch
}

func (r *Registry) Unregister(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.admins[id]; ok {
		delete(r.admins, id)
		close(ch)
		r.log.Info("admin subscriber unregistered", "subscriber_id", id)
	}
}

// BroadcastToAdmins delivers the event to every registered admin
// connection without blocking on slow ones.
func (r *Registry) BroadcastToAdmins(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, ch := range r.admins {
		select {
		case ch <- ev:
		default:
			r.log.Warn("dropping event for slow subscriber", "subscriber_id", id, "event", ev.Name)
		}
	}
}

// AdminCount reports how many connections are registered.
func (r *Registry) AdminCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.admins)
}
