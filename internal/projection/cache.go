package projection

import (
	"sync"

	"github.com/bhojanhub/qr-ordering/internal/order/domain"
)

// Cache is the incrementally-merged mirror of the aggregator's output.
// It can be rebuilt wholesale after a full fetch or patched one event
// at a time, and tolerates the push channel redelivering or reordering
// events: every apply is idempotent, and ordering between distinct
// orders is resolved by created_at, never by arrival order.
//
// Safe for concurrent use; the kafka consumer writes while HTTP
// snapshot requests read.
type Cache struct {
	mu       sync.RWMutex
	sessions []domain.Session
	seen     map[int64]struct{}
}

func NewCache() *Cache {
	return &Cache{seen: make(map[int64]struct{})}
}

// Replace atomically swaps the whole cached sequence, used after a
// full refetch. The seen set is reseeded from the new sessions so an
// event for an order already in the snapshot is still dropped.
func (c *Cache) Replace(sessions []domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions = make([]domain.Session, len(sessions))
	c.seen = make(map[int64]struct{})
	for i := range sessions {
		c.sessions[i] = sessions[i].Clone()
		for _, o := range sessions[i].Orders {
			c.seen[o.ID] = struct{}{}
		}
	}
}

// ApplyNewOrder merges one order event into the cache. Duplicates are
// absorbed silently; a new session key is prepended newest-first.
// Reports whether the cache changed.
func (c *Cache) ApplyNewOrder(o domain.Order) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.seen[o.ID]; dup {
		return false
	}
	if o.SessionID == "" {
		o.SessionID = domain.SyntheticSessionID(o)
	}

	key := domain.SessionKey{SessionID: o.SessionID, OutletSlug: o.OutletSlug}
	idx := -1
	for i := range c.sessions {
		if c.sessions[i].SessionID == key.SessionID && c.sessions[i].OutletSlug == key.OutletSlug {
			idx = i
			break
		}
	}

	if idx == -1 {
		c.sessions = append([]domain.Session{domain.NewSession(o)}, c.sessions...)
	} else {
		if c.sessions[idx].ContainsOrder(o.ID) {
			c.seen[o.ID] = struct{}{}
			return false
		}
		c.sessions[idx].AddOrder(o)
	}
	c.seen[o.ID] = struct{}{}
	return true
}

// ApplyStatusChange patches one order's status where it sits and lifts
// the change to the session level only when the order is the session's
// representative. Unknown ids are a silent no-op: the session may
// postdate the last full refetch, and the next refetch reconciles.
func (c *Cache) ApplyStatusChange(orderID int64, status domain.Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for si := range c.sessions {
		s := &c.sessions[si]
		for oi := range s.Orders {
			if s.Orders[oi].ID != orderID {
				continue
			}
			if s.Orders[oi].Status == status {
				return false
			}
			s.Orders[oi].Status = status
			if s.LatestOrderID == orderID {
				s.Status = status
			}
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of the cached sessions, newest first.
func (c *Cache) Snapshot() []domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Session, len(c.sessions))
	for i := range c.sessions {
		out[i] = c.sessions[i].Clone()
	}
	return out
}

// Len reports how many sessions are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
