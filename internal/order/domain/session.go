package domain

import (
	"fmt"
	"time"
)

// SessionKey identifies a dining session. Sessions are outlet-scoped:
// the same session id at two outlets is two distinct sessions.
type SessionKey struct {
	SessionID  string
	OutletSlug string
}

// Session is the derived aggregate over all orders sharing a
// SessionKey. It is reconstructed from order rows, never persisted as
// its own row on the read path.
type Session struct {
	SessionID       string     `json:"session_id"`
	OutletSlug      string     `json:"outlet_slug"`
	CustomerName    string     `json:"customer_name"`
	TableNumber     string     `json:"table_number"`
	OrderNumber     int        `json:"order_number"`
	Orders          []Order    `json:"orders"`
	CombinedCart    []CartItem `json:"combined_cart"`
	CombinedTotal   int64      `json:"combined_total"`
	TotalQuantity   int        `json:"total_quantity"`
	HasDineIn       bool       `json:"has_dinein"`
	HasTakeaway     bool       `json:"has_takeaway"`
	LatestOrderID   int64      `json:"latest_order_id"`
	LatestOrderTime time.Time  `json:"latest_order_time"`
	Status          Status     `json:"status"`
}

// NewSession seeds a session aggregate from its first order.
func NewSession(o Order) Session {
	s := Session{
		SessionID:  o.SessionID,
		OutletSlug: o.OutletSlug,
		Orders:     []Order{o},
	}
	s.Recompute()
	return s
}

// AddOrder appends a constituent order and rebuilds the aggregate.
func (s *Session) AddOrder(o Order) {
	s.Orders = append(s.Orders, o)
	s.Recompute()
}

// ContainsOrder reports whether the order id is already a constituent.
func (s *Session) ContainsOrder(orderID int64) bool {
	for i := range s.Orders {
		if s.Orders[i].ID == orderID {
			return true
		}
	}
	return false
}

// Recompute rebuilds every derived field from the constituent orders.
// Derived state is always rebuilt from scratch rather than patched, so
// the same order reaching the aggregate through two delivery paths
// cannot drift the combined cart.
//
// The representative order is the strictly latest by created_at; on
// equal timestamps the earlier constituent keeps the role, which makes
// replay deterministic for any fixed constituent order.
func (s *Session) Recompute() {
	if len(s.Orders) == 0 {
		return
	}
	s.HasDineIn = false
	s.HasTakeaway = false

	all := make([]CartItem, 0, len(s.Orders))
	latest := 0
	for i := range s.Orders {
		o := &s.Orders[i]
		all = append(all, o.Cart...)
		if o.IsPackage {
			s.HasTakeaway = true
		} else {
			s.HasDineIn = true
		}
		if o.CreatedAt.After(s.Orders[latest].CreatedAt) {
			latest = i
		}
	}

	s.CombinedCart = MergeCartItems(all)
	s.CombinedTotal, s.TotalQuantity = CartTotals(s.CombinedCart)

	rep := s.Orders[latest]
	s.LatestOrderID = rep.ID
	s.LatestOrderTime = rep.CreatedAt
	s.Status = rep.Status
	s.CustomerName = rep.CustomerName
	s.TableNumber = DisplayTable(rep)
}

// Clone deep-copies the aggregate so snapshots stay stable while the
// original keeps absorbing orders.
func (s *Session) Clone() Session {
	out := *s
	out.Orders = make([]Order, len(s.Orders))
	copy(out.Orders, s.Orders)
	for i := range out.Orders {
		cart := make([]CartItem, len(out.Orders[i].Cart))
		copy(cart, out.Orders[i].Cart)
		out.Orders[i].Cart = cart
	}
	out.CombinedCart = make([]CartItem, len(s.CombinedCart))
	copy(out.CombinedCart, s.CombinedCart)
	return out
}

type cartKey struct {
	name      string
	isPackage bool
}

// MergeCartItems coalesces line items that share (name, is_package) by
// summing quantities. Items without a name are dropped. Input order is
// preserved for the first occurrence of each key.
func MergeCartItems(items []CartItem) []CartItem {
	merged := make([]CartItem, 0, len(items))
	index := make(map[cartKey]int, len(items))
	for _, item := range items {
		if item.Name == "" {
			continue
		}
		k := cartKey{item.Name, item.IsPackage}
		if i, ok := index[k]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[k] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// SyntheticSessionID quarantines an order that reached the store
// without a session id: it gets a single-use key derived from its own
// id so it can never corrupt another session's aggregate.
func SyntheticSessionID(o Order) string {
	return fmt.Sprintf("orphan-%d", o.ID)
}
