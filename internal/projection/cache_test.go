package projection

import (
	"testing"
	"time"

	"github.com/bhojanhub/qr-ordering/internal/order/domain"
)

var t0 = time.Date(2025, 5, 14, 12, 0, 0, 0, time.UTC)

func pendingOrder(id int64, session, outlet string, created time.Time, cart ...domain.CartItem) domain.Order {
	total, _ := domain.CartTotals(cart)
	return domain.Order{
		ID:           id,
		OutletSlug:   outlet,
		SessionID:    session,
		CustomerName: "Amit",
		TableNumber:  "4",
		Cart:         cart,
		TotalAmount:  total,
		Status:       domain.StatusPending,
		CreatedAt:    created,
	}
}

func TestApplyNewOrderIsIdempotent(t *testing.T) {
	c := NewCache()
	o := pendingOrder(1, "s1", "kfc", t0, domain.CartItem{Name: "Pizza", Price: 250, Quantity: 1})

	if !c.ApplyNewOrder(o) {
		t.Fatal("first apply reported no change")
	}
	if c.ApplyNewOrder(o) {
		t.Fatal("second apply of the same order changed the cache")
	}

	snap := c.Snapshot()
	if len(snap) != 1 || len(snap[0].Orders) != 1 {
		t.Fatalf("cache = %d sessions / %d orders, want 1/1", len(snap), len(snap[0].Orders))
	}
	if snap[0].CombinedCart[0].Quantity != 1 {
		t.Errorf("duplicate delivery double-counted: %+v", snap[0].CombinedCart)
	}
}

func TestApplyNewOrderMergesIntoExistingSession(t *testing.T) {
	c := NewCache()
	c.ApplyNewOrder(pendingOrder(1, "s1", "kfc", t0, domain.CartItem{Name: "Pizza", Price: 250, Quantity: 1}))
	c.ApplyNewOrder(pendingOrder(2, "s1", "kfc", t0.Add(time.Minute), domain.CartItem{Name: "Pizza", Price: 250, Quantity: 2}))

	snap := c.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d sessions, want 1", len(snap))
	}
	s := snap[0]
	if len(s.CombinedCart) != 1 || s.CombinedCart[0].Quantity != 3 {
		t.Errorf("combined cart = %+v, want one Pizza x3", s.CombinedCart)
	}
	if s.LatestOrderID != 2 {
		t.Errorf("latest order id = %d, want 2", s.LatestOrderID)
	}
}

func TestApplyNewOrderPrependsNewSessions(t *testing.T) {
	c := NewCache()
	c.ApplyNewOrder(pendingOrder(1, "s1", "kfc", t0, domain.CartItem{Name: "x", Price: 10, Quantity: 1}))
	c.ApplyNewOrder(pendingOrder(2, "s2", "kfc", t0.Add(time.Minute), domain.CartItem{Name: "y", Price: 20, Quantity: 1}))

	snap := c.Snapshot()
	if snap[0].SessionID != "s2" {
		t.Errorf("newest session = %q, want s2 at the front", snap[0].SessionID)
	}
}

func TestApplyNewOrderOutletScoped(t *testing.T) {
	c := NewCache()
	c.ApplyNewOrder(pendingOrder(1, "shared", "kfc", t0, domain.CartItem{Name: "x", Price: 10, Quantity: 1}))
	c.ApplyNewOrder(pendingOrder(2, "shared", "dominos", t0.Add(time.Minute), domain.CartItem{Name: "x", Price: 10, Quantity: 1}))

	if got := c.Len(); got != 2 {
		t.Errorf("got %d sessions, want 2: same session id at another outlet must not merge", got)
	}
}

func TestApplyNewOrderStaleArrivalKeepsRepresentative(t *testing.T) {
	c := NewCache()
	newer := pendingOrder(2, "s1", "kfc", t0.Add(time.Minute), domain.CartItem{Name: "x", Price: 10, Quantity: 1})
	newer.CustomerName = "Raju"
	older := pendingOrder(1, "s1", "kfc", t0, domain.CartItem{Name: "y", Price: 20, Quantity: 1})
	older.CustomerName = "Raj"

	// Push delivery out of wall-clock order: the older order arrives
	// second and must not steal the representative role.
	c.ApplyNewOrder(newer)
	c.ApplyNewOrder(older)

	snap := c.Snapshot()
	s := snap[0]
	if s.CustomerName != "Raju" {
		t.Errorf("customer = %q, want Raju (larger created_at)", s.CustomerName)
	}
	if s.LatestOrderID != 2 {
		t.Errorf("latest order id = %d, want 2", s.LatestOrderID)
	}
	if len(s.Orders) != 2 {
		t.Errorf("orders = %d, want 2 (stale order still merged)", len(s.Orders))
	}
}

func TestApplyStatusChangeRepresentativeScope(t *testing.T) {
	c := NewCache()
	c.ApplyNewOrder(pendingOrder(1, "s1", "kfc", t0, domain.CartItem{Name: "x", Price: 10, Quantity: 1}))
	c.ApplyNewOrder(pendingOrder(2, "s1", "kfc", t0.Add(time.Minute), domain.CartItem{Name: "y", Price: 20, Quantity: 1}))

	// Non-representative order: only the nested status changes.
	if !c.ApplyStatusChange(1, domain.StatusCompleted) {
		t.Fatal("status change reported no-op")
	}
	s := c.Snapshot()[0]
	if s.Status != domain.StatusPending {
		t.Errorf("session status = %q, want pending (order 1 is not the representative)", s.Status)
	}
	if s.Orders[0].Status != domain.StatusCompleted {
		t.Errorf("nested order status = %q, want completed", s.Orders[0].Status)
	}

	// Representative order: the session status follows.
	c.ApplyStatusChange(2, domain.StatusCompleted)
	s = c.Snapshot()[0]
	if s.Status != domain.StatusCompleted {
		t.Errorf("session status = %q, want completed", s.Status)
	}
}

func TestApplyStatusChangeIdempotentAndUnknown(t *testing.T) {
	c := NewCache()
	c.ApplyNewOrder(pendingOrder(1, "s1", "kfc", t0, domain.CartItem{Name: "x", Price: 10, Quantity: 1}))

	if !c.ApplyStatusChange(1, domain.StatusCancelled) {
		t.Fatal("first change reported no-op")
	}
	if c.ApplyStatusChange(1, domain.StatusCancelled) {
		t.Error("repeated identical change reported a mutation")
	}
	if c.ApplyStatusChange(999, domain.StatusCompleted) {
		t.Error("unknown order id must be a silent no-op")
	}
}

func TestReplaceSeedsSeenSet(t *testing.T) {
	o := pendingOrder(1, "s1", "kfc", t0, domain.CartItem{Name: "Pizza", Price: 250, Quantity: 1})
	sessions := domain.GroupSessions([]domain.Order{o})

	c := NewCache()
	c.Replace(sessions)

	// The push channel redelivers an order the refetch already
	// included; it must be absorbed silently.
	if c.ApplyNewOrder(o) {
		t.Fatal("order present in replaced snapshot was applied again")
	}
	snap := c.Snapshot()
	if snap[0].CombinedCart[0].Quantity != 1 {
		t.Errorf("redelivery double-counted: %+v", snap[0].CombinedCart)
	}
}

func TestReplaceSwapsWholeSequence(t *testing.T) {
	c := NewCache()
	c.ApplyNewOrder(pendingOrder(1, "old", "kfc", t0, domain.CartItem{Name: "x", Price: 10, Quantity: 1}))

	fresh := domain.GroupSessions([]domain.Order{
		pendingOrder(5, "new", "kfc", t0.Add(time.Hour), domain.CartItem{Name: "y", Price: 20, Quantity: 1}),
	})
	c.Replace(fresh)

	snap := c.Snapshot()
	if len(snap) != 1 || snap[0].SessionID != "new" {
		t.Errorf("replace did not swap the sequence: %+v", snap)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	c := NewCache()
	c.ApplyNewOrder(pendingOrder(1, "s1", "kfc", t0, domain.CartItem{Name: "Pizza", Price: 250, Quantity: 1}))

	snap := c.Snapshot()
	c.ApplyNewOrder(pendingOrder(2, "s1", "kfc", t0.Add(time.Minute), domain.CartItem{Name: "Pizza", Price: 250, Quantity: 4}))

	if len(snap[0].Orders) != 1 {
		t.Errorf("snapshot mutated by later apply: %d orders", len(snap[0].Orders))
	}
	if snap[0].CombinedCart[0].Quantity != 1 {
		t.Errorf("snapshot cart mutated: %+v", snap[0].CombinedCart)
	}
}
