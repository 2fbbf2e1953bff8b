package application

import (
	"context"
	"time"

	"github.com/bhojanhub/qr-ordering/internal/order/domain"
)

// ListFilter scopes a poll-path fetch. Admin widens the view: expired
// sessions stay visible and the empty outlet means all outlets.
type ListFilter struct {
	OutletSlug string
	Search     string
	Today      bool
	Admin      bool
}

// SessionLookup is the write-path key a new order is matched against
// to join a live session.
type SessionLookup struct {
	OutletSlug   string
	CustomerName string
	TableNumber  string
	IsPackage    bool
}

// Subscription is the minimal billing view the order path checks.
type Subscription struct {
	Status      string
	Plan        string
	RenewalDate time.Time
}

// Active reports whether the subscription permits placing orders at
// the given instant.
func (s Subscription) Active(now time.Time) bool {
	return s.Status == "active" && !s.RenewalDate.Before(now)
}

type OrderRepository interface {
	// PendingOrders returns pending order rows in ascending
	// (created_at, id) order, scoped by the filter.
	PendingOrders(ctx context.Context, f ListFilter) ([]domain.Order, error)

	// ResolveSession returns the live session id matching the lookup,
	// refreshing its window, or registers newSessionID when none is
	// live.
	ResolveSession(ctx context.Context, key SessionLookup, newSessionID string) (string, error)

	// InsertWithOutbox inserts the order and its newOrder outbox event
	// in one transaction, assigning id, per-outlet order number and
	// timestamps. The returned order carries the assigned fields.
	InsertWithOutbox(ctx context.Context, o domain.Order, traceparent string) (domain.Order, error)

	// UpdateStatusWithOutbox persists the status change and its
	// orderStatusUpdate outbox event in one transaction. Returns
	// ErrNotFound when no such order exists.
	UpdateStatusWithOutbox(ctx context.Context, orderID int64, status domain.Status, traceparent string) (domain.Order, error)

	// CloseSession marks the session expired and its pending orders
	// closed, returning how many orders were closed.
	CloseSession(ctx context.Context, sessionID string) (int64, error)

	// OutletID resolves a slug, returning ErrNotFound for unknown
	// outlets.
	OutletID(ctx context.Context, slug string) (int64, error)

	Subscription(ctx context.Context, outletID int64) (Subscription, error)
}
