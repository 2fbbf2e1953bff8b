package domain

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	// StatusClosed is applied to pending orders when an admin closes
	// their session. It never arrives through the status API.
	StatusClosed Status = "closed"
)

// Valid reports whether s is accepted by the status-update endpoint.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// SessionWindow bounds how long after its first order a dining session
// keeps absorbing new orders from the same customer/table.
const SessionWindow = 3 * time.Hour

// TakeawayTable is the table_number sentinel for package orders.
const TakeawayTable = "Takeaway"

type CartItem struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	IsPackage bool   `json:"is_package,omitempty"`
}

// Order is one discrete checkout submission. Rows are append-only
// except for Status.
type Order struct {
	ID                int64      `json:"id"`
	OutletID          int64      `json:"outlet_id,omitempty"`
	OutletSlug        string     `json:"outlet_slug"`
	SessionID         string     `json:"session_id"`
	CustomerName      string     `json:"customer_name"`
	TableNumber       string     `json:"table_number"`
	IsPackage         bool       `json:"is_package"`
	Cart              []CartItem `json:"cart"`
	TotalAmount       int64      `json:"total_amount"`
	Status            Status     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	OutletOrderNumber int        `json:"outlet_order_number"`
	CreatedAt         time.Time  `json:"created_at"`
}

// DisplayTable is the table label shown for an order: the takeaway
// sentinel for package orders, "N/A" when no table was recorded.
func DisplayTable(o Order) string {
	if o.IsPackage {
		return TakeawayTable
	}
	if o.TableNumber == "" {
		return "N/A"
	}
	return o.TableNumber
}

// ParseCart decodes a persisted cart payload. Rows written by older
// builds double-encode the cart, so a bare JSON string is unwrapped and
// parsed again. Anything unparseable degrades to an empty cart rather
// than failing the read.
func ParseCart(raw []byte) []CartItem {
	if len(raw) == 0 {
		return []CartItem{}
	}
	var items []CartItem
	if err := json.Unmarshal(raw, &items); err == nil {
		if items == nil {
			return []CartItem{}
		}
		return items
	}
	var wrapped string
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if err := json.Unmarshal([]byte(wrapped), &items); err == nil && items != nil {
			return items
		}
	}
	return []CartItem{}
}

// CartTotals sums price*quantity and quantity over items.
func CartTotals(items []CartItem) (total int64, quantity int) {
	for _, item := range items {
		total += item.Price * int64(item.Quantity)
		quantity += item.Quantity
	}
	return total, quantity
}
