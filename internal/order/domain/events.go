package domain

// Event types carried in the push channel's event_type header. A
// newOrder event carries the single created Order; subscribers merge
// it themselves rather than receiving a recomputed session list.
const (
	EventNewOrder          = "newOrder"
	EventOrderStatusUpdate = "orderStatusUpdate"
)

// StatusUpdate is the orderStatusUpdate payload.
type StatusUpdate struct {
	OrderID   int64  `json:"order_id"`
	NewStatus Status `json:"new_status"`
}
