package projection

import (
	"encoding/json"
	"fmt"

	"github.com/bhojanhub/qr-ordering/internal/order/domain"
)

// wireOrder tolerates carts delivered as arrays, JSON-encoded strings
// or garbage; the shadowed raw field funnels through ParseCart.
type wireOrder struct {
	domain.Order
	Cart json.RawMessage `json:"cart"`
}

func (w wireOrder) order() domain.Order {
	o := w.Order
	o.Cart = domain.ParseCart(w.Cart)
	return o
}

// wireSession is the session-shaped newOrder payload older emitters
// sent: a recomputed session wrapping its constituent orders.
type wireSession struct {
	SessionID    string      `json:"session_id"`
	OutletSlug   string      `json:"outlet_slug"`
	CustomerName string      `json:"customer_name"`
	TableNumber  string      `json:"table_number"`
	Orders       []wireOrder `json:"orders"`
}

// NormalizeNewOrder turns a newOrder payload into bare orders. The
// standardized contract is a single Order; session-shaped payloads and
// session lists are still unwrapped on receipt, with identity fields
// missing from nested orders filled in from their wrapper.
func NormalizeNewOrder(payload []byte) ([]domain.Order, error) {
	var w wireOrder
	if err := json.Unmarshal(payload, &w); err == nil && w.ID != 0 {
		return []domain.Order{w.order()}, nil
	}

	var s wireSession
	if err := json.Unmarshal(payload, &s); err == nil && len(s.Orders) > 0 {
		return unwrapSession(s), nil
	}

	var list []wireSession
	if err := json.Unmarshal(payload, &list); err == nil && len(list) > 0 {
		var orders []domain.Order
		for _, ws := range list {
			orders = append(orders, unwrapSession(ws)...)
		}
		if len(orders) > 0 {
			return orders, nil
		}
	}

	return nil, fmt.Errorf("unrecognized newOrder payload")
}

func unwrapSession(s wireSession) []domain.Order {
	orders := make([]domain.Order, 0, len(s.Orders))
	for _, w := range s.Orders {
		o := w.order()
		if o.SessionID == "" {
			o.SessionID = s.SessionID
		}
		if o.OutletSlug == "" {
			o.OutletSlug = s.OutletSlug
		}
		if o.CustomerName == "" {
			o.CustomerName = s.CustomerName
		}
		if o.TableNumber == "" {
			o.TableNumber = s.TableNumber
		}
		orders = append(orders, o)
	}
	return orders
}
