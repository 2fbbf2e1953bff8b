package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bhojanhub/qr-ordering/internal/order/domain"
)

type Service struct {
	log  *slog.Logger
	repo OrderRepository
}

func NewService(log *slog.Logger, repo OrderRepository) *Service {
	return &Service{log: log, repo: repo}
}

// ListSessions is the poll path: fetch the pending orders in scope and
// group them into session aggregates. Aggregation never hard-fails the
// admin view; on a query error the caller gets an empty list and the
// next poll retries.
func (s *Service) ListSessions(ctx context.Context, f ListFilter) ([]domain.Session, error) {
	if !f.Admin && f.OutletSlug != "" && f.OutletSlug != "all" {
		outletID, err := s.repo.OutletID(ctx, f.OutletSlug)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrInvalidOutlet
			}
			return nil, err
		}
		sub, err := s.repo.Subscription(ctx, outletID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrSubscriptionInactive
			}
			return nil, err
		}
		if !sub.Active(time.Now()) {
			return nil, ErrSubscriptionInactive
		}
	}

	orders, err := s.repo.PendingOrders(ctx, f)
	if err != nil {
		s.log.Error("pending orders query failed", "outlet", f.OutletSlug, "err", err)
		return []domain.Session{}, nil
	}
	return domain.GroupSessions(orders), nil
}

type PlaceOrderRequest struct {
	CustomerName string            `json:"customerName"`
	TableNumber  string            `json:"tableNumber"`
	IsPackage    bool              `json:"isPackage"`
	Cart         []domain.CartItem `json:"cart"`
	TotalAmount  int64             `json:"totalAmount"`
	OutletSlug   string            `json:"outletSlug"`
	Notes        string            `json:"notes"`
}

func (r PlaceOrderRequest) validate() error {
	if r.OutletSlug == "" {
		return validationf("outletSlug is required")
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return validationf("customerName is required")
	}
	if r.TableNumber == "" && !r.IsPackage {
		return validationf("tableNumber is required for dine-in orders")
	}
	if len(r.Cart) == 0 {
		return validationf("cart must not be empty")
	}
	for _, item := range r.Cart {
		if item.Name == "" {
			return validationf("cart item without a name")
		}
		if item.Quantity < 1 {
			return validationf("cart item %q has no quantity", item.Name)
		}
		if item.Price < 0 {
			return validationf("cart item %q has a negative price", item.Name)
		}
	}
	if r.TotalAmount <= 0 {
		return validationf("totalAmount is required")
	}
	return nil
}

// PlaceOrder validates the checkout, gates it on an active paid
// subscription, joins or opens the customer's dining session and
// inserts the order together with its newOrder push event.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest, traceparent string) (domain.Order, error) {
	if err := req.validate(); err != nil {
		return domain.Order{}, err
	}

	outletID, err := s.repo.OutletID(ctx, req.OutletSlug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Order{}, ErrInvalidOutlet
		}
		return domain.Order{}, err
	}

	sub, err := s.repo.Subscription(ctx, outletID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Order{}, ErrSubscriptionInactive
		}
		return domain.Order{}, err
	}
	if !sub.Active(time.Now()) {
		return domain.Order{}, ErrSubscriptionInactive
	}
	if sub.Plan == "free" {
		return domain.Order{}, ErrFreePlan
	}

	table := req.TableNumber
	if req.IsPackage {
		table = domain.TakeawayTable
	}

	sessionID, err := s.repo.ResolveSession(ctx, SessionLookup{
		OutletSlug:   req.OutletSlug,
		CustomerName: req.CustomerName,
		TableNumber:  table,
		IsPackage:    req.IsPackage,
	}, uuid.NewString())
	if err != nil {
		return domain.Order{}, err
	}

	o := domain.Order{
		OutletID:     outletID,
		OutletSlug:   req.OutletSlug,
		SessionID:    sessionID,
		CustomerName: req.CustomerName,
		TableNumber:  table,
		IsPackage:    req.IsPackage,
		Cart:         normalizeCart(req.Cart),
		TotalAmount:  req.TotalAmount,
		Status:       domain.StatusPending,
		Notes:        req.Notes,
	}

	inserted, err := s.repo.InsertWithOutbox(ctx, o, traceparent)
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order placed",
		"order_id", inserted.ID,
		"outlet", inserted.OutletSlug,
		"session_id", inserted.SessionID,
		"order_number", inserted.OutletOrderNumber)
	return inserted, nil
}

// SetStatus is the status-update propagator: validate the enum,
// persist, and hand back the refreshed order view. The matching
// orderStatusUpdate event is enqueued in the same transaction as the
// update, so observers converge on the same state the caller sees.
func (s *Service) SetStatus(ctx context.Context, orderID int64, status domain.Status, traceparent string) (domain.Order, error) {
	st := domain.Status(strings.ToLower(strings.TrimSpace(string(status))))
	if !st.Valid() {
		return domain.Order{}, ErrInvalidStatus
	}

	o, err := s.repo.UpdateStatusWithOutbox(ctx, orderID, st, traceparent)
	if err != nil {
		return domain.Order{}, err
	}

	// Derived view: the stored total may predate a cart correction, so
	// recompute it from the parsed cart when the cart prices out.
	if total, _ := domain.CartTotals(o.Cart); total > 0 {
		o.TotalAmount = total
	}
	s.log.Info("order status updated", "order_id", o.ID, "status", o.Status)
	return o, nil
}

// CloseSession marks a session expired and closes its pending orders.
func (s *Service) CloseSession(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, validationf("session id is required")
	}
	closed, err := s.repo.CloseSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	s.log.Info("session closed", "session_id", sessionID, "orders_closed", closed)
	return closed, nil
}

func normalizeCart(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		out = append(out, item)
	}
	return out
}
