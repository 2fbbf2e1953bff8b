package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/bhojanhub/qr-ordering/internal/order/application"
	"github.com/bhojanhub/qr-ordering/internal/order/domain"
	"github.com/bhojanhub/qr-ordering/pkg/auth"
)

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	verifier *auth.Verifier
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, verifier *auth.Verifier) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		verifier: verifier,
		tracer:   otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/orders", h.listOrders)
	r.Post("/orders", h.placeOrder)
	r.Group(func(r chi.Router) {
		r.Use(h.verifier.RequireAdmin)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Patch("/sessions/close", h.closeSession)
	})
	return r
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	q := r.URL.Query()
	outlet := q.Get("outlet")
	if outlet == "" {
		outlet = q.Get("outlet_slug")
	}
	if outlet == "" || outlet == "all" {
		if c, err := r.Cookie("selectedOutlet"); err == nil {
			outlet = c.Value
		}
	}

	sessions, err := h.service.ListSessions(ctx, application.ListFilter{
		OutletSlug: outlet,
		Search:     q.Get("search"),
		Today:      q.Get("today") == "true",
		Admin:      h.verifier.IsAdmin(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"orders": sessions})
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	var req application.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	order, err := h.service.PlaceOrder(ctx, req, h.traceparent(ctx, r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Order saved successfully!",
		"order":   order,
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatus")
	defer span.End()

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid order id"})
		return
	}

	var body struct {
		Status domain.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "status is required"})
		return
	}

	order, err := h.service.SetStatus(ctx, orderID, body.Status, h.traceparent(ctx, r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Order status updated",
		"order":   order,
	})
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CloseSession")
	defer span.End()

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	closed, err := h.service.CloseSession(ctx, body.SessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Session closed",
		"updated_orders": closed,
	})
}

// traceparent propagates the caller's trace, or derives one from the
// handler span so the outbox event links back here.
func (h *Handler) traceparent(ctx context.Context, r *http.Request) string {
	if tp := r.Header.Get("traceparent"); tp != "" {
		return tp
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier["traceparent"]
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrValidation), errors.Is(err, application.ErrInvalidStatus):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
	case errors.Is(err, application.ErrSubscriptionInactive), errors.Is(err, application.ErrFreePlan):
		h.writeJSON(w, http.StatusForbidden, map[string]string{"message": err.Error()})
	case errors.Is(err, application.ErrNotFound), errors.Is(err, application.ErrInvalidOutlet):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"message": err.Error()})
	default:
		h.log.Error("request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal Server Error"})
	}
}
