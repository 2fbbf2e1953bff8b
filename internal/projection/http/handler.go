package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bhojanhub/qr-ordering/internal/order/domain"
	"github.com/bhojanhub/qr-ordering/internal/projection"
	"github.com/bhojanhub/qr-ordering/pkg/auth"
)

// RebuildFunc performs a full refetch: query the order store and
// re-aggregate. The gateway uses it on demand to reconcile whatever
// the push channel dropped.
type RebuildFunc func(ctx context.Context) ([]domain.Session, error)

const heartbeatInterval = 30 * time.Second

type Handler struct {
	log      *slog.Logger
	cache    *projection.Cache
	registry *projection.Registry
	rebuild  RebuildFunc
	verifier *auth.Verifier
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, cache *projection.Cache, registry *projection.Registry,
	rebuild RebuildFunc, verifier *auth.Verifier) *Handler {
	return &Handler{
		log:      log,
		cache:    cache,
		registry: registry,
		rebuild:  rebuild,
		verifier: verifier,
		tracer:   otel.Tracer("projection-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.verifier.RequireAdmin)
	r.Get("/sessions", h.sessions)
	r.Get("/events", h.events)
	return r
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SessionsSnapshot")
	defer span.End()

	if r.URL.Query().Get("refresh") == "true" {
		sessions, err := h.rebuild(ctx)
		if err != nil {
			// Serve the stale snapshot; the next refresh retries.
			h.log.Error("full refetch failed", "err", err)
		} else {
			h.cache.Replace(sessions)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"orders": h.cache.Snapshot()})
}

// events is the push stream. A connection that reaches this handler
// has presented an admin token; that token is the handshake, and the
// connection is registered for broadcasts until it goes away.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, ch := h.registry.RegisterAdmin(16)
	defer h.registry.Unregister(id)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Payload)
			flusher.Flush()
		}
	}
}
