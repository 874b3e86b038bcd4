package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/internal/reservation"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Reader serves the order read endpoints from the journal.
type Reader interface {
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
}

type Handler struct {
	log         *slog.Logger
	coordinator *reservation.Coordinator
	reader      Reader
	tracer      trace.Tracer
}

func NewHandler(log *slog.Logger, coordinator *reservation.Coordinator, reader Reader) *Handler {
	return &Handler{
		log:         log,
		coordinator: coordinator,
		reader:      reader,
		tracer:      otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	return r
}

type createOrderReq struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	// Generated keys are echoed back so a caller that lost the response
	// can still retry idempotently.
	key := r.Header.Get(idempotencyKeyHeader)
	if key == "" {
		key = uuid.NewString()
	}
	w.Header().Set(idempotencyKeyHeader, key)

	rec, err := h.coordinator.PlaceOrder(ctx, req.UserID, req.ProductID, req.Quantity, key)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, rec)

	case errors.Is(err, reservation.ErrInsufficientStock):
		// The rejection is itself a journal entry; return it with the
		// business-rejection status.
		writeJSON(w, http.StatusConflict, rec)

	case errors.Is(err, reservation.ErrProductNotFound),
		errors.Is(err, reservation.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)

	case errors.Is(err, reservation.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, reservation.ErrContention),
		errors.Is(err, reservation.ErrRequestInFlight):
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)

	default:
		h.log.Error("place order failed", "idempotency_key", key, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	orders, err := h.reader.List(ctx)
	if err != nil {
		h.log.Error("list orders failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.reader.Get(ctx, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		h.log.Error("get order failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
