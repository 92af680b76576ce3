package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/services"
)

const (
	purchaseRateLimit  = 30
	purchaseRateWindow = time.Minute
)

type createPurchaseRequest struct {
	CustomerID      string             `json:"customer_id"`
	ShippingAddress string             `json:"shipping_address"`
	Lines           []orderLineRequest `json:"lines"`
}

// PurchaseHandlers exposes the back-office purchase flow: the operator prices
// each line and the payment settles immediately.
type PurchaseHandlers struct {
	orders  services.OrderService
	limiter rateLimiter
}

// PurchaseHandlersOption customises the purchase handlers.
type PurchaseHandlersOption func(*PurchaseHandlers)

// WithPurchaseRateLimit overrides the per-actor purchase rate limit. A
// non-positive value disables rate limiting.
func WithPurchaseRateLimit(perMinute int) PurchaseHandlersOption {
	return func(h *PurchaseHandlers) {
		h.limiter = newSimpleRateLimiter(perMinute, purchaseRateWindow, nil)
	}
}

// NewPurchaseHandlers constructs a new PurchaseHandlers instance.
func NewPurchaseHandlers(orders services.OrderService, opts ...PurchaseHandlersOption) *PurchaseHandlers {
	h := &PurchaseHandlers{
		orders:  orders,
		limiter: newSimpleRateLimiter(purchaseRateLimit, purchaseRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /purchases endpoints.
func (h *PurchaseHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createPurchase)
}

func (h *PurchaseHandlers) createPurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor := actorID(r)
	if h.limiter != nil && !h.limiter.Allow(actor) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many purchase requests", http.StatusTooManyRequests))
		return
	}

	var req createPurchaseRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	lines := buildLineRequests(req.Lines)
	for _, line := range lines {
		if line.UnitPrice == nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unit_price is required on every purchase line", http.StatusBadRequest))
			return
		}
	}

	confirmation, err := h.orders.Create(ctx, services.CreateOrderCommand{
		CustomerID:       strings.TrimSpace(req.CustomerID),
		ShippingAddress:  strings.TrimSpace(req.ShippingAddress),
		ActorID:          actor,
		ImmediatePayment: true,
		Lines:            lines,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderConfirmationResponse{
		Order:   buildOrderPayload(confirmation.Order),
		Payment: buildPaymentPayload(confirmation.Payment),
	})
}
