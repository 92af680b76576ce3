package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/services"
)

const (
	defaultPaymentPageSize = 20
	maxPaymentPageSize     = 100
)

// PaymentHandlers exposes read access to payment records.
type PaymentHandlers struct {
	orders services.OrderService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(orders services.OrderService) *PaymentHandlers {
	return &PaymentHandlers{orders: orders}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listPayments)
	r.Get("/{paymentID}", h.getPayment)
}

func (h *PaymentHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, ok := parsePageSize(ctx, w, query.Get("page_size"), defaultPaymentPageSize, maxPaymentPageSize)
	if !ok {
		return
	}

	page, err := h.orders.ListPayments(ctx, services.PaymentListFilter{
		OrderID: strings.TrimSpace(query.Get("order_id")),
		Status:  parseFilterValues(query["status"]),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]paymentPayload, 0, len(page.Items))
	for _, payment := range page.Items {
		items = append(items, buildPaymentPayload(payment))
	}
	writeJSONResponse(w, http.StatusOK, paymentListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	paymentID := strings.TrimSpace(chi.URLParam(r, "paymentID"))
	if paymentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment id is required", http.StatusBadRequest))
		return
	}

	payment, err := h.orders.GetPayment(ctx, paymentID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}

type paymentListResponse struct {
	Items         []paymentPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}
