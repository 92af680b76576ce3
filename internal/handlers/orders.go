package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 32 * 1024

	actorHeaderName = "X-Actor-Id"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusProcessing: {},
	domain.OrderStatusShipped:    {},
	domain.OrderStatusCompleted:  {},
	domain.OrderStatusCancelled:  {},
}

var validPaymentStatuses = map[domain.PaymentStatus]struct{}{
	domain.PaymentStatusPending:   {},
	domain.PaymentStatusCompleted: {},
	domain.PaymentStatusRefunded:  {},
	domain.PaymentStatusFailed:    {},
}

type createOrderRequest struct {
	CustomerID      string             `json:"customer_id"`
	ShippingAddress string             `json:"shipping_address"`
	DebitBalance    bool               `json:"debit_balance"`
	Lines           []orderLineRequest `json:"lines"`
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice *int64 `json:"unit_price,omitempty"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// OrderHandlers exposes the order transaction and lifecycle endpoints.
type OrderHandlers struct {
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises handler construction.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order creation with the provided middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	create := r.With()
	if h.idempotency != nil {
		create = r.With(h.idempotency)
	}
	create.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/status", h.transitionStatus)
	r.Post("/{orderID}/payment-status", h.setPaymentStatus)
	r.Post("/{orderID}/refund", h.refund)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	cmd := services.CreateOrderCommand{
		CustomerID:       strings.TrimSpace(req.CustomerID),
		ShippingAddress:  strings.TrimSpace(req.ShippingAddress),
		ActorID:          actorID(r),
		PriceFromCatalog: true,
		DebitBalance:     req.DebitBalance,
		Lines:            buildLineRequests(req.Lines),
	}

	confirmation, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderConfirmationResponse{
		Order:   buildOrderPayload(confirmation.Order),
		Payment: buildPaymentPayload(confirmation.Payment),
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	pageSize, ok := parsePageSize(ctx, w, query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if !ok {
		return
	}

	filter := services.OrderListFilter{
		CustomerID:    strings.TrimSpace(query.Get("customer_id")),
		Status:        parseFilterValues(query["status"]),
		PaymentStatus: parseFilterValues(query["payment_status"]),
		DateRange:     dateRange,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req orderStatusRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if _, ok := validOrderStatuses[status]; !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID: orderID,
		Target:  status,
		ActorID: actorID(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req orderStatusRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	status := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if _, ok := validPaymentStatuses[status]; !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid payment status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.SetPaymentStatus(ctx, services.PaymentStatusCommand{
		OrderID: orderID,
		Target:  status,
		ActorID: actorID(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req refundRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.Refund(ctx, services.RefundCommand{
		OrderID: orderID,
		ActorID: actorID(r),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderConfirmationResponse struct {
	Order   orderPayload   `json:"order"`
	Payment paymentPayload `json:"payment"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	Number          string             `json:"number"`
	CustomerID      string             `json:"customer_id"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"payment_status"`
	Subtotal        int64              `json:"subtotal"`
	Tax             int64              `json:"tax"`
	Total           int64              `json:"total"`
	TaxRateBps      int64              `json:"tax_rate_bps"`
	ShippingAddress string             `json:"shipping_address,omitempty"`
	Lines           []orderLinePayload `json:"lines"`
	PaymentID       *string            `json:"payment_id,omitempty"`
	CreatedBy       *string            `json:"created_by,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
}

type orderLinePayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

type paymentPayload struct {
	ID            string `json:"id"`
	Number        string `json:"number"`
	OrderID       string `json:"order_id"`
	CustomerID    string `json:"customer_id"`
	Amount        int64  `json:"amount"`
	Method        string `json:"method"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	PaidAt        string `json:"paid_at,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLinePayload{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal,
		})
	}

	return orderPayload{
		ID:              strings.TrimSpace(order.ID),
		Number:          strings.TrimSpace(order.Number),
		CustomerID:      strings.TrimSpace(order.CustomerID),
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		Total:           order.Total,
		TaxRateBps:      order.TaxRateBps,
		ShippingAddress: strings.TrimSpace(order.ShippingAddress),
		Lines:           lines,
		PaymentID:       cloneStringPointer(order.PaymentID),
		CreatedBy:       cloneStringPointer(order.CreatedBy),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:            strings.TrimSpace(payment.ID),
		Number:        strings.TrimSpace(payment.Number),
		OrderID:       strings.TrimSpace(payment.OrderID),
		CustomerID:    strings.TrimSpace(payment.CustomerID),
		Amount:        payment.Amount,
		Method:        string(payment.Method),
		Status:        string(payment.Status),
		TransactionID: strings.TrimSpace(payment.TransactionID),
		PaidAt:        formatTime(pointerTime(payment.PaidAt)),
		CreatedAt:     formatTime(payment.CreatedAt),
		UpdatedAt:     formatTime(payment.UpdatedAt),
	}
}

func buildLineRequests(lines []orderLineRequest) []services.OrderLineRequest {
	result := make([]services.OrderLineRequest, 0, len(lines))
	for _, line := range lines {
		req := services.OrderLineRequest{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		}
		if line.UnitPrice != nil {
			price := *line.UnitPrice
			req.UnitPrice = &price
		}
		result = append(result, req)
	}
	return result
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrInventoryInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientInventory):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_inventory", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInsufficientBalance):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_balance", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxOrderBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeaderName))
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
