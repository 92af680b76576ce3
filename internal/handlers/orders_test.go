package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/services"
)

type stubOrderService struct {
	createFn           func(context.Context, services.CreateOrderCommand) (services.OrderConfirmation, error)
	getOrderFn         func(context.Context, string) (services.Order, error)
	listOrdersFn       func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFn       func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error)
	setPaymentStatusFn func(context.Context, services.PaymentStatusCommand) (services.Order, error)
	refundFn           func(context.Context, services.RefundCommand) (services.Order, error)
	getPaymentFn       func(context.Context, string) (services.Payment, error)
	listPaymentsFn     func(context.Context, services.PaymentListFilter) (domain.CursorPage[services.Payment], error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderConfirmation, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.OrderConfirmation{}, fmt.Errorf("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getOrderFn != nil {
		return s.getOrderFn(ctx, orderID)
	}
	return services.Order{}, fmt.Errorf("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listOrdersFn != nil {
		return s.listOrdersFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, fmt.Errorf("not implemented")
}

func (s *stubOrderService) SetPaymentStatus(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error) {
	if s.setPaymentStatusFn != nil {
		return s.setPaymentStatusFn(ctx, cmd)
	}
	return services.Order{}, fmt.Errorf("not implemented")
}

func (s *stubOrderService) Refund(ctx context.Context, cmd services.RefundCommand) (services.Order, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.Order{}, fmt.Errorf("not implemented")
}

func (s *stubOrderService) GetPayment(ctx context.Context, paymentID string) (services.Payment, error) {
	if s.getPaymentFn != nil {
		return s.getPaymentFn(ctx, paymentID)
	}
	return services.Payment{}, fmt.Errorf("not implemented")
}

func (s *stubOrderService) ListPayments(ctx context.Context, filter services.PaymentListFilter) (domain.CursorPage[services.Payment], error) {
	if s.listPaymentsFn != nil {
		return s.listPaymentsFn(ctx, filter)
	}
	return domain.CursorPage[services.Payment]{}, nil
}

var _ services.OrderService = (*stubOrderService)(nil)

func newOrderRouter(svc services.OrderService, opts ...OrderHandlersOption) chi.Router {
	handlers := NewOrderHandlers(svc, opts...)
	r := chi.NewRouter()
	r.Route("/orders", handlers.Routes)
	return r
}

func sampleOrder() services.Order {
	created := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	paymentID := "pay_1"
	return services.Order{
		ID:            "ord_1",
		Number:        "ORD-001",
		CustomerID:    "cus_1",
		Status:        domain.OrderStatusProcessing,
		PaymentStatus: domain.PaymentStatusPending,
		Subtotal:      300,
		Tax:           54,
		Total:         354,
		TaxRateBps:    1800,
		Lines: []services.OrderLine{
			{ProductID: "inv_1", ProductName: "Blue Pen", Quantity: 2, UnitPrice: 150, Subtotal: 300},
		},
		PaymentID: &paymentID,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func samplePayment() services.Payment {
	created := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	return services.Payment{
		ID:            "pay_1",
		Number:        "PAY-001",
		OrderID:       "ord_1",
		CustomerID:    "cus_1",
		Amount:        354,
		Method:        domain.PaymentMethodUPI,
		Status:        domain.PaymentStatusPending,
		TransactionID: "TXN-TEST",
		CreatedAt:     created,
	}
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.OrderConfirmation, error) {
			captured = cmd
			return services.OrderConfirmation{Order: sampleOrder(), Payment: samplePayment()}, nil
		},
	}
	router := newOrderRouter(svc)

	body := `{"customer_id":"cus_1","shipping_address":"12 Hill Road","lines":[{"product_id":"inv_1","quantity":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(body))
	req.Header.Set(actorHeaderName, "admin-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if !captured.PriceFromCatalog {
		t.Fatalf("order creation must price from the catalogue")
	}
	if captured.ActorID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %q", captured.ActorID)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", captured.Lines)
	}

	var resp struct {
		Order struct {
			Number   string `json:"number"`
			Subtotal int64  `json:"subtotal"`
			Tax      int64  `json:"tax"`
			Total    int64  `json:"total"`
		} `json:"order"`
		Payment struct {
			Number string `json:"number"`
			Status string `json:"status"`
		} `json:"payment"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Order.Number != "ORD-001" {
		t.Fatalf("unexpected order number %s", resp.Order.Number)
	}
	if resp.Order.Total != resp.Order.Subtotal+resp.Order.Tax {
		t.Fatalf("total must equal subtotal plus tax: %+v", resp.Order)
	}
	if resp.Payment.Number != "PAY-001" || resp.Payment.Status != "pending" {
		t.Fatalf("unexpected payment %+v", resp.Payment)
	}
}

func TestOrderHandlersCreateOrderMapsErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "insufficient balance", err: services.ErrInsufficientBalance, wantStatus: http.StatusConflict, wantCode: "insufficient_balance"},
		{name: "insufficient inventory", err: services.ErrInsufficientInventory, wantStatus: http.StatusConflict, wantCode: "insufficient_inventory"},
		{name: "product not found", err: services.ErrProductNotFound, wantStatus: http.StatusNotFound, wantCode: "product_not_found"},
		{name: "customer not found", err: services.ErrCustomerNotFound, wantStatus: http.StatusNotFound, wantCode: "customer_not_found"},
		{name: "invalid input", err: services.ErrOrderInvalidInput, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "transaction failed", err: services.ErrOrderTransactionFailed, wantStatus: http.StatusInternalServerError, wantCode: "order_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (services.OrderConfirmation, error) {
					return services.OrderConfirmation{}, tc.err
				},
			}
			router := newOrderRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{"customer_id":"cus_1","lines":[{"product_id":"inv_1","quantity":1}]}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("parse response: %v", err)
			}
			if body["error"] != tc.wantCode {
				t.Fatalf("expected error %s, got %v", tc.wantCode, body["error"])
			}
		})
	}
}

func TestOrderHandlersCreateOrderRejectsEmptyBody(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(""))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	svc := &stubOrderService{
		getOrderFn: func(_ context.Context, orderID string) (services.Order, error) {
			if orderID != "ORD-001" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/ORD-001", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders/ORD-999", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersTransitionStatus(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	svc := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = cmd.Target
			return order, nil
		},
	}
	router := newOrderRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/status", strings.NewReader(`{"status":"shipped"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Target != domain.OrderStatusShipped {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestOrderHandlersTransitionStatusRejectsUnknown(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/status", strings.NewReader(`{"status":"teleported"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersTransitionStatusInvalidState(t *testing.T) {
	svc := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	router := newOrderRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/status", strings.NewReader(`{"status":"completed"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["error"] != "order_invalid_state" {
		t.Fatalf("expected order_invalid_state, got %v", body["error"])
	}
}

func TestOrderHandlersSetPaymentStatus(t *testing.T) {
	var captured services.PaymentStatusCommand
	svc := &stubOrderService{
		setPaymentStatusFn: func(_ context.Context, cmd services.PaymentStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.PaymentStatus = cmd.Target
			return order, nil
		},
	}
	router := newOrderRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/payment-status", strings.NewReader(`{"status":"completed"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Target != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestOrderHandlersRefund(t *testing.T) {
	var captured services.RefundCommand
	svc := &stubOrderService{
		refundFn: func(_ context.Context, cmd services.RefundCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.PaymentStatus = domain.PaymentStatusRefunded
			return order, nil
		},
	}
	router := newOrderRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/refund", strings.NewReader(`{"reason":"damaged in transit"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Reason != "damaged in transit" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp struct {
		Order struct {
			PaymentStatus string `json:"payment_status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Order.PaymentStatus != "refunded" {
		t.Fatalf("unexpected payment status %s", resp.Order.PaymentStatus)
	}
}

func TestOrderHandlersRefundAllowsEmptyBody(t *testing.T) {
	svc := &stubOrderService{
		refundFn: func(_ context.Context, cmd services.RefundCommand) (services.Order, error) {
			if cmd.Reason != "" {
				return services.Order{}, fmt.Errorf("unexpected reason %q", cmd.Reason)
			}
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/refund", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersListOrdersFilters(t *testing.T) {
	var captured services.OrderListFilter
	svc := &stubOrderService{
		listOrdersFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder()}, NextPageToken: "next"}, nil
		},
	}
	router := newOrderRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/?customer_id=cus_1&status=processing,shipped&page_size=5", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.CustomerID != "cus_1" {
		t.Fatalf("unexpected customer filter %q", captured.CustomerID)
	}
	if len(captured.Status) != 2 || captured.Status[0] != "processing" {
		t.Fatalf("unexpected status filter %+v", captured.Status)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("unexpected page size %d", captured.Pagination.PageSize)
	}

	var resp struct {
		Items         []json.RawMessage `json:"items"`
		NextPageToken string            `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.NextPageToken != "next" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlersCreateOrderUsesIdempotencyMiddleware(t *testing.T) {
	touched := false
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			touched = true
			next.ServeHTTP(w, r)
		})
	}
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.OrderConfirmation, error) {
			return services.OrderConfirmation{Order: sampleOrder(), Payment: samplePayment()}, nil
		},
		getOrderFn: func(context.Context, string) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(svc, WithOrderIdempotency(mw))

	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{"customer_id":"cus_1","lines":[{"product_id":"inv_1","quantity":1}]}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if !touched {
		t.Fatalf("idempotency middleware must wrap order creation")
	}

	touched = false
	req = httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if touched {
		t.Fatalf("idempotency middleware must not wrap reads")
	}
}
