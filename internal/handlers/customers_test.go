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

type stubCustomerHandlerService struct {
	createCustomerFn func(context.Context, services.UpsertCustomerCommand) (services.Customer, error)
	getCustomerFn    func(context.Context, string) (services.Customer, error)
	listCustomersFn  func(context.Context, services.CustomerListFilter) (domain.CursorPage[services.Customer], error)
	updateCustomerFn func(context.Context, services.UpsertCustomerCommand) (services.Customer, error)
	deleteCustomerFn func(context.Context, string) error
	addFundsFn       func(context.Context, services.AddFundsCommand) (services.Customer, error)
}

func (s *stubCustomerHandlerService) CreateCustomer(ctx context.Context, cmd services.UpsertCustomerCommand) (services.Customer, error) {
	if s.createCustomerFn != nil {
		return s.createCustomerFn(ctx, cmd)
	}
	return services.Customer{}, fmt.Errorf("not implemented")
}

func (s *stubCustomerHandlerService) GetCustomer(ctx context.Context, customerID string) (services.Customer, error) {
	if s.getCustomerFn != nil {
		return s.getCustomerFn(ctx, customerID)
	}
	return services.Customer{}, fmt.Errorf("not implemented")
}

func (s *stubCustomerHandlerService) ListCustomers(ctx context.Context, filter services.CustomerListFilter) (domain.CursorPage[services.Customer], error) {
	if s.listCustomersFn != nil {
		return s.listCustomersFn(ctx, filter)
	}
	return domain.CursorPage[services.Customer]{}, nil
}

func (s *stubCustomerHandlerService) UpdateCustomer(ctx context.Context, cmd services.UpsertCustomerCommand) (services.Customer, error) {
	if s.updateCustomerFn != nil {
		return s.updateCustomerFn(ctx, cmd)
	}
	return services.Customer{}, fmt.Errorf("not implemented")
}

func (s *stubCustomerHandlerService) DeleteCustomer(ctx context.Context, customerID string) error {
	if s.deleteCustomerFn != nil {
		return s.deleteCustomerFn(ctx, customerID)
	}
	return fmt.Errorf("not implemented")
}

func (s *stubCustomerHandlerService) AddFunds(ctx context.Context, cmd services.AddFundsCommand) (services.Customer, error) {
	if s.addFundsFn != nil {
		return s.addFundsFn(ctx, cmd)
	}
	return services.Customer{}, fmt.Errorf("not implemented")
}

var _ services.CustomerService = (*stubCustomerHandlerService)(nil)

func newCustomerRouter(svc services.CustomerService) chi.Router {
	handlers := NewCustomerHandlers(svc)
	r := chi.NewRouter()
	r.Route("/customers", handlers.Routes)
	return r
}

func sampleCustomer() services.Customer {
	created := time.Date(2025, 3, 20, 11, 0, 0, 0, time.UTC)
	return services.Customer{
		ID:          "cus_1",
		Name:        "Asha Rao",
		Email:       "asha@example.com",
		Phone:       "+91-90000-00000",
		Balance:     1200,
		TotalOrders: 3,
		TotalSpent:  900,
		Status:      domain.CustomerStatusActive,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestCustomerHandlersCreateCustomer(t *testing.T) {
	var captured services.UpsertCustomerCommand
	svc := &stubCustomerHandlerService{
		createCustomerFn: func(_ context.Context, cmd services.UpsertCustomerCommand) (services.Customer, error) {
			captured = cmd
			return sampleCustomer(), nil
		},
	}
	router := newCustomerRouter(svc)

	body := `{"name":"Asha Rao","email":"asha@example.com","phone":"+91-90000-00000"}`
	req := httptest.NewRequest(http.MethodPost, "/customers/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Name != "Asha Rao" || captured.Email != "asha@example.com" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp struct {
		Customer struct {
			ID      string `json:"id"`
			Balance int64  `json:"balance"`
			Status  string `json:"status"`
		} `json:"customer"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Customer.ID != "cus_1" || resp.Customer.Status != "active" {
		t.Fatalf("unexpected customer %+v", resp.Customer)
	}
}

func TestCustomerHandlersCreateCustomerInvalid(t *testing.T) {
	svc := &stubCustomerHandlerService{
		createCustomerFn: func(context.Context, services.UpsertCustomerCommand) (services.Customer, error) {
			return services.Customer{}, services.ErrCustomerInvalidInput
		},
	}
	router := newCustomerRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/customers/", strings.NewReader(`{"name":""}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCustomerHandlersGetCustomerNotFound(t *testing.T) {
	svc := &stubCustomerHandlerService{
		getCustomerFn: func(context.Context, string) (services.Customer, error) {
			return services.Customer{}, services.ErrCustomerNotFound
		},
	}
	router := newCustomerRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/customers/cus_404", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["error"] != "customer_not_found" {
		t.Fatalf("expected customer_not_found, got %v", body["error"])
	}
}

func TestCustomerHandlersListCustomersFilters(t *testing.T) {
	var captured services.CustomerListFilter
	svc := &stubCustomerHandlerService{
		listCustomersFn: func(_ context.Context, filter services.CustomerListFilter) (domain.CursorPage[services.Customer], error) {
			captured = filter
			return domain.CursorPage[services.Customer]{Items: []services.Customer{sampleCustomer()}, NextPageToken: "next"}, nil
		},
	}
	router := newCustomerRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/customers/?status=active&search=asha&page_size=15", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(captured.Status) != 1 || captured.Status[0] != "active" {
		t.Fatalf("unexpected status filter %+v", captured.Status)
	}
	if captured.Search != "asha" || captured.Pagination.PageSize != 15 {
		t.Fatalf("unexpected filter %+v", captured)
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

func TestCustomerHandlersDeleteCustomerWithOrders(t *testing.T) {
	svc := &stubCustomerHandlerService{
		deleteCustomerFn: func(context.Context, string) error {
			return services.ErrCustomerHasOrders
		},
	}
	router := newCustomerRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/customers/cus_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["error"] != "customer_has_orders" {
		t.Fatalf("expected customer_has_orders, got %v", body["error"])
	}
}

func TestCustomerHandlersDeleteCustomer(t *testing.T) {
	svc := &stubCustomerHandlerService{
		deleteCustomerFn: func(context.Context, string) error { return nil },
	}
	router := newCustomerRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/customers/cus_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestCustomerHandlersAddFunds(t *testing.T) {
	var captured services.AddFundsCommand
	svc := &stubCustomerHandlerService{
		addFundsFn: func(_ context.Context, cmd services.AddFundsCommand) (services.Customer, error) {
			captured = cmd
			customer := sampleCustomer()
			customer.Balance += cmd.Amount
			return customer, nil
		},
	}
	router := newCustomerRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/customers/cus_1/funds", strings.NewReader(`{"amount":500}`))
	req.Header.Set(actorHeaderName, "admin-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CustomerID != "cus_1" || captured.Amount != 500 {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.ActorID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %q", captured.ActorID)
	}

	var resp struct {
		Customer struct {
			Balance int64 `json:"balance"`
		} `json:"customer"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Customer.Balance != 1700 {
		t.Fatalf("unexpected balance %d", resp.Customer.Balance)
	}
}
