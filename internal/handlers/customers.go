package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/services"
)

const (
	defaultCustomerPageSize = 20
	maxCustomerPageSize     = 100
)

type upsertCustomerRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

type addFundsRequest struct {
	Amount int64 `json:"amount"`
}

// CustomerHandlers exposes customer account endpoints.
type CustomerHandlers struct {
	customers services.CustomerService
}

// NewCustomerHandlers constructs a new CustomerHandlers instance.
func NewCustomerHandlers(customers services.CustomerService) *CustomerHandlers {
	return &CustomerHandlers{customers: customers}
}

// Routes registers the /customers endpoints.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCustomer)
	r.Get("/", h.listCustomers)
	r.Get("/{customerID}", h.getCustomer)
	r.Put("/{customerID}", h.updateCustomer)
	r.Delete("/{customerID}", h.deleteCustomer)
	r.Post("/{customerID}/funds", h.addFunds)
}

func (h *CustomerHandlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertCustomerRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	customer, err := h.customers.CreateCustomer(ctx, services.UpsertCustomerCommand{
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.TrimSpace(req.Email),
		Phone:  strings.TrimSpace(req.Phone),
		Status: strings.TrimSpace(req.Status),
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, customerResponse{Customer: buildCustomerPayload(customer)})
}

func (h *CustomerHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, ok := parsePageSize(ctx, w, query.Get("page_size"), defaultCustomerPageSize, maxCustomerPageSize)
	if !ok {
		return
	}

	page, err := h.customers.ListCustomers(ctx, services.CustomerListFilter{
		Status: parseFilterValues(query["status"]),
		Search: strings.TrimSpace(query.Get("search")),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	items := make([]customerPayload, 0, len(page.Items))
	for _, customer := range page.Items {
		items = append(items, buildCustomerPayload(customer))
	}
	writeJSONResponse(w, http.StatusOK, customerListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	customerID := strings.TrimSpace(chi.URLParam(r, "customerID"))
	if customerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customer id is required", http.StatusBadRequest))
		return
	}

	customer, err := h.customers.GetCustomer(ctx, customerID)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, customerResponse{Customer: buildCustomerPayload(customer)})
}

func (h *CustomerHandlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	customerID := strings.TrimSpace(chi.URLParam(r, "customerID"))
	if customerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customer id is required", http.StatusBadRequest))
		return
	}

	var req upsertCustomerRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	customer, err := h.customers.UpdateCustomer(ctx, services.UpsertCustomerCommand{
		CustomerID: customerID,
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		Status:     strings.TrimSpace(req.Status),
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, customerResponse{Customer: buildCustomerPayload(customer)})
}

func (h *CustomerHandlers) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	customerID := strings.TrimSpace(chi.URLParam(r, "customerID"))
	if customerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customer id is required", http.StatusBadRequest))
		return
	}

	if err := h.customers.DeleteCustomer(ctx, customerID); err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CustomerHandlers) addFunds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	customerID := strings.TrimSpace(chi.URLParam(r, "customerID"))
	if customerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customer id is required", http.StatusBadRequest))
		return
	}

	var req addFundsRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	customer, err := h.customers.AddFunds(ctx, services.AddFundsCommand{
		CustomerID: customerID,
		Amount:     req.Amount,
		ActorID:    actorID(r),
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, customerResponse{Customer: buildCustomerPayload(customer)})
}

type customerListResponse struct {
	Items         []customerPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type customerResponse struct {
	Customer customerPayload `json:"customer"`
}

type customerPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Balance     int64  `json:"balance"`
	TotalOrders int64  `json:"total_orders"`
	TotalSpent  int64  `json:"total_spent"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildCustomerPayload(customer services.Customer) customerPayload {
	return customerPayload{
		ID:          strings.TrimSpace(customer.ID),
		Name:        strings.TrimSpace(customer.Name),
		Email:       strings.TrimSpace(customer.Email),
		Phone:       strings.TrimSpace(customer.Phone),
		Balance:     customer.Balance,
		TotalOrders: customer.TotalOrders,
		TotalSpent:  customer.TotalSpent,
		Status:      string(customer.Status),
		CreatedAt:   formatTime(customer.CreatedAt),
		UpdatedAt:   formatTime(customer.UpdatedAt),
	}
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerHasOrders):
		httpx.WriteError(ctx, w, httpx.NewError("customer_has_orders", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("customer_error", "failed to process customer request", http.StatusInternalServerError))
	}
}
