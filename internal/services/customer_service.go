package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

const (
	eventCustomerCreated     = "customer.created"
	eventCustomerUpdated     = "customer.updated"
	eventCustomerDeleted     = "customer.deleted"
	eventCustomerFundsCredit = "customer.funds.credited"

	customerIDPrefix = "cus_"
)

var (
	// ErrCustomerInvalidInput signals the caller provided invalid customer data.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates the customer could not be located.
	ErrCustomerNotFound = errors.New("customer: not found")
	// ErrCustomerHasOrders blocks deletion of customers with recorded orders.
	ErrCustomerHasOrders = errors.New("customer: has existing orders")

	customerPhonePattern = regexp.MustCompile(`^[0-9+()\-\s]{6,20}$`)
)

var customerStatuses = map[string]bool{
	string(domain.CustomerStatusActive):   true,
	string(domain.CustomerStatusInactive): true,
}

// CustomerEventPublisher publishes customer lifecycle events for downstream consumers.
type CustomerEventPublisher interface {
	PublishCustomerEvent(ctx context.Context, event CustomerEvent) error
}

// CustomerEvent captures metadata for emitted customer events.
type CustomerEvent struct {
	Type       string
	CustomerID string
	ActorID    string
	Amount     Money
	Balance    Money
	OccurredAt time.Time
}

// CustomerServiceDeps bundles collaborators required to construct the customer service.
type CustomerServiceDeps struct {
	Customers   repositories.CustomerRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      CustomerEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type customerService struct {
	customers repositories.CustomerRepository
	orders    repositories.OrderRepository
	clock     func() time.Time
	newID     func() string
	events    CustomerEventPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewCustomerService wires dependencies into a concrete CustomerService implementation.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("customer service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &customerService{
		customers: deps.Customers,
		orders:    deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *customerService) CreateCustomer(ctx context.Context, cmd UpsertCustomerCommand) (Customer, error) {
	if err := validateCustomerInput(cmd); err != nil {
		return Customer{}, err
	}

	now := s.now()
	status := strings.TrimSpace(cmd.Status)
	if status == "" {
		status = string(domain.CustomerStatusActive)
	}

	customer := domain.Customer{
		ID:        ensureCustomerID(s.newID()),
		Name:      strings.TrimSpace(cmd.Name),
		Email:     strings.ToLower(strings.TrimSpace(cmd.Email)),
		Phone:     strings.TrimSpace(cmd.Phone),
		Status:    domain.CustomerStatus(status),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.customers.Insert(ctx, customer); err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, CustomerEvent{
		Type:       eventCustomerCreated,
		CustomerID: customer.ID,
		OccurredAt: now,
	})

	return customer, nil
}

func (s *customerService) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	customer, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}
	return customer, nil
}

func (s *customerService) ListCustomers(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[Customer], error) {
	page, err := s.customers.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Customer]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, cmd UpsertCustomerCommand) (Customer, error) {
	id := strings.TrimSpace(cmd.CustomerID)
	if id == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	if err := validateCustomerInput(cmd); err != nil {
		return Customer{}, err
	}

	existing, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}

	now := s.now()
	updated := existing
	updated.Name = strings.TrimSpace(cmd.Name)
	updated.Email = strings.ToLower(strings.TrimSpace(cmd.Email))
	updated.Phone = strings.TrimSpace(cmd.Phone)
	if status := strings.TrimSpace(cmd.Status); status != "" {
		updated.Status = domain.CustomerStatus(status)
	}
	updated.UpdatedAt = now

	if err := s.customers.Update(ctx, updated); err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, CustomerEvent{
		Type:       eventCustomerUpdated,
		CustomerID: updated.ID,
		OccurredAt: now,
	})

	return updated, nil
}

// DeleteCustomer removes a customer record. Customers with any order history
// are kept so sales records stay attributable.
func (s *customerService) DeleteCustomer(ctx context.Context, customerID string) error {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}

	if _, err := s.customers.FindByID(ctx, id); err != nil {
		return s.mapRepositoryError(err)
	}

	count, err := s.orders.CountByCustomer(ctx, id)
	if err != nil {
		return fmt.Errorf("customer: count orders: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %d order(s) on record", ErrCustomerHasOrders, count)
	}

	if err := s.customers.Delete(ctx, id); err != nil {
		return s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, CustomerEvent{
		Type:       eventCustomerDeleted,
		CustomerID: id,
		OccurredAt: s.now(),
	})

	return nil
}

func (s *customerService) AddFunds(ctx context.Context, cmd AddFundsCommand) (Customer, error) {
	id := strings.TrimSpace(cmd.CustomerID)
	if id == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	if cmd.Amount <= 0 {
		return Customer{}, fmt.Errorf("%w: amount must be positive", ErrCustomerInvalidInput)
	}

	now := s.now()
	customer, err := s.customers.ApplyOrderAggregates(ctx, id, repositories.CustomerAggregateDelta{
		Balance: cmd.Amount,
		Now:     now,
	})
	if err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, CustomerEvent{
		Type:       eventCustomerFundsCredit,
		CustomerID: customer.ID,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		Amount:     cmd.Amount,
		Balance:    customer.Balance,
		OccurredAt: now,
	})

	return customer, nil
}

func (s *customerService) now() time.Time {
	return s.clock()
}

func (s *customerService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("customer: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *customerService) publishEvent(ctx context.Context, event CustomerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishCustomerEvent(ctx, event); err != nil {
		s.logger(ctx, "customer.event.publish.failed", map[string]any{
			"type":     event.Type,
			"customer": event.CustomerID,
			"error":    err.Error(),
		})
	}
}

func validateCustomerInput(cmd UpsertCustomerCommand) error {
	if strings.TrimSpace(cmd.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrCustomerInvalidInput)
	}
	email := strings.TrimSpace(cmd.Email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrCustomerInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrCustomerInvalidInput, email)
	}
	if phone := strings.TrimSpace(cmd.Phone); phone != "" && !customerPhonePattern.MatchString(phone) {
		return fmt.Errorf("%w: invalid phone %q", ErrCustomerInvalidInput, phone)
	}
	if status := strings.TrimSpace(cmd.Status); status != "" && !customerStatuses[status] {
		return fmt.Errorf("%w: unknown status %q", ErrCustomerInvalidInput, status)
	}
	return nil
}

func ensureCustomerID(candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		trimmed = ulid.Make().String()
	}
	if strings.HasPrefix(trimmed, customerIDPrefix) {
		return trimmed
	}
	return customerIDPrefix + trimmed
}
