package repositories

import (
	"context"
	"time"

	domain "github.com/orderdesk/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Customers() CustomerRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Settings() SettingsRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CustomerRepository persists customer accounts including balance and order aggregates.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	Delete(ctx context.Context, customerID string) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[domain.Customer], error)
	// ApplyOrderAggregates atomically adjusts balance, total orders, and total
	// spent. Implementations must reject adjustments that would push the
	// balance negative.
	ApplyOrderAggregates(ctx context.Context, customerID string, delta CustomerAggregateDelta) (domain.Customer, error)
}

// CustomerAggregateDelta carries signed adjustments applied to a customer in one write.
type CustomerAggregateDelta struct {
	Balance     domain.Money
	TotalOrders int64
	TotalSpent  domain.Money
	Now         time.Time
}

// InventoryRepository manages catalog items and their tracked stock. Quantity
// mutations recompute the derived stock status in the same write.
type InventoryRepository interface {
	Insert(ctx context.Context, item domain.InventoryItem) error
	Update(ctx context.Context, item domain.InventoryItem) error
	Delete(ctx context.Context, itemID string) error
	FindByID(ctx context.Context, itemID string) (domain.InventoryItem, error)
	List(ctx context.Context, filter InventoryListFilter) (domain.CursorPage[domain.InventoryItem], error)
	// AdjustQuantities applies the given deltas, failing the whole batch when
	// any product is missing or would drop below zero.
	AdjustQuantities(ctx context.Context, req InventoryAdjustRequest) (InventoryAdjustResult, error)
}

// InventoryAdjustment is a signed quantity change for one product.
type InventoryAdjustment struct {
	ProductID string
	Delta     int64
}

// InventoryAdjustRequest batches quantity changes applied in one transaction.
type InventoryAdjustRequest struct {
	Adjustments []InventoryAdjustment
	Reason      string
	OrderRef    string
	Now         time.Time
}

// InventoryAdjustResult reports the updated items keyed by product id.
type InventoryAdjustResult struct {
	Items map[string]domain.InventoryItem
}

// OrderRepository persists order headers with embedded line items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, number string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// CountByCustomer supports the customer-deletion referential gate.
	CountByCustomer(ctx context.Context, customerID string) (int64, error)
}

// PaymentRepository stores settlement records, at most one per order.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Payment, error)
	List(ctx context.Context, filter PaymentListFilter) (domain.CursorPage[domain.Payment], error)
}

// SettingsRepository stores the commerce configuration document.
type SettingsRepository interface {
	Get(ctx context.Context) (domain.CommerceSettings, error)
	Save(ctx context.Context, settings domain.CommerceSettings) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type CustomerListFilter struct {
	Status     []string
	Search     string
	Pagination domain.Pagination
}

type InventoryListFilter struct {
	Category   string
	Status     []string
	Search     string
	Pagination domain.Pagination
}

type OrderListFilter struct {
	CustomerID    string
	Status        []string
	PaymentStatus []string
	DateRange     domain.RangeQuery[time.Time]
	Pagination    domain.Pagination
}

type PaymentListFilter struct {
	OrderID    string
	Status     []string
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
