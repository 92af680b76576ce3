package domain

import (
	"time"
)

// Money is a monetary amount in the smallest currency unit.
type Money = int64

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CustomerStatus enumerates account states for customers.
type CustomerStatus string

const (
	// CustomerStatusActive indicates the customer can place orders.
	CustomerStatusActive CustomerStatus = "active"
	// CustomerStatusInactive indicates the account is disabled for new orders.
	CustomerStatusInactive CustomerStatus = "inactive"
)

// Customer holds the account record including the pre-funded balance and
// order aggregates maintained by the order workflow.
type Customer struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	Balance     Money
	TotalOrders int64
	TotalSpent  Money
	Status      CustomerStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StockStatus is the three-valued stock label derived from quantity.
type StockStatus string

const (
	// StockStatusInStock indicates quantity above the low-stock threshold.
	StockStatusInStock StockStatus = "in_stock"
	// StockStatusLowStock indicates quantity at or below the low-stock threshold.
	StockStatusLowStock StockStatus = "low_stock"
	// StockStatusOutOfStock indicates zero or negative quantity.
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// LowStockThreshold is the inclusive upper bound of the low-stock band.
const LowStockThreshold = 10

// StockStatusForQuantity derives the stock label for a quantity. Boundaries
// are inclusive on the lower tier: exactly 0 is out of stock, exactly 10 is
// low stock.
func StockStatusForQuantity(quantity int64) StockStatus {
	switch {
	case quantity <= 0:
		return StockStatusOutOfStock
	case quantity <= LowStockThreshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// InventoryItem represents a catalog product with tracked stock. Status is
// always derived from Quantity via StockStatusForQuantity and is never set
// independently.
type InventoryItem struct {
	ID          string
	Name        string
	Category    string
	Description string
	Quantity    int64
	UnitPrice   Money
	Status      StockStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusProcessing indicates the order was created and awaits fulfilment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCompleted indicates the order has been delivered and closed.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled before completion.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment states shared by orders and payment records.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not been collected yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted indicates payment settled successfully.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusRefunded indicates a settled payment was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusFailed indicates payment collection failed.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Order captures the order header with its embedded line items. Lines are
// written once at creation and never mutated afterwards; cancellation only
// changes Status.
type Order struct {
	ID              string
	Number          string
	CustomerID      string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	Subtotal        Money
	Tax             Money
	Total           Money
	TaxRateBps      int64
	ShippingAddress string
	Lines           []OrderLine
	PaymentID       *string
	CreatedBy       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderLine is one product entry within an order, with name and unit price
// snapshotted at order time.
type OrderLine struct {
	ProductID   string
	ProductName string
	Quantity    int64
	UnitPrice   Money
	Subtotal    Money
}

// PaymentMethod enumerates supported payment instruments.
type PaymentMethod string

const (
	// PaymentMethodAccountBalance settles against the customer's pre-funded balance.
	PaymentMethodAccountBalance PaymentMethod = "account_balance"
	// PaymentMethodUPI is the default external instrument.
	PaymentMethodUPI PaymentMethod = "upi"
)

// Payment is the settlement record for an order. At most one payment exists
// per order.
type Payment struct {
	ID            string
	Number        string
	OrderID       string
	CustomerID    string
	Amount        Money
	Method        PaymentMethod
	Status        PaymentStatus
	TransactionID string
	PaidAt        *time.Time
	CreatedBy     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CommerceSettings holds the store-wide configuration read by pricing.
type CommerceSettings struct {
	TaxRateBps int64
	UpdatedAt  time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
