package services

import (
	"context"
	"time"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination       = domain.Pagination
	SortOrder        = domain.SortOrder
	Money            = domain.Money
	Customer         = domain.Customer
	InventoryItem    = domain.InventoryItem
	StockStatus      = domain.StockStatus
	Order            = domain.Order
	OrderLine        = domain.OrderLine
	OrderStatus      = domain.OrderStatus
	Payment          = domain.Payment
	PaymentMethod    = domain.PaymentMethod
	PaymentStatus    = domain.PaymentStatus
	PricingBreakdown = domain.PricingBreakdown
	LinePricing      = domain.LinePricing
	CommerceSettings = domain.CommerceSettings
)

// Repository filters are re-exported so handlers never import the repositories package directly.
type (
	CustomerListFilter  = repositories.CustomerListFilter
	InventoryListFilter = repositories.InventoryListFilter
	OrderListFilter     = repositories.OrderListFilter
	PaymentListFilter   = repositories.PaymentListFilter
)

// OrderService coordinates the order transaction flow: validation, pricing,
// stock commitment, payment recording, and the post-sale lifecycle.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (OrderConfirmation, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	SetPaymentStatus(ctx context.Context, cmd PaymentStatusCommand) (Order, error)
	Refund(ctx context.Context, cmd RefundCommand) (Order, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentListFilter) (domain.CursorPage[Payment], error)
}

// InventoryService manages the product catalogue and enforces stock rules on order flows.
type InventoryService interface {
	CreateItem(ctx context.Context, cmd UpsertInventoryItemCommand) (InventoryItem, error)
	GetItem(ctx context.Context, itemID string) (InventoryItem, error)
	ListItems(ctx context.Context, filter InventoryListFilter) (domain.CursorPage[InventoryItem], error)
	UpdateItem(ctx context.Context, cmd UpsertInventoryItemCommand) (InventoryItem, error)
	DeleteItem(ctx context.Context, itemID string) error
	AdjustQuantity(ctx context.Context, cmd AdjustQuantityCommand) (InventoryItem, error)
	ValidateLines(ctx context.Context, lines []StockLine) ([]InventoryItem, error)
	CommitLines(ctx context.Context, items []InventoryItem, lines []StockLine, now time.Time) (map[string]InventoryItem, error)
}

// CustomerService manages customer records, balances, and purchase aggregates.
type CustomerService interface {
	CreateCustomer(ctx context.Context, cmd UpsertCustomerCommand) (Customer, error)
	GetCustomer(ctx context.Context, customerID string) (Customer, error)
	ListCustomers(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[Customer], error)
	UpdateCustomer(ctx context.Context, cmd UpsertCustomerCommand) (Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	AddFunds(ctx context.Context, cmd AddFundsCommand) (Customer, error)
}

// PricingEngine computes order totals from line inputs and the commerce tax settings.
type PricingEngine interface {
	Price(ctx context.Context, lines []PricingLineInput) (PricingBreakdown, error)
}

// SettingsService exposes the commerce configuration document.
type SettingsService interface {
	Get(ctx context.Context) (CommerceSettings, error)
	Update(ctx context.Context, cmd UpdateSettingsCommand) (CommerceSettings, error)
}

// CounterService issues formatted sequential document numbers.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
	NextPaymentNumber(ctx context.Context) (string, error)
}

// SystemService aggregates utility endpoints such as health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// SystemHealthReport aliases the domain health report for handler consumption.
type SystemHealthReport = domain.SystemHealthReport

// Command and DTO definitions ------------------------------------------------

// CreateOrderCommand drives the order transaction. The flags select between the
// storefront flow (catalogue pricing, pending payment), the balance-gated flow
// (catalogue pricing, immediate payment debited from the customer balance), and
// the back-office flow (caller-supplied pricing, immediate payment).
type CreateOrderCommand struct {
	CustomerID       string
	Lines            []OrderLineRequest
	ShippingAddress  string
	ActorID          string
	PriceFromCatalog bool
	ImmediatePayment bool
	DebitBalance     bool
}

type OrderLineRequest struct {
	ProductID string
	Quantity  int64
	// UnitPrice overrides the catalogue price; required when the command does
	// not price from the catalogue, ignored otherwise.
	UnitPrice *Money
}

// OrderConfirmation is the result of a completed order transaction.
type OrderConfirmation struct {
	Order   Order
	Payment Payment
}

type OrderStatusTransitionCommand struct {
	OrderID string
	Target  OrderStatus
	ActorID string
}

type PaymentStatusCommand struct {
	OrderID string
	Target  PaymentStatus
	ActorID string
}

type RefundCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

type UpsertInventoryItemCommand struct {
	ItemID      string
	Name        string
	Category    string
	Description string
	Quantity    int64
	UnitPrice   Money
}

type AdjustQuantityCommand struct {
	ItemID  string
	Delta   int64
	Reason  string
	ActorID string
}

// StockLine is a product/quantity pair checked and committed during order flows.
type StockLine struct {
	ProductID string
	Quantity  int64
}

type UpsertCustomerCommand struct {
	CustomerID string
	Name       string
	Email      string
	Phone      string
	Status     string
}

type AddFundsCommand struct {
	CustomerID string
	Amount     Money
	ActorID    string
}

type PricingLineInput struct {
	ProductID   string
	ProductName string
	Quantity    int64
	UnitPrice   Money
}

type UpdateSettingsCommand struct {
	TaxRateBps int64
	ActorID    string
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	Prefix       string
	Suffix       string
	PadLength    int
	MaxValue     *int64
	InitialValue *int64
	Formatter    func(now time.Time, seq int64) string
}

// CounterValue carries the raw sequence value alongside its formatted form.
type CounterValue struct {
	Value     int64
	Formatted string
}
