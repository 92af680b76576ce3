package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

const (
	orderEventCreated              = "order.created"
	orderEventStatusChanged        = "order.status.changed"
	orderEventPaymentStatusChanged = "order.payment.status.changed"
	orderEventRefunded             = "order.refunded"

	orderIDPrefix     = "ord_"
	paymentIDPrefix   = "pay_"
	transactionPrefix = "TXN-"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrPaymentNotFound indicates the payment record could not be located.
	ErrPaymentNotFound = errors.New("order: payment not found")
	// ErrInsufficientBalance indicates the customer balance cannot cover the order total.
	ErrInsufficientBalance = errors.New("order: insufficient balance")
	// ErrOrderTransactionFailed indicates the order transaction aborted and rolled back.
	ErrOrderTransactionFailed = errors.New("order: transaction failed")
)

// Orders move strictly forward: an order ships or is cancelled, and only a
// shipped order completes. Cancelled and completed are terminal.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusCompleted},
}

var paymentStatuses = map[domain.PaymentStatus]bool{
	domain.PaymentStatusPending:   true,
	domain.PaymentStatusCompleted: true,
	domain.PaymentStatusRefunded:  true,
	domain.PaymentStatusFailed:    true,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Customers   repositories.CustomerRepository
	Inventory   InventoryService
	Pricing     PricingEngine
	Counters    CounterService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	customers  repositories.CustomerRepository
	inventory  InventoryService
	pricing    PricingEngine
	counters   CounterService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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

	return &orderService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		customers:  deps.Customers,
		inventory:  deps.Inventory,
		pricing:    deps.Pricing,
		counters:   deps.Counters,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// Create runs the full order transaction: validate the customer and stock,
// price the lines, decrement inventory, persist the order, roll the customer
// aggregates forward, and record the payment. Everything inside the unit of
// work commits or rolls back together.
//
// Document numbers are allocated before the transaction opens, so a failed
// attempt can leave a gap in the sequence. Uniqueness is what matters.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (OrderConfirmation, error) {
	if err := s.validateCreateInput(cmd); err != nil {
		return OrderConfirmation{}, err
	}

	customerID := strings.TrimSpace(cmd.CustomerID)
	actor := strings.TrimSpace(cmd.ActorID)
	debit := cmd.DebitBalance
	immediate := cmd.ImmediatePayment || debit

	now := s.now()

	orderNumber, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return OrderConfirmation{}, fmt.Errorf("order: allocate order number: %w", err)
	}
	paymentNumber, err := s.counters.NextPaymentNumber(ctx)
	if err != nil {
		return OrderConfirmation{}, fmt.Errorf("order: allocate payment number: %w", err)
	}

	orderID := orderIDPrefix + s.newID()
	paymentID := paymentIDPrefix + s.newID()
	transactionID := transactionPrefix + s.newID()

	stockLines := make([]StockLine, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		stockLines = append(stockLines, StockLine{ProductID: strings.TrimSpace(line.ProductID), Quantity: line.Quantity})
	}

	var (
		order   Order
		payment Payment
	)

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		customer, err := s.customers.FindByID(txCtx, customerID)
		if err != nil {
			return s.mapCustomerError(err)
		}

		items, err := s.inventory.ValidateLines(txCtx, stockLines)
		if err != nil {
			return err
		}
		itemsByID := make(map[string]InventoryItem, len(items))
		for _, item := range items {
			itemsByID[item.ID] = item
		}

		pricingLines, err := buildPricingLines(cmd, itemsByID)
		if err != nil {
			return err
		}

		breakdown, err := s.pricing.Price(txCtx, pricingLines)
		if err != nil {
			return err
		}

		if debit && customer.Balance < breakdown.Total {
			return fmt.Errorf("%w: balance %d, order total %d", ErrInsufficientBalance, customer.Balance, breakdown.Total)
		}

		// Read phase ends here. Every write below is computed from the reads
		// above, so the Firestore transaction stays read-then-write.
		if _, err := s.inventory.CommitLines(txCtx, items, stockLines, now); err != nil {
			return err
		}

		paymentStatus := domain.PaymentStatusPending
		if immediate {
			paymentStatus = domain.PaymentStatusCompleted
		}

		order = Order{
			ID:              orderID,
			Number:          orderNumber,
			CustomerID:      customer.ID,
			Status:          domain.OrderStatusProcessing,
			PaymentStatus:   paymentStatus,
			Subtotal:        breakdown.Subtotal,
			Tax:             breakdown.Tax,
			Total:           breakdown.Total,
			TaxRateBps:      breakdown.TaxRateBps,
			ShippingAddress: strings.TrimSpace(cmd.ShippingAddress),
			Lines:           buildOrderLines(breakdown.Lines),
			PaymentID:       valuePtr(paymentID),
			CreatedBy:       optionalString(actor),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.orders.Insert(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}

		updated := customer
		updated.TotalOrders++
		updated.TotalSpent += breakdown.Total
		if debit {
			updated.Balance -= breakdown.Total
		}
		updated.UpdatedAt = now
		if err := s.customers.Update(txCtx, updated); err != nil {
			return s.mapCustomerError(err)
		}

		method := domain.PaymentMethodUPI
		if debit {
			method = domain.PaymentMethodAccountBalance
		}
		payment = Payment{
			ID:            paymentID,
			Number:        paymentNumber,
			OrderID:       orderID,
			CustomerID:    customer.ID,
			Amount:        breakdown.Total,
			Method:        method,
			Status:        paymentStatus,
			TransactionID: transactionID,
			CreatedBy:     optionalString(actor),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if paymentStatus == domain.PaymentStatusCompleted {
			payment.PaidAt = valuePtr(now)
		}
		if err := s.payments.Insert(txCtx, domain.Payment(payment)); err != nil {
			return s.mapRepositoryError(err)
		}

		return nil
	})
	if err != nil {
		return OrderConfirmation{}, s.wrapTransactionError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: string(order.Status),
		ActorID:       actor,
		OccurredAt:    now,
		Metadata: map[string]any{
			"customerId":    order.CustomerID,
			"total":         order.Total,
			"paymentStatus": string(order.PaymentStatus),
			"paymentMethod": string(payment.Method),
		},
	})

	return OrderConfirmation{Order: order, Payment: payment}, nil
}

// GetOrder resolves either a document id or a human-facing order number.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	ref := strings.TrimSpace(orderID)
	if ref == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var (
		order Order
		err   error
	)
	if strings.HasPrefix(ref, orderNumberPrefix) {
		order, err = s.orders.FindByNumber(ctx, ref)
	} else {
		order, err = s.orders.FindByID(ctx, ref)
	}
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.Target)))
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}
	if _, known := orderStateTransitions[target]; !known && target != domain.OrderStatusCompleted && target != domain.OrderStatusCancelled {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	actor := strings.TrimSpace(cmd.ActorID)
	now := s.now()

	var (
		order    Order
		previous domain.OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		found, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		previous = found.Status
		if found.Status != target {
			if !canTransition(found.Status, target) {
				return fmt.Errorf("%w: %s → %s", ErrOrderInvalidState, found.Status, target)
			}
			found.Status = target
		}
		found.UpdatedAt = now

		if err := s.orders.Update(txCtx, found); err != nil {
			return s.mapRepositoryError(err)
		}
		order = found
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if previous != order.Status {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			OrderNumber:    order.Number,
			PreviousStatus: string(previous),
			CurrentStatus:  string(order.Status),
			ActorID:        actor,
			OccurredAt:     now,
		})
	}

	return order, nil
}

// SetPaymentStatus updates the payment record and mirrors the status onto the
// order. Marking an order completed that never had a payment record creates
// one, so legacy orders can be settled by hand.
func (s *orderService) SetPaymentStatus(ctx context.Context, cmd PaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.PaymentStatus(strings.TrimSpace(string(cmd.Target)))
	if !paymentStatuses[target] {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, target)
	}

	actor := strings.TrimSpace(cmd.ActorID)
	now := s.now()

	var (
		order    Order
		previous domain.PaymentStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		found, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		previous = found.PaymentStatus

		payment, err := s.payments.FindByOrder(txCtx, found.ID)
		switch {
		case err == nil:
			payment.Status = target
			if target == domain.PaymentStatusCompleted && payment.PaidAt == nil {
				payment.PaidAt = valuePtr(now)
			}
			payment.UpdatedAt = now
			if err := s.payments.Update(txCtx, payment); err != nil {
				return s.mapRepositoryError(err)
			}
			found.PaymentID = valuePtr(payment.ID)
		case isRepositoryNotFound(err) && target == domain.PaymentStatusCompleted:
			synthesized, err := s.synthesizePayment(txCtx, found, actor, now)
			if err != nil {
				return err
			}
			found.PaymentID = valuePtr(synthesized.ID)
		case isRepositoryNotFound(err):
			// No payment record and nothing to settle. The order still
			// carries the requested payment status.
		default:
			return s.mapRepositoryError(err)
		}

		found.PaymentStatus = target
		found.UpdatedAt = now
		if err := s.orders.Update(txCtx, found); err != nil {
			return s.mapRepositoryError(err)
		}
		order = found
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if previous != order.PaymentStatus {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventPaymentStatusChanged,
			OrderID:        order.ID,
			OrderNumber:    order.Number,
			PreviousStatus: string(previous),
			CurrentStatus:  string(order.PaymentStatus),
			ActorID:        actor,
			OccurredAt:     now,
		})
	}

	return order, nil
}

// Refund marks the order's payment refunded. Stock is not restored; refunds
// are a money movement, not a return.
func (s *orderService) Refund(ctx context.Context, cmd RefundCommand) (Order, error) {
	order, err := s.SetPaymentStatus(ctx, PaymentStatusCommand{
		OrderID: cmd.OrderID,
		Target:  domain.PaymentStatusRefunded,
		ActorID: cmd.ActorID,
	})
	if err != nil {
		return Order{}, err
	}

	metadata := map[string]any{}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata["reason"] = reason
	}
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventRefunded,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: string(order.PaymentStatus),
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    s.now(),
		Metadata:      metadata,
	})

	return order, nil
}

func (s *orderService) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return Payment{}, fmt.Errorf("%w: payment id is required", ErrOrderInvalidInput)
	}
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
		}
		return Payment{}, err
	}
	return payment, nil
}

func (s *orderService) ListPayments(ctx context.Context, filter PaymentListFilter) (domain.CursorPage[Payment], error) {
	page, err := s.payments.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Payment]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// synthesizePayment records a completed payment for an order that has none.
// The counter allocation reads and writes the sequence document inside the
// ambient transaction, before any payment or order writes land.
func (s *orderService) synthesizePayment(ctx context.Context, order Order, actor string, now time.Time) (Payment, error) {
	number, err := s.counters.NextPaymentNumber(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("order: allocate payment number: %w", err)
	}

	payment := Payment{
		ID:            paymentIDPrefix + s.newID(),
		Number:        number,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Amount:        order.Total,
		Method:        domain.PaymentMethodUPI,
		Status:        domain.PaymentStatusCompleted,
		TransactionID: transactionPrefix + s.newID(),
		PaidAt:        valuePtr(now),
		CreatedBy:     optionalString(actor),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Insert(ctx, domain.Payment(payment)); err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	return payment, nil
}

func (s *orderService) validateCreateInput(cmd CreateOrderCommand) error {
	if strings.TrimSpace(cmd.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrOrderInvalidInput)
	}
	for _, line := range cmd.Lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return fmt.Errorf("%w: line product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, productID)
		}
		if !cmd.PriceFromCatalog {
			if line.UnitPrice == nil {
				return fmt.Errorf("%w: unit price for %s is required", ErrOrderInvalidInput, productID)
			}
			if *line.UnitPrice < 0 {
				return fmt.Errorf("%w: unit price for %s cannot be negative", ErrOrderInvalidInput, productID)
			}
		}
	}
	return nil
}

func buildPricingLines(cmd CreateOrderCommand, items map[string]InventoryItem) ([]PricingLineInput, error) {
	lines := make([]PricingLineInput, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		productID := strings.TrimSpace(line.ProductID)
		item, ok := items[productID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}

		unitPrice := item.UnitPrice
		if !cmd.PriceFromCatalog && line.UnitPrice != nil {
			unitPrice = *line.UnitPrice
		}

		lines = append(lines, PricingLineInput{
			ProductID:   item.ID,
			ProductName: item.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice,
		})
	}
	return lines, nil
}

func buildOrderLines(pricings []LinePricing) []OrderLine {
	lines := make([]OrderLine, 0, len(pricings))
	for _, pricing := range pricings {
		lines = append(lines, OrderLine{
			ProductID:   pricing.ProductID,
			ProductName: pricing.ProductName,
			Quantity:    pricing.Quantity,
			UnitPrice:   pricing.UnitPrice,
			Subtotal:    pricing.Subtotal,
		})
	}
	return lines
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) mapCustomerError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
	}

	return err
}

// wrapTransactionError preserves domain sentinels raised inside the unit of
// work and folds everything else into the transaction failure sentinel.
func (s *orderService) wrapTransactionError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrOrderInvalidInput,
		ErrOrderNotFound,
		ErrOrderConflict,
		ErrCustomerNotFound,
		ErrProductNotFound,
		ErrInsufficientInventory,
		ErrInsufficientBalance,
		ErrPricingInvalidInput,
		ErrInventoryInvalidInput,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderTransactionFailed, err)
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func valuePtr[T any](v T) *T {
	return &v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
