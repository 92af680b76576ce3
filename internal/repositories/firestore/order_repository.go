package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"

	domain "github.com/orderdesk/api/internal/domain"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
	"github.com/orderdesk/api/internal/repositories"
)

const ordersCollection = "orders"

type orderLineDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	Quantity    int64  `firestore:"qty"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Subtotal    int64  `firestore:"subtotal"`
}

type orderDocument struct {
	Number          string              `firestore:"number"`
	CustomerID      string              `firestore:"customerId"`
	Status          string              `firestore:"status"`
	PaymentStatus   string              `firestore:"paymentStatus"`
	Subtotal        int64               `firestore:"subtotal"`
	Tax             int64               `firestore:"tax"`
	Total           int64               `firestore:"total"`
	TaxRateBps      int64               `firestore:"taxRateBps"`
	ShippingAddress string              `firestore:"shippingAddress,omitempty"`
	Lines           []orderLineDocument `firestore:"lines"`
	PaymentID       *string             `firestore:"paymentId,omitempty"`
	CreatedBy       *string             `firestore:"createdBy,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = orderLineDocument{
			ProductID:   strings.TrimSpace(line.ProductID),
			ProductName: strings.TrimSpace(line.ProductName),
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal,
		}
	}
	return orderDocument{
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
		PaymentID:       order.PaymentID,
		CreatedBy:       order.CreatedBy,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = domain.OrderLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal,
		}
	}
	return domain.Order{
		ID:              id,
		Number:          d.Number,
		CustomerID:      d.CustomerID,
		Status:          domain.OrderStatus(d.Status),
		PaymentStatus:   domain.PaymentStatus(d.PaymentStatus),
		Subtotal:        d.Subtotal,
		Tax:             d.Tax,
		Total:           d.Total,
		TaxRateBps:      d.TaxRateBps,
		ShippingAddress: d.ShippingAddress,
		Lines:           lines,
		PaymentID:       d.PaymentID,
		CreatedBy:       d.CreatedBy,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// OrderRepository implements repositories.OrderRepository on Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: base}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order update: id is required")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, ok := txFrom(ctx); !ok {
		if _, err := getDocument(ctx, ref); err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
	}
	if err := setDocument(ctx, ref, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}
	ref, err := r.orders.DocumentRef(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return doc.toDomain(id), nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Order{}, errors.New("order find: number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.byNumber", err)
	}

	iter := client.Collection(ordersCollection).
		Where("number", "==", number).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, pfirestore.WrapError("orders.byNumber", newNotFoundError(fmt.Sprintf("order %s not found", number)))
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.byNumber", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := normalisePageSize(filter.Pagination.PageSize)

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
		query = query.Where("customerId", "==", customerID)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", filter.Status[0])
	} else if len(filter.Status) > 1 {
		query = query.Where("status", "in", filter.Status)
	}
	if len(filter.PaymentStatus) == 1 {
		query = query.Where("paymentStatus", "==", filter.PaymentStatus[0])
	} else if len(filter.PaymentStatus) > 1 {
		query = query.Where("paymentStatus", "in", filter.PaymentStatus)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeListCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextToken, err = encodeListCursor(listCursor{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

func (r *OrderRepository) CountByCustomer(ctx context.Context, customerID string) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return 0, errors.New("order count: customer id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("orders.count", err)
	}

	query := client.Collection(ordersCollection).Where("customerId", "==", id)
	aggregation := query.NewAggregationQuery().WithCount("total")
	results, err := aggregation.Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("orders.count", err)
	}

	raw, ok := results["total"]
	if !ok {
		return 0, errors.New("orders.count: aggregation result missing")
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("orders.count: unexpected aggregation type %T", raw)
	}
	return value.GetIntegerValue(), nil
}
