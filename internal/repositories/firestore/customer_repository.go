package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/orderdesk/api/internal/domain"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
	"github.com/orderdesk/api/internal/repositories"
)

const customersCollection = "customers"

type customerDocument struct {
	Name        string    `firestore:"name"`
	Email       string    `firestore:"email"`
	Phone       string    `firestore:"phone,omitempty"`
	Balance     int64     `firestore:"balance"`
	TotalOrders int64     `firestore:"totalOrders"`
	TotalSpent  int64     `firestore:"totalSpent"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newCustomerDocument(customer domain.Customer) customerDocument {
	return customerDocument{
		Name:        strings.TrimSpace(customer.Name),
		Email:       strings.TrimSpace(customer.Email),
		Phone:       strings.TrimSpace(customer.Phone),
		Balance:     customer.Balance,
		TotalOrders: customer.TotalOrders,
		TotalSpent:  customer.TotalSpent,
		Status:      string(customer.Status),
		CreatedAt:   customer.CreatedAt.UTC(),
		UpdatedAt:   customer.UpdatedAt.UTC(),
	}
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:          id,
		Name:        d.Name,
		Email:       d.Email,
		Phone:       d.Phone,
		Balance:     d.Balance,
		TotalOrders: d.TotalOrders,
		TotalSpent:  d.TotalSpent,
		Status:      domain.CustomerStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// CustomerRepository implements repositories.CustomerRepository on Firestore.
type CustomerRepository struct {
	provider  *pfirestore.Provider
	customers *pfirestore.BaseRepository[customerDocument]
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil)
	return &CustomerRepository{provider: provider, customers: base}, nil
}

func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.customers == nil {
		return errors.New("customer repository not initialised")
	}
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer insert: id is required")
	}
	ref, err := r.customers.DocumentRef(ctx, customer.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newCustomerDocument(customer)); err != nil {
		return pfirestore.WrapError("customers.insert", err)
	}
	return nil
}

func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.customers == nil {
		return errors.New("customer repository not initialised")
	}
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer update: id is required")
	}
	ref, err := r.customers.DocumentRef(ctx, customer.ID)
	if err != nil {
		return err
	}
	// Inside a transaction the caller has already read the document; a second
	// read here would violate Firestore's reads-before-writes ordering.
	if _, ok := txFrom(ctx); !ok {
		if _, err := getDocument(ctx, ref); err != nil {
			return pfirestore.WrapError("customers.update", err)
		}
	}
	if err := setDocument(ctx, ref, newCustomerDocument(customer)); err != nil {
		return pfirestore.WrapError("customers.update", err)
	}
	return nil
}

func (r *CustomerRepository) Delete(ctx context.Context, customerID string) error {
	if r == nil || r.customers == nil {
		return errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return errors.New("customer delete: id is required")
	}
	ref, err := r.customers.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := getDocument(ctx, ref); err != nil {
		return pfirestore.WrapError("customers.delete", err)
	}
	if err := deleteDocument(ctx, ref); err != nil {
		return pfirestore.WrapError("customers.delete", err)
	}
	return nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.customers == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Customer{}, errors.New("customer find: id is required")
	}
	ref, err := r.customers.DocumentRef(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.get", err)
	}
	var doc customerDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Customer{}, fmt.Errorf("decode customer %s: %w", id, err)
	}
	return doc.toDomain(id), nil
}

func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Customer]{}, errors.New("customer repository not initialised")
	}

	pageSize := normalisePageSize(filter.Pagination.PageSize)

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Customer]{}, pfirestore.WrapError("customers.list", err)
	}

	query := client.Collection(customersCollection).Query
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", filter.Status[0])
	} else if len(filter.Status) > 1 {
		query = query.Where("status", "in", filter.Status)
	}
	query = query.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeListCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Customer]{}, pfirestore.WrapError("customers.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var customers []domain.Customer
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Customer]{}, pfirestore.WrapError("customers.list", err)
		}
		var doc customerDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Customer]{}, fmt.Errorf("decode customer %s: %w", snap.Ref.ID, err)
		}
		customer := doc.toDomain(snap.Ref.ID)
		if search != "" && !customerMatches(customer, search) {
			continue
		}
		customers = append(customers, customer)
	}

	hasMore := len(customers) > pageSize
	if hasMore {
		customers = customers[:pageSize]
	}
	var nextToken string
	if hasMore && len(customers) > 0 {
		last := customers[len(customers)-1]
		nextToken, err = encodeListCursor(listCursor{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Customer]{}, pfirestore.WrapError("customers.list", err)
		}
	}

	return domain.CursorPage[domain.Customer]{Items: customers, NextPageToken: nextToken}, nil
}

func (r *CustomerRepository) ApplyOrderAggregates(ctx context.Context, customerID string, delta repositories.CustomerAggregateDelta) (domain.Customer, error) {
	if r == nil || r.customers == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Customer{}, errors.New("customer aggregates: id is required")
	}

	now := delta.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	apply := func(ctx context.Context) (domain.Customer, error) {
		ref, err := r.customers.DocumentRef(ctx, id)
		if err != nil {
			return domain.Customer{}, err
		}
		snap, err := getDocument(ctx, ref)
		if err != nil {
			return domain.Customer{}, pfirestore.WrapError("customers.aggregates", err)
		}
		var doc customerDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Customer{}, fmt.Errorf("decode customer %s: %w", id, err)
		}

		newBalance := doc.Balance + delta.Balance
		if newBalance < 0 {
			return domain.Customer{}, fmt.Errorf("customer %s balance cannot drop below zero (have %d, delta %d)", id, doc.Balance, delta.Balance)
		}
		doc.Balance = newBalance
		doc.TotalOrders += delta.TotalOrders
		doc.TotalSpent += delta.TotalSpent
		doc.UpdatedAt = now

		if err := setDocument(ctx, ref, doc); err != nil {
			return domain.Customer{}, pfirestore.WrapError("customers.aggregates", err)
		}
		return doc.toDomain(id), nil
	}

	if _, ok := txFrom(ctx); ok {
		return apply(ctx)
	}

	var updated domain.Customer
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var err error
		updated, err = apply(withTx(ctx, tx))
		return err
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return updated, nil
}

func customerMatches(customer domain.Customer, search string) bool {
	return strings.Contains(strings.ToLower(customer.Name), search) ||
		strings.Contains(strings.ToLower(customer.Email), search) ||
		strings.Contains(strings.ToLower(customer.Phone), search)
}
