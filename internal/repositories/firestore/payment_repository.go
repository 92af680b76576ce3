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

const paymentsCollection = "payments"

type paymentDocument struct {
	Number        string     `firestore:"number"`
	OrderID       string     `firestore:"orderId"`
	CustomerID    string     `firestore:"customerId"`
	Amount        int64      `firestore:"amount"`
	Method        string     `firestore:"method"`
	Status        string     `firestore:"status"`
	TransactionID string     `firestore:"transactionId"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
	CreatedBy     *string    `firestore:"createdBy,omitempty"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		Number:        strings.TrimSpace(payment.Number),
		OrderID:       strings.TrimSpace(payment.OrderID),
		CustomerID:    strings.TrimSpace(payment.CustomerID),
		Amount:        payment.Amount,
		Method:        string(payment.Method),
		Status:        string(payment.Status),
		TransactionID: strings.TrimSpace(payment.TransactionID),
		PaidAt:        payment.PaidAt,
		CreatedBy:     payment.CreatedBy,
		CreatedAt:     payment.CreatedAt.UTC(),
		UpdatedAt:     payment.UpdatedAt.UTC(),
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:            id,
		Number:        d.Number,
		OrderID:       d.OrderID,
		CustomerID:    d.CustomerID,
		Amount:        d.Amount,
		Method:        domain.PaymentMethod(d.Method),
		Status:        domain.PaymentStatus(d.Status),
		TransactionID: d.TransactionID,
		PaidAt:        d.PaidAt,
		CreatedBy:     d.CreatedBy,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// PaymentRepository implements repositories.PaymentRepository on Firestore.
type PaymentRepository struct {
	provider *pfirestore.Provider
	payments *pfirestore.BaseRepository[paymentDocument]
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil, nil)
	return &PaymentRepository{provider: provider, payments: base}, nil
}

func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.payments == nil {
		return errors.New("payment repository not initialised")
	}
	if strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment insert: id is required")
	}
	ref, err := r.payments.DocumentRef(ctx, payment.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newPaymentDocument(payment)); err != nil {
		return pfirestore.WrapError("payments.insert", err)
	}
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.payments == nil {
		return errors.New("payment repository not initialised")
	}
	if strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment update: id is required")
	}
	ref, err := r.payments.DocumentRef(ctx, payment.ID)
	if err != nil {
		return err
	}
	if _, ok := txFrom(ctx); !ok {
		if _, err := getDocument(ctx, ref); err != nil {
			return pfirestore.WrapError("payments.update", err)
		}
	}
	if err := setDocument(ctx, ref, newPaymentDocument(payment)); err != nil {
		return pfirestore.WrapError("payments.update", err)
	}
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.payments == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return domain.Payment{}, errors.New("payment find: id is required")
	}
	ref, err := r.payments.DocumentRef(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.get", err)
	}
	var doc paymentDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Payment{}, fmt.Errorf("decode payment %s: %w", id, err)
	}
	return doc.toDomain(id), nil
}

func (r *PaymentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	if r == nil || r.provider == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Payment{}, errors.New("payment find: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.byOrder", err)
	}

	query := client.Collection(paymentsCollection).
		Where("orderId", "==", id).
		Limit(1)

	var iter *firestore.DocumentIterator
	if tx, ok := txFrom(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Payment{}, pfirestore.WrapError("payments.byOrder", newNotFoundError(fmt.Sprintf("payment for order %s not found", id)))
	}
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.byOrder", err)
	}
	var doc paymentDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Payment{}, fmt.Errorf("decode payment %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *PaymentRepository) List(ctx context.Context, filter repositories.PaymentListFilter) (domain.CursorPage[domain.Payment], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Payment]{}, errors.New("payment repository not initialised")
	}

	pageSize := normalisePageSize(filter.Pagination.PageSize)

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Payment]{}, pfirestore.WrapError("payments.list", err)
	}

	query := client.Collection(paymentsCollection).Query
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
		query = query.Where("orderId", "==", orderID)
	}
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
			return domain.CursorPage[domain.Payment]{}, pfirestore.WrapError("payments.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var payments []domain.Payment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Payment]{}, pfirestore.WrapError("payments.list", err)
		}
		var doc paymentDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Payment]{}, fmt.Errorf("decode payment %s: %w", snap.Ref.ID, err)
		}
		payments = append(payments, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(payments) > pageSize
	if hasMore {
		payments = payments[:pageSize]
	}
	var nextToken string
	if hasMore && len(payments) > 0 {
		last := payments[len(payments)-1]
		nextToken, err = encodeListCursor(listCursor{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Payment]{}, pfirestore.WrapError("payments.list", err)
		}
	}

	return domain.CursorPage[domain.Payment]{Items: payments, NextPageToken: nextToken}, nil
}
