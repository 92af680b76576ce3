package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/orderdesk/api/internal/domain"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
	"github.com/orderdesk/api/internal/repositories"
)

const inventoryCollection = "inventory"

type itemDocument struct {
	Name        string    `firestore:"name"`
	Category    string    `firestore:"category,omitempty"`
	Description string    `firestore:"description,omitempty"`
	Quantity    int64     `firestore:"quantity"`
	UnitPrice   int64     `firestore:"unitPrice"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// recalculate keeps the stored status in lockstep with quantity. Every write
// path must call this after touching Quantity.
func (d *itemDocument) recalculate() {
	d.Status = string(domain.StockStatusForQuantity(d.Quantity))
}

func newItemDocument(item domain.InventoryItem) itemDocument {
	doc := itemDocument{
		Name:        strings.TrimSpace(item.Name),
		Category:    strings.TrimSpace(item.Category),
		Description: strings.TrimSpace(item.Description),
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		CreatedAt:   item.CreatedAt.UTC(),
		UpdatedAt:   item.UpdatedAt.UTC(),
	}
	doc.recalculate()
	return doc
}

func (d itemDocument) toDomain(id string) domain.InventoryItem {
	return domain.InventoryItem{
		ID:          id,
		Name:        d.Name,
		Category:    d.Category,
		Description: d.Description,
		Quantity:    d.Quantity,
		UnitPrice:   d.UnitPrice,
		Status:      domain.StockStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// InventoryRepository implements repositories.InventoryRepository on Firestore.
type InventoryRepository struct {
	provider *pfirestore.Provider
	items    *pfirestore.BaseRepository[itemDocument]
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	items := pfirestore.NewBaseRepository[itemDocument](provider, inventoryCollection, nil, nil)
	return &InventoryRepository{provider: provider, items: items}, nil
}

func (r *InventoryRepository) Insert(ctx context.Context, item domain.InventoryItem) error {
	if r == nil || r.items == nil {
		return errors.New("inventory repository not initialised")
	}
	if strings.TrimSpace(item.ID) == "" {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory insert: id is required", nil)
	}
	if item.Quantity < 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory insert: quantity must be >= 0", nil)
	}
	ref, err := r.items.DocumentRef(ctx, item.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newItemDocument(item)); err != nil {
		return wrapInventoryError("inventory.insert", err)
	}
	return nil
}

func (r *InventoryRepository) Update(ctx context.Context, item domain.InventoryItem) error {
	if r == nil || r.items == nil {
		return errors.New("inventory repository not initialised")
	}
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory update: id is required", nil)
	}
	if item.Quantity < 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory update: quantity must be >= 0", nil)
	}
	ref, err := r.items.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := newItemDocument(item)
	// Transactional callers read the item during their read phase and carry
	// the original CreatedAt; re-reading here would break Firestore's
	// reads-before-writes ordering.
	if _, ok := txFrom(ctx); !ok {
		snap, err := getDocument(ctx, ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, fmt.Sprintf("product %s not found", id), err)
			}
			return wrapInventoryError("inventory.update", err)
		}
		var existing itemDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode inventory item %s: %w", id, err)
		}
		doc.CreatedAt = existing.CreatedAt
	}
	if err := setDocument(ctx, ref, doc); err != nil {
		return wrapInventoryError("inventory.update", err)
	}
	return nil
}

func (r *InventoryRepository) Delete(ctx context.Context, itemID string) error {
	if r == nil || r.items == nil {
		return errors.New("inventory repository not initialised")
	}
	id := strings.TrimSpace(itemID)
	if id == "" {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory delete: id is required", nil)
	}
	ref, err := r.items.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := getDocument(ctx, ref); err != nil {
		if status.Code(err) == codes.NotFound {
			return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, fmt.Sprintf("product %s not found", id), err)
		}
		return wrapInventoryError("inventory.delete", err)
	}
	if err := deleteDocument(ctx, ref); err != nil {
		return wrapInventoryError("inventory.delete", err)
	}
	return nil
}

func (r *InventoryRepository) FindByID(ctx context.Context, itemID string) (domain.InventoryItem, error) {
	if r == nil || r.items == nil {
		return domain.InventoryItem{}, errors.New("inventory repository not initialised")
	}
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.InventoryItem{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory find: id is required", nil)
	}
	ref, err := r.items.DocumentRef(ctx, id)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.InventoryItem{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, fmt.Sprintf("product %s not found", id), err)
		}
		return domain.InventoryItem{}, wrapInventoryError("inventory.get", err)
	}
	var doc itemDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.InventoryItem{}, fmt.Errorf("decode inventory item %s: %w", id, err)
	}
	return doc.toDomain(id), nil
}

func (r *InventoryRepository) List(ctx context.Context, filter repositories.InventoryListFilter) (domain.CursorPage[domain.InventoryItem], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.InventoryItem]{}, errors.New("inventory repository not initialised")
	}

	pageSize := normalisePageSize(filter.Pagination.PageSize)

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.InventoryItem]{}, wrapInventoryError("inventory.list", err)
	}

	query := client.Collection(inventoryCollection).Query
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category", "==", category)
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
			return domain.CursorPage[domain.InventoryItem]{}, wrapInventoryError("inventory.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var items []domain.InventoryItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.InventoryItem]{}, wrapInventoryError("inventory.list", err)
		}
		var doc itemDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.InventoryItem]{}, fmt.Errorf("decode inventory item %s: %w", snap.Ref.ID, err)
		}
		item := doc.toDomain(snap.Ref.ID)
		if search != "" && !strings.Contains(strings.ToLower(item.Name), search) {
			continue
		}
		items = append(items, item)
	}

	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	var nextToken string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextToken, err = encodeListCursor(listCursor{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.InventoryItem]{}, wrapInventoryError("inventory.list", err)
		}
	}

	return domain.CursorPage[domain.InventoryItem]{Items: items, NextPageToken: nextToken}, nil
}

func (r *InventoryRepository) AdjustQuantities(ctx context.Context, req repositories.InventoryAdjustRequest) (repositories.InventoryAdjustResult, error) {
	if r == nil || r.items == nil {
		return repositories.InventoryAdjustResult{}, errors.New("inventory repository not initialised")
	}
	if len(req.Adjustments) == 0 {
		return repositories.InventoryAdjustResult{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory adjust: at least one adjustment is required", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	apply := func(ctx context.Context) (repositories.InventoryAdjustResult, error) {
		type pending struct {
			ref *firestore.DocumentRef
			doc itemDocument
			id  string
		}

		// All reads happen before the first write so the batch stays inside
		// Firestore's transactional ordering rules.
		writes := make([]pending, 0, len(req.Adjustments))
		for _, adj := range req.Adjustments {
			id := strings.TrimSpace(adj.ProductID)
			if id == "" {
				return repositories.InventoryAdjustResult{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "inventory adjust: product id is required", nil)
			}
			ref, err := r.items.DocumentRef(ctx, id)
			if err != nil {
				return repositories.InventoryAdjustResult{}, err
			}
			snap, err := getDocument(ctx, ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.InventoryAdjustResult{}, &repositories.InventoryError{
						Code:      repositories.InventoryErrorProductNotFound,
						ProductID: id,
						Message:   fmt.Sprintf("product %s not found", id),
						Err:       err,
					}
				}
				return repositories.InventoryAdjustResult{}, err
			}
			var doc itemDocument
			if err := snap.DataTo(&doc); err != nil {
				return repositories.InventoryAdjustResult{}, fmt.Errorf("decode inventory item %s: %w", id, err)
			}

			newQuantity := doc.Quantity + adj.Delta
			if newQuantity < 0 {
				return repositories.InventoryAdjustResult{}, &repositories.InventoryError{
					Code:      repositories.InventoryErrorInsufficientStock,
					ProductID: id,
					Message:   fmt.Sprintf("insufficient stock for %s (%s): have %d, need %d", doc.Name, id, doc.Quantity, -adj.Delta),
				}
			}
			doc.Quantity = newQuantity
			doc.UpdatedAt = now
			doc.recalculate()
			writes = append(writes, pending{ref: ref, doc: doc, id: id})
		}

		items := make(map[string]domain.InventoryItem, len(writes))
		for _, w := range writes {
			if err := setDocument(ctx, w.ref, w.doc); err != nil {
				return repositories.InventoryAdjustResult{}, err
			}
			items[w.id] = w.doc.toDomain(w.id)
		}
		return repositories.InventoryAdjustResult{Items: items}, nil
	}

	if _, ok := txFrom(ctx); ok {
		result, err := apply(ctx)
		if err != nil {
			return repositories.InventoryAdjustResult{}, wrapInventoryError("inventory.adjust", err)
		}
		return result, nil
	}

	var result repositories.InventoryAdjustResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var err error
		result, err = apply(withTx(ctx, tx))
		return err
	})
	if err != nil {
		return repositories.InventoryAdjustResult{}, wrapInventoryError("inventory.adjust", err)
	}
	return result, nil
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
