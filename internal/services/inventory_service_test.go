package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

type stubInventoryRepo struct {
	insertFn func(context.Context, domain.InventoryItem) error
	updateFn func(context.Context, domain.InventoryItem) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.InventoryItem, error)
	listFn   func(context.Context, repositories.InventoryListFilter) (domain.CursorPage[domain.InventoryItem], error)
	adjustFn func(context.Context, repositories.InventoryAdjustRequest) (repositories.InventoryAdjustResult, error)
}

func (s *stubInventoryRepo) Insert(ctx context.Context, item domain.InventoryItem) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, item)
	}
	return nil
}

func (s *stubInventoryRepo) Update(ctx context.Context, item domain.InventoryItem) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, item)
	}
	return nil
}

func (s *stubInventoryRepo) Delete(ctx context.Context, itemID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, itemID)
	}
	return nil
}

func (s *stubInventoryRepo) FindByID(ctx context.Context, itemID string) (domain.InventoryItem, error) {
	if s.findFn != nil {
		return s.findFn(ctx, itemID)
	}
	return domain.InventoryItem{}, errors.New("not implemented")
}

func (s *stubInventoryRepo) List(ctx context.Context, filter repositories.InventoryListFilter) (domain.CursorPage[domain.InventoryItem], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.InventoryItem]{}, nil
}

func (s *stubInventoryRepo) AdjustQuantities(ctx context.Context, req repositories.InventoryAdjustRequest) (repositories.InventoryAdjustResult, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, req)
	}
	return repositories.InventoryAdjustResult{}, errors.New("not implemented")
}

type captureInventoryEvents struct {
	events []InventoryStockEvent
}

func (c *captureInventoryEvents) PublishInventoryEvent(_ context.Context, event InventoryStockEvent) error {
	c.events = append(c.events, event)
	return nil
}

func newInventoryServiceForTest(t *testing.T, repo repositories.InventoryRepository, events InventoryEventPublisher) InventoryService {
	t.Helper()
	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: repo,
		Events:    events,
		Clock: func() time.Time {
			return time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
		},
		IDGenerator: func() string { return "000TEST" },
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	return svc
}

func TestInventoryServiceCreateItemDerivesStatus(t *testing.T) {
	ctx := context.Background()
	var inserted domain.InventoryItem
	repo := &stubInventoryRepo{
		insertFn: func(_ context.Context, item domain.InventoryItem) error {
			inserted = item
			return nil
		},
	}
	events := &captureInventoryEvents{}
	svc := newInventoryServiceForTest(t, repo, events)

	cases := []struct {
		quantity int64
		want     domain.StockStatus
	}{
		{quantity: 0, want: domain.StockStatusOutOfStock},
		{quantity: 10, want: domain.StockStatusLowStock},
		{quantity: 11, want: domain.StockStatusInStock},
	}

	for _, tc := range cases {
		item, err := svc.CreateItem(ctx, UpsertInventoryItemCommand{
			Name:      "Blue Pen",
			Quantity:  tc.quantity,
			UnitPrice: 150,
		})
		if err != nil {
			t.Fatalf("create item: %v", err)
		}
		if item.Status != tc.want {
			t.Fatalf("quantity %d: expected %s, got %s", tc.quantity, tc.want, item.Status)
		}
		if inserted.Status != tc.want {
			t.Fatalf("quantity %d: persisted status %s", tc.quantity, inserted.Status)
		}
	}

	if !strings.HasPrefix(inserted.ID, "inv_") {
		t.Fatalf("unexpected item id %s", inserted.ID)
	}
	if len(events.events) != len(cases) {
		t.Fatalf("expected %d events, got %d", len(cases), len(events.events))
	}
}

func TestInventoryServiceValidateLines(t *testing.T) {
	ctx := context.Background()
	repo := &stubInventoryRepo{
		findFn: func(_ context.Context, itemID string) (domain.InventoryItem, error) {
			switch itemID {
			case "inv_1":
				return domain.InventoryItem{ID: "inv_1", Name: "Blue Pen", Quantity: 5}, nil
			case "inv_2":
				return domain.InventoryItem{ID: "inv_2", Name: "Notebook", Quantity: 2}, nil
			default:
				return domain.InventoryItem{}, repositories.NewInventoryError(
					repositories.InventoryErrorProductNotFound, "product "+itemID+" not found", nil)
			}
		},
	}
	svc := newInventoryServiceForTest(t, repo, nil)

	items, err := svc.ValidateLines(ctx, []StockLine{
		{ProductID: "inv_1", Quantity: 3},
		{ProductID: "inv_2", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	_, err = svc.ValidateLines(ctx, []StockLine{{ProductID: "inv_9", Quantity: 1}})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}

	_, err = svc.ValidateLines(ctx, []StockLine{{ProductID: "inv_2", Quantity: 3}})
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if !strings.Contains(err.Error(), "Notebook") {
		t.Fatalf("error should name the product: %v", err)
	}
	if !strings.Contains(err.Error(), "have 2, need 3") {
		t.Fatalf("error should carry quantities: %v", err)
	}
}

func TestInventoryServiceValidateLinesAggregatesDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := &stubInventoryRepo{
		findFn: func(_ context.Context, itemID string) (domain.InventoryItem, error) {
			return domain.InventoryItem{ID: itemID, Name: "Blue Pen", Quantity: 5}, nil
		},
	}
	svc := newInventoryServiceForTest(t, repo, nil)

	// 3 + 3 exceeds the 5 on hand even though each line alone fits.
	_, err := svc.ValidateLines(ctx, []StockLine{
		{ProductID: "inv_1", Quantity: 3},
		{ProductID: "inv_1", Quantity: 3},
	})
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestInventoryServiceCommitLinesDecrementsAndReclassifies(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	updates := make([]domain.InventoryItem, 0, 2)
	repo := &stubInventoryRepo{
		updateFn: func(_ context.Context, item domain.InventoryItem) error {
			updates = append(updates, item)
			return nil
		},
	}
	events := &captureInventoryEvents{}
	svc := newInventoryServiceForTest(t, repo, events)

	items := []InventoryItem{
		{ID: "inv_1", Name: "Blue Pen", Quantity: 12, Status: domain.StockStatusInStock},
		{ID: "inv_2", Name: "Notebook", Quantity: 2, Status: domain.StockStatusLowStock},
	}

	committed, err := svc.CommitLines(ctx, items, []StockLine{
		{ProductID: "inv_1", Quantity: 4},
		{ProductID: "inv_2", Quantity: 2},
	}, now)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	pen := committed["inv_1"]
	if pen.Quantity != 8 || pen.Status != domain.StockStatusLowStock {
		t.Fatalf("unexpected pen state %+v", pen)
	}
	notebook := committed["inv_2"]
	if notebook.Quantity != 0 || notebook.Status != domain.StockStatusOutOfStock {
		t.Fatalf("unexpected notebook state %+v", notebook)
	}

	if len(updates) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(updates))
	}
	for _, update := range updates {
		if !update.UpdatedAt.Equal(now) {
			t.Fatalf("expected updatedAt %v, got %v", now, update.UpdatedAt)
		}
	}
	if len(events.events) != 2 || events.events[0].Type != eventInventoryStockCommitted {
		t.Fatalf("unexpected events %+v", events.events)
	}
}

func TestInventoryServiceCommitLinesRevalidates(t *testing.T) {
	ctx := context.Background()
	repo := &stubInventoryRepo{}
	svc := newInventoryServiceForTest(t, repo, nil)

	items := []InventoryItem{{ID: "inv_1", Name: "Blue Pen", Quantity: 1}}
	_, err := svc.CommitLines(ctx, items, []StockLine{{ProductID: "inv_1", Quantity: 2}}, time.Now())
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestInventoryServiceAdjustQuantity(t *testing.T) {
	ctx := context.Background()
	var req repositories.InventoryAdjustRequest
	repo := &stubInventoryRepo{
		adjustFn: func(_ context.Context, r repositories.InventoryAdjustRequest) (repositories.InventoryAdjustResult, error) {
			req = r
			return repositories.InventoryAdjustResult{
				Items: map[string]domain.InventoryItem{
					"inv_1": {ID: "inv_1", Quantity: 7, Status: domain.StockStatusLowStock},
				},
			}, nil
		},
	}
	events := &captureInventoryEvents{}
	svc := newInventoryServiceForTest(t, repo, events)

	item, err := svc.AdjustQuantity(ctx, AdjustQuantityCommand{ItemID: "inv_1", Delta: -3, Reason: "damage write-off"})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if item.Quantity != 7 {
		t.Fatalf("unexpected quantity %d", item.Quantity)
	}
	if len(req.Adjustments) != 1 || req.Adjustments[0].Delta != -3 {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(events.events) != 1 || events.events[0].Type != eventInventoryStockAdjusted {
		t.Fatalf("unexpected events %+v", events.events)
	}
	if events.events[0].Reason != "damage write-off" {
		t.Fatalf("unexpected reason %q", events.events[0].Reason)
	}

	if _, err := svc.AdjustQuantity(ctx, AdjustQuantityCommand{ItemID: "inv_1", Delta: 0}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for zero delta, got %v", err)
	}
}

func TestInventoryServiceMapsRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	repo := &stubInventoryRepo{
		findFn: func(_ context.Context, itemID string) (domain.InventoryItem, error) {
			return domain.InventoryItem{}, repositories.NewInventoryError(
				repositories.InventoryErrorProductNotFound, "product "+itemID+" not found", nil)
		},
	}
	svc := newInventoryServiceForTest(t, repo, nil)

	if _, err := svc.GetItem(ctx, "inv_404"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}
