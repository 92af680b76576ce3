package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/services"
)

type stubInventoryService struct {
	createItemFn     func(context.Context, services.UpsertInventoryItemCommand) (services.InventoryItem, error)
	getItemFn        func(context.Context, string) (services.InventoryItem, error)
	listItemsFn      func(context.Context, services.InventoryListFilter) (domain.CursorPage[services.InventoryItem], error)
	updateItemFn     func(context.Context, services.UpsertInventoryItemCommand) (services.InventoryItem, error)
	deleteItemFn     func(context.Context, string) error
	adjustQuantityFn func(context.Context, services.AdjustQuantityCommand) (services.InventoryItem, error)
}

func (s *stubInventoryService) CreateItem(ctx context.Context, cmd services.UpsertInventoryItemCommand) (services.InventoryItem, error) {
	if s.createItemFn != nil {
		return s.createItemFn(ctx, cmd)
	}
	return services.InventoryItem{}, fmt.Errorf("not implemented")
}

func (s *stubInventoryService) GetItem(ctx context.Context, itemID string) (services.InventoryItem, error) {
	if s.getItemFn != nil {
		return s.getItemFn(ctx, itemID)
	}
	return services.InventoryItem{}, fmt.Errorf("not implemented")
}

func (s *stubInventoryService) ListItems(ctx context.Context, filter services.InventoryListFilter) (domain.CursorPage[services.InventoryItem], error) {
	if s.listItemsFn != nil {
		return s.listItemsFn(ctx, filter)
	}
	return domain.CursorPage[services.InventoryItem]{}, nil
}

func (s *stubInventoryService) UpdateItem(ctx context.Context, cmd services.UpsertInventoryItemCommand) (services.InventoryItem, error) {
	if s.updateItemFn != nil {
		return s.updateItemFn(ctx, cmd)
	}
	return services.InventoryItem{}, fmt.Errorf("not implemented")
}

func (s *stubInventoryService) DeleteItem(ctx context.Context, itemID string) error {
	if s.deleteItemFn != nil {
		return s.deleteItemFn(ctx, itemID)
	}
	return fmt.Errorf("not implemented")
}

func (s *stubInventoryService) AdjustQuantity(ctx context.Context, cmd services.AdjustQuantityCommand) (services.InventoryItem, error) {
	if s.adjustQuantityFn != nil {
		return s.adjustQuantityFn(ctx, cmd)
	}
	return services.InventoryItem{}, fmt.Errorf("not implemented")
}

func (s *stubInventoryService) ValidateLines(context.Context, []services.StockLine) ([]services.InventoryItem, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubInventoryService) CommitLines(context.Context, []services.InventoryItem, []services.StockLine, time.Time) (map[string]services.InventoryItem, error) {
	return nil, fmt.Errorf("not implemented")
}

var _ services.InventoryService = (*stubInventoryService)(nil)

func newInventoryRouter(svc services.InventoryService) chi.Router {
	handlers := NewInventoryHandlers(svc)
	r := chi.NewRouter()
	r.Route("/inventory", handlers.Routes)
	return r
}

func sampleInventoryItem() services.InventoryItem {
	created := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)
	return services.InventoryItem{
		ID:        "inv_1",
		Name:      "Blue Pen",
		Category:  "stationery",
		Quantity:  25,
		UnitPrice: 150,
		Status:    domain.StockStatusInStock,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestInventoryHandlersCreateItem(t *testing.T) {
	var captured services.UpsertInventoryItemCommand
	svc := &stubInventoryService{
		createItemFn: func(_ context.Context, cmd services.UpsertInventoryItemCommand) (services.InventoryItem, error) {
			captured = cmd
			return sampleInventoryItem(), nil
		},
	}
	router := newInventoryRouter(svc)

	body := `{"name":"Blue Pen","category":"stationery","quantity":25,"unit_price":150}`
	req := httptest.NewRequest(http.MethodPost, "/inventory/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Name != "Blue Pen" || captured.Quantity != 25 || captured.UnitPrice != 150 {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp struct {
		Item struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"item"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Item.ID != "inv_1" || resp.Item.Status != "in_stock" {
		t.Fatalf("unexpected item %+v", resp.Item)
	}
}

func TestInventoryHandlersCreateItemInvalid(t *testing.T) {
	svc := &stubInventoryService{
		createItemFn: func(context.Context, services.UpsertInventoryItemCommand) (services.InventoryItem, error) {
			return services.InventoryItem{}, services.ErrInventoryInvalidInput
		},
	}
	router := newInventoryRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/inventory/", strings.NewReader(`{"name":""}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInventoryHandlersGetItemNotFound(t *testing.T) {
	svc := &stubInventoryService{
		getItemFn: func(context.Context, string) (services.InventoryItem, error) {
			return services.InventoryItem{}, services.ErrProductNotFound
		},
	}
	router := newInventoryRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/inventory/inv_404", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["error"] != "product_not_found" {
		t.Fatalf("expected product_not_found, got %v", body["error"])
	}
}

func TestInventoryHandlersListItemsFilters(t *testing.T) {
	var captured services.InventoryListFilter
	svc := &stubInventoryService{
		listItemsFn: func(_ context.Context, filter services.InventoryListFilter) (domain.CursorPage[services.InventoryItem], error) {
			captured = filter
			return domain.CursorPage[services.InventoryItem]{Items: []services.InventoryItem{sampleInventoryItem()}}, nil
		},
	}
	router := newInventoryRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/inventory/?category=stationery&status=low_stock,out_of_stock&search=pen&page_size=10", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Category != "stationery" || captured.Search != "pen" {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if len(captured.Status) != 2 || captured.Status[1] != "out_of_stock" {
		t.Fatalf("unexpected status filter %+v", captured.Status)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("unexpected page size %d", captured.Pagination.PageSize)
	}
}

func TestInventoryHandlersListItemsRejectsBadPageSize(t *testing.T) {
	router := newInventoryRouter(&stubInventoryService{})

	req := httptest.NewRequest(http.MethodGet, "/inventory/?page_size=lots", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInventoryHandlersUpdateItem(t *testing.T) {
	var captured services.UpsertInventoryItemCommand
	svc := &stubInventoryService{
		updateItemFn: func(_ context.Context, cmd services.UpsertInventoryItemCommand) (services.InventoryItem, error) {
			captured = cmd
			return sampleInventoryItem(), nil
		},
	}
	router := newInventoryRouter(svc)

	req := httptest.NewRequest(http.MethodPut, "/inventory/inv_1", strings.NewReader(`{"name":"Blue Pen","quantity":30,"unit_price":175}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ItemID != "inv_1" || captured.Quantity != 30 || captured.UnitPrice != 175 {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestInventoryHandlersDeleteItem(t *testing.T) {
	deleted := ""
	svc := &stubInventoryService{
		deleteItemFn: func(_ context.Context, itemID string) error {
			deleted = itemID
			return nil
		},
	}
	router := newInventoryRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/inventory/inv_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if deleted != "inv_1" {
		t.Fatalf("unexpected item id %q", deleted)
	}
}

func TestInventoryHandlersAdjustQuantity(t *testing.T) {
	var captured services.AdjustQuantityCommand
	svc := &stubInventoryService{
		adjustQuantityFn: func(_ context.Context, cmd services.AdjustQuantityCommand) (services.InventoryItem, error) {
			captured = cmd
			item := sampleInventoryItem()
			item.Quantity += cmd.Delta
			return item, nil
		},
	}
	router := newInventoryRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/inventory/inv_1/adjust", strings.NewReader(`{"delta":-5,"reason":"stocktake"}`))
	req.Header.Set(actorHeaderName, "admin-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ItemID != "inv_1" || captured.Delta != -5 || captured.Reason != "stocktake" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.ActorID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %q", captured.ActorID)
	}
}

func TestInventoryHandlersAdjustQuantityInsufficient(t *testing.T) {
	svc := &stubInventoryService{
		adjustQuantityFn: func(context.Context, services.AdjustQuantityCommand) (services.InventoryItem, error) {
			return services.InventoryItem{}, services.ErrInsufficientInventory
		},
	}
	router := newInventoryRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/inventory/inv_1/adjust", strings.NewReader(`{"delta":-100}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["error"] != "insufficient_inventory" {
		t.Fatalf("expected insufficient_inventory, got %v", body["error"])
	}
}
