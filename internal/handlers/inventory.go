package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/services"
)

const (
	defaultInventoryPageSize = 20
	maxInventoryPageSize     = 100
)

type upsertInventoryItemRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

type adjustQuantityRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// InventoryHandlers exposes catalogue management endpoints.
type InventoryHandlers struct {
	inventory services.InventoryService
}

// NewInventoryHandlers constructs a new InventoryHandlers instance.
func NewInventoryHandlers(inventory services.InventoryService) *InventoryHandlers {
	return &InventoryHandlers{inventory: inventory}
}

// Routes registers the /inventory endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createItem)
	r.Get("/", h.listItems)
	r.Get("/{itemID}", h.getItem)
	r.Put("/{itemID}", h.updateItem)
	r.Delete("/{itemID}", h.deleteItem)
	r.Post("/{itemID}/adjust", h.adjustQuantity)
}

func (h *InventoryHandlers) createItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertInventoryItemRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	item, err := h.inventory.CreateItem(ctx, services.UpsertInventoryItemCommand{
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, inventoryItemResponse{Item: buildInventoryItemPayload(item)})
}

func (h *InventoryHandlers) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, ok := parsePageSize(ctx, w, query.Get("page_size"), defaultInventoryPageSize, maxInventoryPageSize)
	if !ok {
		return
	}

	page, err := h.inventory.ListItems(ctx, services.InventoryListFilter{
		Category: strings.TrimSpace(query.Get("category")),
		Status:   parseFilterValues(query["status"]),
		Search:   strings.TrimSpace(query.Get("search")),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	items := make([]inventoryItemPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildInventoryItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, inventoryListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *InventoryHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	item, err := h.inventory.GetItem(ctx, itemID)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, inventoryItemResponse{Item: buildInventoryItemPayload(item)})
}

func (h *InventoryHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	var req upsertInventoryItemRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	item, err := h.inventory.UpdateItem(ctx, services.UpsertInventoryItemCommand{
		ItemID:      itemID,
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, inventoryItemResponse{Item: buildInventoryItemPayload(item)})
}

func (h *InventoryHandlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	if err := h.inventory.DeleteItem(ctx, itemID); err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandlers) adjustQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	var req adjustQuantityRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	item, err := h.inventory.AdjustQuantity(ctx, services.AdjustQuantityCommand{
		ItemID:  itemID,
		Delta:   req.Delta,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: actorID(r),
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, inventoryItemResponse{Item: buildInventoryItemPayload(item)})
}

type inventoryListResponse struct {
	Items         []inventoryItemPayload `json:"items"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

type inventoryItemResponse struct {
	Item inventoryItemPayload `json:"item"`
}

type inventoryItemPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildInventoryItemPayload(item services.InventoryItem) inventoryItemPayload {
	return inventoryItemPayload{
		ID:          strings.TrimSpace(item.ID),
		Name:        strings.TrimSpace(item.Name),
		Category:    strings.TrimSpace(item.Category),
		Description: strings.TrimSpace(item.Description),
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		Status:      string(item.Status),
		CreatedAt:   formatTime(item.CreatedAt),
		UpdatedAt:   formatTime(item.UpdatedAt),
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientInventory):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_inventory", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	parsed := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
	}
	if len(parsed) == 0 {
		return nil
	}
	return parsed
}

func parseTimeParam(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}

func parsePageSize(ctx context.Context, w http.ResponseWriter, raw string, def, max int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, true
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return 0, false
	}
	switch {
	case size <= 0:
		return def, true
	case size > max:
		return max, true
	default:
		return size, true
	}
}
