package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

const (
	eventInventoryItemCreated    = "inventory.item.created"
	eventInventoryItemUpdated    = "inventory.item.updated"
	eventInventoryItemDeleted    = "inventory.item.deleted"
	eventInventoryStockAdjusted  = "inventory.stock.adjusted"
	eventInventoryStockCommitted = "inventory.stock.committed"

	inventoryItemIDPrefix = "inv_"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrProductNotFound indicates the referenced product does not exist in the catalogue.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrInsufficientInventory indicates the requested quantity exceeds availability.
	ErrInsufficientInventory = errors.New("inventory: insufficient stock")
)

// InventoryEventPublisher publishes stock movement events for downstream consumers.
type InventoryEventPublisher interface {
	PublishInventoryEvent(ctx context.Context, event InventoryStockEvent) error
}

// InventoryStockEvent captures metadata for emitted stock movement events.
type InventoryStockEvent struct {
	Type       string
	ProductID  string
	Delta      int64
	Quantity   int64
	Status     StockStatus
	OrderRef   string
	ActorID    string
	Reason     string
	OccurredAt time.Time
}

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory   repositories.InventoryRepository
	Events      InventoryEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	events InventoryEventPublisher
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
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

	return &inventoryService{
		repo:   deps.Inventory,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *inventoryService) CreateItem(ctx context.Context, cmd UpsertInventoryItemCommand) (InventoryItem, error) {
	if err := validateItemInput(cmd); err != nil {
		return InventoryItem{}, err
	}

	now := s.now()
	item := domain.InventoryItem{
		ID:          ensureItemID(s.newID()),
		Name:        strings.TrimSpace(cmd.Name),
		Category:    strings.TrimSpace(cmd.Category),
		Description: strings.TrimSpace(cmd.Description),
		Quantity:    cmd.Quantity,
		UnitPrice:   cmd.UnitPrice,
		Status:      domain.StockStatusForQuantity(cmd.Quantity),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, item); err != nil {
		return InventoryItem{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, InventoryStockEvent{
		Type:       eventInventoryItemCreated,
		ProductID:  item.ID,
		Quantity:   item.Quantity,
		Status:     item.Status,
		OccurredAt: now,
	})

	return item, nil
}

func (s *inventoryService) GetItem(ctx context.Context, itemID string) (InventoryItem, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return InventoryItem{}, fmt.Errorf("%w: item id is required", ErrInventoryInvalidInput)
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return InventoryItem{}, s.mapRepositoryError(err)
	}
	return item, nil
}

func (s *inventoryService) ListItems(ctx context.Context, filter InventoryListFilter) (domain.CursorPage[InventoryItem], error) {
	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[InventoryItem]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *inventoryService) UpdateItem(ctx context.Context, cmd UpsertInventoryItemCommand) (InventoryItem, error) {
	id := strings.TrimSpace(cmd.ItemID)
	if id == "" {
		return InventoryItem{}, fmt.Errorf("%w: item id is required", ErrInventoryInvalidInput)
	}
	if err := validateItemInput(cmd); err != nil {
		return InventoryItem{}, err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return InventoryItem{}, s.mapRepositoryError(err)
	}

	now := s.now()
	updated := existing
	updated.Name = strings.TrimSpace(cmd.Name)
	updated.Category = strings.TrimSpace(cmd.Category)
	updated.Description = strings.TrimSpace(cmd.Description)
	updated.Quantity = cmd.Quantity
	updated.UnitPrice = cmd.UnitPrice
	updated.Status = domain.StockStatusForQuantity(cmd.Quantity)
	updated.UpdatedAt = now

	if err := s.repo.Update(ctx, updated); err != nil {
		return InventoryItem{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, InventoryStockEvent{
		Type:       eventInventoryItemUpdated,
		ProductID:  updated.ID,
		Delta:      updated.Quantity - existing.Quantity,
		Quantity:   updated.Quantity,
		Status:     updated.Status,
		OccurredAt: now,
	})

	return updated, nil
}

func (s *inventoryService) DeleteItem(ctx context.Context, itemID string) error {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return fmt.Errorf("%w: item id is required", ErrInventoryInvalidInput)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, InventoryStockEvent{
		Type:       eventInventoryItemDeleted,
		ProductID:  id,
		OccurredAt: s.now(),
	})

	return nil
}

func (s *inventoryService) AdjustQuantity(ctx context.Context, cmd AdjustQuantityCommand) (InventoryItem, error) {
	id := strings.TrimSpace(cmd.ItemID)
	if id == "" {
		return InventoryItem{}, fmt.Errorf("%w: item id is required", ErrInventoryInvalidInput)
	}
	if cmd.Delta == 0 {
		return InventoryItem{}, fmt.Errorf("%w: delta must be non-zero", ErrInventoryInvalidInput)
	}

	now := s.now()
	result, err := s.repo.AdjustQuantities(ctx, repositories.InventoryAdjustRequest{
		Adjustments: []repositories.InventoryAdjustment{{ProductID: id, Delta: cmd.Delta}},
		Reason:      strings.TrimSpace(cmd.Reason),
		Now:         now,
	})
	if err != nil {
		return InventoryItem{}, s.mapRepositoryError(err)
	}

	item, ok := result.Items[id]
	if !ok {
		return InventoryItem{}, fmt.Errorf("inventory: adjusted item %s missing from result", id)
	}

	s.publishEvent(ctx, InventoryStockEvent{
		Type:       eventInventoryStockAdjusted,
		ProductID:  item.ID,
		Delta:      cmd.Delta,
		Quantity:   item.Quantity,
		Status:     item.Status,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		Reason:     strings.TrimSpace(cmd.Reason),
		OccurredAt: now,
	})

	return item, nil
}

// ValidateLines loads each referenced product and checks availability without
// mutating stock. Inside a transaction these reads pin the product documents,
// so a concurrent sale forces a retry rather than an oversell.
func (s *inventoryService) ValidateLines(ctx context.Context, lines []StockLine) ([]InventoryItem, error) {
	normalised, err := normaliseStockLines(lines)
	if err != nil {
		return nil, err
	}

	items := make([]InventoryItem, 0, len(normalised))
	for _, line := range normalised {
		item, err := s.repo.FindByID(ctx, line.ProductID)
		if err != nil {
			if isInventoryNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
			}
			return nil, s.mapRepositoryError(err)
		}
		if item.Quantity < line.Quantity {
			return nil, fmt.Errorf("%w: %s (%s): have %d, need %d",
				ErrInsufficientInventory, item.Name, item.ID, item.Quantity, line.Quantity)
		}
		items = append(items, item)
	}

	return items, nil
}

// CommitLines decrements stock for previously validated items. The caller must
// pass the items returned by ValidateLines from the same transaction; the
// writes here are computed from those reads, keeping the Firestore read phase
// ahead of the write phase.
func (s *inventoryService) CommitLines(ctx context.Context, items []InventoryItem, lines []StockLine, now time.Time) (map[string]InventoryItem, error) {
	normalised, err := normaliseStockLines(lines)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]InventoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	committed := make(map[string]InventoryItem, len(normalised))
	for _, line := range normalised {
		item, ok := byID[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}
		remaining := item.Quantity - line.Quantity
		if remaining < 0 {
			return nil, fmt.Errorf("%w: %s (%s): have %d, need %d",
				ErrInsufficientInventory, item.Name, item.ID, item.Quantity, line.Quantity)
		}

		item.Quantity = remaining
		item.Status = domain.StockStatusForQuantity(remaining)
		item.UpdatedAt = now
		if err := s.repo.Update(ctx, item); err != nil {
			return nil, s.mapRepositoryError(err)
		}
		committed[item.ID] = item

		s.publishEvent(ctx, InventoryStockEvent{
			Type:       eventInventoryStockCommitted,
			ProductID:  item.ID,
			Delta:      -line.Quantity,
			Quantity:   item.Quantity,
			Status:     item.Status,
			OccurredAt: now,
		})
	}

	return committed, nil
}

func (s *inventoryService) now() time.Time {
	return s.clock()
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrInsufficientInventory, invErr.Message)
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrProductNotFound, invErr.Message)
		case repositories.InventoryErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, invErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrProductNotFound, err)
	}

	return err
}

func (s *inventoryService) publishEvent(ctx context.Context, event InventoryStockEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishInventoryEvent(ctx, event); err != nil {
		s.logger(ctx, "inventory.event.publish.failed", map[string]any{
			"type":    event.Type,
			"product": event.ProductID,
			"error":   err.Error(),
		})
	}
}

func isInventoryNotFound(err error) bool {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorProductNotFound {
		return true
	}
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func validateItemInput(cmd UpsertInventoryItemCommand) error {
	if strings.TrimSpace(cmd.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInventoryInvalidInput)
	}
	if cmd.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", ErrInventoryInvalidInput)
	}
	if cmd.UnitPrice < 0 {
		return fmt.Errorf("%w: unit price must be >= 0", ErrInventoryInvalidInput)
	}
	return nil
}

// normaliseStockLines aggregates duplicate product references and validates quantities.
func normaliseStockLines(lines []StockLine) ([]StockLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}

	aggregated := make(map[string]int64, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line product id is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInventoryInvalidInput, productID)
		}
		if _, ok := aggregated[productID]; !ok {
			order = append(order, productID)
		}
		aggregated[productID] += line.Quantity
	}

	result := make([]StockLine, 0, len(aggregated))
	for _, productID := range order {
		result = append(result, StockLine{ProductID: productID, Quantity: aggregated[productID]})
	}
	if len(result) > 1 {
		sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	}
	return result, nil
}

func ensureItemID(candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		trimmed = ulid.Make().String()
	}
	if strings.HasPrefix(trimmed, inventoryItemIDPrefix) {
		return trimmed
	}
	return inventoryItemIDPrefix + trimmed
}
