package di

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/oklog/ulid/v2"

	"github.com/orderdesk/api/internal/platform/config"
	"github.com/orderdesk/api/internal/repositories"
	"github.com/orderdesk/api/internal/services"
)

// EventPublisher is the combined sink for every domain event family the
// services emit. A single Pub/Sub topic backs all three in production.
type EventPublisher interface {
	services.OrderEventPublisher
	services.InventoryEventPublisher
	services.CustomerEventPublisher
}

// Services groups the constructed service layer for handler wiring.
type Services struct {
	Orders    services.OrderService
	Inventory services.InventoryService
	Customers services.CustomerService
	Settings  services.SettingsService
	Counters  services.CounterService
	Pricing   services.PricingEngine
	System    services.SystemService
}

// ContainerDeps carries the externally owned resources the container
// assembles services from. Repositories is required; the rest fall back to
// sensible defaults.
type ContainerDeps struct {
	Config       config.Config
	Logger       *zap.Logger
	Repositories repositories.Registry
	Events       EventPublisher
	Build        services.BuildInfo
	Clock        func() time.Time
	IDGenerator  func() string
}

// Container owns the wired service graph for the API process.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer builds every service against the provided repository registry.
func NewContainer(deps ContainerDeps) (*Container, error) {
	if deps.Repositories == nil {
		return nil, errors.New("di: repository registry is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return ulid.Make().String() }
	}

	reg := deps.Repositories

	counterService, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      clock,
	})
	if err != nil {
		return nil, err
	}

	pricingEngine, err := services.NewStandardPricingEngine(services.StandardPricingEngineDeps{
		Settings: reg.Settings(),
		Now:      clock,
		Logger:   serviceLogger(logger.Named("pricing")),
	})
	if err != nil {
		return nil, err
	}

	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory:   reg.Inventory(),
		Events:      deps.Events,
		Clock:       clock,
		IDGenerator: idGenerator,
		Logger:      serviceLogger(logger.Named("inventory")),
	})
	if err != nil {
		return nil, err
	}

	customerService, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers:   reg.Customers(),
		Orders:      reg.Orders(),
		Clock:       clock,
		IDGenerator: idGenerator,
		Events:      deps.Events,
		Logger:      serviceLogger(logger.Named("customers")),
	})
	if err != nil {
		return nil, err
	}

	settingsService, err := services.NewSettingsService(services.SettingsServiceDeps{
		Repository: reg.Settings(),
		Clock:      clock,
		Logger:     serviceLogger(logger.Named("settings")),
	})
	if err != nil {
		return nil, err
	}

	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            clock,
		Build:            deps.Build,
	})
	if err != nil {
		return nil, err
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		Payments:    reg.Payments(),
		Customers:   reg.Customers(),
		Inventory:   inventoryService,
		Pricing:     pricingEngine,
		Counters:    counterService,
		UnitOfWork:  reg,
		Clock:       clock,
		IDGenerator: idGenerator,
		Events:      deps.Events,
		Logger:      serviceLogger(logger.Named("orders")),
	})
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: reg,
		Services: Services{
			Orders:    orderService,
			Inventory: inventoryService,
			Customers: customerService,
			Settings:  settingsService,
			Counters:  counterService,
			Pricing:   pricingEngine,
			System:    systemService,
		},
	}, nil
}

// Close releases repository resources owned by the container.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		return nil
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zFields = append(zFields, zap.Any(key, value))
		}
		logger.Debug(event, zFields...)
	}
}
