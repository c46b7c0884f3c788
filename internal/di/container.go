package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopstream/api/internal/platform/config"
	"github.com/shopstream/api/internal/repositories"
	"github.com/shopstream/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders    services.OrderService
	Inventory services.InventoryService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

type containerConfig struct {
	logger          *zap.Logger
	clock           func() time.Time
	orderEvents     services.OrderEventPublisher
	inventoryEvents services.InventoryEventPublisher
}

// ContainerOption customises container construction.
type ContainerOption func(*containerConfig)

// WithLogger routes service-level log events through the supplied zap logger.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) ContainerOption {
	return func(cfg *containerConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithOrderEventPublisher attaches a publisher for order lifecycle events.
func WithOrderEventPublisher(pub services.OrderEventPublisher) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.orderEvents = pub
	}
}

// WithInventoryEventPublisher attaches a publisher for stock mutation events.
func WithInventoryEventPublisher(pub services.InventoryEventPublisher) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.inventoryEvents = pub
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// a Firestore-backed registry, while tests can supply the in-memory one.
func NewContainer(cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	cc := containerConfig{clock: time.Now}
	for _, opt := range opts {
		opt(&cc)
	}

	svc, err := buildServices(cfg, reg, cc)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients and any attached resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, cc containerConfig) (Services, error) {
	var svc Services

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Events:    cc.inventoryEvents,
		Clock:     cc.clock,
		Logger:    serviceLogger(cc.logger, "inventory"),
	})
	if err != nil {
		return svc, fmt.Errorf("di: inventory service: %w", err)
	}

	pricing, err := services.NewPricingEngine(services.PricingPolicy{
		TaxRate:               cfg.Pricing.TaxRate,
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		FlatShippingFee:       cfg.Pricing.FlatShippingFee,
	})
	if err != nil {
		return svc, fmt.Errorf("di: pricing engine: %w", err)
	}

	refunds := services.NewRefundProcessor(services.RefundPolicy{
		CascadeToReturned: cfg.Refunds.CascadeToReturned,
	})

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Counters:   reg.Counters(),
		Inventory:  inventory,
		Pricing:    pricing,
		Refunds:    refunds,
		UnitOfWork: reg,
		Clock:      cc.clock,
		Events:     cc.orderEvents,
		Logger:     serviceLogger(cc.logger, "orders"),
	})
	if err != nil {
		return svc, fmt.Errorf("di: order service: %w", err)
	}

	svc.Inventory = inventory
	svc.Orders = orders
	return svc, nil
}

func serviceLogger(logger *zap.Logger, name string) func(context.Context, string, map[string]any) {
	if logger == nil {
		return nil
	}
	named := logger.Named(name)
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		named.Info(event, zFields...)
	}
}
