package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopstream/api/internal/repositories"
)

const (
	eventInventoryReserve = "inventory.reserve"
	eventInventoryRelease = "inventory.release"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates the requested quantity exceeds availability.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryProductNotFound indicates the product has no stock record.
	ErrInventoryProductNotFound = errors.New("inventory: product not found")
	// ErrInventoryProductInactive indicates the product cannot be sold.
	ErrInventoryProductInactive = errors.New("inventory: product inactive")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Events    InventoryEventPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	events InventoryEventPublisher
	clock  func() time.Time
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
		logger: logger,
	}, nil
}

func (s *inventoryService) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return false, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if quantity <= 0 {
		return false, fmt.Errorf("%w: quantity must be > 0", ErrInventoryInvalidInput)
	}

	snapshot, err := s.repo.Availability(ctx, productID)
	if err != nil {
		return false, s.mapRepositoryError(err)
	}
	return snapshot.Stock >= quantity, nil
}

func (s *inventoryService) Reserve(ctx context.Context, cmd InventoryReserveCommand) (InventoryAdjustment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return InventoryAdjustment{}, fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}
	lines, err := validateInventoryLines(cmd.Lines)
	if err != nil {
		return InventoryAdjustment{}, err
	}

	now := s.now()
	result, err := s.repo.Reserve(ctx, repositories.InventoryReserveRequest{
		Lines:   lines,
		OrderID: orderID,
		Now:     now,
	})
	if err != nil {
		return InventoryAdjustment{}, s.mapRepositoryError(err)
	}

	adjustment := adjustmentFromSnapshots(result.Stocks)
	s.emitStockEvents(ctx, eventInventoryReserve, cmd.OrderID, "", lines, adjustment, -1, now)
	return adjustment, nil
}

func (s *inventoryService) Release(ctx context.Context, cmd InventoryReleaseCommand) (InventoryAdjustment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return InventoryAdjustment{}, fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}
	lines, err := validateInventoryLines(cmd.Lines)
	if err != nil {
		return InventoryAdjustment{}, err
	}

	now := s.now()
	result, err := s.repo.Release(ctx, repositories.InventoryReleaseRequest{
		Lines:   lines,
		OrderID: orderID,
		Reason:  strings.TrimSpace(cmd.Reason),
		Now:     now,
	})
	if err != nil {
		return InventoryAdjustment{}, s.mapRepositoryError(err)
	}

	adjustment := adjustmentFromSnapshots(result.Stocks)
	s.emitStockEvents(ctx, eventInventoryRelease, cmd.OrderID, cmd.Reason, lines, adjustment, 1, now)
	return adjustment, nil
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
			return fmt.Errorf("%w: %s", ErrInventoryInsufficientStock, invErr.Message)
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryProductNotFound, invErr.Message)
		case repositories.InventoryErrorProductInactive:
			return fmt.Errorf("%w: %s", ErrInventoryProductInactive, invErr.Message)
		case repositories.InventoryErrorUnknown:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, invErr.Message)
		}
	}

	return err
}

func (s *inventoryService) emitStockEvents(ctx context.Context, eventType, orderID, reason string, lines []ReservationLine, adjustment InventoryAdjustment, sign int, occurredAt time.Time) {
	if s.events == nil {
		return
	}

	for _, line := range lines {
		level := adjustment.Stocks[line.ProductID]
		event := InventoryStockEvent{
			Type:       eventType,
			OrderID:    strings.TrimSpace(orderID),
			ProductID:  line.ProductID,
			Delta:      sign * line.Quantity,
			Stock:      level.Stock,
			Reason:     strings.TrimSpace(reason),
			OccurredAt: occurredAt,
		}
		if err := s.events.PublishInventoryEvent(ctx, event); err != nil {
			s.logger(ctx, "inventory_event_publish_failed", map[string]any{
				"type":    eventType,
				"product": line.ProductID,
				"error":   err.Error(),
			})
		}
	}
}

func validateInventoryLines(lines []ReservationLine) ([]ReservationLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}

	// Duplicate product ids are merged so the ledger sees one line per product.
	merged := make([]ReservationLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %s must be > 0", ErrInventoryInvalidInput, productID)
		}
		if pos, ok := index[productID]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, ReservationLine{ProductID: productID, Quantity: line.Quantity})
	}
	return merged, nil
}

func adjustmentFromSnapshots(stocks map[string]repositories.StockSnapshot) InventoryAdjustment {
	levels := make(map[string]StockLevel, len(stocks))
	for productID, snapshot := range stocks {
		levels[productID] = StockLevel{
			ProductID: productID,
			Stock:     snapshot.Stock,
			UpdatedAt: snapshot.UpdatedAt,
		}
	}
	return InventoryAdjustment{Stocks: levels}
}
