package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopstream/api/internal/domain"
	pfirestore "github.com/shopstream/api/internal/platform/firestore"
	"github.com/shopstream/api/internal/repositories"
)

const productsCollection = "products"

// InventoryRepository adjusts product stock levels transactionally. A reserve
// either decrements every requested product or leaves all of them untouched.
type InventoryRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &InventoryRepository{provider: provider, products: products}, nil
}

func (r *InventoryRepository) Reserve(ctx context.Context, req repositories.InventoryReserveRequest) (repositories.InventoryReserveResult, error) {
	if r == nil || r.provider == nil {
		return repositories.InventoryReserveResult{}, errors.New("inventory repository not initialised")
	}
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return repositories.InventoryReserveResult{}, err
	}

	now := req.Now.UTC()
	var result repositories.InventoryReserveResult

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Firestore requires every read to happen before the first write,
		// so validation runs over all lines before any stock is touched.
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		writes := make([]pendingWrite, 0, len(lines))
		stocks := make(map[string]repositories.StockSnapshot, len(lines))

		for _, line := range lines {
			ref, doc, err := r.readProduct(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			if !doc.IsActive {
				return repositories.NewInventoryError(repositories.InventoryErrorProductInactive, line.ProductID, fmt.Sprintf("product %s is not active", line.ProductID), nil)
			}
			if doc.Stock < line.Quantity {
				return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, line.ProductID, fmt.Sprintf("insufficient stock for product %s: have %d, want %d", line.ProductID, doc.Stock, line.Quantity), nil)
			}
			doc.Stock -= line.Quantity
			doc.UpdatedAt = now
			writes = append(writes, pendingWrite{ref: ref, doc: doc})
			stocks[line.ProductID] = repositories.StockSnapshot{
				ProductID: line.ProductID,
				Stock:     doc.Stock,
				UpdatedAt: now,
			}
		}

		for _, w := range writes {
			if err := tx.Set(w.ref, w.doc); err != nil {
				return err
			}
		}

		result = repositories.InventoryReserveResult{Stocks: stocks}
		return nil
	})
	if err != nil {
		return repositories.InventoryReserveResult{}, wrapInventoryError("inventory.reserve", err)
	}
	return result, nil
}

func (r *InventoryRepository) Release(ctx context.Context, req repositories.InventoryReleaseRequest) (repositories.InventoryReleaseResult, error) {
	if r == nil || r.provider == nil {
		return repositories.InventoryReleaseResult{}, errors.New("inventory repository not initialised")
	}
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return repositories.InventoryReleaseResult{}, err
	}

	now := req.Now.UTC()
	var result repositories.InventoryReleaseResult

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		writes := make([]pendingWrite, 0, len(lines))
		stocks := make(map[string]repositories.StockSnapshot, len(lines))

		for _, line := range lines {
			ref, doc, err := r.readProduct(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			doc.Stock += line.Quantity
			doc.UpdatedAt = now
			writes = append(writes, pendingWrite{ref: ref, doc: doc})
			stocks[line.ProductID] = repositories.StockSnapshot{
				ProductID: line.ProductID,
				Stock:     doc.Stock,
				UpdatedAt: now,
			}
		}

		for _, w := range writes {
			if err := tx.Set(w.ref, w.doc); err != nil {
				return err
			}
		}

		result = repositories.InventoryReleaseResult{Stocks: stocks}
		return nil
	})
	if err != nil {
		return repositories.InventoryReleaseResult{}, wrapInventoryError("inventory.release", err)
	}
	return result, nil
}

func (r *InventoryRepository) Availability(ctx context.Context, productID string) (repositories.StockSnapshot, error) {
	if r == nil || r.products == nil {
		return repositories.StockSnapshot{}, errors.New("inventory repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return repositories.StockSnapshot{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, "", "product id is required", nil)
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return repositories.StockSnapshot{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), err)
		}
		return repositories.StockSnapshot{}, wrapInventoryError("inventory.availability", err)
	}
	return repositories.StockSnapshot{
		ProductID: productID,
		Stock:     doc.Data.Stock,
		UpdatedAt: doc.Data.UpdatedAt,
	}, nil
}

func (r *InventoryRepository) readProduct(ctx context.Context, tx *firestore.Transaction, productID string) (*firestore.DocumentRef, productDocument, error) {
	ref, err := r.products.DocumentRef(ctx, productID)
	if err != nil {
		return nil, productDocument{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, productDocument{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), err)
		}
		return nil, productDocument{}, err
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, productDocument{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return ref, doc, nil
}

func normalizeLines(lines []domain.ReservationLine) ([]domain.ReservationLine, error) {
	if len(lines) == 0 {
		return nil, repositories.NewInventoryError(repositories.InventoryErrorUnknown, "", "at least one line is required", nil)
	}
	normalized := make([]domain.ReservationLine, 0, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, "", "product id is required", nil)
		}
		if line.Quantity <= 0 {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorUnknown, productID, fmt.Sprintf("quantity for product %s must be > 0", productID), nil)
		}
		normalized = append(normalized, domain.ReservationLine{ProductID: productID, Quantity: line.Quantity})
	}
	return normalized, nil
}

type productDocument struct {
	Name            string    `firestore:"name"`
	UnitPrice       int64     `firestore:"unitPrice"`
	Stock           int       `firestore:"stock"`
	IsActive        bool      `firestore:"isActive"`
	PrimaryImageURL string    `firestore:"primaryImageUrl,omitempty"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:              id,
		Name:            strings.TrimSpace(d.Name),
		UnitPrice:       d.UnitPrice,
		Stock:           d.Stock,
		IsActive:        d.IsActive,
		PrimaryImageURL: strings.TrimSpace(d.PrimaryImageURL),
	}
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
