// Package service holds the business rules: pricing, ledger movement,
// import commits, and the sale/exchange workflows. Handlers stay thin and
// stores stay mechanical.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"noorcreations/backend/internal/cache"
	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// actorName is used for created_by stamps; writes without an authenticated
// actor are attributed to "system" (seed scripts, tests).
func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

const listingCacheKey = "all"

type Service struct {
	repo      store.Repository
	listings  cache.ListingCache
	log       *logrus.Logger
	storeName string
}

func New(repo store.Repository, listings cache.ListingCache, log *logrus.Logger, storeName string) *Service {
	if listings == nil {
		listings = cache.NoopListingCache{}
	}
	if log == nil {
		log = logrus.New()
	}
	if storeName == "" {
		storeName = "Noor Creations"
	}
	return &Service{repo: repo, listings: listings, log: log, storeName: storeName}
}

// invalidateListings drops cached product listings after any stock or
// catalogue write. A cache failure is logged, never surfaced: the database
// already holds the truth.
func (s *Service) invalidateListings(ctx context.Context) {
	if err := s.listings.InvalidateProducts(ctx); err != nil {
		s.log.WithError(err).Warn("product listing cache invalidation failed")
	}
}

func (s *Service) ListProducts(ctx context.Context, activeOnly bool, limit int) ([]domain.Product, error) {
	if activeOnly && limit == 0 {
		if cached, ok, err := s.listings.GetProducts(ctx, listingCacheKey); err == nil && ok {
			return cached, nil
		} else if err != nil {
			s.log.WithError(err).Warn("product listing cache read failed")
		}
	}
	products, err := s.repo.ListProducts(ctx, activeOnly, limit)
	if err != nil {
		return nil, err
	}
	if activeOnly && limit == 0 {
		if err := s.listings.SetProducts(ctx, listingCacheKey, products, 5*time.Minute); err != nil {
			s.log.WithError(err).Warn("product listing cache write failed")
		}
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

// LookupProductBySKU backs the barcode scan path; match is exact but
// case-insensitive.
func (s *Service) LookupProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, fmt.Errorf("%w: sku required", store.ErrInvalidTransaction)
	}
	return s.repo.GetProductBySKU(ctx, sku)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: sku and name required", store.ErrInvalidTransaction)
	}
	if req.Price.IsNegative() || req.InitialStock < 0 {
		return nil, fmt.Errorf("%w: negative price or stock", store.ErrInvalidTransaction)
	}
	if req.DiscountPrice != nil && req.DiscountPrice.IsNegative() {
		return nil, fmt.Errorf("%w: negative discount price", store.ErrInvalidTransaction)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:           req.SKU,
		Name:          req.Name,
		DesignNumber:  strings.TrimSpace(req.DesignNumber),
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		StockQuantity: req.InitialStock,
		CategoryID:    req.CategoryID,
		Sizes:         req.Sizes,
		Colors:        req.Colors,
		Unit:          strings.TrimSpace(req.Unit),
		MinStockAlert: req.MinStockAlert,
		Active:        true,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)
	s.log.WithFields(logrus.Fields{
		"sku":   created.SKU,
		"actor": actorName(ctx),
	}).Info("product created")
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.DesignNumber != nil {
		existing.DesignNumber = strings.TrimSpace(*req.DesignNumber)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, fmt.Errorf("%w: negative price", store.ErrInvalidTransaction)
		}
		existing.Price = *req.Price
	}
	if req.DiscountPrice != nil {
		if req.DiscountPrice.IsNegative() {
			return nil, fmt.Errorf("%w: negative discount price", store.ErrInvalidTransaction)
		}
		existing.DiscountPrice = req.DiscountPrice
	}
	if req.CategoryID != nil {
		existing.CategoryID = req.CategoryID
	}
	if req.Sizes != nil {
		existing.Sizes = req.Sizes
	}
	if req.Colors != nil {
		existing.Colors = req.Colors
	}
	if req.MinStockAlert != nil {
		existing.MinStockAlert = *req.MinStockAlert
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)
	return updated, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

// AdjustStock applies a manual stock correction through the ledger.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (*domain.StockHistory, error) {
	delta := req.Quantity
	if req.ChangeType == domain.StockChangeAdjustmentOut {
		delta = -delta
	}
	entry, err := s.repo.ApplyStockDelta(ctx, req.ProductID, req.ChangeType, delta, req.Note, actorName(ctx))
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)
	s.log.WithFields(logrus.Fields{
		"product_id": req.ProductID,
		"change":     delta,
		"new_qty":    entry.NewQuantity,
		"actor":      actorName(ctx),
	}).Info("stock adjusted")
	return entry, nil
}

func (s *Service) ListStockHistory(ctx context.Context, productID string, limit int) ([]domain.StockHistory, error) {
	return s.repo.ListStockHistory(ctx, productID, limit)
}

func (s *Service) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, limit)
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

// DeleteOrder removes an order, restoring its stock and reversing the
// customer/salesman rollups in the same transaction.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := s.repo.DeleteOrder(ctx, id, actorName(ctx)); err != nil {
		return err
	}
	s.invalidateListings(ctx)
	s.log.WithFields(logrus.Fields{"order_id": id, "actor": actorName(ctx)}).Info("order deleted")
	return nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name required", store.ErrInvalidTransaction)
	}
	return s.repo.CreateCustomer(ctx, domain.Customer{
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	})
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) CreateSalesman(ctx context.Context, req domain.SalesmanCreateRequest) (*domain.Salesman, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name required", store.ErrInvalidTransaction)
	}
	if req.CommissionRate < 0 || req.CommissionRate > 100 {
		return nil, fmt.Errorf("%w: commission rate out of range", store.ErrInvalidTransaction)
	}
	return s.repo.CreateSalesman(ctx, domain.Salesman{
		Name:           req.Name,
		Phone:          strings.TrimSpace(req.Phone),
		CommissionRate: req.CommissionRate,
	})
}

func (s *Service) ListSalesmen(ctx context.Context, limit int) ([]domain.Salesman, error) {
	return s.repo.ListSalesmen(ctx, limit)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name required", store.ErrInvalidTransaction)
	}
	return s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	})
}

func (s *Service) ListSuppliers(ctx context.Context, limit int) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx, limit)
}

func (s *Service) ListImportHistory(ctx context.Context, limit int) ([]domain.ImportHistory, error) {
	return s.repo.ListImportHistory(ctx, limit)
}
