package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/store"
	"noorcreations/backend/internal/xid"
)

// CreatePurchase records incoming stock from a supplier. Line stock
// increments, their history rows, and the supplier rollup commit together.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (*domain.Purchase, error) {
	if strings.TrimSpace(req.SupplierID) == "" {
		return nil, fmt.Errorf("%w: supplier required", store.ErrInvalidTransaction)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no purchase items", store.ErrInvalidTransaction)
	}

	total := decimal.Zero
	items := make([]domain.PurchaseItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidTransaction)
		}
		if line.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: negative unit cost", store.ErrInvalidTransaction)
		}
		lineTotal := line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(lineTotal)
		items = append(items, domain.PurchaseItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
			TotalCost: lineTotal,
		})
	}

	purchase, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		PurchaseNumber: fmt.Sprintf("PUR-%s-%s", time.Now().UTC().Format("20060102"), strings.ToUpper(xid.Suffix(6))),
		SupplierID:     req.SupplierID,
		TotalAmount:    total,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedBy:      actorName(ctx),
		Items:          items,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)
	return purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx, limit)
}
