package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/store"
)

// Exchange swaps a subset of an order's items for replacements. Stock moves
// both ways through the ledger and the order/invoice totals shift by the
// price difference, all in one store transaction.
func (s *Service) Exchange(ctx context.Context, req domain.ExchangeRequest) (*domain.ExchangeResponse, error) {
	order, err := s.repo.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if len(req.Replacements) == 0 {
		return nil, fmt.Errorf("%w: no replacement items", store.ErrInvalidTransaction)
	}

	// Single-line orders return their only item implicitly.
	returnedIDs := req.ReturnedItemIDs
	if len(returnedIDs) == 0 && len(order.Items) == 1 {
		returnedIDs = []string{order.Items[0].ID}
	}
	if len(returnedIDs) == 0 {
		return nil, fmt.Errorf("%w: no items selected for return", store.ErrInvalidTransaction)
	}

	itemsByID := map[string]domain.OrderItem{}
	for _, item := range order.Items {
		itemsByID[item.ID] = item
	}
	returnedTotal := decimal.Zero
	seen := map[string]bool{}
	for _, id := range returnedIDs {
		item, ok := itemsByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: item %s does not belong to order %s", store.ErrInvalidTransaction, id, req.OrderID)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: item %s listed twice", store.ErrInvalidTransaction, id)
		}
		seen[id] = true
		returnedTotal = returnedTotal.Add(item.TotalPrice)
	}

	// Staged replacement quantities merge per product.
	merged := map[string]int{}
	var productOrder []string
	for _, line := range req.Replacements {
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		if _, ok := merged[line.ProductID]; !ok {
			productOrder = append(productOrder, line.ProductID)
		}
		merged[line.ProductID] += qty
	}

	replacementTotal := decimal.Zero
	replacements := make([]domain.OrderItem, 0, len(merged))
	for _, pid := range productOrder {
		product, err := s.repo.GetProductByID(ctx, pid)
		if err != nil {
			return nil, err
		}
		qty := merged[pid]
		unit := product.UnitSalePrice()
		lineTotal := unit.Mul(decimal.NewFromInt(int64(qty)))
		replacementTotal = replacementTotal.Add(lineTotal)

		id := pid
		replacements = append(replacements, domain.OrderItem{
			ProductID:   &id,
			ProductName: product.Name,
			ProductSKU:  product.SKU,
			Quantity:    qty,
			UnitPrice:   unit,
			TotalPrice:  lineTotal,
		})
	}

	difference := replacementTotal.Sub(returnedTotal)
	note := fmt.Sprintf("Exchange %s: returned %d item(s) worth %s, added %d item(s) worth %s, difference %s",
		time.Now().UTC().Format("2006-01-02"), len(returnedIDs), returnedTotal, len(replacements), replacementTotal, difference)

	result, err := s.repo.ExchangeOrderItems(ctx, store.ExchangeDraft{
		OrderID:         req.OrderID,
		ReturnedItemIDs: returnedIDs,
		Replacements:    replacements,
		Difference:      difference,
		Note:            note,
		Actor:           actorName(ctx),
	})
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)

	summary := domain.ExchangeSummary{
		ReturnedTotal:    returnedTotal,
		ReplacementTotal: replacementTotal,
		Difference:       difference,
	}
	s.log.WithFields(logrus.Fields{
		"order_id":   req.OrderID,
		"difference": difference.String(),
		"balance":    summary.Balance(),
		"actor":      actorName(ctx),
	}).Info("exchange committed")

	return &domain.ExchangeResponse{
		Order:         result.Order,
		Summary:       summary,
		Balance:       summary.Balance(),
		ReturnedItems: result.ReturnedItems,
		AddedItems:    result.AddedItems,
	}, nil
}
