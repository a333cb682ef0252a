package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/store"
)

func sellTwo(t *testing.T, s *Store, a, b domain.Product) domain.Order {
	t.Helper()
	order := domain.Order{
		ID:            "ord-ex-001",
		OrderNumber:   "POS-EX-001",
		Status:        domain.OrderStatusDelivered,
		PaymentStatus: domain.PaymentStatusPaid,
		PaymentMethod: domain.PaymentMethodCash,
		CashAmount:    decimal.NewFromInt(3000),
		Subtotal:      decimal.NewFromInt(3000),
		TotalAmount:   decimal.NewFromInt(3000),
		OrderSource:   domain.OrderSourcePOS,
	}
	items := []domain.OrderItem{
		{ID: "oit-ex-001", OrderID: order.ID, ProductID: &a.ID, ProductName: a.Name, ProductSKU: a.SKU,
			Quantity: 1, UnitPrice: decimal.NewFromInt(1000), TotalPrice: decimal.NewFromInt(1000)},
		{ID: "oit-ex-002", OrderID: order.ID, ProductID: &b.ID, ProductName: b.Name, ProductSKU: b.SKU,
			Quantity: 1, UnitPrice: decimal.NewFromInt(2000), TotalPrice: decimal.NewFromInt(2000)},
	}
	invoice := domain.Invoice{Subtotal: order.Subtotal, TotalAmount: order.TotalAmount, PaymentStatus: order.PaymentStatus}
	created, _, err := s.CreateSale(context.Background(), store.SaleDraft{Order: order, Items: items, Invoice: invoice, CreatedBy: "test"})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return *created
}

// An exchange must mutate nothing when any returned item's product is gone,
// or stock restored for earlier items would survive the failure.
func TestExchangeFailsCleanlyWhenReturnedProductMissing(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.CreateProduct(ctx, domain.Product{SKU: "NC-EX-001", Name: "SAREE - Kept",
		Price: decimal.NewFromInt(1000), StockQuantity: 5, Active: true})
	if err != nil {
		t.Fatalf("seed product a: %v", err)
	}
	b, err := s.CreateProduct(ctx, domain.Product{SKU: "NC-EX-002", Name: "SUIT - Vanishing",
		Price: decimal.NewFromInt(2000), StockQuantity: 5, Active: true})
	if err != nil {
		t.Fatalf("seed product b: %v", err)
	}

	order := sellTwo(t, s, *a, *b)

	s.mu.Lock()
	delete(s.productsByID, b.ID)
	delete(s.idBySKU, strings.ToLower(b.SKU))
	s.mu.Unlock()

	_, err = s.ExchangeOrderItems(ctx, store.ExchangeDraft{
		OrderID:         order.ID,
		ReturnedItemIDs: []string{"oit-ex-001", "oit-ex-002"},
		Actor:           "test",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := s.GetProductByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get product a: %v", err)
	}
	if got.StockQuantity != 4 {
		t.Fatalf("failed exchange must leave stock at 4, got %d", got.StockQuantity)
	}
	history, err := s.ListStockHistory(ctx, a.ID, 0)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	for _, h := range history {
		if h.ChangeType == domain.StockChangeExchangeReturn {
			t.Fatalf("failed exchange must write no return ledger row, got %+v", h)
		}
	}
}
