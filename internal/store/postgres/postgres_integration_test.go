package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/store"
)

// TestDeleteOrderRestoresStock needs a live database with the schema applied.
// Set NOORCREATIONS_TEST_DATABASE_URL to run it; it is skipped otherwise.
func TestDeleteOrderRestoresStock(t *testing.T) {
	dsn := os.Getenv("NOORCREATIONS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NOORCREATIONS_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	product, err := s.CreateProduct(ctx, domain.Product{
		SKU:           "IT-DEL-001",
		Name:          "SAREE - Integration",
		Slug:          "saree-integration-it-del-001",
		Price:         decimal.NewFromInt(1000),
		StockQuantity: 5,
		Active:        true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_history WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})

	order := domain.Order{
		ID:            "ord-it-del-001",
		OrderNumber:   "POS-IT-DEL-001",
		Status:        domain.OrderStatusDelivered,
		PaymentStatus: domain.PaymentStatusPaid,
		PaymentMethod: domain.PaymentMethodCash,
		CashAmount:    decimal.NewFromInt(2000),
		Subtotal:      decimal.NewFromInt(2000),
		TotalAmount:   decimal.NewFromInt(2000),
		OrderSource:   domain.OrderSourcePOS,
	}
	items := []domain.OrderItem{{
		ID:          "oit-it-del-001",
		OrderID:     order.ID,
		ProductID:   &product.ID,
		ProductName: product.Name,
		ProductSKU:  product.SKU,
		Quantity:    2,
		UnitPrice:   decimal.NewFromInt(1000),
		TotalPrice:  decimal.NewFromInt(2000),
	}}
	invoice := domain.Invoice{
		ID:            "inv-it-del-001",
		Subtotal:      order.Subtotal,
		TotalAmount:   order.TotalAmount,
		PaymentStatus: order.PaymentStatus,
	}

	created, _, err := s.CreateSale(ctx, store.SaleDraft{Order: order, Items: items, Invoice: invoice, CreatedBy: "itest"})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE order_id = $1`, created.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, created.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, created.ID)
	})

	after, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product after sale: %v", err)
	}
	if after.StockQuantity != 3 {
		t.Fatalf("expected stock 3 after sale, got %d", after.StockQuantity)
	}

	if err := s.DeleteOrder(ctx, created.ID, "itest"); err != nil {
		t.Fatalf("delete order: %v", err)
	}

	restored, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product after delete: %v", err)
	}
	if restored.StockQuantity != 5 {
		t.Fatalf("expected stock restored to 5, got %d", restored.StockQuantity)
	}
	if _, err := s.GetOrderByID(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected order gone, got %v", err)
	}
}
