package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/receipt"
	"noorcreations/backend/internal/store"
	"noorcreations/backend/internal/xid"
)

// DefaultDiscountPercent applies to any cart line that does not set its own.
const DefaultDiscountPercent = 10

var hundred = decimal.NewFromInt(100)

// Checkout prices the cart, derives payment state, and commits the whole
// sale (order, items, invoice, stock debits, rollups) in one store
// transaction. Tax is always zero: prices are tax-inclusive.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	started := time.Now()

	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", store.ErrInvalidTransaction)
	}
	if !validPaymentMethod(req.Payment.Method) {
		return nil, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidTransaction, req.Payment.Method)
	}

	orderID := xid.New("ord")
	now := time.Now().UTC()
	orderNumber := fmt.Sprintf("POS-%s-%s", now.Format("20060102"), strings.ToUpper(xid.Suffix(6)))

	subtotal := decimal.Zero
	discountTotal := decimal.Zero
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidTransaction)
		}
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
			}
			return nil, err
		}

		// The captured client price wins; it is the price at the moment
		// the line entered the cart.
		unit := product.UnitSalePrice()
		if line.UnitPrice != nil {
			if line.UnitPrice.IsNegative() {
				return nil, fmt.Errorf("%w: negative unit price", store.ErrInvalidTransaction)
			}
			unit = *line.UnitPrice
		}
		pct := DefaultDiscountPercent
		if line.DiscountPercent != nil {
			pct = *line.DiscountPercent
		}
		if pct < 0 || pct > 100 {
			return nil, fmt.Errorf("%w: discount percent out of range", store.ErrInvalidTransaction)
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		gross := unit.Mul(qty)
		lineDiscount := gross.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(0)

		subtotal = subtotal.Add(gross)
		discountTotal = discountTotal.Add(lineDiscount)

		pid := line.ProductID
		items = append(items, domain.OrderItem{
			ID:          xid.New("oit"),
			OrderID:     orderID,
			ProductID:   &pid,
			ProductName: product.Name,
			ProductSKU:  product.SKU,
			Quantity:    line.Quantity,
			UnitPrice:   unit,
			TotalPrice:  gross.Sub(lineDiscount),
			Size:        line.Size,
			Color:       line.Color,
		})
	}

	total := subtotal.Sub(discountTotal)
	payment, paymentStatus, err := resolvePayment(req.Payment, total)
	if err != nil {
		return nil, err
	}

	status := domain.OrderStatusDelivered
	if req.NeedsAlteration {
		status = domain.OrderStatusProcessing
	}

	order := domain.Order{
		ID:                orderID,
		OrderNumber:       orderNumber,
		CustomerID:        req.CustomerID,
		SalesmanID:        req.SalesmanID,
		Status:            status,
		PaymentStatus:     paymentStatus,
		PaymentMethod:     payment.Method,
		CashAmount:        payment.CashAmount,
		CardAmount:        payment.CardAmount,
		CreditAmount:      payment.CreditAmount,
		Subtotal:          subtotal,
		DiscountAmount:    discountTotal,
		TaxAmount:         decimal.Zero,
		ShippingAmount:    decimal.Zero,
		TotalAmount:       total,
		OrderSource:       domain.OrderSourcePOS,
		NeedsAlteration:   req.NeedsAlteration,
		AlterationDetails: strings.TrimSpace(req.AlterationDetails),
		Notes:             strings.TrimSpace(req.Notes),
	}
	invoice := domain.Invoice{
		CustomerID:     req.CustomerID,
		SalesmanID:     req.SalesmanID,
		Subtotal:       subtotal,
		DiscountAmount: discountTotal,
		TaxAmount:      decimal.Zero,
		TotalAmount:    total,
		PaymentStatus:  paymentStatus,
	}

	committedOrder, committedInvoice, err := s.repo.CreateSale(ctx, store.SaleDraft{
		Order:     order,
		Items:     items,
		Invoice:   invoice,
		CreatedBy: actorName(ctx),
	})
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)

	html, err := s.renderReceipt(ctx, *committedOrder, *committedInvoice)
	if err != nil {
		s.log.WithError(err).Warn("receipt rendering failed")
	}

	elapsed := time.Since(started).Milliseconds()
	s.log.WithFields(logrus.Fields{
		"order_number": committedOrder.OrderNumber,
		"total":        committedOrder.TotalAmount.String(),
		"method":       committedOrder.PaymentMethod,
		"elapsed_ms":   elapsed,
		"actor":        actorName(ctx),
	}).Info("checkout committed")

	return &domain.CheckoutResponse{
		Order:       *committedOrder,
		Invoice:     *committedInvoice,
		ReceiptHTML: html,
		ElapsedMS:   elapsed,
	}, nil
}

func validPaymentMethod(m string) bool {
	switch m {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodCredit, domain.PaymentMethodDouble:
		return true
	}
	return false
}

// resolvePayment fills the structured amounts for single-instrument methods
// and checks that a split payment covers the total exactly. A credit sale is
// always pending, whatever was paid up front.
func resolvePayment(p domain.Payment, total decimal.Decimal) (domain.Payment, string, error) {
	switch p.Method {
	case domain.PaymentMethodCash:
		p.CashAmount = total
		p.CardAmount = decimal.Zero
		p.CreditAmount = decimal.Zero
		return p, domain.PaymentStatusPaid, nil
	case domain.PaymentMethodCard:
		p.CardAmount = total
		p.CashAmount = decimal.Zero
		p.CreditAmount = decimal.Zero
		return p, domain.PaymentStatusPaid, nil
	case domain.PaymentMethodCredit:
		p.CreditAmount = total
		p.CashAmount = decimal.Zero
		p.CardAmount = decimal.Zero
		return p, domain.PaymentStatusPending, nil
	case domain.PaymentMethodDouble:
		if p.CashAmount.IsNegative() || p.CardAmount.IsNegative() {
			return p, "", fmt.Errorf("%w: negative payment amount", store.ErrInvalidTransaction)
		}
		if !p.CashAmount.Add(p.CardAmount).Equal(total) {
			return p, "", fmt.Errorf("%w: split payment %s does not match total %s",
				store.ErrInvalidTransaction, p.CashAmount.Add(p.CardAmount), total)
		}
		p.CreditAmount = decimal.Zero
		return p, domain.PaymentStatusPaid, nil
	}
	return p, "", fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidTransaction, p.Method)
}

// renderReceipt resolves display names and calls the pure renderer.
func (s *Service) renderReceipt(ctx context.Context, order domain.Order, invoice domain.Invoice) (string, error) {
	var customerName, salesmanName string
	if order.CustomerID != nil {
		if c, err := s.repo.GetCustomerByID(ctx, *order.CustomerID); err == nil {
			customerName = c.Name
		}
	}
	if order.SalesmanID != nil {
		if sm, err := s.repo.GetSalesmanByID(ctx, *order.SalesmanID); err == nil {
			salesmanName = sm.Name
		}
	}
	return receipt.Render(receipt.FromSale(s.storeName, order, invoice, customerName, salesmanName))
}

// RenderOrderReceipt re-renders the receipt for an existing order.
func (s *Service) RenderOrderReceipt(ctx context.Context, orderID string) (string, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	invoice, err := s.repo.GetInvoiceByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}
	return s.renderReceipt(ctx, *order, *invoice)
}
