// Package memory implements store.Repository with in-process maps. It backs
// dev mode and the service tests; semantics mirror the postgres store,
// including all-or-nothing commits (validate first, then mutate).
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/importer"
	"noorcreations/backend/internal/store"
	"noorcreations/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	productsByID    map[string]domain.Product
	idBySKU         map[string]string
	categoriesByID  map[string]domain.Category
	stockHistory    []domain.StockHistory
	ordersByID      map[string]domain.Order
	invoicesByOrder map[string]domain.Invoice
	invoiceSeq      int
	customersByID   map[string]domain.Customer
	salesmenByID    map[string]domain.Salesman
	suppliersByID   map[string]domain.Supplier
	purchasesByID   map[string]domain.Purchase
	importHistory   []domain.ImportHistory
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	s := &Store{
		productsByID:    map[string]domain.Product{},
		idBySKU:         map[string]string{},
		categoriesByID:  map[string]domain.Category{},
		ordersByID:      map[string]domain.Order{},
		invoicesByOrder: map[string]domain.Invoice{},
		customersByID:   map[string]domain.Customer{},
		salesmenByID:    map[string]domain.Salesman{},
		suppliersByID:   map[string]domain.Supplier{},
		purchasesByID:   map[string]domain.Purchase{},
		usersByUsername: map[string]domain.UserAccount{},
	}
	for _, name := range importer.CategoryNames() {
		id := xid.New("cat")
		s.categoriesByID[id] = domain.Category{ID: id, Name: name}
	}
	return s
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials come
// from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev defaults
// are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store pre-loaded with demo catalogue and accounts.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	seed := []struct {
		sku   string
		name  string
		mrp   string
		sale  string
		qty   int
		sizes []string
	}{
		{"NC-LEH-001", "LEHENGA - Bridal Red Zari", "24999", "21999", 4, []string{"S", "M", "L"}},
		{"NC-SAR-001", "SAREE - Banarasi Silk Gold", "8499", "7499", 12, nil},
		{"NC-KUR-001", "KURTI - Cotton Block Print", "1299", "999", 30, []string{"S", "M", "L", "XL"}},
		{"NC-GWN-001", "GOWN - Evening Teal", "5999", "5399", 8, []string{"M", "L"}},
		{"NC-DUP-001", "DUPATTA - Chiffon Rose", "799", "699", 25, nil},
		{"NC-SUI-001", "SUIT - Unstitched Lawn", "2499", "2249", 18, nil},
	}
	for _, item := range seed {
		mrp, _ := decimal.NewFromString(item.mrp)
		sale, _ := decimal.NewFromString(item.sale)
		catID := s.categoryIDByName(importer.DetectCategory(item.name))
		id := xid.New("prd")
		p := domain.Product{
			ID:            id,
			SKU:           item.sku,
			Name:          item.name,
			Slug:          importer.Slugify(item.name, item.sku),
			Price:         mrp,
			DiscountPrice: &sale,
			StockQuantity: item.qty,
			CategoryID:    catID,
			Sizes:         item.sizes,
			MinStockAlert: 2,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.productsByID[id] = p
		s.idBySKU[strings.ToLower(item.sku)] = id
	}
	return s
}

func (s *Store) categoryIDByName(name string) *string {
	if name == "" {
		return nil
	}
	for id, c := range s.categoriesByID {
		if strings.EqualFold(c.Name, name) {
			cid := id
			return &cid
		}
	}
	return nil
}

func cloneProduct(p domain.Product) domain.Product {
	p.Sizes = append([]string(nil), p.Sizes...)
	p.Colors = append([]string(nil), p.Colors...)
	if p.DiscountPrice != nil {
		dp := *p.DiscountPrice
		p.DiscountPrice = &dp
	}
	return p
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func (s *Store) ListProducts(_ context.Context, activeOnly bool, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.productsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idBySKU[strings.ToLower(strings.TrimSpace(sku))]
	if !ok {
		return nil, store.ErrNotFound
	}
	p := cloneProduct(s.productsByID[id])
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(product.SKU))
	if key == "" {
		return nil, fmt.Errorf("%w: sku required", store.ErrInvalidTransaction)
	}
	if _, exists := s.idBySKU[key]; exists {
		return nil, fmt.Errorf("%w: sku %s already exists", store.ErrInvalidTransaction, product.SKU)
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.productsByID[product.ID] = product
	s.idBySKU[key] = product.ID

	if product.StockQuantity != 0 {
		s.appendHistory(product.ID, domain.StockChangeAdjustmentIn, product.StockQuantity, 0, product.StockQuantity, "", "system")
	}
	p := cloneProduct(product)
	return &p, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.productsByID[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.SKU = existing.SKU
	product.StockQuantity = existing.StockQuantity
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[product.ID] = product
	p := cloneProduct(product)
	return &p, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categoriesByID))
	for _, c := range s.categoriesByID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// appendHistory records a ledger row. Caller holds the write lock and has
// already updated the product quantity.
func (s *Store) appendHistory(productID, changeType string, delta, prev, next int, referenceID, createdBy string) domain.StockHistory {
	entry := domain.StockHistory{
		ID:               xid.New("sth"),
		ProductID:        productID,
		ChangeType:       changeType,
		ChangeAmount:     delta,
		PreviousQuantity: prev,
		NewQuantity:      next,
		ReferenceID:      referenceID,
		CreatedBy:        createdBy,
		CreatedAt:        time.Now().UTC(),
	}
	s.stockHistory = append(s.stockHistory, entry)
	return entry
}

func (s *Store) ApplyStockDelta(_ context.Context, productID string, changeType string, delta int, referenceID string, createdBy string) (*domain.StockHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyStockDeltaLocked(productID, changeType, delta, referenceID, createdBy)
}

func (s *Store) applyStockDeltaLocked(productID, changeType string, delta int, referenceID, createdBy string) (*domain.StockHistory, error) {
	p, ok := s.productsByID[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := p.StockQuantity + delta
	if next < 0 {
		return nil, fmt.Errorf("%w: product %s has %d, requested %d", store.ErrInsufficientStock, p.SKU, p.StockQuantity, -delta)
	}
	prev := p.StockQuantity
	p.StockQuantity = next
	p.UpdatedAt = time.Now().UTC()
	s.productsByID[productID] = p
	entry := s.appendHistory(productID, changeType, delta, prev, next, referenceID, createdBy)
	return &entry, nil
}

func (s *Store) ListStockHistory(_ context.Context, productID string, limit int) ([]domain.StockHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StockHistory
	for i := len(s.stockHistory) - 1; i >= 0; i-- {
		entry := s.stockHistory[i]
		if productID != "" && entry.ProductID != productID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) UpsertImportedProduct(_ context.Context, row domain.ParsedRow, categoryID *string, referenceID string, createdBy string) (bool, error) {
	if row.ClosingQty < 0 {
		return false, fmt.Errorf("%w: negative closing quantity for sku %s", store.ErrInvalidTransaction, row.SKU)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := strings.ToLower(strings.TrimSpace(row.SKU))
	if id, ok := s.idBySKU[key]; ok {
		p := s.productsByID[id]
		p.Name = row.Name
		p.DesignNumber = row.DesignNumber
		p.Unit = row.Unit
		p.Price = row.MRP
		p.DiscountPrice = discountFor(row)
		if categoryID != nil {
			p.CategoryID = categoryID
		}
		p.UpdatedAt = now
		s.productsByID[id] = p
		if row.ClosingQty != p.StockQuantity {
			delta := row.ClosingQty - p.StockQuantity
			if _, err := s.applyStockDeltaLocked(id, domain.StockChangeFileUpload, delta, referenceID, createdBy); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	id := xid.New("prd")
	p := domain.Product{
		ID:            id,
		SKU:           row.SKU,
		Name:          row.Name,
		Slug:          importer.Slugify(row.Name, row.SKU),
		DesignNumber:  row.DesignNumber,
		Unit:          row.Unit,
		Price:         row.MRP,
		DiscountPrice: discountFor(row),
		StockQuantity: row.ClosingQty,
		CategoryID:    categoryID,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.productsByID[id] = p
	s.idBySKU[key] = id
	if row.ClosingQty != 0 {
		s.appendHistory(id, domain.StockChangeFileUpload, row.ClosingQty, 0, row.ClosingQty, referenceID, createdBy)
	}
	return true, nil
}

func discountFor(row domain.ParsedRow) *decimal.Decimal {
	if row.SalePrice.IsPositive() && !row.SalePrice.Equal(row.MRP) {
		sp := row.SalePrice
		return &sp
	}
	return nil
}

func (s *Store) CreateImportHistory(_ context.Context, record domain.ImportHistory) (*domain.ImportHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = xid.New("imp")
	}
	record.CreatedAt = time.Now().UTC()
	s.importHistory = append(s.importHistory, record)
	return &record, nil
}

func (s *Store) ListImportHistory(_ context.Context, limit int) ([]domain.ImportHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ImportHistory
	for i := len(s.importHistory) - 1; i >= 0; i-- {
		out = append(out, s.importHistory[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateSale(_ context.Context, draft store.SaleDraft) (*domain.Order, *domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before touching state.
	for _, item := range draft.Items {
		if item.ProductID == nil {
			continue
		}
		p, ok := s.productsByID[*item.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, *item.ProductID)
		}
		if p.StockQuantity < item.Quantity {
			return nil, nil, fmt.Errorf("%w: product %s has %d, requested %d", store.ErrInsufficientStock, p.SKU, p.StockQuantity, item.Quantity)
		}
	}
	if draft.Order.CustomerID != nil {
		if _, ok := s.customersByID[*draft.Order.CustomerID]; !ok {
			return nil, nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, *draft.Order.CustomerID)
		}
	}
	if draft.Order.SalesmanID != nil {
		if _, ok := s.salesmenByID[*draft.Order.SalesmanID]; !ok {
			return nil, nil, fmt.Errorf("%w: salesman %s", store.ErrNotFound, *draft.Order.SalesmanID)
		}
	}

	now := time.Now().UTC()
	order := draft.Order
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Items = append([]domain.OrderItem(nil), draft.Items...)

	for _, item := range order.Items {
		if item.ProductID == nil {
			continue
		}
		if _, err := s.applyStockDeltaLocked(*item.ProductID, domain.StockChangeSale, -item.Quantity, order.ID, draft.CreatedBy); err != nil {
			return nil, nil, err
		}
	}

	s.invoiceSeq++
	invoice := draft.Invoice
	invoice.ID = xid.New("inv")
	invoice.InvoiceNumber = fmt.Sprintf("INV-%06d", s.invoiceSeq)
	oid := order.ID
	invoice.OrderID = &oid
	invoice.CreatedAt = now

	if order.CustomerID != nil {
		c := s.customersByID[*order.CustomerID]
		c.TotalOrders++
		c.TotalSpent = c.TotalSpent.Add(order.TotalAmount)
		c.LastPurchaseDate = &now
		s.customersByID[*order.CustomerID] = c
	}
	if order.SalesmanID != nil {
		sm := s.salesmenByID[*order.SalesmanID]
		sm.TotalOrders++
		sm.TotalSales = sm.TotalSales.Add(order.TotalAmount)
		s.salesmenByID[*order.SalesmanID] = sm
	}

	s.ordersByID[order.ID] = order
	s.invoicesByOrder[order.ID] = invoice

	o := cloneOrder(order)
	inv := invoice
	return &o, &inv, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *Store) ListOrders(_ context.Context, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.ordersByID))
	for _, o := range s.ordersByID {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetInvoiceByOrderID(_ context.Context, orderID string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoicesByOrder[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) ExchangeOrderItems(_ context.Context, draft store.ExchangeDraft) (*store.ExchangeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[draft.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}

	itemsByID := map[string]domain.OrderItem{}
	for _, item := range order.Items {
		itemsByID[item.ID] = item
	}
	var returned []domain.OrderItem
	for _, id := range draft.ReturnedItemIDs {
		item, ok := itemsByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: item %s does not belong to order", store.ErrInvalidTransaction, id)
		}
		returned = append(returned, item)
	}
	if len(returned) == 0 {
		return nil, fmt.Errorf("%w: no items to return", store.ErrInvalidTransaction)
	}

	// Net stock effect per product must stay non-negative. Every touched
	// product has to exist before anything mutates.
	net := map[string]int{}
	for _, item := range returned {
		if item.ProductID != nil {
			if _, ok := s.productsByID[*item.ProductID]; !ok {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, *item.ProductID)
			}
			net[*item.ProductID] += item.Quantity
		}
	}
	for _, repl := range draft.Replacements {
		if repl.ProductID == nil {
			return nil, fmt.Errorf("%w: replacement without product", store.ErrInvalidTransaction)
		}
		if _, ok := s.productsByID[*repl.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, *repl.ProductID)
		}
		net[*repl.ProductID] -= repl.Quantity
	}
	for pid, delta := range net {
		if s.productsByID[pid].StockQuantity+delta < 0 {
			p := s.productsByID[pid]
			return nil, fmt.Errorf("%w: product %s has %d", store.ErrInsufficientStock, p.SKU, p.StockQuantity)
		}
	}

	for _, item := range returned {
		if item.ProductID != nil {
			if _, err := s.applyStockDeltaLocked(*item.ProductID, domain.StockChangeExchangeReturn, item.Quantity, order.ID, draft.Actor); err != nil {
				return nil, err
			}
		}
	}
	var added []domain.OrderItem
	for _, repl := range draft.Replacements {
		if _, err := s.applyStockDeltaLocked(*repl.ProductID, domain.StockChangeExchangeSale, -repl.Quantity, order.ID, draft.Actor); err != nil {
			return nil, err
		}
		item := repl
		item.ID = xid.New("oit")
		item.OrderID = order.ID
		added = append(added, item)
	}

	returnedSet := map[string]bool{}
	for _, item := range returned {
		returnedSet[item.ID] = true
	}
	var kept []domain.OrderItem
	for _, item := range order.Items {
		if !returnedSet[item.ID] {
			kept = append(kept, item)
		}
	}
	order.Items = append(kept, added...)
	order.Subtotal = clampZero(order.Subtotal.Add(draft.Difference))
	order.TotalAmount = clampZero(order.TotalAmount.Add(draft.Difference))
	if draft.Note != "" {
		if order.Notes != "" {
			order.Notes += "\n"
		}
		order.Notes += draft.Note
	}
	order.UpdatedAt = time.Now().UTC()
	s.ordersByID[order.ID] = order

	if inv, ok := s.invoicesByOrder[order.ID]; ok {
		inv.Subtotal = clampZero(inv.Subtotal.Add(draft.Difference))
		inv.TotalAmount = clampZero(inv.TotalAmount.Add(draft.Difference))
		s.invoicesByOrder[order.ID] = inv
	}

	o := cloneOrder(order)
	return &store.ExchangeResult{Order: o, ReturnedItems: returned, AddedItems: added}, nil
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func (s *Store) DeleteOrder(_ context.Context, id string, deletedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return store.ErrNotFound
	}

	for _, item := range order.Items {
		if item.ProductID == nil {
			continue
		}
		if _, exists := s.productsByID[*item.ProductID]; !exists {
			continue
		}
		if _, err := s.applyStockDeltaLocked(*item.ProductID, domain.StockChangeAdjustmentIn, item.Quantity, order.ID, deletedBy); err != nil {
			return err
		}
	}
	if order.CustomerID != nil {
		if c, ok := s.customersByID[*order.CustomerID]; ok {
			c.TotalOrders--
			c.TotalSpent = clampZero(c.TotalSpent.Sub(order.TotalAmount))
			s.customersByID[*order.CustomerID] = c
		}
	}
	if order.SalesmanID != nil {
		if sm, ok := s.salesmenByID[*order.SalesmanID]; ok {
			sm.TotalOrders--
			sm.TotalSales = clampZero(sm.TotalSales.Sub(order.TotalAmount))
			s.salesmenByID[*order.SalesmanID] = sm
		}
	}

	delete(s.ordersByID, id)
	delete(s.invoicesByOrder, id)
	return nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	customer.CreatedAt = time.Now().UTC()
	s.customersByID[customer.ID] = customer
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateSalesman(_ context.Context, salesman domain.Salesman) (*domain.Salesman, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if salesman.ID == "" {
		salesman.ID = xid.New("slm")
	}
	salesman.CreatedAt = time.Now().UTC()
	s.salesmenByID[salesman.ID] = salesman
	return &salesman, nil
}

func (s *Store) ListSalesmen(_ context.Context, limit int) ([]domain.Salesman, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Salesman, 0, len(s.salesmenByID))
	for _, sm := range s.salesmenByID {
		out = append(out, sm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetSalesmanByID(_ context.Context, id string) (*domain.Salesman, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sm, ok := s.salesmenByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sm, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	supplier.CreatedAt = time.Now().UTC()
	s.suppliersByID[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context, limit int) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sup := range s.suppliersByID {
		out = append(out, sup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, ok := s.suppliersByID[purchase.SupplierID]
	if !ok {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, purchase.SupplierID)
	}
	for _, item := range purchase.Items {
		if _, ok := s.productsByID[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
	}

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	purchase.CreatedAt = time.Now().UTC()
	for _, item := range purchase.Items {
		if _, err := s.applyStockDeltaLocked(item.ProductID, domain.StockChangePurchase, item.Quantity, purchase.ID, purchase.CreatedBy); err != nil {
			return nil, err
		}
	}
	sup.TotalPurchases = sup.TotalPurchases.Add(purchase.TotalAmount)
	s.suppliersByID[purchase.SupplierID] = sup
	s.purchasesByID[purchase.ID] = purchase
	return &purchase, nil
}

func (s *Store) ListPurchases(_ context.Context, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Purchase, 0, len(s.purchasesByID))
	for _, p := range s.purchasesByID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: username %s taken", store.ErrInvalidTransaction, user.Username)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}
