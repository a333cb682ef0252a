// Package postgres implements store.Repository against PostgreSQL. Tables
// are pre-provisioned; every multi-entity commit (sale, exchange, import
// upsert, purchase, order deletion) runs in a single serializable
// transaction, and stock plus rollup counters are moved with guarded atomic
// increments rather than read-then-write.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/importer"
	"noorcreations/backend/internal/store"
	"noorcreations/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const selectProduct = `
	SELECT id, sku, name, slug, design_number, price, discount_price, stock_quantity,
	       category_id, sizes, colors, unit, min_stock_alert, active, created_at, updated_at
	FROM products`

func scanFullProduct(row rowScanner) (*domain.Product, error) {
	var (
		p          domain.Product
		design     sql.NullString
		discount   sql.NullString
		categoryID sql.NullString
		sizesJSON  []byte
		colorsJSON []byte
		unit       sql.NullString
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Slug, &design, &p.Price, &discount, &p.StockQuantity,
		&categoryID, &sizesJSON, &colorsJSON, &unit, &p.MinStockAlert, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.DesignNumber = design.String
	p.Unit = unit.String
	if discount.Valid {
		d, derr := decimal.NewFromString(discount.String)
		if derr != nil {
			return nil, derr
		}
		p.DiscountPrice = &d
	}
	if categoryID.Valid {
		cid := categoryID.String
		p.CategoryID = &cid
	}
	if len(sizesJSON) > 0 {
		if err := json.Unmarshal(sizesJSON, &p.Sizes); err != nil {
			return nil, err
		}
	}
	if len(colorsJSON) > 0 {
		if err := json.Unmarshal(colorsJSON, &p.Colors); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool, limit int) ([]domain.Product, error) {
	query := selectProduct
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY name`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanFullProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanFullProduct(s.db.QueryRowContext(ctx, selectProduct+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := scanFullProduct(s.db.QueryRowContext(ctx, selectProduct+` WHERE lower(sku) = lower($1)`, strings.TrimSpace(sku)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.Slug == "" {
		product.Slug = importer.Slugify(product.Name, product.SKU)
	}
	product.Active = true

	sizesJSON, colorsJSON, err := encodeVariants(product.Sizes, product.Colors)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, slug, design_number, price, discount_price, stock_quantity,
		                      category_id, sizes, colors, unit, min_stock_alert, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
	`, product.ID, product.SKU, product.Name, product.Slug, nullIfEmpty(product.DesignNumber),
		product.Price, nullDecimal(product.DiscountPrice), product.StockQuantity,
		nullStringPtr(product.CategoryID), sizesJSON, colorsJSON, nullIfEmpty(product.Unit),
		product.MinStockAlert, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrInvalidTransaction, product.SKU)
		}
		return nil, err
	}

	if product.StockQuantity != 0 {
		if err := insertHistory(ctx, tx, domain.StockHistory{
			ProductID:        product.ID,
			ChangeType:       domain.StockChangeAdjustmentIn,
			ChangeAmount:     product.StockQuantity,
			PreviousQuantity: 0,
			NewQuantity:      product.StockQuantity,
			CreatedBy:        "system",
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	sizesJSON, colorsJSON, err := encodeVariants(product.Sizes, product.Colors)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, design_number = $3, price = $4, discount_price = $5, category_id = $6,
		    sizes = $7, colors = $8, min_stock_alert = $9, active = $10, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.DesignNumber), product.Price,
		nullDecimal(product.DiscountPrice), nullStringPtr(product.CategoryID),
		sizesJSON, colorsJSON, product.MinStockAlert, product.Active)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// adjustStock moves a product's quantity with a guarded atomic increment and
// returns the resulting quantity. The guard makes a negative result
// impossible regardless of concurrent writers.
func adjustStock(ctx context.Context, tx *sql.Tx, productID string, delta int) (newQty int, err error) {
	err = tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING stock_quantity
	`, productID, delta).Scan(&newQty)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if qerr := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); qerr != nil {
			return 0, qerr
		}
		if !exists {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
	}
	return newQty, err
}

func insertHistory(ctx context.Context, tx *sql.Tx, entry domain.StockHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("sth")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_history (id, product_id, change_type, change_amount, previous_quantity, new_quantity, reference_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, entry.ID, entry.ProductID, entry.ChangeType, entry.ChangeAmount,
		entry.PreviousQuantity, entry.NewQuantity, nullIfEmpty(entry.ReferenceID), entry.CreatedBy)
	return err
}

func (s *Store) ApplyStockDelta(ctx context.Context, productID string, changeType string, delta int, referenceID string, createdBy string) (*domain.StockHistory, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	newQty, err := adjustStock(ctx, tx, productID, delta)
	if err != nil {
		return nil, err
	}
	entry := domain.StockHistory{
		ID:               xid.New("sth"),
		ProductID:        productID,
		ChangeType:       changeType,
		ChangeAmount:     delta,
		PreviousQuantity: newQty - delta,
		NewQuantity:      newQty,
		ReferenceID:      referenceID,
		CreatedBy:        createdBy,
		CreatedAt:        time.Now().UTC(),
	}
	if err := insertHistory(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListStockHistory(ctx context.Context, productID string, limit int) ([]domain.StockHistory, error) {
	query := `
		SELECT id, product_id, change_type, change_amount, previous_quantity, new_quantity,
		       COALESCE(reference_id, ''), created_by, created_at
		FROM stock_history`
	args := []any{}
	if productID != "" {
		query += ` WHERE product_id = $1`
		args = append(args, productID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.StockHistory
	for rows.Next() {
		var h domain.StockHistory
		if err := rows.Scan(&h.ID, &h.ProductID, &h.ChangeType, &h.ChangeAmount,
			&h.PreviousQuantity, &h.NewQuantity, &h.ReferenceID, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (s *Store) UpsertImportedProduct(ctx context.Context, row domain.ParsedRow, categoryID *string, referenceID string, createdBy string) (bool, error) {
	if row.ClosingQty < 0 {
		return false, fmt.Errorf("%w: negative closing quantity for sku %s", store.ErrInvalidTransaction, row.SKU)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var discount any
	if row.SalePrice.IsPositive() && !row.SalePrice.Equal(row.MRP) {
		discount = row.SalePrice
	}

	var (
		id  string
		qty int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, stock_quantity FROM products WHERE lower(sku) = lower($1) FOR UPDATE
	`, row.SKU).Scan(&id, &qty)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET name = $2, design_number = $3, unit = $4, price = $5, discount_price = $6,
			    category_id = COALESCE($7, category_id), updated_at = now()
			WHERE id = $1
		`, id, row.Name, nullIfEmpty(row.DesignNumber), nullIfEmpty(row.Unit), row.MRP, discount, nullStringPtr(categoryID))
		if err != nil {
			return false, err
		}
		if row.ClosingQty != qty {
			delta := row.ClosingQty - qty
			newQty, aerr := adjustStock(ctx, tx, id, delta)
			if aerr != nil {
				return false, aerr
			}
			if herr := insertHistory(ctx, tx, domain.StockHistory{
				ProductID:        id,
				ChangeType:       domain.StockChangeFileUpload,
				ChangeAmount:     delta,
				PreviousQuantity: newQty - delta,
				NewQuantity:      newQty,
				ReferenceID:      referenceID,
				CreatedBy:        createdBy,
			}); herr != nil {
				return false, herr
			}
		}
		return false, tx.Commit()
	case errors.Is(err, sql.ErrNoRows):
		id = xid.New("prd")
		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (id, sku, name, slug, design_number, price, discount_price, stock_quantity,
			                      category_id, unit, min_stock_alert, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,true,now(),now())
		`, id, row.SKU, row.Name, importer.Slugify(row.Name, row.SKU), nullIfEmpty(row.DesignNumber),
			row.MRP, discount, row.ClosingQty, nullStringPtr(categoryID), nullIfEmpty(row.Unit))
		if err != nil {
			if isUniqueViolation(err) {
				return false, fmt.Errorf("%w: sku %s already exists", store.ErrInvalidTransaction, row.SKU)
			}
			return false, err
		}
		if row.ClosingQty != 0 {
			if herr := insertHistory(ctx, tx, domain.StockHistory{
				ProductID:        id,
				ChangeType:       domain.StockChangeFileUpload,
				ChangeAmount:     row.ClosingQty,
				PreviousQuantity: 0,
				NewQuantity:      row.ClosingQty,
				ReferenceID:      referenceID,
				CreatedBy:        createdBy,
			}); herr != nil {
				return false, herr
			}
		}
		return true, tx.Commit()
	default:
		return false, err
	}
}

func (s *Store) CreateImportHistory(ctx context.Context, record domain.ImportHistory) (*domain.ImportHistory, error) {
	if record.ID == "" {
		record.ID = xid.New("imp")
	}
	record.CreatedAt = time.Now().UTC()
	errorsJSON, err := json.Marshal(record.Errors)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_history (id, file_name, total_rows, created_count, updated_count, errors, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, record.ID, record.FileName, record.TotalRows, record.CreatedCount, record.UpdatedCount, errorsJSON, record.CreatedBy, record.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) ListImportHistory(ctx context.Context, limit int) ([]domain.ImportHistory, error) {
	query := `
		SELECT id, file_name, total_rows, created_count, updated_count, errors, created_by, created_at
		FROM import_history ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ImportHistory
	for rows.Next() {
		var (
			rec        domain.ImportHistory
			errorsJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.TotalRows, &rec.CreatedCount, &rec.UpdatedCount, &errorsJSON, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &rec.Errors); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) CreateSale(ctx context.Context, draft store.SaleDraft) (*domain.Order, *domain.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	order := draft.Order
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, customer_id, salesman_id, status, payment_status, payment_method,
		                    cash_amount, card_amount, credit_amount, subtotal, discount_amount, tax_amount,
		                    shipping_amount, total_amount, order_source, needs_alteration, alteration_details,
		                    notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$20)
	`, order.ID, order.OrderNumber, nullStringPtr(order.CustomerID), nullStringPtr(order.SalesmanID),
		order.Status, order.PaymentStatus, order.PaymentMethod,
		order.CashAmount, order.CardAmount, order.CreditAmount,
		order.Subtotal, order.DiscountAmount, order.TaxAmount, order.ShippingAmount, order.TotalAmount,
		order.OrderSource, order.NeedsAlteration, nullIfEmpty(order.AlterationDetails), nullIfEmpty(order.Notes), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%w: order number %s already exists", store.ErrInvalidTransaction, order.OrderNumber)
		}
		return nil, nil, err
	}

	for _, item := range draft.Items {
		if err := insertOrderItem(ctx, tx, item); err != nil {
			return nil, nil, err
		}
		if item.ProductID == nil {
			continue
		}
		newQty, err := adjustStock(ctx, tx, *item.ProductID, -item.Quantity)
		if err != nil {
			return nil, nil, err
		}
		if err := insertHistory(ctx, tx, domain.StockHistory{
			ProductID:        *item.ProductID,
			ChangeType:       domain.StockChangeSale,
			ChangeAmount:     -item.Quantity,
			PreviousQuantity: newQty + item.Quantity,
			NewQuantity:      newQty,
			ReferenceID:      order.ID,
			CreatedBy:        draft.CreatedBy,
		}); err != nil {
			return nil, nil, err
		}
	}

	invoice := draft.Invoice
	invoice.ID = xid.New("inv")
	invoice.OrderID = &order.ID
	invoice.CreatedAt = now
	if err := tx.QueryRowContext(ctx, `SELECT 'INV-' || lpad(nextval('invoice_numbers')::text, 6, '0')`).Scan(&invoice.InvoiceNumber); err != nil {
		return nil, nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, order_id, customer_id, salesman_id, subtotal,
		                      discount_amount, tax_amount, total_amount, payment_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, invoice.ID, invoice.InvoiceNumber, order.ID, nullStringPtr(order.CustomerID), nullStringPtr(order.SalesmanID),
		invoice.Subtotal, invoice.DiscountAmount, invoice.TaxAmount, invoice.TotalAmount, invoice.PaymentStatus, now)
	if err != nil {
		return nil, nil, err
	}

	if order.CustomerID != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE customers
			SET total_orders = total_orders + 1, total_spent = total_spent + $2, last_purchase_date = $3
			WHERE id = $1
		`, *order.CustomerID, order.TotalAmount, now)
		if err != nil {
			return nil, nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, *order.CustomerID)
		}
	}
	if order.SalesmanID != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE salesmen
			SET total_orders = total_orders + 1, total_sales = total_sales + $2
			WHERE id = $1
		`, *order.SalesmanID, order.TotalAmount)
		if err != nil {
			return nil, nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, nil, fmt.Errorf("%w: salesman %s", store.ErrNotFound, *order.SalesmanID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	order.Items = draft.Items
	return &order, &invoice, nil
}

func insertOrderItem(ctx context.Context, tx *sql.Tx, item domain.OrderItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, product_name, product_sku, quantity, unit_price, total_price, size, color)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, item.ID, item.OrderID, nullStringPtr(item.ProductID), item.ProductName, nullIfEmpty(item.ProductSKU),
		item.Quantity, item.UnitPrice, item.TotalPrice, nullIfEmpty(item.Size), nullIfEmpty(item.Color))
	return err
}

const selectOrder = `
	SELECT id, order_number, customer_id, salesman_id, status, payment_status, payment_method,
	       cash_amount, card_amount, credit_amount, subtotal, discount_amount, tax_amount,
	       shipping_amount, total_amount, order_source, needs_alteration,
	       COALESCE(alteration_details, ''), COALESCE(notes, ''), created_at, updated_at
	FROM orders`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o          domain.Order
		customerID sql.NullString
		salesmanID sql.NullString
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &customerID, &salesmanID, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.CashAmount, &o.CardAmount, &o.CreditAmount, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount,
		&o.ShippingAmount, &o.TotalAmount, &o.OrderSource, &o.NeedsAlteration,
		&o.AlterationDetails, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		v := customerID.String
		o.CustomerID = &v
	}
	if salesmanID.Valid {
		v := salesmanID.String
		o.SalesmanID = &v
	}
	return &o, nil
}

func (s *Store) loadOrderItems(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, COALESCE(product_sku, ''), quantity,
		       unit_price, total_price, COALESCE(size, ''), COALESCE(color, '')
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var (
			item      domain.OrderItem
			productID sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &productID, &item.ProductName, &item.ProductSKU,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.Size, &item.Color); err != nil {
			return nil, err
		}
		if productID.Valid {
			v := productID.String
			item.ProductID = &v
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := s.loadOrderItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	query := selectOrder + ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *Store) GetInvoiceByOrderID(ctx context.Context, orderID string) (*domain.Invoice, error) {
	var (
		inv        domain.Invoice
		oID        sql.NullString
		customerID sql.NullString
		salesmanID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_number, order_id, customer_id, salesman_id, subtotal,
		       discount_amount, tax_amount, total_amount, payment_status, created_at
		FROM invoices WHERE order_id = $1
	`, orderID).Scan(&inv.ID, &inv.InvoiceNumber, &oID, &customerID, &salesmanID,
		&inv.Subtotal, &inv.DiscountAmount, &inv.TaxAmount, &inv.TotalAmount, &inv.PaymentStatus, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if oID.Valid {
		v := oID.String
		inv.OrderID = &v
	}
	if customerID.Valid {
		v := customerID.String
		inv.CustomerID = &v
	}
	if salesmanID.Valid {
		v := salesmanID.String
		inv.SalesmanID = &v
	}
	return &inv, nil
}

func (s *Store) ExchangeOrderItems(ctx context.Context, draft store.ExchangeDraft) (*store.ExchangeResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var orderID string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, draft.OrderID).Scan(&orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadOrderItems(ctx, tx, draft.OrderID)
	if err != nil {
		return nil, err
	}
	itemsByID := map[string]domain.OrderItem{}
	for _, item := range items {
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

	for _, item := range returned {
		if item.ProductID == nil {
			continue
		}
		newQty, err := adjustStock(ctx, tx, *item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if err := insertHistory(ctx, tx, domain.StockHistory{
			ProductID:        *item.ProductID,
			ChangeType:       domain.StockChangeExchangeReturn,
			ChangeAmount:     item.Quantity,
			PreviousQuantity: newQty - item.Quantity,
			NewQuantity:      newQty,
			ReferenceID:      draft.OrderID,
			CreatedBy:        draft.Actor,
		}); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE id = $1`, item.ID); err != nil {
			return nil, err
		}
	}

	var added []domain.OrderItem
	for _, repl := range draft.Replacements {
		if repl.ProductID == nil {
			return nil, fmt.Errorf("%w: replacement without product", store.ErrInvalidTransaction)
		}
		newQty, err := adjustStock(ctx, tx, *repl.ProductID, -repl.Quantity)
		if err != nil {
			return nil, err
		}
		if err := insertHistory(ctx, tx, domain.StockHistory{
			ProductID:        *repl.ProductID,
			ChangeType:       domain.StockChangeExchangeSale,
			ChangeAmount:     -repl.Quantity,
			PreviousQuantity: newQty + repl.Quantity,
			NewQuantity:      newQty,
			ReferenceID:      draft.OrderID,
			CreatedBy:        draft.Actor,
		}); err != nil {
			return nil, err
		}
		item := repl
		item.ID = xid.New("oit")
		item.OrderID = draft.OrderID
		if err := insertOrderItem(ctx, tx, item); err != nil {
			return nil, err
		}
		added = append(added, item)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET subtotal = GREATEST(subtotal + $2, 0),
		    total_amount = GREATEST(total_amount + $2, 0),
		    notes = CASE WHEN notes IS NULL OR notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
		    updated_at = now()
		WHERE id = $1
	`, draft.OrderID, draft.Difference, draft.Note)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE invoices
		SET subtotal = GREATEST(subtotal + $2, 0),
		    total_amount = GREATEST(total_amount + $2, 0)
		WHERE order_id = $1
	`, draft.OrderID, draft.Difference)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order, err := s.GetOrderByID(ctx, draft.OrderID)
	if err != nil {
		return nil, err
	}
	return &store.ExchangeResult{Order: *order, ReturnedItems: returned, AddedItems: added}, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string, deletedBy string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	items, err := s.loadOrderItems(ctx, tx, id)
	if err != nil {
		return err
	}

	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		newQty, err := adjustStock(ctx, tx, *item.ProductID, item.Quantity)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, domain.StockHistory{
			ProductID:        *item.ProductID,
			ChangeType:       domain.StockChangeAdjustmentIn,
			ChangeAmount:     item.Quantity,
			PreviousQuantity: newQty - item.Quantity,
			NewQuantity:      newQty,
			ReferenceID:      id,
			CreatedBy:        deletedBy,
		}); err != nil {
			return err
		}
	}

	if order.CustomerID != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE customers
			SET total_orders = GREATEST(total_orders - 1, 0),
			    total_spent = GREATEST(total_spent - $2, 0)
			WHERE id = $1
		`, *order.CustomerID, order.TotalAmount)
		if err != nil {
			return err
		}
	}
	if order.SalesmanID != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE salesmen
			SET total_orders = GREATEST(total_orders - 1, 0),
			    total_sales = GREATEST(total_sales - $2, 0)
			WHERE id = $1
		`, *order.SalesmanID, order.TotalAmount)
		if err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE order_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	customer.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, total_orders, total_spent, created_at)
		VALUES ($1,$2,$3,$4,$5,0,0,$6)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), nullIfEmpty(customer.Address), customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	query := `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''),
		       total_orders, total_spent, last_purchase_date, created_at
		FROM customers ORDER BY name`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var (
			c    domain.Customer
			last sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.TotalOrders, &c.TotalSpent, &last, &c.CreatedAt); err != nil {
			return nil, err
		}
		if last.Valid {
			t := last.Time
			c.LastPurchaseDate = &t
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var (
		c    domain.Customer
		last sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''),
		       total_orders, total_spent, last_purchase_date, created_at
		FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.TotalOrders, &c.TotalSpent, &last, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if last.Valid {
		t := last.Time
		c.LastPurchaseDate = &t
	}
	return &c, nil
}

func (s *Store) CreateSalesman(ctx context.Context, salesman domain.Salesman) (*domain.Salesman, error) {
	if salesman.ID == "" {
		salesman.ID = xid.New("slm")
	}
	salesman.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO salesmen (id, name, phone, commission_rate, total_sales, total_orders, created_at)
		VALUES ($1,$2,$3,$4,0,0,$5)
	`, salesman.ID, salesman.Name, nullIfEmpty(salesman.Phone), salesman.CommissionRate, salesman.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &salesman, nil
}

func (s *Store) ListSalesmen(ctx context.Context, limit int) ([]domain.Salesman, error) {
	query := `
		SELECT id, name, COALESCE(phone, ''), commission_rate, total_sales, total_orders, created_at
		FROM salesmen ORDER BY name`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var salesmen []domain.Salesman
	for rows.Next() {
		var sm domain.Salesman
		if err := rows.Scan(&sm.ID, &sm.Name, &sm.Phone, &sm.CommissionRate, &sm.TotalSales, &sm.TotalOrders, &sm.CreatedAt); err != nil {
			return nil, err
		}
		salesmen = append(salesmen, sm)
	}
	return salesmen, rows.Err()
}

func (s *Store) GetSalesmanByID(ctx context.Context, id string) (*domain.Salesman, error) {
	var sm domain.Salesman
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), commission_rate, total_sales, total_orders, created_at
		FROM salesmen WHERE id = $1
	`, id).Scan(&sm.ID, &sm.Name, &sm.Phone, &sm.CommissionRate, &sm.TotalSales, &sm.TotalOrders, &sm.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sm, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	supplier.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, address, total_purchases, created_at)
		VALUES ($1,$2,$3,$4,0,$5)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Address), supplier.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context, limit int) ([]domain.Supplier, error) {
	query := `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, ''), total_purchases, created_at
		FROM suppliers ORDER BY name`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []domain.Supplier
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Address, &sup.TotalPurchases, &sup.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	purchase.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, purchase_number, supplier_id, total_amount, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, purchase.ID, purchase.PurchaseNumber, purchase.SupplierID, purchase.TotalAmount,
		nullIfEmpty(purchase.Notes), nullIfEmpty(purchase.CreatedBy), purchase.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range purchase.Items {
		item := &purchase.Items[i]
		if item.ID == "" {
			item.ID = xid.New("pit")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_items (id, purchase_id, product_id, quantity, unit_cost, total_cost)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ID, purchase.ID, item.ProductID, item.Quantity, item.UnitCost, item.TotalCost)
		if err != nil {
			return nil, err
		}
		newQty, err := adjustStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if err := insertHistory(ctx, tx, domain.StockHistory{
			ProductID:        item.ProductID,
			ChangeType:       domain.StockChangePurchase,
			ChangeAmount:     item.Quantity,
			PreviousQuantity: newQty - item.Quantity,
			NewQuantity:      newQty,
			ReferenceID:      purchase.ID,
			CreatedBy:        purchase.CreatedBy,
		}); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE suppliers SET total_purchases = total_purchases + $2 WHERE id = $1
	`, purchase.SupplierID, purchase.TotalAmount)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, purchase.SupplierID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	query := `
		SELECT id, purchase_number, supplier_id, total_amount, COALESCE(notes, ''), COALESCE(created_by, ''), created_at
		FROM purchases ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []domain.Purchase
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.PurchaseNumber, &p.SupplierID, &p.TotalAmount, &p.Notes, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username %s taken", store.ErrInvalidTransaction, user.Username)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.UserAccount
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func encodeVariants(sizes, colors []string) ([]byte, []byte, error) {
	sizesJSON, err := json.Marshal(emptyIfNil(sizes))
	if err != nil {
		return nil, nil, err
	}
	colorsJSON, err := json.Marshal(emptyIfNil(colors))
	if err != nil {
		return nil, nil, err
	}
	return sizesJSON, colorsJSON, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
