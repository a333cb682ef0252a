package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"noorcreations/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// SaleDraft is a fully-priced sale ready to be committed. The store writes
// the order, its items, the invoice, per-line stock debits with history rows,
// and the customer/salesman rollups in one transaction.
type SaleDraft struct {
	Order     domain.Order
	Items     []domain.OrderItem
	Invoice   domain.Invoice
	CreatedBy string
}

// ExchangeDraft names the items leaving an order and the priced items
// replacing them. Difference is replacement total minus returned total.
type ExchangeDraft struct {
	OrderID         string
	ReturnedItemIDs []string
	Replacements    []domain.OrderItem
	Difference      decimal.Decimal
	Note            string
	Actor           string
}

type ExchangeResult struct {
	Order         domain.Order
	ReturnedItems []domain.OrderItem
	AddedItems    []domain.OrderItem
}

type Repository interface {
	ListProducts(ctx context.Context, activeOnly bool, limit int) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	// ApplyStockDelta atomically shifts a product's stock and appends the
	// matching history row. A delta that would take stock negative fails
	// with ErrInsufficientStock and writes nothing.
	ApplyStockDelta(ctx context.Context, productID string, changeType string, delta int, referenceID string, createdBy string) (*domain.StockHistory, error)
	ListStockHistory(ctx context.Context, productID string, limit int) ([]domain.StockHistory, error)

	// UpsertImportedProduct inserts the row as a new product or updates the
	// product with the same SKU. Returns created=true on insert. Stock
	// history is written only when the quantity actually changes.
	UpsertImportedProduct(ctx context.Context, row domain.ParsedRow, categoryID *string, referenceID string, createdBy string) (created bool, err error)
	CreateImportHistory(ctx context.Context, record domain.ImportHistory) (*domain.ImportHistory, error)
	ListImportHistory(ctx context.Context, limit int) ([]domain.ImportHistory, error)

	CreateSale(ctx context.Context, draft SaleDraft) (*domain.Order, *domain.Invoice, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	GetInvoiceByOrderID(ctx context.Context, orderID string) (*domain.Invoice, error)
	ExchangeOrderItems(ctx context.Context, draft ExchangeDraft) (*ExchangeResult, error)
	// DeleteOrder removes the order and its items, restores stock, and
	// reverses the customer/salesman rollups in one transaction.
	DeleteOrder(ctx context.Context, id string, deletedBy string) error

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateSalesman(ctx context.Context, salesman domain.Salesman) (*domain.Salesman, error)
	ListSalesmen(ctx context.Context, limit int) ([]domain.Salesman, error)
	GetSalesmanByID(ctx context.Context, id string) (*domain.Salesman, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, limit int) ([]domain.Supplier, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
