package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the authoritative inventory record. StockQuantity is only ever
// mutated through the ledger (store.ApplyStockDelta or the sale/exchange
// transactions) so every change leaves a StockHistory row behind.
type Product struct {
	ID            string           `json:"id"`
	SKU           string           `json:"sku"`
	Name          string           `json:"name"`
	Slug          string           `json:"slug"`
	DesignNumber  string           `json:"design_number,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	CategoryID    *string          `json:"category_id,omitempty"`
	Sizes         []string         `json:"sizes,omitempty"`
	Colors        []string         `json:"colors,omitempty"`
	Unit          string           `json:"unit,omitempty"`
	MinStockAlert int              `json:"min_stock_alert"`
	Active        bool             `json:"active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// UnitSalePrice is what a POS line defaults to: the discount price when one
// is set, otherwise the MRP.
func (p Product) UnitSalePrice() decimal.Decimal {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

const (
	StockChangeSale           = "sale"
	StockChangeFileUpload     = "file_upload"
	StockChangeAdjustmentIn   = "adjustment_in"
	StockChangeAdjustmentOut  = "adjustment_out"
	StockChangeExchangeReturn = "exchange_return"
	StockChangeExchangeSale   = "exchange_sale"
	StockChangePurchase       = "purchase"
)

// StockHistory is append-only. Invariant:
// NewQuantity == PreviousQuantity + ChangeAmount, NewQuantity >= 0.
type StockHistory struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	ChangeType       string    `json:"change_type"`
	ChangeAmount     int       `json:"change_amount"`
	PreviousQuantity int       `json:"previous_quantity"`
	NewQuantity      int       `json:"new_quantity"`
	ReferenceID      string    `json:"reference_id,omitempty"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

const (
	PaymentMethodCash   = "cash"
	PaymentMethodCard   = "card_upi"
	PaymentMethodCredit = "credit"
	PaymentMethodDouble = "double"
)

const (
	OrderSourcePOS    = "pos"
	OrderSourceOnline = "online"
)

// Order carries structured payment detail (method plus cash/card/credit
// amounts) rather than encoding the split into free-text notes.
// Invariant: TotalAmount == Subtotal - DiscountAmount + TaxAmount + ShippingAmount.
type Order struct {
	ID                string          `json:"id"`
	OrderNumber       string          `json:"order_number"`
	CustomerID        *string         `json:"customer_id,omitempty"`
	SalesmanID        *string         `json:"salesman_id,omitempty"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"payment_status"`
	PaymentMethod     string          `json:"payment_method"`
	CashAmount        decimal.Decimal `json:"cash_amount"`
	CardAmount        decimal.Decimal `json:"card_amount"`
	CreditAmount      decimal.Decimal `json:"credit_amount"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	ShippingAmount    decimal.Decimal `json:"shipping_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	OrderSource       string          `json:"order_source"`
	NeedsAlteration   bool            `json:"needs_alteration"`
	AlterationDetails string          `json:"alteration_details,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Items             []OrderItem     `json:"items,omitempty"`
}

// OrderItem snapshots product name and SKU so the line survives product
// deletion. TotalPrice is the net line amount after the per-line discount.
type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   *string         `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
}

// Invoice mirrors the order totals at generation time. InvoiceNumber is
// assigned by the store from a sequence; caller-supplied values are ignored.
type Invoice struct {
	ID             string          `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	OrderID        *string         `json:"order_id,omitempty"`
	CustomerID     *string         `json:"customer_id,omitempty"`
	SalesmanID     *string         `json:"salesman_id,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentStatus  string          `json:"payment_status"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Customer struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Phone            string          `json:"phone,omitempty"`
	Email            string          `json:"email,omitempty"`
	Address          string          `json:"address,omitempty"`
	TotalOrders      int             `json:"total_orders"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	LastPurchaseDate *time.Time      `json:"last_purchase_date,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type Salesman struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	CommissionRate float64         `json:"commission_rate"`
	TotalSales     decimal.Decimal `json:"total_sales"`
	TotalOrders    int             `json:"total_orders"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Supplier struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Purchase struct {
	ID             string          `json:"id"`
	PurchaseNumber string          `json:"purchase_number"`
	SupplierID     string          `json:"supplier_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []PurchaseItem  `json:"items,omitempty"`
}

type PurchaseItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// ParsedRow is one sanitized spreadsheet row, held for the import session's
// preview and submitted back on commit.
type ParsedRow struct {
	RowNumber    int             `json:"row_number"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	DesignNumber string          `json:"design_number,omitempty"`
	Description  string          `json:"description,omitempty"`
	Unit         string          `json:"unit,omitempty"`
	MRP          decimal.Decimal `json:"mrp"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	ClosingQty   int             `json:"closing_qty"`
	Category     string          `json:"category,omitempty"`
	Valid        bool            `json:"valid"`
	Errors       []string        `json:"errors,omitempty"`
}

type ImportPreview struct {
	SessionID   string      `json:"session_id"`
	FileName    string      `json:"file_name"`
	Rows        []ParsedRow `json:"rows"`
	TotalRows   int         `json:"total_rows"`
	ValidRows   int         `json:"valid_rows"`
	InvalidRows int         `json:"invalid_rows"`
	SkippedRows int         `json:"skipped_rows"`
	Truncated   bool        `json:"truncated"`
}

type ImportRowError struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku"`
	Message string `json:"message"`
}

type ImportCommitRequest struct {
	SessionID string      `json:"session_id"`
	FileName  string      `json:"file_name"`
	Rows      []ParsedRow `json:"rows" validate:"required,min=1"`
}

type ImportCommitResult struct {
	SessionID string           `json:"session_id"`
	FileName  string           `json:"file_name"`
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Batches   int              `json:"batches"`
	Errors    []ImportRowError `json:"errors,omitempty"`
}

type ImportHistory struct {
	ID           string           `json:"id"`
	FileName     string           `json:"file_name"`
	TotalRows    int              `json:"total_rows"`
	CreatedCount int              `json:"created_count"`
	UpdatedCount int              `json:"updated_count"`
	Errors       []ImportRowError `json:"errors,omitempty"`
	CreatedBy    string           `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
}

// CartLine is one POS billing line. UnitPrice is the price captured when the
// line was added, not auto-refreshed; nil means "use the product's current
// sale price". DiscountPercent nil means the default 10%.
type CartLine struct {
	ProductID       string           `json:"product_id" validate:"required"`
	Quantity        int              `json:"quantity" validate:"gt=0"`
	Size            string           `json:"size,omitempty"`
	Color           string           `json:"color,omitempty"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountPercent *int             `json:"discount_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type Payment struct {
	Method       string          `json:"method" validate:"required,oneof=cash card_upi credit double"`
	CashAmount   decimal.Decimal `json:"cash_amount"`
	CardAmount   decimal.Decimal `json:"card_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
}

type CheckoutRequest struct {
	Items             []CartLine `json:"items" validate:"required,min=1,dive"`
	CustomerID        *string    `json:"customer_id,omitempty"`
	SalesmanID        *string    `json:"salesman_id,omitempty"`
	Payment           Payment    `json:"payment"`
	NeedsAlteration   bool       `json:"needs_alteration"`
	AlterationDetails string     `json:"alteration_details,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

type CheckoutResponse struct {
	Order       Order   `json:"order"`
	Invoice     Invoice `json:"invoice"`
	ReceiptHTML string  `json:"receipt_html"`
	ElapsedMS   int64   `json:"elapsed_ms"`
}

type ExchangeLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type ExchangeRequest struct {
	OrderID         string         `json:"order_id"`
	ReturnedItemIDs []string       `json:"returned_item_ids"`
	Replacements    []ExchangeLine `json:"replacements" validate:"required,min=1,dive"`
}

// ExchangeSummary is re-derived from the staged items; Difference > 0 means
// the customer owes more, < 0 means a refund is due.
type ExchangeSummary struct {
	ReturnedTotal    decimal.Decimal `json:"returned_total"`
	ReplacementTotal decimal.Decimal `json:"replacement_total"`
	Difference       decimal.Decimal `json:"difference"`
}

const (
	ExchangeBalanceCustomerPays = "customer_pays"
	ExchangeBalanceRefundDue    = "refund_due"
	ExchangeBalanceEven         = "even"
)

func (s ExchangeSummary) Balance() string {
	switch s.Difference.Sign() {
	case 1:
		return ExchangeBalanceCustomerPays
	case -1:
		return ExchangeBalanceRefundDue
	default:
		return ExchangeBalanceEven
	}
}

type ExchangeResponse struct {
	Order         Order           `json:"order"`
	Summary       ExchangeSummary `json:"summary"`
	Balance       string          `json:"balance"`
	ReturnedItems []OrderItem     `json:"returned_items"`
	AddedItems    []OrderItem     `json:"added_items"`
}

type StockAdjustmentRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	ChangeType string `json:"change_type" validate:"required,oneof=adjustment_in adjustment_out"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
	Note       string `json:"note,omitempty"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Address string `json:"address,omitempty"`
}

type SalesmanCreateRequest struct {
	Name           string  `json:"name" validate:"required"`
	Phone          string  `json:"phone,omitempty"`
	CommissionRate float64 `json:"commission_rate" validate:"gte=0,lte=100"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type PurchaseItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type PurchaseCreateRequest struct {
	SupplierID string                `json:"supplier_id" validate:"required"`
	Notes      string                `json:"notes,omitempty"`
	Items      []PurchaseItemRequest `json:"items" validate:"required,min=1,dive"`
}

type ProductCreateRequest struct {
	SKU           string           `json:"sku" validate:"required"`
	Name          string           `json:"name" validate:"required"`
	DesignNumber  string           `json:"design_number,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	CategoryID    *string          `json:"category_id,omitempty"`
	Sizes         []string         `json:"sizes,omitempty"`
	Colors        []string         `json:"colors,omitempty"`
	Unit          string           `json:"unit,omitempty"`
	MinStockAlert int              `json:"min_stock_alert"`
	InitialStock  int              `json:"initial_stock" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	DesignNumber  *string          `json:"design_number,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	CategoryID    *string          `json:"category_id,omitempty"`
	Sizes         []string         `json:"sizes,omitempty"`
	Colors        []string         `json:"colors,omitempty"`
	MinStockAlert *int             `json:"min_stock_alert,omitempty"`
	Active        *bool            `json:"active,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type EmployeeCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type EmployeeUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is the persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
