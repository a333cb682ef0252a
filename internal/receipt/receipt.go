// Package receipt renders the printable sale receipt. Render is pure: same
// data in, same HTML out, no clock or store access.
package receipt

import (
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"noorcreations/backend/internal/domain"
)

type Line struct {
	Name       string
	SKU        string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

type Data struct {
	StoreName     string
	OrderNumber   string
	InvoiceNumber string
	IssuedAt      time.Time
	CustomerName  string
	SalesmanName  string
	Lines         []Line
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod string
	PaymentStatus string
	Notes         string
}

var receiptTmpl = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Receipt {{.InvoiceNumber}}</title>
<style>
body { font-family: monospace; max-width: 320px; margin: 0 auto; }
h1 { font-size: 16px; text-align: center; }
table { width: 100%; border-collapse: collapse; font-size: 12px; }
td, th { padding: 2px 4px; text-align: left; }
td.num, th.num { text-align: right; }
.totals td { border-top: 1px dashed #000; }
.meta { font-size: 12px; }
.footer { text-align: center; font-size: 11px; margin-top: 12px; }
</style>
</head>
<body>
<h1>{{.StoreName}}</h1>
<div class="meta">
<div>Order: {{.OrderNumber}}</div>
<div>Invoice: {{.InvoiceNumber}}</div>
<div>Date: {{.IssuedAt.Format "02 Jan 2006 15:04"}}</div>
{{if .CustomerName}}<div>Customer: {{.CustomerName}}</div>{{end}}
{{if .SalesmanName}}<div>Salesman: {{.SalesmanName}}</div>{{end}}
</div>
<table>
<tr><th>Item</th><th class="num">Qty</th><th class="num">Rate</th><th class="num">Amount</th></tr>
{{range .Lines}}
<tr><td>{{.Name}}{{if .SKU}} ({{.SKU}}){{end}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.TotalPrice}}</td></tr>
{{end}}
<tr class="totals"><td colspan="3">Subtotal</td><td class="num">{{.Subtotal}}</td></tr>
<tr><td colspan="3">Discount</td><td class="num">-{{.Discount}}</td></tr>
<tr><td colspan="3"><strong>Total</strong></td><td class="num"><strong>{{.Total}}</strong></td></tr>
</table>
<div class="meta">
<div>Payment: {{.PaymentMethod}} ({{.PaymentStatus}})</div>
{{if .Notes}}<div>Note: {{.Notes}}</div>{{end}}
</div>
<div class="footer">Thank you for shopping with us</div>
</body>
</html>
`))

// Render produces the receipt HTML for one completed sale.
func Render(d Data) (string, error) {
	var b strings.Builder
	if err := receiptTmpl.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}

// FromSale assembles receipt data from a committed order and invoice.
func FromSale(storeName string, order domain.Order, invoice domain.Invoice, customerName, salesmanName string) Data {
	d := Data{
		StoreName:     storeName,
		OrderNumber:   order.OrderNumber,
		InvoiceNumber: invoice.InvoiceNumber,
		IssuedAt:      invoice.CreatedAt,
		CustomerName:  customerName,
		SalesmanName:  salesmanName,
		Subtotal:      order.Subtotal,
		Discount:      order.DiscountAmount,
		Total:         order.TotalAmount,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		Notes:         order.Notes,
	}
	for _, item := range order.Items {
		d.Lines = append(d.Lines, Line{
			Name:       item.ProductName,
			SKU:        item.ProductSKU,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}
	return d
}
