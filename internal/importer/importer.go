// Package importer turns an uploaded stock spreadsheet into sanitized
// product rows. It handles workbook reading, header mapping, per-row
// validation, and category detection; committing rows is the service's job.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"noorcreations/backend/internal/domain"
)

const (
	// MaxRows caps a single upload; extra rows are dropped with a warning,
	// not an error.
	MaxRows = 2000

	maxNameLen = 300
	maxDescLen = 300
	maxSKULen  = 50
	maxUnitLen = 20
)

var (
	maxPrice    = decimal.NewFromInt(10_000_000)
	maxQuantity = 1_000_000
)

// ColumnMap holds zero-based column indexes resolved from the header row.
// Optional columns are -1 when absent.
type ColumnMap struct {
	Name         int
	SKU          int
	MRP          int
	SalePrice    int
	ClosingQty   int
	DesignNumber int
	Unit         int
	Description  int
}

// MappingError rejects the whole file when a required column is missing.
type MappingError struct {
	Missing []string
}

func (e *MappingError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// Result is the outcome of parsing one workbook.
type Result struct {
	Rows      []domain.ParsedRow
	Truncated bool
	Skipped   int
}

// ReadWorkbook extracts the cell grid from the first worksheet of an
// .xlsx/.xls upload, or from a .csv. The caller supplies the original file
// name so the format can be sniffed from its extension.
func ReadWorkbook(fileName string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		records, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		return records, nil
	case ".xlsx", ".xls", ".xlsm":
		wb, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer wb.Close()
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		rows, err := wb.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(fileName))
	}
}

// MapColumns resolves the header row into column indexes. Matching is
// case-insensitive substring, except SKU which requires the exact header
// "bcn" (the barcode number column in the supplier format).
func MapColumns(header []string) (ColumnMap, error) {
	cm := ColumnMap{Name: -1, SKU: -1, MRP: -1, SalePrice: -1, ClosingQty: -1, DesignNumber: -1, Unit: -1, Description: -1}
	for i, raw := range header {
		h := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case h == "bcn":
			if cm.SKU < 0 {
				cm.SKU = i
			}
		case strings.Contains(h, "item") && strings.Contains(h, "detail"):
			if cm.Name < 0 {
				cm.Name = i
			}
		case strings.Contains(h, "sale") && strings.Contains(h, "price"):
			if cm.SalePrice < 0 {
				cm.SalePrice = i
			}
		case strings.Contains(h, "mrp"):
			if cm.MRP < 0 {
				cm.MRP = i
			}
		case strings.Contains(h, "closing") && (strings.Contains(h, "qty") || strings.Contains(h, "quantity")):
			if cm.ClosingQty < 0 {
				cm.ClosingQty = i
			}
		case strings.Contains(h, "design"):
			if cm.DesignNumber < 0 {
				cm.DesignNumber = i
			}
		case strings.Contains(h, "unit"):
			if cm.Unit < 0 {
				cm.Unit = i
			}
		case strings.Contains(h, "desc"):
			if cm.Description < 0 {
				cm.Description = i
			}
		}
	}
	var missing []string
	if cm.Name < 0 {
		missing = append(missing, "item details")
	}
	if cm.SKU < 0 {
		missing = append(missing, "bcn")
	}
	if cm.MRP < 0 {
		missing = append(missing, "mrp")
	}
	if cm.SalePrice < 0 {
		missing = append(missing, "sale price")
	}
	if cm.ClosingQty < 0 {
		missing = append(missing, "closing qty")
	}
	if len(missing) > 0 {
		return cm, &MappingError{Missing: missing}
	}
	return cm, nil
}

// ParseRows sanitizes every data row under the header. Rows past MaxRows are
// dropped and Truncated is set; blank-SKU rows are skipped silently. A row
// with bad values stays in the result flagged invalid with per-field errors.
func ParseRows(grid [][]string) (Result, error) {
	if len(grid) == 0 {
		return Result{}, errors.New("file is empty")
	}
	cm, err := MapColumns(grid[0])
	if err != nil {
		return Result{}, err
	}

	data := grid[1:]
	res := Result{}
	if len(data) > MaxRows {
		data = data[:MaxRows]
		res.Truncated = true
	}

	for i, cells := range data {
		sku := clip(cell(cells, cm.SKU), maxSKULen)
		if sku == "" {
			res.Skipped++
			continue
		}
		row := domain.ParsedRow{
			// Row numbers are 1-based and count the header.
			RowNumber:    i + 2,
			Name:         clip(cell(cells, cm.Name), maxNameLen),
			SKU:          sku,
			DesignNumber: clip(cell(cells, cm.DesignNumber), maxSKULen),
			Description:  clip(cell(cells, cm.Description), maxDescLen),
			Unit:         clip(cell(cells, cm.Unit), maxUnitLen),
			Valid:        true,
		}
		if row.Name == "" {
			flag(&row, "Missing item name")
		}

		if mrp, perr := parseAmount(cell(cells, cm.MRP)); perr != nil {
			flag(&row, "Invalid MRP")
		} else {
			row.MRP = mrp
		}
		if sp, perr := parseAmount(cell(cells, cm.SalePrice)); perr != nil {
			flag(&row, "Invalid Sale Price")
		} else {
			row.SalePrice = sp
		}
		if qty, perr := parseQuantity(cell(cells, cm.ClosingQty)); perr != nil {
			flag(&row, "Invalid Closing Qty")
		} else {
			row.ClosingQty = qty
		}

		if row.Valid {
			row.Category = DetectCategory(row.Name)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func flag(row *domain.ParsedRow, msg string) {
	row.Valid = false
	row.Errors = append(row.Errors, msg)
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// parseAmount accepts comma-grouped numbers ("1,299.50") and keeps the value
// exact. Empty means zero; negative or absurdly large values are rejected.
func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	cleaned := strings.ReplaceAll(raw, ",", "")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() || d.GreaterThan(maxPrice) {
		return decimal.Zero, errors.New("amount out of range")
	}
	return d, nil
}

// parseQuantity rounds fractional quantities to the nearest whole unit.
func parseQuantity(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	cleaned := strings.ReplaceAll(raw, ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	// Bound before converting; float64 values beyond the int range convert
	// to an implementation-defined result.
	if f < 0 || f > float64(maxQuantity) {
		return 0, errors.New("quantity out of range")
	}
	return int(f + 0.5), nil
}

// CheckRow re-validates the bounds ParseRows enforces. Commit payloads come
// back from the client, so a Valid flag alone proves nothing.
func CheckRow(row domain.ParsedRow) error {
	if row.ClosingQty < 0 || row.ClosingQty > maxQuantity {
		return errors.New("closing quantity out of range")
	}
	if row.MRP.IsNegative() || row.MRP.GreaterThan(maxPrice) {
		return errors.New("mrp out of range")
	}
	if row.SalePrice.IsNegative() || row.SalePrice.GreaterThan(maxPrice) {
		return errors.New("sale price out of range")
	}
	return nil
}

// Slugify builds a listing slug from name plus SKU, lowercased with runs of
// non-alphanumerics collapsed to single hyphens.
func Slugify(name, sku string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name + " " + sku) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
