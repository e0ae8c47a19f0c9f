package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// Column headers recognised on the catalog sheet, matched case-insensitively
const (
	ColumnSellerID = "seller_id"
	ColumnTitle    = "title"
	ColumnPrice    = "price"
	ColumnStatus   = "status"
)

// RowError describes a rejected sheet row. Row is 1-based as shown in Excel.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// ProductWriter persists product listings
type ProductWriter interface {
	Create(ctx context.Context, p *entity.Product) error
}

// ReadProducts parses listings from the first sheet of an xlsx workbook.
// The first row must hold the headers; blank rows are skipped. All row
// problems are collected and returned together.
func ReadProducts(r io.Reader, now time.Time) ([]*entity.Product, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, errors.New("sheet is empty")
	}

	cols, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	var products []*entity.Product
	var rowErrs []error
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		p, err := parseRow(row, cols, now)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 2, Err: err})
			continue
		}
		products = append(products, p)
	}

	if len(rowErrs) > 0 {
		return nil, errors.Join(rowErrs...)
	}
	return products, nil
}

// Import writes all products inside one database transaction
func Import(ctx context.Context, txm port.TransactionManager, repo ProductWriter, products []*entity.Product, logger *zap.Logger) error {
	err := txm.WithTransaction(ctx, func(ctx context.Context) error {
		for _, p := range products {
			if err := repo.Create(ctx, p); err != nil {
				return fmt.Errorf("failed to import %q: %w", p.Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Product catalog imported", zap.Int("count", len(products)))
	return nil
}

func headerIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{ColumnSellerID, ColumnTitle, ColumnPrice} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	return cols, nil
}

func parseRow(row []string, cols map[string]int, now time.Time) (*entity.Product, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	sellerID, err := strconv.ParseInt(cell(ColumnSellerID), 10, 64)
	if err != nil || sellerID <= 0 {
		return nil, fmt.Errorf("invalid seller_id %q", cell(ColumnSellerID))
	}

	title := cell(ColumnTitle)
	if title == "" {
		return nil, errors.New("title is required")
	}

	price, err := decimal.NewFromString(cell(ColumnPrice))
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("invalid price %q", cell(ColumnPrice))
	}

	status := strings.ToLower(cell(ColumnStatus))
	switch status {
	case "":
		status = entity.ProductStatusActive
	case entity.ProductStatusActive, entity.ProductStatusSold:
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}

	return &entity.Product{
		SellerID:  sellerID,
		Title:     title,
		Price:     price.Round(2),
		Status:    status,
		CreatedAt: now.UTC(),
	}, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
