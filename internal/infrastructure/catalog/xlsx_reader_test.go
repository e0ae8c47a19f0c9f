package catalog

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadProducts(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	buf := workbook(t, [][]interface{}{
		{"Title", "Seller_ID", "Price", "Status"},
		{"Game account", 2, "99.999", ""},
		{},
		{"Gift card", "3", 25, "sold"},
	})

	products, err := ReadProducts(buf, now)
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, int64(2), products[0].SellerID)
	assert.Equal(t, "Game account", products[0].Title)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, entity.ProductStatusActive, products[0].Status)
	assert.Equal(t, now, products[0].CreatedAt)

	assert.Equal(t, int64(3), products[1].SellerID)
	assert.Equal(t, entity.ProductStatusSold, products[1].Status)
}

func TestReadProducts_RowErrors(t *testing.T) {
	buf := workbook(t, [][]interface{}{
		{"seller_id", "title", "price"},
		{"x", "Bad seller", "10"},
		{4, "", "10"},
		{5, "Free item", "0"},
		{6, "Fine", "10"},
	})

	_, err := ReadProducts(buf, time.Now())
	require.Error(t, err)

	var rowErr RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 2, rowErr.Row)
	assert.Contains(t, err.Error(), "row 3: title is required")
	assert.Contains(t, err.Error(), "row 4: invalid price")
	assert.NotContains(t, err.Error(), "row 5")
}

func TestReadProducts_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		input   *bytes.Buffer
		wantErr string
	}{
		{
			name:    "missing column",
			input:   workbook(t, [][]interface{}{{"seller_id", "title"}, {1, "x"}}),
			wantErr: `missing column "price"`,
		},
		{
			name:    "empty sheet",
			input:   workbook(t, nil),
			wantErr: "sheet is empty",
		},
		{
			name:    "not a workbook",
			input:   bytes.NewBufferString("seller_id,title,price"),
			wantErr: "failed to open workbook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadProducts(tt.input, time.Now())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockWriter struct {
	CreateFunc func(ctx context.Context, p *entity.Product) error
	created    []*entity.Product
}

func (m *mockWriter) Create(ctx context.Context, p *entity.Product) error {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, p); err != nil {
			return err
		}
	}
	m.created = append(m.created, p)
	return nil
}

func TestImport(t *testing.T) {
	products := []*entity.Product{
		{SellerID: 1, Title: "A", Price: decimal.NewFromInt(1)},
		{SellerID: 1, Title: "B", Price: decimal.NewFromInt(2)},
	}

	t.Run("writes every product in one transaction", func(t *testing.T) {
		txm := &mockTxManager{}
		w := &mockWriter{}
		require.NoError(t, Import(context.Background(), txm, w, products, zap.NewNop()))
		assert.Equal(t, 1, txm.calls)
		assert.Len(t, w.created, 2)
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		w := &mockWriter{CreateFunc: func(_ context.Context, p *entity.Product) error {
			if p.Title == "B" {
				return errors.New("disk full")
			}
			return nil
		}}
		err := Import(context.Background(), &mockTxManager{}, w, products, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"B"`)
	})
}
