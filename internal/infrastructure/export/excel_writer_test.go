package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

func TestExcelReportWriter_Write(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	report := &port.Report{
		GeneratedAt: created,
		GeneratedBy: entity.Caller{ID: 9, Role: entity.RoleAdmin},
		Stats:       &entity.Stats{Pending: 1, Disputed: 1},
		Transactions: []*entity.EscrowTransaction{
			{
				ID:        2,
				BuyerID:   1,
				SellerID:  2,
				ProductID: 10,
				Amount:    decimal.RequireFromString("150.50"),
				Status:    entity.StatusDisputed,
				AIStatus:  entity.AIStatusApproved,
				RiskScore: 12,
				AIDecision: &entity.AIDecision{
					Recommendation: entity.RecommendationApprove,
					Confidence:     90,
					Reasons:        []string{"known buyer", "fair price"},
				},
				DisputeReason: "item never delivered",
				CreatedAt:     created,
				UpdatedAt:     created,
			},
			{
				ID:        1,
				BuyerID:   3,
				SellerID:  2,
				ProductID: 11,
				Amount:    decimal.RequireFromString("20"),
				Status:    entity.StatusPending,
				AIStatus:  entity.AIStatusProcessing,
				CreatedAt: created,
				UpdatedAt: created,
			},
		},
	}

	w := NewExcelReportWriter(zap.NewNop())
	var buf bytes.Buffer
	require.NoError(t, w.Write(context.Background(), &buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, TransactionsSheet}, f.GetSheetList())

	generated, _ := f.GetCellValue(SummarySheet, "B2")
	assert.Equal(t, "2024-05-01 12:00:00", generated)
	by, _ := f.GetCellValue(SummarySheet, "B3")
	assert.Equal(t, "admin #9", by)
	disputed, _ := f.GetCellValue(SummarySheet, "B9")
	assert.Equal(t, "1", disputed)

	rows, err := f.GetRows(TransactionsSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "2", rows[1][0])
	assert.Equal(t, "150.5", rows[1][4])
	assert.Equal(t, entity.StatusDisputed, rows[1][5])
	assert.Equal(t, "known buyer; fair price", rows[1][10])
	assert.Equal(t, "item never delivered", rows[1][12])
	assert.Equal(t, "processing", rows[2][6])

	formatted, _ := f.GetCellValue(TransactionsSheet, "E3")
	assert.Equal(t, "20.00", formatted)
}

func TestExcelReportWriter_Metadata(t *testing.T) {
	w := NewExcelReportWriter(zap.NewNop())
	assert.Equal(t, "xlsx", w.Extension())
	assert.Contains(t, w.ContentType(), "spreadsheetml")
}

func TestExcelReportWriter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := &port.Report{Transactions: []*entity.EscrowTransaction{{ID: 1}}}
	err := NewExcelReportWriter(zap.NewNop()).Write(ctx, &bytes.Buffer{}, report)
	assert.ErrorIs(t, err, context.Canceled)
}
