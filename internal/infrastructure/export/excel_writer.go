package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

const (
	SummarySheet      = "Summary"
	TransactionsSheet = "Transactions"

	timeLayout = "2006-01-02 15:04:05"
)

var transactionHeaders = []interface{}{
	"ID", "Buyer", "Seller", "Product", "Amount",
	"Status", "AI Status", "Risk Score", "Recommendation", "Confidence", "Reasons",
	"Admin Note", "Dispute Reason", "Created At", "Updated At",
}

// ExcelReportWriter implements port.ReportWriter as an xlsx workbook
type ExcelReportWriter struct {
	logger *zap.Logger
}

// NewExcelReportWriter creates a new xlsx report writer
func NewExcelReportWriter(logger *zap.Logger) *ExcelReportWriter {
	return &ExcelReportWriter{logger: logger}
}

// ContentType returns the xlsx MIME type
func (e *ExcelReportWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension returns the file extension without the dot
func (e *ExcelReportWriter) Extension() string {
	return "xlsx"
}

// Write renders a Summary sheet with the counts and a Transactions sheet with one row per record
func (e *ExcelReportWriter) Write(ctx context.Context, w io.Writer, r *port.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(TransactionsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	if err := e.writeSummary(f, r, bold); err != nil {
		return err
	}

	if err := f.SetSheetRow(TransactionsSheet, "A1", &transactionHeaders); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	if err := f.SetRowStyle(TransactionsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	for i, tx := range r.Transactions {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := transactionRow(tx)
		if err := f.SetSheetRow(TransactionsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		amountCell, _ := excelize.CoordinatesToCellName(5, row)
		if err := f.SetCellStyle(TransactionsSheet, amountCell, amountCell, money); err != nil {
			return fmt.Errorf("failed to style amount cell: %w", err)
		}
	}

	if err := f.SetColWidth(TransactionsSheet, "K", "M", 40); err != nil {
		e.logger.Warn("Failed to set column width", zap.Error(err))
	}
	if err := f.AutoFilter(TransactionsSheet, fmt.Sprintf("A1:O%d", len(r.Transactions)+1), nil); err != nil {
		e.logger.Warn("Failed to set auto filter", zap.Error(err))
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Transaction report written",
		zap.Int("transactions", len(r.Transactions)),
		zap.Int64("generated_by", r.GeneratedBy.ID))
	return nil
}

func (e *ExcelReportWriter) writeSummary(f *excelize.File, r *port.Report, bold int) error {
	stats := r.Stats
	if stats == nil {
		stats = &entity.Stats{}
	}

	rows := [][]interface{}{
		{"Escrow transaction report"},
		{"Generated at", r.GeneratedAt.UTC().Format(timeLayout)},
		{"Generated by", fmt.Sprintf("%s #%d", r.GeneratedBy.Role, r.GeneratedBy.ID)},
		{},
		{"Status", "Count"},
		{entity.StatusPending, stats.Pending},
		{entity.StatusActive, stats.Active},
		{entity.StatusCompleted, stats.Completed},
		{entity.StatusDisputed, stats.Disputed},
		{entity.StatusCancelled, stats.Cancelled},
	}
	for i, values := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		row := values
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}

	for _, row := range []int{1, 5} {
		if err := f.SetRowStyle(SummarySheet, row, row, bold); err != nil {
			return fmt.Errorf("failed to style summary row: %w", err)
		}
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

func transactionRow(tx *entity.EscrowTransaction) []interface{} {
	var recommendation, reasons string
	var confidence interface{}
	if d := tx.AIDecision; d != nil {
		recommendation = d.Recommendation
		confidence = d.Confidence
		reasons = strings.Join(d.Reasons, "; ")
	}

	return []interface{}{
		tx.ID,
		tx.BuyerID,
		tx.SellerID,
		tx.ProductID,
		tx.Amount.InexactFloat64(),
		tx.Status,
		tx.AIStatus,
		tx.RiskScore,
		recommendation,
		confidence,
		reasons,
		tx.AdminNote,
		tx.DisputeReason,
		tx.CreatedAt.UTC().Format(timeLayout),
		tx.UpdatedAt.UTC().Format(timeLayout),
	}
}

var _ port.ReportWriter = (*ExcelReportWriter)(nil)
