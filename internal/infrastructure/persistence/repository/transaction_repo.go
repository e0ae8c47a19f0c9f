package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
	"github.com/garyjia/escrow-engine/internal/infrastructure/persistence/sqlite"
)

const transactionColumns = `
	id, buyer_id, seller_id, product_id, amount,
	status, ai_status, risk_score, ai_decision,
	assessment_tag, assessment_requested_at,
	approved_by, approved_at, admin_note,
	completed_by, completed_at, completion_note,
	disputed_by, disputed_at, dispute_reason,
	version, created_at, updated_at`

// TransactionRepository implements port.TransactionRepository on sqlite
type TransactionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlite.DB, logger *zap.Logger) port.TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a transaction at version 1
func (r *TransactionRepository) Create(ctx context.Context, tx *entity.EscrowTransaction) error {
	decision, err := encodeDecision(tx.AIDecision)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO escrow_transactions (
			buyer_id, seller_id, product_id, amount,
			status, ai_status, risk_score, ai_decision,
			assessment_tag, assessment_requested_at,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		tx.BuyerID,
		tx.SellerID,
		tx.ProductID,
		tx.Amount,
		tx.Status,
		tx.AIStatus,
		tx.RiskScore,
		decision,
		tx.AssessmentTag,
		nullTime(tx.AssessmentRequestedAt),
		tx.CreatedAt.UTC(),
		tx.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create escrow transaction", zap.Int64("buyer_id", tx.BuyerID), zap.Error(err))
		return fmt.Errorf("failed to create escrow transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	tx.ID = id
	tx.Version = 1
	return nil
}

// GetByID retrieves a transaction, returning nil, nil when absent
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*entity.EscrowTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM escrow_transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get escrow transaction", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get escrow transaction: %w", err)
	}
	return tx, nil
}

// Update writes all mutable columns when the stored version matches
func (r *TransactionRepository) Update(ctx context.Context, tx *entity.EscrowTransaction, expectedVersion int64) error {
	decision, err := encodeDecision(tx.AIDecision)
	if err != nil {
		return err
	}

	query := `
		UPDATE escrow_transactions SET
			status = ?, ai_status = ?, risk_score = ?, ai_decision = ?,
			assessment_tag = ?, assessment_requested_at = ?,
			approved_by = ?, approved_at = ?, admin_note = ?,
			completed_by = ?, completed_at = ?, completion_note = ?,
			disputed_by = ?, disputed_at = ?, dispute_reason = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		tx.Status,
		tx.AIStatus,
		tx.RiskScore,
		decision,
		tx.AssessmentTag,
		nullTime(tx.AssessmentRequestedAt),
		nullInt64(tx.ApprovedBy),
		nullTime(tx.ApprovedAt),
		tx.AdminNote,
		nullInt64(tx.CompletedBy),
		nullTime(tx.CompletedAt),
		tx.CompletionNote,
		nullInt64(tx.DisputedBy),
		nullTime(tx.DisputedAt),
		tx.DisputeReason,
		tx.UpdatedAt.UTC(),
		tx.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update escrow transaction", zap.Int64("id", tx.ID), zap.Error(err))
		return fmt.Errorf("failed to update escrow transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %d at version %d", entity.ErrVersionConflict, tx.ID, expectedVersion)
	}

	tx.Version = expectedVersion + 1
	return nil
}

// ListByStatus returns transactions with the given status, newest first
func (r *TransactionRepository) ListByStatus(ctx context.Context, status string) ([]*entity.EscrowTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM escrow_transactions
		WHERE status = ?
		ORDER BY created_at DESC, id DESC`

	return r.query(ctx, query, status)
}

// ListByParticipant returns transactions where the user is buyer or seller, newest first
func (r *TransactionRepository) ListByParticipant(ctx context.Context, userID int64) ([]*entity.EscrowTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM escrow_transactions
		WHERE buyer_id = ? OR seller_id = ?
		ORDER BY created_at DESC, id DESC`

	return r.query(ctx, query, userID, userID)
}

// ListAwaitingAssessment returns pending transactions stuck in processing since before the cutoff
func (r *TransactionRepository) ListAwaitingAssessment(ctx context.Context, requestedBefore time.Time, limit int) ([]*entity.EscrowTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM escrow_transactions
		WHERE status = 'pending' AND ai_status = 'processing' AND assessment_requested_at < ?
		ORDER BY assessment_requested_at ASC
		LIMIT ?`

	return r.query(ctx, query, requestedBefore.UTC(), limit)
}

// CountByStatus aggregates the full transaction set
func (r *TransactionRepository) CountByStatus(ctx context.Context) (*entity.Stats, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT status, COUNT(*) FROM escrow_transactions GROUP BY status`)
	if err != nil {
		r.logger.Error("Failed to count escrow transactions", zap.Error(err))
		return nil, fmt.Errorf("failed to count escrow transactions: %w", err)
	}
	defer rows.Close()

	stats := &entity.Stats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		switch status {
		case entity.StatusPending:
			stats.Pending = count
		case entity.StatusActive:
			stats.Active = count
		case entity.StatusCompleted:
			stats.Completed = count
		case entity.StatusDisputed:
			stats.Disputed = count
		case entity.StatusCancelled:
			stats.Cancelled = count
		}
	}
	return stats, rows.Err()
}

func (r *TransactionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.EscrowTransaction, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query escrow transactions", zap.Error(err))
		return nil, fmt.Errorf("failed to query escrow transactions: %w", err)
	}
	defer rows.Close()

	var list []*entity.EscrowTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escrow transaction: %w", err)
		}
		list = append(list, tx)
	}
	return list, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s rowScanner) (*entity.EscrowTransaction, error) {
	var tx entity.EscrowTransaction
	var decision sql.NullString
	var requestedAt, approvedAt, completedAt, disputedAt sql.NullTime
	var approvedBy, completedBy, disputedBy sql.NullInt64

	err := s.Scan(
		&tx.ID,
		&tx.BuyerID,
		&tx.SellerID,
		&tx.ProductID,
		&tx.Amount,
		&tx.Status,
		&tx.AIStatus,
		&tx.RiskScore,
		&decision,
		&tx.AssessmentTag,
		&requestedAt,
		&approvedBy,
		&approvedAt,
		&tx.AdminNote,
		&completedBy,
		&completedAt,
		&tx.CompletionNote,
		&disputedBy,
		&disputedAt,
		&tx.DisputeReason,
		&tx.Version,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if decision.Valid && decision.String != "" {
		var d entity.AIDecision
		if err := json.Unmarshal([]byte(decision.String), &d); err != nil {
			return nil, fmt.Errorf("failed to decode ai_decision of transaction %d: %w", tx.ID, err)
		}
		tx.AIDecision = &d
	}

	tx.AssessmentRequestedAt = timePtr(requestedAt)
	tx.ApprovedAt = timePtr(approvedAt)
	tx.CompletedAt = timePtr(completedAt)
	tx.DisputedAt = timePtr(disputedAt)
	tx.ApprovedBy = int64Ptr(approvedBy)
	tx.CompletedBy = int64Ptr(completedBy)
	tx.DisputedBy = int64Ptr(disputedBy)
	return &tx, nil
}

func encodeDecision(d *entity.AIDecision) (sql.NullString, error) {
	if d == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode ai decision: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	x := v.Int64
	return &x
}

var _ port.TransactionRepository = (*TransactionRepository)(nil)
