package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
	"github.com/garyjia/escrow-engine/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a history record
func (r *HistoryRepository) Create(ctx context.Context, h *entity.TransactionHistory) error {
	query := `
		INSERT INTO transaction_history (
			transaction_id, action, actor_id, actor_role,
			previous_status, new_status, previous_ai_status, new_ai_status,
			note, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		h.TransactionID,
		h.Action,
		h.ActorID,
		h.ActorRole,
		h.PreviousStatus,
		h.NewStatus,
		h.PreviousAIStatus,
		h.NewAIStatus,
		h.Note,
		h.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.Int64("transaction_id", h.TransactionID),
			zap.String("action", h.Action),
			zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	h.ID = id
	return nil
}

// ListByTransactionID returns the audit trail in insertion order
func (r *HistoryRepository) ListByTransactionID(ctx context.Context, transactionID int64) ([]*entity.TransactionHistory, error) {
	query := `
		SELECT id, transaction_id, action, actor_id, actor_role,
			previous_status, new_status, previous_ai_status, new_ai_status,
			note, timestamp
		FROM transaction_history
		WHERE transaction_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, transactionID)
	if err != nil {
		r.logger.Error("Failed to get history by transaction ID", zap.Int64("transaction_id", transactionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.TransactionHistory
	for rows.Next() {
		var record entity.TransactionHistory
		err := rows.Scan(
			&record.ID,
			&record.TransactionID,
			&record.Action,
			&record.ActorID,
			&record.ActorRole,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.PreviousAIStatus,
			&record.NewAIStatus,
			&record.Note,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
