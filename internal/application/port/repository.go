package port

import (
	"context"
	"time"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// TransactionRepository defines persistence operations for EscrowTransaction
type TransactionRepository interface {
	// Create inserts the record and sets its ID and Version
	Create(ctx context.Context, tx *entity.EscrowTransaction) error

	// GetByID returns nil, nil when the id is unknown
	GetByID(ctx context.Context, id int64) (*entity.EscrowTransaction, error)

	// Update writes every mutable field only if the stored version equals
	// expectedVersion. It returns entity.ErrVersionConflict otherwise and bumps
	// tx.Version on success.
	Update(ctx context.Context, tx *entity.EscrowTransaction, expectedVersion int64) error

	// ListByStatus returns records with the exact status, newest first
	ListByStatus(ctx context.Context, status string) ([]*entity.EscrowTransaction, error)

	// ListByParticipant returns records where the user is buyer or seller, newest first
	ListByParticipant(ctx context.Context, userID int64) ([]*entity.EscrowTransaction, error)

	// CountByStatus aggregates the whole transaction set
	CountByStatus(ctx context.Context) (*entity.Stats, error)

	// ListAwaitingAssessment returns pending records whose assessment was
	// requested before the cutoff and is still processing, oldest first
	ListAwaitingAssessment(ctx context.Context, requestedBefore time.Time, limit int) ([]*entity.EscrowTransaction, error)
}

// HistoryRepository defines persistence operations for TransactionHistory
type HistoryRepository interface {
	Create(ctx context.Context, h *entity.TransactionHistory) error
	ListByTransactionID(ctx context.Context, transactionID int64) ([]*entity.TransactionHistory, error)
}

// ProductCatalog is the read-only view of marketplace listings
type ProductCatalog interface {
	// GetByID returns nil, nil when the product does not exist
	GetByID(ctx context.Context, id int64) (*entity.Product, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
