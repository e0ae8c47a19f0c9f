package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
	"github.com/garyjia/escrow-engine/internal/infrastructure/persistence/sqlite"
)

// ProductRepository reads marketplace listings. Create exists for seeding.
type ProductRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sqlite.DB, logger *zap.Logger) *ProductRepository {
	return &ProductRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a product listing
func (r *ProductRepository) Create(ctx context.Context, p *entity.Product) error {
	if p.Status == "" {
		p.Status = entity.ProductStatusActive
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`INSERT INTO products (seller_id, title, price, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.SellerID, p.Title, p.Price, p.Status, p.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create product", zap.Int64("seller_id", p.SellerID), zap.Error(err))
		return fmt.Errorf("failed to create product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID returns nil, nil when the product does not exist
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*entity.Product, error) {
	var p entity.Product
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, seller_id, title, price, status, created_at FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.SellerID, &p.Title, &p.Price, &p.Status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get product", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

var _ port.ProductCatalog = (*ProductRepository)(nil)
