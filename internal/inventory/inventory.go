// Package inventory guards stock levels with conditional updates so
// concurrent settlements can never oversell a product.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tundeoa/sokohub-backend/pkg/db/models"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
)

// Service adjusts stock levels. Decrements run inside the caller's
// transaction so a failed settlement rolls the stock back with it.
type Service interface {
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Restock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Available(ctx context.Context, productID uuid.UUID) (int, error)
}

type service struct {
	db *gorm.DB
}

// NewService builds an inventory service bound to the provided DB.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, errors.New("inventory: db is required")
	}
	return &service{db: db}, nil
}

// Decrement atomically subtracts qty from the product's stock. The guard
// in the WHERE clause means a zero-row update is an insufficient-stock
// signal, not a lost update.
func (s *service) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return errors.New("inventory: transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("product_id = ? AND quantity_available >= ?", productID, qty).
		Update("quantity_available", gorm.Expr("quantity_available - ?", qty))
	if res.Error != nil {
		return fmt.Errorf("decrementing stock for %s: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStock, "insufficient stock").
			WithDetails(map[string]any{
				"product_id": productID.String(),
				"requested":  qty,
			})
	}
	return nil
}

// Restock adds qty back, used when a settled order is unwound manually.
func (s *service) Restock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return errors.New("inventory: transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("product_id = ?", productID).
		Update("quantity_available", gorm.Expr("quantity_available + ?", qty))
	if res.Error != nil {
		return fmt.Errorf("restocking %s: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
			WithDetails(map[string]any{"product_id": productID.String()})
	}
	return nil
}

// Available reads the current stock level outside any transaction.
func (s *service) Available(ctx context.Context, productID uuid.UUID) (int, error) {
	var record models.InventoryRecord
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
			WithDetails(map[string]any{"product_id": productID.String()})
	}
	if err != nil {
		return 0, err
	}
	return record.QuantityAvailable, nil
}
