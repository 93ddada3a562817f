package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord is the authoritative available quantity per product.
// Decrements run as guarded conditional updates inside the settlement
// transaction; the row is never driven negative.
type InventoryRecord struct {
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	QuantityAvailable int       `gorm:"column:quantity_available;not null;default:0"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
