package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots one product line at settlement time. Name and
// price are copied so later catalog edits never rewrite order history.
type OrderItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName   string    `gorm:"column:product_name;not null"`
	UnitPriceKobo int64     `gorm:"column:unit_price_kobo;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
	SubtotalKobo  int64     `gorm:"column:subtotal_kobo;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
