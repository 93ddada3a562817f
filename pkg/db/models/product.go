package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog entry consulted for authoritative pricing at
// checkout. Catalog management itself lives outside this service.
type Product struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShopID    uuid.UUID `gorm:"column:shop_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	PriceKobo int64     `gorm:"column:price_kobo;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
