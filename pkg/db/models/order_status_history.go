package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tundeoa/sokohub-backend/pkg/enums"
)

// OrderStatusHistory is the append-only audit trail of status
// transitions. Rows are never updated or deleted.
type OrderStatusHistory struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	OldStatus enums.OrderStatus `gorm:"column:old_status;type:text;not null"`
	NewStatus enums.OrderStatus `gorm:"column:new_status;type:text;not null"`
	ChangedBy uuid.UUID         `gorm:"column:changed_by;type:uuid;not null"`
	ActorRole enums.ActorRole   `gorm:"column:actor_role;type:text;not null"`
	Notes     *string           `gorm:"column:notes"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
