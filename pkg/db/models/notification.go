package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tundeoa/sokohub-backend/pkg/enums"
)

// Notification stores in-app notification payloads per recipient.
type Notification struct {
	ID          uuid.UUID              `gorm:"type:uuid;primaryKey"`
	RecipientID uuid.UUID              `gorm:"type:uuid;not null;index"`
	Type        enums.NotificationType `gorm:"type:text;not null"`
	Title       string                 `gorm:"type:text;not null"`
	Message     string                 `gorm:"type:text;not null"`
	OrderID     *uuid.UUID             `gorm:"type:uuid"`
	ReadAt      *time.Time             `gorm:"column:read_at"`
	CreatedAt   time.Time              `gorm:"column:created_at"`
}
