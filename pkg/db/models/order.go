package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tundeoa/sokohub-backend/pkg/enums"
)

// Order is the per-shop order materialized by settlement. One checkout
// spanning several shops produces several orders sharing a payment
// reference; the (payment_reference, shop_id) pair is unique so a
// retried settlement can never create a second order for the same shop.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      int64               `gorm:"column:order_number;not null;uniqueIndex:ux_orders_shop_number,priority:2"`
	BuyerID          uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	ShopID           uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;uniqueIndex:ux_orders_shop_number,priority:1;uniqueIndex:ux_orders_reference_shop,priority:2"`
	PaymentReference string              `gorm:"column:payment_reference;not null;uniqueIndex:ux_orders_reference_shop,priority:1"`
	TotalKobo        int64               `gorm:"column:total_kobo;not null"`
	PlatformFeeKobo  int64               `gorm:"column:platform_fee_kobo;not null"`
	SellerAmountKobo int64               `gorm:"column:seller_amount_kobo;not null"`
	FeeRate          string              `gorm:"column:fee_rate;not null"`
	Status           enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`

	// Delivery details are snapshotted at checkout and immutable after.
	DeliveryName    string  `gorm:"column:delivery_name;not null"`
	DeliveryPhone   string  `gorm:"column:delivery_phone;not null"`
	DeliveryAddress string  `gorm:"column:delivery_address;not null"`
	DeliveryNotes   *string `gorm:"column:delivery_notes"`

	EstimatedDeliveryAt *time.Time `gorm:"column:estimated_delivery_at"`
	ProcessingAt        *time.Time `gorm:"column:processing_at"`
	ReadyForPickupAt    *time.Time `gorm:"column:ready_for_pickup_at"`
	ShippedAt           *time.Time `gorm:"column:shipped_at"`
	DeliveredAt         *time.Time `gorm:"column:delivered_at"`

	PayoutStatus enums.PayoutStatus `gorm:"column:payout_status;type:text;not null;default:'none'"`
	PayoutDate   *time.Time         `gorm:"column:payout_date"`

	Items     []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
