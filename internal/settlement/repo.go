package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tundeoa/sokohub-backend/pkg/db/models"
)

// Repository covers the order writes settlement performs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrdersByReference(ctx context.Context, reference string) ([]models.Order, error)
	NextOrderNumber(ctx context.Context, shopID uuid.UUID) (int64, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a settlement repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrdersByReference(ctx context.Context, reference string) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_reference = ?", reference).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// NextOrderNumber allocates the shop-scoped human-facing number. Callers
// run this inside the settlement transaction; the unique index on
// (shop_id, order_number) backstops any race.
func (r *repository) NextOrderNumber(ctx context.Context, shopID uuid.UUID) (int64, error) {
	var current int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("shop_id = ?", shopID).
		Select("COALESCE(MAX(order_number), 0)").
		Scan(&current).Error
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order is required")
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}
