package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tundeoa/sokohub-backend/pkg/db/models"
	"github.com/tundeoa/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/pagination"
)

// Repository covers order reads, the CAS status write and the audit log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrdersByBuyer(ctx context.Context, buyerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	FindOrdersByShop(ctx context.Context, shopID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	CompareAndSwapStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	AppendHistory(ctx context.Context, row *models.OrderStatusHistory) error
	FindHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	FindDuePayouts(ctx context.Context, tx *gorm.DB, asOf time.Time, limit int) ([]models.Order, error)
	MarkPayoutPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"order_id": id.String()})
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrdersByBuyer(ctx context.Context, buyerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	return r.list(ctx, "buyer_id = ?", buyerID, limit, cursor)
}

func (r *repository) FindOrdersByShop(ctx context.Context, shopID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	return r.list(ctx, "shop_id = ?", shopID, limit, cursor)
}

func (r *repository) list(ctx context.Context, cond string, id uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	var rows []models.Order
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where(cond, id)
	query = pagination.ApplyAfter(query, cursor)
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CompareAndSwapStatus writes the new status only if the row still holds
// the expected one. Zero rows affected means a concurrent transition won.
func (r *repository) CompareAndSwapStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AppendHistory(ctx context.Context, row *models.OrderStatusHistory) error {
	if row == nil {
		return errors.New("history row is required")
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var rows []models.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindDuePayouts returns delivered orders whose scheduled payout date
// has arrived, oldest first.
func (r *repository) FindDuePayouts(ctx context.Context, tx *gorm.DB, asOf time.Time, limit int) ([]models.Order, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	var rows []models.Order
	err := db.WithContext(ctx).
		Where("payout_status = ? AND payout_date <= ?", enums.PayoutStatusScheduled, asOf).
		Order("payout_date ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPayoutPaid flips one scheduled payout to paid. False means the
// row was already released by another run.
func (r *repository) MarkPayoutPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payout_status = ?", orderID, enums.PayoutStatusScheduled).
		Updates(map[string]any{
			"payout_status": enums.PayoutStatusPaid,
			"updated_at":    paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
