// Package orders enforces the post-settlement fulfillment state machine
// and its append-only audit trail.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tundeoa/sokohub-backend/pkg/config"
	"github.com/tundeoa/sokohub-backend/pkg/db/models"
	"github.com/tundeoa/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/logger"
	"github.com/tundeoa/sokohub-backend/pkg/outbox"
	"github.com/tundeoa/sokohub-backend/pkg/pagination"
)

const deliveryConfirmedNote = "Buyer confirmed delivery"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notifier delivers post-commit buyer notifications, best-effort.
type Notifier interface {
	NotifyOrderEvent(ctx context.Context, order *models.Order, kind enums.NotificationType) error
}

// Service is the fulfillment surface for sellers and buyers.
type Service interface {
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	ConfirmDelivery(ctx context.Context, input ConfirmDeliveryInput) (*models.Order, error)
	GetForBuyer(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error)
	GetForShop(ctx context.Context, orderID, shopID uuid.UUID) (*models.Order, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, pagination.Page, error)
	ListForShop(ctx context.Context, shopID uuid.UUID, params pagination.Params) ([]models.Order, pagination.Page, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
}

// TransitionInput is a seller-driven status change.
type TransitionInput struct {
	OrderID     uuid.UUID
	ShopID      uuid.UUID
	ActorUserID uuid.UUID
	NewStatus   enums.OrderStatus
	Notes       *string
}

// ConfirmDeliveryInput is the buyer-restricted terminal transition.
type ConfirmDeliveryInput struct {
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	Feedback *string
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxEmitter
	notifier Notifier
	cfg      config.CheckoutConfig
	logg     *logger.Logger
}

// NewService wires the order state machine. Notifier is optional.
func NewService(repo Repository, tx txRunner, ob outboxEmitter, notifier Notifier, cfg config.CheckoutConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("orders: repository is required")
	}
	if tx == nil {
		return nil, errors.New("orders: tx runner is required")
	}
	if ob == nil {
		return nil, errors.New("orders: outbox emitter is required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   ob,
		notifier: notifier,
		cfg:      cfg,
		logg:     logg,
	}, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if !input.NewStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", input.NewStatus))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrderByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.ShopID != input.ShopID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to this shop")
		}
		if !CanTransition(order.Status, input.NewStatus) {
			return invalidTransition(order.Status, input.NewStatus)
		}

		updated, err = s.apply(ctx, repo, tx, order, input.NewStatus, actorRef{
			userID: input.ActorUserID,
			role:   enums.ActorRoleSeller,
			shopID: &input.ShopID,
		}, input.Notes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, updated)
	return updated, nil
}

func (s *service) ConfirmDelivery(ctx context.Context, input ConfirmDeliveryInput) (*models.Order, error) {
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrderByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to this buyer")
		}
		if order.Status == enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeAlreadyDelivered, "order already delivered")
		}
		if order.Status != enums.OrderStatusInTransit {
			return invalidTransition(order.Status, enums.OrderStatusDelivered)
		}

		notes := input.Feedback
		if notes == nil || *notes == "" {
			note := deliveryConfirmedNote
			notes = &note
		}

		updated, err = s.apply(ctx, repo, tx, order, enums.OrderStatusDelivered, actorRef{
			userID: input.BuyerID,
			role:   enums.ActorRoleBuyer,
		}, notes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, updated)
	return updated, nil
}

type actorRef struct {
	userID uuid.UUID
	role   enums.ActorRole
	shopID *uuid.UUID
}

// apply performs the CAS write, milestone stamping, payout scheduling,
// history append and outbox emission for one legal transition.
func (s *service) apply(ctx context.Context, repo Repository, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor actorRef, notes *string) (*models.Order, error) {
	now := time.Now()
	updates := map[string]any{}

	switch to {
	case enums.OrderStatusProcessing:
		updates["processing_at"] = now
	case enums.OrderStatusReadyForPickup:
		updates["ready_for_pickup_at"] = now
	case enums.OrderStatusInTransit:
		updates["shipped_at"] = now
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
		updates["payout_status"] = enums.PayoutStatusScheduled
		updates["payout_date"] = now.AddDate(0, 0, s.cfg.PayoutDelayDays)
	}

	swapped, err := repo.CompareAndSwapStatus(ctx, order.ID, order.Status, to, updates)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently, retry").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}

	if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
		ID:        uuid.New(),
		OrderID:   order.ID,
		OldStatus: order.Status,
		NewStatus: to,
		ChangedBy: actor.userID,
		ActorRole: actor.role,
		Notes:     notes,
	}); err != nil {
		return nil, err
	}

	eventType := enums.EventOrderStatusChanged
	if to == enums.OrderStatusDelivered {
		eventType = enums.EventOrderDelivered
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: actor.userID, ShopID: actor.shopID, Role: string(actor.role)},
		Data: map[string]any{
			"order_id":   order.ID.String(),
			"old_status": order.Status,
			"new_status": to,
		},
		Version: 1,
	}); err != nil {
		return nil, err
	}

	if to == enums.OrderStatusDelivered {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutScheduled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.userID, ShopID: actor.shopID, Role: string(actor.role)},
			Data: map[string]any{
				"order_id":      order.ID.String(),
				"shop_id":       order.ShopID.String(),
				"seller_amount": order.SellerAmountKobo,
				"payout_date":   updates["payout_date"],
			},
			Version: 1,
		}); err != nil {
			return nil, err
		}
	}

	updated, err := repo.FindOrderByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) notifyTransition(ctx context.Context, order *models.Order) {
	if s.notifier == nil || order == nil {
		return
	}
	var kind enums.NotificationType
	switch order.Status {
	case enums.OrderStatusReadyForPickup:
		kind = enums.NotificationOrderReady
	case enums.OrderStatusInTransit:
		kind = enums.NotificationOrderInTransit
	case enums.OrderStatusDelivered:
		kind = enums.NotificationOrderDelivered
	default:
		return
	}
	if err := s.notifier.NotifyOrderEvent(ctx, order, kind); err != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String()})
		s.logg.Warn(logCtx, "order notification failed: "+err.Error())
	}
}

func (s *service) GetForBuyer(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to this buyer")
	}
	return order, nil
}

func (s *service) GetForShop(ctx context.Context, orderID, shopID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ShopID != shopID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to this shop")
	}
	return order, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, pagination.Page, error) {
	return s.listWith(params, func(limit int, cursor *pagination.Cursor) ([]models.Order, error) {
		return s.repo.FindOrdersByBuyer(ctx, buyerID, limit, cursor)
	})
}

func (s *service) ListForShop(ctx context.Context, shopID uuid.UUID, params pagination.Params) ([]models.Order, pagination.Page, error) {
	return s.listWith(params, func(limit int, cursor *pagination.Cursor) ([]models.Order, error) {
		return s.repo.FindOrdersByShop(ctx, shopID, limit, cursor)
	})
}

func (s *service) listWith(params pagination.Params, fetch func(limit int, cursor *pagination.Cursor) ([]models.Order, error)) ([]models.Order, pagination.Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pagination.Page{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	rows, err := fetch(pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pagination.Page{}, err
	}

	keep, page := pagination.TrimPage(len(rows), limit, func(i int) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rows[i].CreatedAt, ID: rows[i].ID}
	})
	return rows[:keep], page, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	if _, err := s.repo.FindOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.FindHistory(ctx, orderID)
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(
		pkgerrors.CodeStateConflict,
		fmt.Sprintf("cannot transition from %s to %s, allowed: %s", from, to, DescribeAllowed(from)),
	).WithDetails(map[string]any{
		"current_status": from,
		"allowed_next":   AllowedNext(from),
	})
}
