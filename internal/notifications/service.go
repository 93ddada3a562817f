// Package notifications persists and serves the in-app notifications
// produced by settlement and fulfillment.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tundeoa/sokohub-backend/pkg/db/models"
	"github.com/tundeoa/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/pagination"
)

// Service defines notification write and list/read operations.
type Service interface {
	NotifyOrderEvent(ctx context.Context, order *models.Order, kind enums.NotificationType) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error)
}

// ListParams configures pagination for notifications.
type ListParams struct {
	RecipientID uuid.UUID
	Limit       int
	Cursor      string
	UnreadOnly  bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

type service struct {
	repo Repository
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) NotifyOrderEvent(ctx context.Context, order *models.Order, kind enums.NotificationType) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown notification type %q", kind))
	}

	title, message := composeOrderMessage(order, kind)
	orderID := order.ID
	row := &models.Notification{
		ID:          uuid.New(),
		RecipientID: order.BuyerID,
		Type:        kind,
		Title:       title,
		Message:     message,
		OrderID:     &orderID,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return nil
}

func composeOrderMessage(order *models.Order, kind enums.NotificationType) (title, message string) {
	switch kind {
	case enums.NotificationOrderPlaced:
		return "Order placed",
			fmt.Sprintf("Your order #%d has been placed and is awaiting the seller.", order.OrderNumber)
	case enums.NotificationOrderReady:
		return "Order ready for pickup",
			fmt.Sprintf("Order #%d is packed and ready for pickup.", order.OrderNumber)
	case enums.NotificationOrderInTransit:
		return "Order in transit",
			fmt.Sprintf("Order #%d is on its way to %s.", order.OrderNumber, order.DeliveryAddress)
	case enums.NotificationOrderDelivered:
		return "Order delivered",
			fmt.Sprintf("Order #%d has been delivered.", order.OrderNumber)
	}
	return string(kind), fmt.Sprintf("Update on order #%d.", order.OrderNumber)
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.RecipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}

	query := listParams{
		RecipientID: params.RecipientID,
		Limit:       pagination.LimitWithBuffer(params.Limit),
		UnreadOnly:  params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	keep, page := pagination.TrimPage(len(rows), limit, func(i int) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rows[i].CreatedAt, ID: rows[i].ID}
	})
	return &ListResult{Items: rows[:keep], Cursor: page.NextCursor}, nil
}

func (s *service) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if recipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, recipientID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if recipientID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}

	count, err := s.repo.MarkAllRead(ctx, recipientID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if recipientID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	return s.repo.CountUnread(ctx, recipientID)
}
