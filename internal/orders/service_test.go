package orders

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tundeoa/sokohub-backend/pkg/config"
	"github.com/tundeoa/sokohub-backend/pkg/db/models"
	"github.com/tundeoa/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/outbox"
	"github.com/tundeoa/sokohub-backend/pkg/pagination"
)

type recordingNotifier struct {
	events []enums.NotificationType
	err    error
}

func (n *recordingNotifier) NotifyOrderEvent(_ context.Context, _ *models.Order, kind enums.NotificationType) error {
	n.events = append(n.events, kind)
	return n.err
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	db       *gorm.DB
	notifier *recordingNotifier
	svc      Service

	buyerID  uuid.UUID
	sellerID uuid.UUID
	shopID   uuid.UUID
	otherID  uuid.UUID

	nextOrderNumber int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{}, &models.OrderItem{},
		&models.OrderStatusHistory{}, &models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := &fixture{
		db:       db,
		notifier: &recordingNotifier{},
		buyerID:  uuid.New(),
		sellerID: uuid.New(),
		shopID:   uuid.New(),
		otherID:  uuid.New(),
	}

	svc, err := NewService(
		NewRepository(db),
		gormTxRunner{db: db},
		outbox.NewService(outbox.NewRepository(db), nil),
		f.notifier,
		config.CheckoutConfig{
			PlatformFeeRate:  "0.05",
			MinimumOrderKobo: 400000,
			DeliveryLeadDays: 7,
			PayoutDelayDays:  1,
		},
		nil,
	)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) seedOrder(t *testing.T, status enums.OrderStatus) *models.Order {
	t.Helper()
	f.nextOrderNumber++
	order := &models.Order{
		ID:               uuid.New(),
		OrderNumber:      f.nextOrderNumber,
		BuyerID:          f.buyerID,
		ShopID:           f.shopID,
		PaymentReference: "PAY-" + uuid.NewString(),
		TotalKobo:        525000,
		PlatformFeeKobo:  25000,
		SellerAmountKobo: 500000,
		FeeRate:          "0.05",
		Status:           status,
		PaymentStatus:    enums.PaymentStatusPaid,
		DeliveryName:     "Ngozi A.",
		DeliveryPhone:    "+2348012345678",
		DeliveryAddress:  "12 Allen Avenue, Ikeja",
	}
	if err := f.db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func (f *fixture) transition(orderID uuid.UUID, to enums.OrderStatus) (*models.Order, error) {
	return f.svc.Transition(context.Background(), TransitionInput{
		OrderID:     orderID,
		ShopID:      f.shopID,
		ActorUserID: f.sellerID,
		NewStatus:   to,
	})
}

func (f *fixture) historyRows(t *testing.T, orderID uuid.UUID) []models.OrderStatusHistory {
	t.Helper()
	var rows []models.OrderStatusHistory
	if err := f.db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load history: %v", err)
	}
	return rows
}

func (f *fixture) outboxRows(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	if err := f.db.Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	return rows
}

func TestTransitionHappyPath(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending)

	updated, err := f.transition(order.ID, enums.OrderStatusProcessing)
	if err != nil {
		t.Fatalf("transition to processing: %v", err)
	}
	if updated.Status != enums.OrderStatusProcessing {
		t.Fatalf("status = %s, want processing", updated.Status)
	}
	if updated.ProcessingAt == nil {
		t.Fatal("processing_at not stamped")
	}

	updated, err = f.transition(order.ID, enums.OrderStatusReadyForPickup)
	if err != nil {
		t.Fatalf("transition to ready_for_pickup: %v", err)
	}
	if updated.ReadyForPickupAt == nil {
		t.Fatal("ready_for_pickup_at not stamped")
	}

	updated, err = f.transition(order.ID, enums.OrderStatusInTransit)
	if err != nil {
		t.Fatalf("transition to in_transit: %v", err)
	}
	if updated.ShippedAt == nil {
		t.Fatal("shipped_at not stamped")
	}

	history := f.historyRows(t, order.ID)
	if len(history) != 3 {
		t.Fatalf("history rows = %d, want 3", len(history))
	}
	first := history[0]
	if first.OldStatus != enums.OrderStatusPending || first.NewStatus != enums.OrderStatusProcessing {
		t.Fatalf("first history row %s -> %s", first.OldStatus, first.NewStatus)
	}
	if first.ChangedBy != f.sellerID || first.ActorRole != enums.ActorRoleSeller {
		t.Fatalf("first history actor %s role %s", first.ChangedBy, first.ActorRole)
	}

	events := f.outboxRows(t)
	if len(events) != 3 {
		t.Fatalf("outbox events = %d, want 3", len(events))
	}
	for _, ev := range events {
		if ev.EventType != enums.EventOrderStatusChanged {
			t.Fatalf("event type = %s, want order_status_changed", ev.EventType)
		}
	}

	// ready_for_pickup and in_transit notify the buyer, processing does not.
	want := []enums.NotificationType{enums.NotificationOrderReady, enums.NotificationOrderInTransit}
	if len(f.notifier.events) != len(want) {
		t.Fatalf("notifications = %v, want %v", f.notifier.events, want)
	}
	for i, kind := range want {
		if f.notifier.events[i] != kind {
			t.Fatalf("notification[%d] = %s, want %s", i, f.notifier.events[i], kind)
		}
	}
}

func TestTransitionSkippingStagesRejected(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending)

	_, err := f.transition(order.ID, enums.OrderStatusInTransit)
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
	if !strings.Contains(domainErr.Error(), "processing") {
		t.Fatalf("error should list allowed next statuses, got %q", domainErr.Error())
	}

	if rows := f.historyRows(t, order.ID); len(rows) != 0 {
		t.Fatalf("rejected transition wrote %d history rows", len(rows))
	}
	var reloaded models.Order
	if err := f.db.First(&reloaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusPending {
		t.Fatalf("status changed to %s on rejected transition", reloaded.Status)
	}
}

func TestTransitionWrongShopForbidden(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending)

	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID:     order.ID,
		ShopID:      f.otherID,
		ActorUserID: f.sellerID,
		NewStatus:   enums.OrderStatusProcessing,
	})
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestTransitionUnknownStatus(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending)

	_, err := f.transition(order.ID, enums.OrderStatus("shipped"))
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestTransitionTerminalState(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusDelivered)

	_, err := f.transition(order.ID, enums.OrderStatusProcessing)
	domainErr := pkgerrors.As(err)
	if domainErr == nil || domainErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
	if !strings.Contains(domainErr.Error(), "none") {
		t.Fatalf("terminal error should say allowed: none, got %q", domainErr.Error())
	}
}

func TestConfirmDelivery(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusInTransit)

	updated, err := f.svc.ConfirmDelivery(context.Background(), ConfirmDeliveryInput{
		OrderID: order.ID,
		BuyerID: f.buyerID,
	})
	if err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	if updated.Status != enums.OrderStatusDelivered {
		t.Fatalf("status = %s, want delivered", updated.Status)
	}
	if updated.DeliveredAt == nil {
		t.Fatal("delivered_at not stamped")
	}
	if updated.PayoutStatus != enums.PayoutStatusScheduled {
		t.Fatalf("payout_status = %s, want scheduled", updated.PayoutStatus)
	}
	if updated.PayoutDate == nil {
		t.Fatal("payout_date not set")
	}
	if !updated.PayoutDate.After(*updated.DeliveredAt) {
		t.Fatal("payout_date should fall after delivery")
	}

	history := f.historyRows(t, order.ID)
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	row := history[0]
	if row.ActorRole != enums.ActorRoleBuyer || row.ChangedBy != f.buyerID {
		t.Fatalf("history actor %s role %s", row.ChangedBy, row.ActorRole)
	}
	if row.Notes == nil || *row.Notes != deliveryConfirmedNote {
		t.Fatalf("history notes = %v, want %q", row.Notes, deliveryConfirmedNote)
	}

	events := f.outboxRows(t)
	if len(events) != 2 {
		t.Fatalf("outbox events = %d, want 2", len(events))
	}
	if events[0].EventType != enums.EventOrderDelivered {
		t.Fatalf("first event = %s, want order_delivered", events[0].EventType)
	}
	if events[1].EventType != enums.EventPayoutScheduled {
		t.Fatalf("second event = %s, want payout_scheduled", events[1].EventType)
	}

	if len(f.notifier.events) != 1 || f.notifier.events[0] != enums.NotificationOrderDelivered {
		t.Fatalf("notifications = %v, want [order_delivered]", f.notifier.events)
	}
}

func TestConfirmDeliveryWithFeedback(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusInTransit)

	feedback := "Arrived in good condition"
	_, err := f.svc.ConfirmDelivery(context.Background(), ConfirmDeliveryInput{
		OrderID:  order.ID,
		BuyerID:  f.buyerID,
		Feedback: &feedback,
	})
	if err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}

	history := f.historyRows(t, order.ID)
	if len(history) != 1 || history[0].Notes == nil || *history[0].Notes != feedback {
		t.Fatalf("feedback not recorded in history: %+v", history)
	}
}

func TestConfirmDeliveryGuards(t *testing.T) {
	f := newFixture(t)

	t.Run("wrong buyer", func(t *testing.T) {
		order := f.seedOrder(t, enums.OrderStatusInTransit)
		_, err := f.svc.ConfirmDelivery(context.Background(), ConfirmDeliveryInput{
			OrderID: order.ID,
			BuyerID: f.otherID,
		})
		if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeForbidden {
			t.Fatalf("expected FORBIDDEN, got %v", err)
		}
	})

	t.Run("not yet in transit", func(t *testing.T) {
		order := f.seedOrder(t, enums.OrderStatusProcessing)
		_, err := f.svc.ConfirmDelivery(context.Background(), ConfirmDeliveryInput{
			OrderID: order.ID,
			BuyerID: f.buyerID,
		})
		if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeStateConflict {
			t.Fatalf("expected STATE_CONFLICT, got %v", err)
		}
	})

	t.Run("already delivered", func(t *testing.T) {
		order := f.seedOrder(t, enums.OrderStatusDelivered)
		_, err := f.svc.ConfirmDelivery(context.Background(), ConfirmDeliveryInput{
			OrderID: order.ID,
			BuyerID: f.buyerID,
		})
		if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeAlreadyDelivered {
			t.Fatalf("expected ALREADY_DELIVERED, got %v", err)
		}
	})
}

func TestCompareAndSwapDetectsConcurrentChange(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending)
	repo := NewRepository(f.db)

	swapped, err := repo.CompareAndSwapStatus(context.Background(), order.ID, enums.OrderStatusPending, enums.OrderStatusProcessing, map[string]any{})
	if err != nil || !swapped {
		t.Fatalf("first swap: swapped=%v err=%v", swapped, err)
	}

	// Second writer still believes the order is pending.
	swapped, err = repo.CompareAndSwapStatus(context.Background(), order.ID, enums.OrderStatusPending, enums.OrderStatusProcessing, map[string]any{})
	if err != nil {
		t.Fatalf("second swap: %v", err)
	}
	if swapped {
		t.Fatal("stale swap should not match any row")
	}
}

func TestGetAndListScoping(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending)

	if _, err := f.svc.GetForBuyer(context.Background(), order.ID, f.otherID); pkgerrors.As(err) == nil {
		t.Fatal("foreign buyer should not read the order")
	}
	got, err := f.svc.GetForBuyer(context.Background(), order.ID, f.buyerID)
	if err != nil {
		t.Fatalf("buyer get: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("got order %s, want %s", got.ID, order.ID)
	}

	if _, err := f.svc.GetForShop(context.Background(), order.ID, f.otherID); pkgerrors.As(err) == nil {
		t.Fatal("foreign shop should not read the order")
	}

	buyerOrders, page, err := f.svc.ListForBuyer(context.Background(), f.buyerID, pagination.Params{})
	if err != nil {
		t.Fatalf("list for buyer: %v", err)
	}
	if len(buyerOrders) != 1 || page.HasMore {
		t.Fatalf("buyer list = %d orders, has_more=%v", len(buyerOrders), page.HasMore)
	}

	empty, _, err := f.svc.ListForBuyer(context.Background(), f.otherID, pagination.Params{})
	if err != nil {
		t.Fatalf("list for other buyer: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("foreign buyer sees %d orders", len(empty))
	}
}

func TestHistoryEndpointOrdering(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending)

	for _, to := range []enums.OrderStatus{
		enums.OrderStatusProcessing,
		enums.OrderStatusReadyForPickup,
		enums.OrderStatusInTransit,
	} {
		if _, err := f.transition(order.ID, to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	rows, err := f.svc.History(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("history rows = %d, want 3", len(rows))
	}
	if rows[0].NewStatus != enums.OrderStatusProcessing || rows[2].NewStatus != enums.OrderStatusInTransit {
		t.Fatalf("history out of order: %s ... %s", rows[0].NewStatus, rows[2].NewStatus)
	}
}
