package settlement

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tundeoa/sokohub-backend/internal/cart"
	"github.com/tundeoa/sokohub-backend/internal/checkout"
	"github.com/tundeoa/sokohub-backend/internal/inventory"
	"github.com/tundeoa/sokohub-backend/pkg/config"
	"github.com/tundeoa/sokohub-backend/pkg/db/models"
	"github.com/tundeoa/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/outbox"
	"github.com/tundeoa/sokohub-backend/pkg/paystack"
)

type stubGateway struct {
	tx    *paystack.Transaction
	err   error
	calls int
}

func (g *stubGateway) VerifyTransaction(context.Context, string) (*paystack.Transaction, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.tx, nil
}

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
	gateway  *stubGateway
	notifier *recordingNotifier
	svc      Service

	buyerID uuid.UUID
	shopA   uuid.UUID
	shopB   uuid.UUID
	prodA   uuid.UUID
	prodB   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:settlement_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{}, &models.OrderItem{}, &models.InventoryRecord{},
		&models.CartItem{}, &models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := &fixture{
		db:       db,
		gateway:  &stubGateway{},
		notifier: &recordingNotifier{},
		buyerID:  uuid.New(),
		shopA:    uuid.New(),
		shopB:    uuid.New(),
		prodA:    uuid.New(),
		prodB:    uuid.New(),
	}

	for _, record := range []models.InventoryRecord{
		{ProductID: f.prodA, QuantityAvailable: 10},
		{ProductID: f.prodB, QuantityAvailable: 3},
	} {
		if err := db.Create(&record).Error; err != nil {
			t.Fatalf("seed inventory: %v", err)
		}
	}
	for _, item := range []models.CartItem{
		{ID: uuid.New(), BuyerID: f.buyerID, ShopID: f.shopA, ProductID: f.prodA, Quantity: 2},
		{ID: uuid.New(), BuyerID: f.buyerID, ShopID: f.shopB, ProductID: f.prodB, Quantity: 3},
	} {
		if err := db.Create(&item).Error; err != nil {
			t.Fatalf("seed cart: %v", err)
		}
	}

	inv, err := inventory.NewService(db)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}

	svc, err := NewService(Deps{
		Repo:      NewRepository(db),
		Cart:      cart.NewRepository(db),
		Inventory: inv,
		Gateway:   f.gateway,
		Tx:        gormTxRunner{db: db},
		Outbox:    outbox.NewService(outbox.NewRepository(db), nil),
		Notifier:  f.notifier,
		Config: config.CheckoutConfig{
			PlatformFeeRate:  "0.05",
			MinimumOrderKobo: 400000,
			DeliveryLeadDays: 7,
			PayoutDelayDays:  1,
		},
	})
	if err != nil {
		t.Fatalf("settlement service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) intent() *checkout.Intent {
	return &checkout.Intent{
		BuyerID:         f.buyerID,
		BuyerEmail:      "buyer@example.com",
		FeeRate:         "0.05",
		TotalKobo:       950000,
		PlatformFeeKobo: 47500,
		Delivery: checkout.DeliveryDetails{
			Name:    "Ngozi A.",
			Phone:   "+2348012345678",
			Address: "12 Allen Avenue, Ikeja",
		},
		Groups: []checkout.IntentGroup{
			{
				ShopID:          f.shopA,
				SubtotalKobo:    500000,
				PlatformFeeKobo: 25000,
				SellerKobo:      475000,
				Items: []checkout.IntentItem{{
					ProductID:     f.prodA,
					ProductName:   "Ankara Bundle",
					UnitPriceKobo: 250000,
					Quantity:      2,
					SubtotalKobo:  500000,
				}},
			},
			{
				ShopID:          f.shopB,
				SubtotalKobo:    450000,
				PlatformFeeKobo: 22500,
				SellerKobo:      427500,
				Items: []checkout.IntentItem{{
					ProductID:     f.prodB,
					ProductName:   "Suya Spice Jar",
					UnitPriceKobo: 150000,
					Quantity:      3,
					SubtotalKobo:  450000,
				}},
			},
		},
	}
}

func (f *fixture) successfulTransaction(t *testing.T, intent *checkout.Intent) *paystack.Transaction {
	t.Helper()
	meta, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &paystack.Transaction{
		Status:     paystack.StatusSuccess,
		Reference:  "PAY-1",
		AmountKobo: intent.TotalKobo,
		Currency:   "NGN",
		Metadata:   meta,
	}
}

func TestSettleMaterializesOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.tx = f.successfulTransaction(t, f.intent())
	ctx := context.Background()

	result, err := f.svc.Settle(ctx, "PAY-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Replayed {
		t.Fatal("fresh settlement must not be marked replayed")
	}
	if len(result.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(result.Orders))
	}

	var orders []models.Order
	if err := f.db.Preload("Items").Order("created_at ASC").Find(&orders).Error; err != nil {
		t.Fatalf("load orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 persisted orders, got %d", len(orders))
	}
	for _, order := range orders {
		if order.Status != enums.OrderStatusPending {
			t.Fatalf("order status = %s, want pending", order.Status)
		}
		if order.PaymentStatus != enums.PaymentStatusPaid {
			t.Fatalf("payment status = %s, want paid", order.PaymentStatus)
		}
		if order.SellerAmountKobo+order.PlatformFeeKobo != order.TotalKobo {
			t.Fatalf("money split does not conserve on order %s", order.ID)
		}
		var itemTotal int64
		for _, item := range order.Items {
			if item.SubtotalKobo != item.UnitPriceKobo*int64(item.Quantity) {
				t.Fatalf("item subtotal mismatch on order %s", order.ID)
			}
			itemTotal += item.SubtotalKobo
		}
		if itemTotal != order.TotalKobo {
			t.Fatalf("item sum %d != order total %d", itemTotal, order.TotalKobo)
		}
		if order.OrderNumber != 1 {
			t.Fatalf("first order for a shop should be number 1, got %d", order.OrderNumber)
		}
		if order.EstimatedDeliveryAt == nil {
			t.Fatal("expected estimated delivery date")
		}
		if order.FeeRate != "0.05" {
			t.Fatalf("frozen fee rate not honored: %q", order.FeeRate)
		}
	}

	left := map[uuid.UUID]int{f.prodA: 8, f.prodB: 0}
	for productID, want := range left {
		var record models.InventoryRecord
		if err := f.db.Where("product_id = ?", productID).First(&record).Error; err != nil {
			t.Fatalf("load inventory: %v", err)
		}
		if record.QuantityAvailable != want {
			t.Fatalf("product %s stock = %d, want %d", productID, record.QuantityAvailable, want)
		}
	}

	var cartCount int64
	if err := f.db.Model(&models.CartItem{}).Where("buyer_id = ?", f.buyerID).Count(&cartCount).Error; err != nil {
		t.Fatalf("count cart: %v", err)
	}
	if cartCount != 0 {
		t.Fatalf("cart should be cleared, %d rows left", cartCount)
	}

	var eventCount int64
	if err := f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderCreated).Count(&eventCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if eventCount != 2 {
		t.Fatalf("expected 2 outbox events, got %d", eventCount)
	}

	if len(f.notifier.events) != 2 {
		t.Fatalf("expected 2 buyer notifications, got %d", len(f.notifier.events))
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.tx = f.successfulTransaction(t, f.intent())
	ctx := context.Background()

	first, err := f.svc.Settle(ctx, "PAY-1")
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}

	second, err := f.svc.Settle(ctx, "PAY-1")
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second settle must be a replay")
	}
	if f.gateway.calls != 1 {
		t.Fatalf("replay must not re-verify, gateway called %d times", f.gateway.calls)
	}

	firstIDs := map[uuid.UUID]bool{}
	for _, o := range first.Orders {
		firstIDs[o.OrderID] = true
	}
	for _, o := range second.Orders {
		if !firstIDs[o.OrderID] {
			t.Fatalf("replay returned unknown order %s", o.OrderID)
		}
	}

	var stock models.InventoryRecord
	if err := f.db.Where("product_id = ?", f.prodA).First(&stock).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if stock.QuantityAvailable != 8 {
		t.Fatalf("replay must not re-decrement, stock = %d", stock.QuantityAvailable)
	}
}

func TestSettleStockRaceRollsBackEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.tx = f.successfulTransaction(t, f.intent())
	ctx := context.Background()

	// A concurrent sale exhausts shop B's product between checkout and
	// settlement. The whole multi-shop settlement must fail.
	if err := f.db.Model(&models.InventoryRecord{}).
		Where("product_id = ?", f.prodB).
		Update("quantity_available", 2).Error; err != nil {
		t.Fatalf("drain stock: %v", err)
	}

	_, err := f.svc.Settle(ctx, "PAY-1")
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeStock {
		t.Fatalf("expected stock error, got %v", err)
	}

	var orderCount int64
	if err := f.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("no orders may survive a failed settlement, got %d", orderCount)
	}

	var stockA models.InventoryRecord
	if err := f.db.Where("product_id = ?", f.prodA).First(&stockA).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if stockA.QuantityAvailable != 10 {
		t.Fatalf("shop A stock must be untouched, got %d", stockA.QuantityAvailable)
	}

	var cartCount int64
	if err := f.db.Model(&models.CartItem{}).Where("buyer_id = ?", f.buyerID).Count(&cartCount).Error; err != nil {
		t.Fatalf("count cart: %v", err)
	}
	if cartCount != 2 {
		t.Fatalf("cart must survive a failed settlement, got %d rows", cartCount)
	}

	// The race is recoverable once stock returns.
	if err := f.db.Model(&models.InventoryRecord{}).
		Where("product_id = ?", f.prodB).
		Update("quantity_available", 3).Error; err != nil {
		t.Fatalf("restore stock: %v", err)
	}
	if _, err := f.svc.Settle(ctx, "PAY-1"); err != nil {
		t.Fatalf("retry after restock: %v", err)
	}
}

func TestSettleGatewayFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.gateway.err = context.DeadlineExceeded
	_, err := f.svc.Settle(ctx, "PAY-1")
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodePaymentVerification {
		t.Fatalf("expected verification error, got %v", err)
	}

	f.gateway.err = nil
	f.gateway.tx = &paystack.Transaction{Status: "abandoned", Reference: "PAY-1"}
	_, err = f.svc.Settle(ctx, "PAY-1")
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodePaymentIncomplete {
		t.Fatalf("expected incomplete error, got %v", err)
	}

	var orderCount int64
	if err := f.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("failed verification must not create orders, got %d", orderCount)
	}
}

func TestSettleRejectsTamperedIntent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	intent := f.intent()
	intent.Groups[0].SellerKobo += 1000
	f.gateway.tx = f.successfulTransaction(t, intent)

	_, err := f.svc.Settle(ctx, "PAY-1")
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodePaymentVerification {
		t.Fatalf("expected verification error for bad fee split, got %v", err)
	}

	intent = f.intent()
	tx := f.successfulTransaction(t, intent)
	tx.AmountKobo = intent.TotalKobo - 50000
	f.gateway.tx = tx

	_, err = f.svc.Settle(ctx, "PAY-1")
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodePaymentVerification {
		t.Fatalf("expected verification error for underpayment, got %v", err)
	}
}

func TestSettleOrderNumbersArePerShop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	// An earlier order for shop A bumps its sequence; shop B starts at 1.
	prior := models.Order{
		ID:               uuid.New(),
		OrderNumber:      7,
		BuyerID:          uuid.New(),
		ShopID:           f.shopA,
		PaymentReference: "PAY-0",
		TotalKobo:        500000,
		PlatformFeeKobo:  25000,
		SellerAmountKobo: 475000,
		FeeRate:          "0.05",
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPaid,
		DeliveryName:     "X",
		DeliveryPhone:    "Y",
		DeliveryAddress:  "Z",
	}
	if err := f.db.Create(&prior).Error; err != nil {
		t.Fatalf("seed prior order: %v", err)
	}

	f.gateway.tx = f.successfulTransaction(t, f.intent())
	result, err := f.svc.Settle(ctx, "PAY-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	numbers := map[uuid.UUID]int64{}
	for _, o := range result.Orders {
		numbers[o.ShopID] = o.OrderNumber
	}
	if numbers[f.shopA] != 8 {
		t.Fatalf("shop A order number = %d, want 8", numbers[f.shopA])
	}
	if numbers[f.shopB] != 1 {
		t.Fatalf("shop B order number = %d, want 1", numbers[f.shopB])
	}
}

func TestSettleNotificationFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.tx = f.successfulTransaction(t, f.intent())
	f.notifier.err = context.DeadlineExceeded

	if _, err := f.svc.Settle(context.Background(), "PAY-1"); err != nil {
		t.Fatalf("notification failure must not fail settlement: %v", err)
	}

	var orderCount int64
	if err := f.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 2 {
		t.Fatalf("expected 2 orders, got %d", orderCount)
	}
}

func TestSettleRejectsRepeatedShopGroup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	// Metadata naming the same shop twice can never materialize: the
	// second order would collide with the first on the reference. It
	// must be rejected up front instead of failing on every retry.
	intent := f.intent()
	intent.Groups[1].ShopID = f.shopA
	f.gateway.tx = f.successfulTransaction(t, intent)

	for attempt := 0; attempt < 3; attempt++ {
		_, err := f.svc.Settle(ctx, "PAY-1")
		if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodePaymentVerification {
			t.Fatalf("attempt %d: expected verification error, got %v", attempt, err)
		}
	}

	var orderCount int64
	if err := f.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("expected no orders, got %d", orderCount)
	}
}

// staleReadRepo makes the replay check miss once, as when a concurrent
// settler reads before the winner's transaction commits.
type staleReadRepo struct {
	Repository
	stale bool
}

func (r *staleReadRepo) FindOrdersByReference(ctx context.Context, reference string) ([]models.Order, error) {
	if r.stale {
		r.stale = false
		return nil, nil
	}
	return r.Repository.FindOrdersByReference(ctx, reference)
}

func TestSettleInsertRaceReturnsWinnersOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.tx = f.successfulTransaction(t, f.intent())
	ctx := context.Background()

	winner, err := f.svc.Settle(ctx, "PAY-1")
	if err != nil {
		t.Fatalf("winning settle: %v", err)
	}

	// A second settler whose existence check raced ahead of the commit
	// goes on to insert, hits the unique reference+shop index and must
	// fall back to the winner's rows.
	inv, err := inventory.NewService(f.db)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	loser, err := NewService(Deps{
		Repo:      &staleReadRepo{Repository: NewRepository(f.db), stale: true},
		Cart:      cart.NewRepository(f.db),
		Inventory: inv,
		Gateway:   f.gateway,
		Tx:        gormTxRunner{db: f.db},
		Outbox:    outbox.NewService(outbox.NewRepository(f.db), nil),
		Notifier:  f.notifier,
		Config: config.CheckoutConfig{
			PlatformFeeRate:  "0.05",
			MinimumOrderKobo: 400000,
			DeliveryLeadDays: 7,
			PayoutDelayDays:  1,
		},
	})
	if err != nil {
		t.Fatalf("settlement service: %v", err)
	}

	result, err := loser.Settle(ctx, "PAY-1")
	if err != nil {
		t.Fatalf("losing settle: %v", err)
	}
	if !result.Replayed {
		t.Fatal("loser must report a replay")
	}
	winnerIDs := map[uuid.UUID]bool{}
	for _, o := range winner.Orders {
		winnerIDs[o.OrderID] = true
	}
	if len(result.Orders) != len(winner.Orders) {
		t.Fatalf("loser returned %d orders, want %d", len(result.Orders), len(winner.Orders))
	}
	for _, o := range result.Orders {
		if !winnerIDs[o.OrderID] {
			t.Fatalf("loser returned unknown order %s", o.OrderID)
		}
	}

	var orderCount int64
	if err := f.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 2 {
		t.Fatalf("expected the winner's 2 orders only, got %d", orderCount)
	}
	var eventCount int64
	if err := f.db.Model(&models.OutboxEvent{}).Count(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 2 {
		t.Fatalf("losing transaction must roll back its events, got %d", eventCount)
	}
}
