// Package settlement converts a verified payment into durable orders.
// The whole pipeline is idempotent on the payment reference: retried
// polls, duplicate webhooks and crashed attempts all converge on one
// set of orders.
package settlement

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tundeoa/sokohub-backend/internal/cart"
	"github.com/tundeoa/sokohub-backend/internal/checkout"
	"github.com/tundeoa/sokohub-backend/internal/inventory"
	"github.com/tundeoa/sokohub-backend/pkg/config"
	dbpkg "github.com/tundeoa/sokohub-backend/pkg/db"
	"github.com/tundeoa/sokohub-backend/pkg/db/models"
	"github.com/tundeoa/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/logger"
	"github.com/tundeoa/sokohub-backend/pkg/metrics"
	"github.com/tundeoa/sokohub-backend/pkg/outbox"
	"github.com/tundeoa/sokohub-backend/pkg/paystack"
)

// Gateway is the slice of the payment client settlement needs.
type Gateway interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notifier delivers the post-commit buyer notification. Failures are
// logged, never propagated.
type Notifier interface {
	NotifyOrderEvent(ctx context.Context, order *models.Order, kind enums.NotificationType) error
}

// ClaimStore damps duplicate settlement work. Losing or missing a claim
// never changes the outcome; the orders unique index is the arbiter.
type ClaimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	SettlementClaimKey(reference string) string
}

// Service settles payment references into orders.
type Service interface {
	Settle(ctx context.Context, reference string) (*Result, error)
}

// CreatedOrder is one materialized order in a settlement result.
type CreatedOrder struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber int64     `json:"orderNumber"`
	ShopID      uuid.UUID `json:"shopId"`
}

// Result is the settlement outcome. Replayed is true when the orders
// already existed and this call only read them back.
type Result struct {
	Orders   []CreatedOrder `json:"orders"`
	Replayed bool           `json:"replayed"`
}

type service struct {
	repo      Repository
	cart      cart.Repository
	inventory inventory.Service
	gateway   Gateway
	tx        txRunner
	outbox    outboxEmitter
	notifier  Notifier
	claims    ClaimStore
	metrics   *metrics.SettlementMetrics
	cfg       config.CheckoutConfig
	logg      *logger.Logger
	claimTTL  time.Duration
}

// Deps carries the collaborators for NewService.
type Deps struct {
	Repo      Repository
	Cart      cart.Repository
	Inventory inventory.Service
	Gateway   Gateway
	Tx        txRunner
	Outbox    outboxEmitter
	Notifier  Notifier
	Claims    ClaimStore
	Metrics   *metrics.SettlementMetrics
	Config    config.CheckoutConfig
	Logger    *logger.Logger
}

// NewService wires the settlement engine. Claims, metrics and notifier
// are optional; everything else is required.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("settlement: repository is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("settlement: cart repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("settlement: inventory service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("settlement: gateway is required")
	}
	if deps.Tx == nil {
		return nil, errors.New("settlement: tx runner is required")
	}
	if deps.Outbox == nil {
		return nil, errors.New("settlement: outbox emitter is required")
	}
	return &service{
		repo:      deps.Repo,
		cart:      deps.Cart,
		inventory: deps.Inventory,
		gateway:   deps.Gateway,
		tx:        deps.Tx,
		outbox:    deps.Outbox,
		notifier:  deps.Notifier,
		claims:    deps.Claims,
		metrics:   deps.Metrics,
		cfg:       deps.Config,
		logg:      deps.Logger,
		claimTTL:  2 * time.Minute,
	}, nil
}

func (s *service) Settle(ctx context.Context, reference string) (*Result, error) {
	started := time.Now()
	result, err := s.settle(ctx, reference)
	s.observe(result, err, time.Since(started))
	return result, err
}

func (s *service) settle(ctx context.Context, reference string) (*Result, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	ctx = s.scope(ctx, reference)

	// Idempotency guard: existing orders win before anything else runs.
	if existing, err := s.repo.FindOrdersByReference(ctx, reference); err != nil {
		return nil, err
	} else if len(existing) > 0 {
		return replayResult(existing), nil
	}

	if s.claims != nil {
		key := s.claims.SettlementClaimKey(reference)
		if won, err := s.claims.SetNX(ctx, key, "1", s.claimTTL); err == nil && won {
			defer func() { _ = s.claims.Del(context.WithoutCancel(ctx), key) }()
		} else if err == nil && !won {
			// Another worker is likely mid-settlement. Re-check once;
			// if its commit already landed we are done, otherwise
			// proceed and let the unique index arbitrate.
			if existing, rerr := s.repo.FindOrdersByReference(ctx, reference); rerr == nil && len(existing) > 0 {
				return replayResult(existing), nil
			}
		}
	}

	txn, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	if txn.Status != paystack.StatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodePaymentIncomplete, "payment not completed").
			WithDetails(map[string]any{"gateway_status": txn.Status})
	}

	intent, err := checkout.DecodeIntent(txn.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentVerification, err, "gateway metadata unusable")
	}
	if err := validateIntent(intent, txn.AmountKobo); err != nil {
		return nil, err
	}

	created, err := s.materialize(ctx, reference, intent)
	if err != nil {
		// Loser of the insert race: the winner's rows are the result.
		if dbpkg.IsUniqueViolation(err, "ux_orders_reference_shop") {
			existing, rerr := s.repo.FindOrdersByReference(ctx, reference)
			if rerr == nil && len(existing) > 0 {
				return replayResult(existing), nil
			}
		}
		return nil, err
	}

	s.notifyCreated(ctx, created)

	return &Result{Orders: toCreated(created)}, nil
}

// materialize runs the all-or-nothing transaction: orders, items,
// guarded stock decrements, cart clear and outbox events.
func (s *service) materialize(ctx context.Context, reference string, intent *checkout.Intent) ([]models.Order, error) {
	now := time.Now()
	estimated := now.AddDate(0, 0, s.cfg.DeliveryLeadDays)
	created := make([]models.Order, 0, len(intent.Groups))

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created = created[:0]

		for _, group := range intent.Groups {
			orderNumber, err := repo.NextOrderNumber(ctx, group.ShopID)
			if err != nil {
				return err
			}

			notes := nilIfEmpty(intent.Delivery.Notes)
			order := models.Order{
				ID:                  uuid.New(),
				OrderNumber:         orderNumber,
				BuyerID:             intent.BuyerID,
				ShopID:              group.ShopID,
				PaymentReference:    reference,
				TotalKobo:           group.SubtotalKobo,
				PlatformFeeKobo:     group.PlatformFeeKobo,
				SellerAmountKobo:    group.SellerKobo,
				FeeRate:             intent.FeeRate,
				Status:              enums.OrderStatusPending,
				PaymentStatus:       enums.PaymentStatusPaid,
				DeliveryName:        intent.Delivery.Name,
				DeliveryPhone:       intent.Delivery.Phone,
				DeliveryAddress:     intent.Delivery.Address,
				DeliveryNotes:       notes,
				EstimatedDeliveryAt: &estimated,
			}
			if err := repo.CreateOrder(ctx, &order); err != nil {
				return err
			}

			items := make([]models.OrderItem, 0, len(group.Items))
			for _, line := range group.Items {
				items = append(items, models.OrderItem{
					ID:            uuid.New(),
					OrderID:       order.ID,
					ProductID:     line.ProductID,
					ProductName:   line.ProductName,
					UnitPriceKobo: line.UnitPriceKobo,
					Quantity:      line.Quantity,
					SubtotalKobo:  line.SubtotalKobo,
				})
				if err := s.inventory.Decrement(ctx, tx, line.ProductID, line.Quantity); err != nil {
					return err
				}
			}
			if err := repo.CreateOrderItems(ctx, items); err != nil {
				return err
			}
			order.Items = items

			// At most one order_created event per order.
			if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: intent.BuyerID, Role: string(enums.ActorRoleBuyer)},
				Data: map[string]any{
					"order_id":          order.ID.String(),
					"order_number":      order.OrderNumber,
					"shop_id":           order.ShopID.String(),
					"buyer_id":          order.BuyerID.String(),
					"payment_reference": reference,
					"total_kobo":        order.TotalKobo,
				},
				Version: 1,
			}); err != nil {
				return err
			}

			created = append(created, order)
		}

		if _, err := s.cart.WithTx(tx).ClearForBuyer(ctx, intent.BuyerID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_count": len(created)})
		s.logg.Info(logCtx, "settlement committed")
	}
	return created, nil
}

func (s *service) notifyCreated(ctx context.Context, orders []models.Order) {
	if s.notifier == nil {
		return
	}
	var errs error
	for i := range orders {
		if err := s.notifier.NotifyOrderEvent(ctx, &orders[i], enums.NotificationOrderPlaced); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil && s.logg != nil {
		s.logg.Warn(ctx, "post-settlement notifications failed: "+errs.Error())
	}
}

func (s *service) observe(result *Result, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil && result != nil && result.Replayed:
		s.metrics.ObserveAttempt(metrics.OutcomeReplayed, elapsed)
	case err == nil:
		s.metrics.ObserveAttempt(metrics.OutcomeSettled, elapsed)
	default:
		domainErr := pkgerrors.As(err)
		if domainErr != nil && pkgerrors.MetadataFor(domainErr.Code()).HTTPStatus < http.StatusInternalServerError {
			s.metrics.ObserveAttempt(metrics.OutcomeRejected, elapsed)
			return
		}
		s.metrics.ObserveAttempt(metrics.OutcomeFailed, elapsed)
	}
}

func (s *service) scope(ctx context.Context, reference string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithPaymentReference(ctx, reference)
}

func validateIntent(intent *checkout.Intent, paidKobo int64) error {
	var total int64
	for _, group := range intent.Groups {
		var items int64
		for _, line := range group.Items {
			if line.SubtotalKobo != line.UnitPriceKobo*int64(line.Quantity) {
				return pkgerrors.New(pkgerrors.CodePaymentVerification, "intent line subtotal mismatch")
			}
			items += line.SubtotalKobo
		}
		if items != group.SubtotalKobo {
			return pkgerrors.New(pkgerrors.CodePaymentVerification, "intent group subtotal mismatch")
		}
		if group.PlatformFeeKobo+group.SellerKobo != group.SubtotalKobo {
			return pkgerrors.New(pkgerrors.CodePaymentVerification, "intent fee split mismatch")
		}
		total += group.SubtotalKobo
	}
	if total != intent.TotalKobo {
		return pkgerrors.New(pkgerrors.CodePaymentVerification, "intent total mismatch")
	}
	if paidKobo != intent.TotalKobo {
		return pkgerrors.New(pkgerrors.CodePaymentVerification, "paid amount does not match intent").
			WithDetails(map[string]any{"paid_kobo": paidKobo, "intent_kobo": intent.TotalKobo})
	}
	return nil
}

func mapGatewayError(err error) error {
	var apiErr *paystack.APIError
	if errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodePaymentVerification, err, "gateway rejected reference")
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentVerification, err, "payment gateway unavailable")
}

func replayResult(existing []models.Order) *Result {
	return &Result{Orders: toCreated(existing), Replayed: true}
}

func toCreated(orders []models.Order) []CreatedOrder {
	out := make([]CreatedOrder, 0, len(orders))
	for _, order := range orders {
		out = append(out, CreatedOrder{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			ShopID:      order.ShopID,
		})
	}
	return out
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
