package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tundeoa/sokohub-backend/pkg/db/models"
	"github.com/tundeoa/sokohub-backend/pkg/enums"
	"github.com/tundeoa/sokohub-backend/pkg/logger"
	"github.com/tundeoa/sokohub-backend/pkg/outbox"
)

const payoutReleaseBatchSize = 100

// PayoutReleaseJobParams configure the seller payout release job.
type PayoutReleaseJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository payoutReleaseRepo
	Outbox     outboxEmitter
	BatchSize  int
}

type payoutReleaseRepo interface {
	FindDuePayouts(ctx context.Context, tx *gorm.DB, asOf time.Time, limit int) ([]models.Order, error)
	MarkPayoutPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time) (bool, error)
}

// NewPayoutReleaseJob builds the job that releases seller proceeds once
// an order's scheduled payout date arrives.
func NewPayoutReleaseJob(params PayoutReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = payoutReleaseBatchSize
	}
	return &payoutReleaseJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		outbox:    params.Outbox,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

type payoutReleaseJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      payoutReleaseRepo
	outbox    outboxEmitter
	batchSize int
	now       func() time.Time
}

func (j *payoutReleaseJob) Name() string { return "payout-release" }

func (j *payoutReleaseJob) Run(ctx context.Context) error {
	asOf := j.now().UTC()
	due, err := j.repo.FindDuePayouts(ctx, nil, asOf, j.batchSize)
	if err != nil {
		return fmt.Errorf("find due payouts: %w", err)
	}
	if len(due) == 0 {
		j.logg.Info(ctx, "no payouts due")
		return nil
	}

	var released int
	var errs error
	for i := range due {
		order := due[i]
		if err := j.release(ctx, order, asOf); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		released++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":      len(due),
		"released": released,
	})
	j.logg.Info(logCtx, "payout release cycle complete")
	if errs != nil {
		return fmt.Errorf("payout release: %w", errs)
	}
	return nil
}

// release marks a single payout paid and queues the event in the same
// transaction. A lost race with another run is not an error.
func (j *payoutReleaseJob) release(ctx context.Context, order models.Order, paidAt time.Time) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := j.repo.MarkPayoutPaid(ctx, tx, order.ID, paidAt)
		if err != nil {
			return err
		}
		if !updated {
			return nil
		}
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutReleased,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: map[string]any{
				"order_id":      order.ID.String(),
				"shop_id":       order.ShopID.String(),
				"seller_amount": order.SellerAmountKobo,
				"paid_at":       paidAt,
			},
			Version: 1,
		})
	})
}
