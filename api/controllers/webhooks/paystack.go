// Package webhooks hosts the payment gateway callback handlers.
package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tundeoa/sokohub-backend/api/responses"
	"github.com/tundeoa/sokohub-backend/internal/settlement"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/logger"
)

const paystackSignatureHeader = "X-Paystack-Signature"

// eventChargeSuccess is the only Paystack event that triggers settlement.
const eventChargeSuccess = "charge.success"

type signatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// Paystack verifies the webhook signature and feeds charge.success
// events into the settlement engine. Other events are acknowledged and
// dropped.
func Paystack(svc settlement.Service, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(paystackSignatureHeader))
		if !verifier.VerifyWebhookSignature(body, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event paystackEvent
		if err := json.Unmarshal(body, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		if event.Event != eventChargeSuccess {
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{"event": event.Event})
				logg.Info(ctx, "webhook event ignored")
			}
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}

		reference := strings.TrimSpace(event.Data.Reference)
		if reference == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing reference"))
			return
		}

		if logg != nil {
			ctx = logg.WithPaymentReference(ctx, reference)
		}
		result, err := svc.Settle(ctx, reference)
		if err != nil {
			// Settlement is idempotent, so a non-2xx here makes
			// Paystack redeliver and retry safely.
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
