package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tundeoa/sokohub-backend/api/middleware"
	"github.com/tundeoa/sokohub-backend/api/responses"
	"github.com/tundeoa/sokohub-backend/api/validators"
	"github.com/tundeoa/sokohub-backend/internal/checkout"
	"github.com/tundeoa/sokohub-backend/internal/settlement"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/logger"
)

type checkoutItemRequest struct {
	ProductID     uuid.UUID `json:"product_id" validate:"required"`
	Quantity      int       `json:"quantity" validate:"required,gt=0"`
	UnitPriceKobo int64     `json:"unit_price_kobo" validate:"gte=0"`
}

type checkoutGroupRequest struct {
	ShopID uuid.UUID             `json:"shop_id" validate:"required"`
	Items  []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
}

type checkoutDeliveryRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address" validate:"required"`
	Notes   string `json:"notes,omitempty"`
}

type checkoutRequest struct {
	Email    string                  `json:"email" validate:"required,email"`
	Groups   []checkoutGroupRequest  `json:"groups" validate:"required,min=1,dive"`
	Delivery checkoutDeliveryRequest `json:"delivery" validate:"required"`
}

// Checkout starts a hosted payment session for the buyer's cart.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID := middleware.UserIDFromContext(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.Input{
			BuyerEmail: strings.TrimSpace(body.Email),
			Delivery: checkout.DeliveryDetails{
				Name:    strings.TrimSpace(body.Delivery.Name),
				Phone:   strings.TrimSpace(body.Delivery.Phone),
				Address: strings.TrimSpace(body.Delivery.Address),
				Notes:   strings.TrimSpace(body.Delivery.Notes),
			},
		}
		for _, group := range body.Groups {
			items := make([]checkout.ItemInput, 0, len(group.Items))
			for _, item := range group.Items {
				items = append(items, checkout.ItemInput{
					ProductID:     item.ProductID,
					Quantity:      item.Quantity,
					UnitPriceKobo: item.UnitPriceKobo,
				})
			}
			input.Groups = append(input.Groups, checkout.GroupInput{ShopID: group.ShopID, Items: items})
		}

		session, err := svc.Initiate(r.Context(), buyerID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// ConfirmCheckout is the buyer's polling entry into settlement after
// returning from the hosted payment page.
func ConfirmCheckout(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required"))
			return
		}

		result, err := svc.Settle(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
