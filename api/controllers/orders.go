package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tundeoa/sokohub-backend/api/middleware"
	"github.com/tundeoa/sokohub-backend/api/responses"
	"github.com/tundeoa/sokohub-backend/api/validators"
	"github.com/tundeoa/sokohub-backend/internal/orders"
	"github.com/tundeoa/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/logger"
	"github.com/tundeoa/sokohub-backend/pkg/pagination"
)

type transitionRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type confirmDeliveryRequest struct {
	Feedback *string `json:"feedback,omitempty" validate:"omitempty,max=500"`
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderID"))
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id must be a uuid")
	}
	return orderID, nil
}

// TransitionOrder moves a seller's order along the fulfillment lifecycle.
func TransitionOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Transition(r.Context(), orders.TransitionInput{
			OrderID:     orderID,
			ShopID:      middleware.ShopIDFromContext(r.Context()),
			ActorUserID: middleware.UserIDFromContext(r.Context()),
			NewStatus:   enums.OrderStatus(strings.TrimSpace(body.Status)),
			Notes:       body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// ConfirmDelivery lets the buyer close out an in-transit order.
func ConfirmDelivery(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body confirmDeliveryRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		updated, err := svc.ConfirmDelivery(r.Context(), orders.ConfirmDeliveryInput{
			OrderID:  orderID,
			BuyerID:  middleware.UserIDFromContext(r.Context()),
			Feedback: body.Feedback,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// ListOrders returns the caller's orders, buyer- or shop-scoped by role.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var (
			list any
			page pagination.Page
		)
		switch middleware.RoleFromContext(r.Context()) {
		case enums.ActorRoleBuyer:
			rows, p, err := svc.ListForBuyer(r.Context(), middleware.UserIDFromContext(r.Context()), params)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			list, page = rows, p
		case enums.ActorRoleSeller:
			rows, p, err := svc.ListForShop(r.Context(), middleware.ShopIDFromContext(r.Context()), params)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			list, page = rows, p
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "unsupported role"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"items":       list,
			"next_cursor": page.NextCursor,
			"has_more":    page.HasMore,
		})
	}
}

// GetOrder returns one order after an ownership check.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch middleware.RoleFromContext(r.Context()) {
		case enums.ActorRoleBuyer:
			order, err := svc.GetForBuyer(r.Context(), orderID, middleware.UserIDFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, order)
		case enums.ActorRoleSeller:
			order, err := svc.GetForShop(r.Context(), orderID, middleware.ShopIDFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, order)
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "unsupported role"))
		}
	}
}

// OrderHistory returns the append-only status trail for an order the
// caller can read.
func OrderHistory(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Ownership gate first, reusing the role-scoped getter.
		switch middleware.RoleFromContext(r.Context()) {
		case enums.ActorRoleBuyer:
			if _, err := svc.GetForBuyer(r.Context(), orderID, middleware.UserIDFromContext(r.Context())); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		case enums.ActorRoleSeller:
			if _, err := svc.GetForShop(r.Context(), orderID, middleware.ShopIDFromContext(r.Context())); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "unsupported role"))
			return
		}

		rows, err := svc.History(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
