// Package checkout aggregates a buyer's shop-partitioned cart into a
// single hosted payment session. Nothing is persisted here; the gateway
// metadata carries the frozen intent until settlement.
package checkout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tundeoa/sokohub-backend/internal/inventory"
	"github.com/tundeoa/sokohub-backend/internal/products"
	"github.com/tundeoa/sokohub-backend/pkg/config"
	"github.com/tundeoa/sokohub-backend/pkg/db/models"
	pkgerrors "github.com/tundeoa/sokohub-backend/pkg/errors"
	"github.com/tundeoa/sokohub-backend/pkg/logger"
	"github.com/tundeoa/sokohub-backend/pkg/paystack"
)

// Gateway is the slice of the payment client checkout needs.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
}

// Service starts checkout sessions.
type Service interface {
	Initiate(ctx context.Context, buyerID uuid.UUID, input Input) (*Session, error)
}

// Input is the buyer's checkout request.
type Input struct {
	BuyerEmail string
	Groups     []GroupInput
	Delivery   DeliveryDetails
}

// GroupInput is one shop's slice of the cart.
type GroupInput struct {
	ShopID uuid.UUID
	Items  []ItemInput
}

// ItemInput is a single requested product line. UnitPriceKobo is the
// price the client displayed; it is only compared against the
// authoritative price to log drift, never trusted.
type ItemInput struct {
	ProductID     uuid.UUID
	Quantity      int
	UnitPriceKobo int64
}

// Session is the hosted payment handle returned to the buyer.
type Session struct {
	AuthorizationURL string `json:"authorizationUrl"`
	PaymentReference string `json:"paymentReference"`
	TotalKobo        int64  `json:"totalKobo"`
	PlatformFeeKobo  int64  `json:"platformFeeKobo"`
}

type service struct {
	products  products.Repository
	inventory inventory.Service
	gateway   Gateway
	cfg       config.CheckoutConfig
	callback  string
	logg      *logger.Logger
}

// NewService wires the checkout aggregator.
func NewService(productsRepo products.Repository, inv inventory.Service, gateway Gateway, cfg config.CheckoutConfig, callbackURL string, logg *logger.Logger) (Service, error) {
	if productsRepo == nil {
		return nil, errors.New("checkout: products repository is required")
	}
	if inv == nil {
		return nil, errors.New("checkout: inventory service is required")
	}
	if gateway == nil {
		return nil, errors.New("checkout: gateway is required")
	}
	if _, err := cfg.FeeRate(); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return &service{
		products:  productsRepo,
		inventory: inv,
		gateway:   gateway,
		cfg:       cfg,
		callback:  callbackURL,
		logg:      logg,
	}, nil
}

func (s *service) Initiate(ctx context.Context, buyerID uuid.UUID, input Input) (*Session, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer is required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	rate, err := s.cfg.FeeRate()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid platform fee rate")
	}

	catalog, err := s.loadCatalog(ctx, input)
	if err != nil {
		return nil, err
	}

	intent, err := s.buildIntent(ctx, buyerID, input, catalog, rate)
	if err != nil {
		return nil, err
	}

	reference, err := mintReference(buyerID, time.Now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting payment reference")
	}

	resp, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       input.BuyerEmail,
		AmountKobo:  intent.TotalKobo,
		Reference:   reference,
		CallbackURL: s.callback,
		Metadata:    intent,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentVerification, err, "payment gateway unavailable")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_reference": reference,
			"total_kobo":        intent.TotalKobo,
			"shop_count":        len(intent.Groups),
		})
		s.logg.Info(logCtx, "checkout session created")
	}

	return &Session{
		AuthorizationURL: resp.AuthorizationURL,
		PaymentReference: reference,
		TotalKobo:        intent.TotalKobo,
		PlatformFeeKobo:  intent.PlatformFeeKobo,
	}, nil
}

func validateInput(input Input) error {
	if strings.TrimSpace(input.BuyerEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer email is required")
	}
	if len(input.Groups) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one shop group")
	}
	for _, group := range input.Groups {
		if group.ShopID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
		}
		if len(group.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "shop group has no items").
				WithDetails(map[string]any{"shop_id": group.ShopID.String()})
		}
		for _, item := range group.Items {
			if item.ProductID == uuid.Nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
			}
			if item.Quantity <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
					WithDetails(map[string]any{"product_id": item.ProductID.String()})
			}
		}
	}
	delivery := input.Delivery
	if strings.TrimSpace(delivery.Name) == "" || strings.TrimSpace(delivery.Phone) == "" || strings.TrimSpace(delivery.Address) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery name, phone and address are required")
	}
	return nil
}

type catalogView struct {
	productsByID map[uuid.UUID]models.Product
	shopsByID    map[uuid.UUID]models.Shop
}

func (s *service) loadCatalog(ctx context.Context, input Input) (*catalogView, error) {
	productIDs := make([]uuid.UUID, 0)
	shopIDs := make([]uuid.UUID, 0, len(input.Groups))
	seenProducts := map[uuid.UUID]bool{}
	seenShops := map[uuid.UUID]bool{}
	for _, group := range input.Groups {
		if seenShops[group.ShopID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate shop group").
				WithDetails(map[string]any{"shop_id": group.ShopID.String()})
		}
		seenShops[group.ShopID] = true
		shopIDs = append(shopIDs, group.ShopID)
		for _, item := range group.Items {
			if seenProducts[item.ProductID] {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate product line").
					WithDetails(map[string]any{"product_id": item.ProductID.String()})
			}
			seenProducts[item.ProductID] = true
			productIDs = append(productIDs, item.ProductID)
		}
	}

	productRows, err := s.products.FindActiveProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	productsByID := make(map[uuid.UUID]models.Product, len(productRows))
	for _, p := range productRows {
		productsByID[p.ID] = p
	}
	for id := range seenProducts {
		if _, ok := productsByID[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found or inactive").
				WithDetails(map[string]any{"product_id": id.String()})
		}
	}

	shopRows, err := s.products.FindShopsByIDs(ctx, shopIDs)
	if err != nil {
		return nil, err
	}
	shopsByID := make(map[uuid.UUID]models.Shop, len(shopRows))
	for _, shop := range shopRows {
		shopsByID[shop.ID] = shop
	}
	for _, id := range shopIDs {
		shop, ok := shopsByID[id]
		if !ok || !shop.Active {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found or inactive").
				WithDetails(map[string]any{"shop_id": id.String()})
		}
	}

	return &catalogView{productsByID: productsByID, shopsByID: shopsByID}, nil
}

func (s *service) buildIntent(ctx context.Context, buyerID uuid.UUID, input Input, catalog *catalogView, rate decimal.Decimal) (*Intent, error) {
	intent := &Intent{
		BuyerID:    buyerID,
		BuyerEmail: input.BuyerEmail,
		FeeRate:    rate.String(),
		Delivery:   input.Delivery,
	}

	for _, group := range input.Groups {
		ig := IntentGroup{ShopID: group.ShopID}
		for _, item := range group.Items {
			product := catalog.productsByID[item.ProductID]
			if product.ShopID != group.ShopID {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "product does not belong to shop").
					WithDetails(map[string]any{
						"product_id": item.ProductID.String(),
						"shop_id":    group.ShopID.String(),
					})
			}

			available, err := s.inventory.Available(ctx, item.ProductID)
			if err != nil {
				return nil, err
			}
			if available < item.Quantity {
				return nil, pkgerrors.New(pkgerrors.CodeStock, "insufficient stock").
					WithDetails(map[string]any{
						"product_id": item.ProductID.String(),
						"requested":  item.Quantity,
						"available":  available,
					})
			}

			if item.UnitPriceKobo != 0 && item.UnitPriceKobo != product.PriceKobo && s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"product_id":   item.ProductID.String(),
					"client_price": item.UnitPriceKobo,
					"server_price": product.PriceKobo,
				})
				s.logg.Info(logCtx, "client price drift detected")
			}

			subtotal := product.PriceKobo * int64(item.Quantity)
			ig.Items = append(ig.Items, IntentItem{
				ProductID:     product.ID,
				ProductName:   product.Name,
				UnitPriceKobo: product.PriceKobo,
				Quantity:      item.Quantity,
				SubtotalKobo:  subtotal,
			})
			ig.SubtotalKobo += subtotal
		}

		if ig.SubtotalKobo < s.cfg.MinimumOrderKobo {
			return nil, pkgerrors.New(pkgerrors.CodeMinimumOrder, "order total below platform minimum").
				WithDetails(map[string]any{
					"shop_id":      group.ShopID.String(),
					"subtotal":     ig.SubtotalKobo,
					"minimum_kobo": s.cfg.MinimumOrderKobo,
				})
		}

		ig.PlatformFeeKobo, ig.SellerKobo = SplitAmount(ig.SubtotalKobo, rate)
		intent.Groups = append(intent.Groups, ig)
		intent.TotalKobo += ig.SubtotalKobo
		intent.PlatformFeeKobo += ig.PlatformFeeKobo
	}

	return intent, nil
}

// mintReference builds the pipeline idempotency key. The random suffix
// keeps references unguessable even with a known buyer and timestamp.
func mintReference(buyerID uuid.UUID, now time.Time) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	buyer8 := strings.ReplaceAll(buyerID.String(), "-", "")[:8]
	return fmt.Sprintf("PAY-%d-%s-%s", now.UnixMilli(), buyer8, hex.EncodeToString(suffix)), nil
}
