package checkout

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Intent is the serialized checkout state frozen into the gateway
// metadata. The gateway's echo of this payload is the single source of
// truth between checkout and settlement; nothing is persisted locally
// until settlement materializes orders from it.
type Intent struct {
	BuyerID         uuid.UUID       `json:"buyer_id"`
	BuyerEmail      string          `json:"buyer_email"`
	FeeRate         string          `json:"fee_rate"`
	TotalKobo       int64           `json:"total_kobo"`
	PlatformFeeKobo int64           `json:"platform_fee_kobo"`
	Delivery        DeliveryDetails `json:"delivery"`
	Groups          []IntentGroup   `json:"groups"`
}

// IntentGroup is one shop's share of the checkout.
type IntentGroup struct {
	ShopID          uuid.UUID    `json:"shop_id"`
	SubtotalKobo    int64        `json:"subtotal_kobo"`
	PlatformFeeKobo int64        `json:"platform_fee_kobo"`
	SellerKobo      int64        `json:"seller_kobo"`
	Items           []IntentItem `json:"items"`
}

// IntentItem snapshots one product line at checkout time.
type IntentItem struct {
	ProductID     uuid.UUID `json:"product_id"`
	ProductName   string    `json:"product_name"`
	UnitPriceKobo int64     `json:"unit_price_kobo"`
	Quantity      int       `json:"quantity"`
	SubtotalKobo  int64     `json:"subtotal_kobo"`
}

// DeliveryDetails is the address snapshot copied onto every order.
type DeliveryDetails struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes,omitempty"`
}

// DecodeIntent parses the gateway metadata echo back into an Intent.
func DecodeIntent(raw json.RawMessage) (*Intent, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty checkout metadata")
	}
	var intent Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, fmt.Errorf("decoding checkout metadata: %w", err)
	}
	if intent.BuyerID == uuid.Nil {
		return nil, fmt.Errorf("checkout metadata missing buyer")
	}
	if len(intent.Groups) == 0 {
		return nil, fmt.Errorf("checkout metadata missing shop groups")
	}
	// One order per shop per reference; a repeated shop group could
	// never materialize against the unique (reference, shop) pair.
	seen := make(map[uuid.UUID]bool, len(intent.Groups))
	for _, group := range intent.Groups {
		if seen[group.ShopID] {
			return nil, fmt.Errorf("checkout metadata repeats shop %s", group.ShopID)
		}
		seen[group.ShopID] = true
	}
	return &intent, nil
}
