package enums

// PayoutStatus tracks the release of seller proceeds after delivery.
type PayoutStatus string

const (
	PayoutStatusNone      PayoutStatus = "none"
	PayoutStatusScheduled PayoutStatus = "scheduled"
	PayoutStatusPaid      PayoutStatus = "paid"
)

// IsValid reports whether the value is a known PayoutStatus.
func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusNone, PayoutStatusScheduled, PayoutStatusPaid:
		return true
	}
	return false
}
