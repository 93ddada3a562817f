package checkout

import (
	"github.com/shopspring/decimal"
)

// PlatformFee computes the fee retained by the platform on an amount,
// rounded down to whole kobo so the seller never loses a sub-kobo unit.
func PlatformFee(amountKobo int64, rate decimal.Decimal) int64 {
	if amountKobo <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(amountKobo).Mul(rate)
	return fee.Floor().IntPart()
}

// SplitAmount returns the platform fee and the seller remainder for an
// amount. The two always sum back to the input.
func SplitAmount(amountKobo int64, rate decimal.Decimal) (feeKobo, sellerKobo int64) {
	feeKobo = PlatformFee(amountKobo, rate)
	return feeKobo, amountKobo - feeKobo
}
