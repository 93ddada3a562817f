package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPlatformFee(t *testing.T) {
	rate := decimal.RequireFromString("0.05")

	cases := []struct {
		amount int64
		want   int64
	}{
		{500000, 25000},
		{250000, 12500},
		{999, 49},
		{0, 0},
		{-100, 0},
	}
	for _, tc := range cases {
		if got := PlatformFee(tc.amount, rate); got != tc.want {
			t.Fatalf("PlatformFee(%d) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestSplitAmountConserves(t *testing.T) {
	rate := decimal.RequireFromString("0.075")

	for _, amount := range []int64{1, 999, 250000, 500001, 123456789} {
		fee, seller := SplitAmount(amount, rate)
		if fee+seller != amount {
			t.Fatalf("split of %d does not conserve: fee=%d seller=%d", amount, fee, seller)
		}
		if fee < 0 || seller < 0 {
			t.Fatalf("split of %d produced negative part: fee=%d seller=%d", amount, fee, seller)
		}
	}
}
