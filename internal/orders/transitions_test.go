package orders

import (
	"testing"

	"github.com/tundeoa/sokohub-backend/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from enums.OrderStatus
		to   enums.OrderStatus
		want bool
	}{
		{enums.OrderStatusPending, enums.OrderStatusProcessing, true},
		{enums.OrderStatusPending, enums.OrderStatusInTransit, false},
		{enums.OrderStatusPending, enums.OrderStatusDelivered, false},
		{enums.OrderStatusProcessing, enums.OrderStatusReadyForPickup, true},
		{enums.OrderStatusProcessing, enums.OrderStatusDelivered, false},
		{enums.OrderStatusReadyForPickup, enums.OrderStatusInTransit, true},
		{enums.OrderStatusReadyForPickup, enums.OrderStatusProcessing, false},
		{enums.OrderStatusInTransit, enums.OrderStatusDelivered, true},
		{enums.OrderStatusInTransit, enums.OrderStatusCancelled, false},
		{enums.OrderStatusDelivered, enums.OrderStatusInTransit, false},
		{enums.OrderStatusDelivered, enums.OrderStatusPending, false},
		{enums.OrderStatusCancelled, enums.OrderStatusProcessing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDescribeAllowed(t *testing.T) {
	if got := DescribeAllowed(enums.OrderStatusDelivered); got != "none" {
		t.Errorf("terminal state: got %q, want \"none\"", got)
	}
	if got := DescribeAllowed(enums.OrderStatusPending); got != "processing" {
		t.Errorf("pending: got %q", got)
	}
	if got := DescribeAllowed(enums.OrderStatusInTransit); got != "delivered" {
		t.Errorf("in_transit: got %q", got)
	}
}
