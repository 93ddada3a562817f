package orders

import (
	"strings"

	"github.com/tundeoa/sokohub-backend/pkg/enums"
)

// allowedTransitions is the single source of truth for the order
// lifecycle. Both the legality check and the user-facing "allowed next"
// message derive from it, so they can never drift apart.
//
// cancelled is terminal and currently unreachable; it is reserved for
// refund integration.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:        {enums.OrderStatusProcessing},
	enums.OrderStatusProcessing:     {enums.OrderStatusReadyForPickup},
	enums.OrderStatusReadyForPickup: {enums.OrderStatusInTransit},
	enums.OrderStatusInTransit:      {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:      {},
	enums.OrderStatusCancelled:      {},
}

// AllowedNext returns the legal successor statuses for a status.
func AllowedNext(from enums.OrderStatus) []enums.OrderStatus {
	return allowedTransitions[from]
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DescribeAllowed renders the legal successors for error messages,
// "none" for terminal states.
func DescribeAllowed(from enums.OrderStatus) string {
	next := allowedTransitions[from]
	if len(next) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(next))
	for _, status := range next {
		parts = append(parts, string(status))
	}
	return strings.Join(parts, ", ")
}
