package enums

// NotificationType labels the in-app notifications emitted by the
// settlement and fulfillment pipeline.
type NotificationType string

const (
	NotificationOrderPlaced    NotificationType = "order_placed"
	NotificationOrderReady     NotificationType = "order_ready_for_pickup"
	NotificationOrderInTransit NotificationType = "order_in_transit"
	NotificationOrderDelivered NotificationType = "order_delivered"
)

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	switch n {
	case NotificationOrderPlaced, NotificationOrderReady, NotificationOrderInTransit, NotificationOrderDelivered:
		return true
	}
	return false
}
