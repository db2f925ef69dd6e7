package enums

import "fmt"

// NotificationType categorizes persistent per-user notifications.
type NotificationType string

const (
	NotificationTypeOrderUpdate  NotificationType = "order_update"
	NotificationTypeWalletCredit NotificationType = "wallet_credit"
	NotificationTypeCart         NotificationType = "cart"
	NotificationTypeBackInStock  NotificationType = "back_in_stock"
	NotificationTypeAccount      NotificationType = "account"
	NotificationTypeTicketUpdate NotificationType = "ticket_update"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderUpdate,
	NotificationTypeWalletCredit,
	NotificationTypeCart,
	NotificationTypeBackInStock,
	NotificationTypeAccount,
	NotificationTypeTicketUpdate,
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
