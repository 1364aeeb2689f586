package domain

// NotificationKind selects the outbound message template.
type NotificationKind string

const (
	NotifyWelcome  NotificationKind = "welcome"
	NotifyFarewell NotificationKind = "farewell"
)

// Notification is a single outbound message addressed to an account holder.
type Notification struct {
	Kind  NotificationKind `json:"kind"`
	Email string           `json:"email"`
	Name  string           `json:"name"`
}
