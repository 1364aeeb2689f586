// Package mail renders account notifications into outbound messages.
package mail

import (
	"fmt"

	"github.com/taskmanager/task-api/internal/core/domain"
)

// Message is the delivery-ready form of a notification.
type Message struct {
	Kind    domain.NotificationKind `json:"kind"`
	From    string                  `json:"from"`
	To      string                  `json:"to"`
	Subject string                  `json:"subject"`
	Text    string                  `json:"text"`
}

// Render fills the template for n.Kind. Unknown kinds are an error.
func Render(n domain.Notification, from string) (Message, error) {
	msg := Message{Kind: n.Kind, From: from, To: n.Email}

	switch n.Kind {
	case domain.NotifyWelcome:
		msg.Subject = "Welcome to the app!"
		msg.Text = fmt.Sprintf("Welcome to the app, %s. Let me know how this goes!", n.Name)
	case domain.NotifyFarewell:
		msg.Subject = "We're sorry to see you go!"
		msg.Text = fmt.Sprintf("We're sorry you decided to leave %s. If you have a minute please tell us why and if there is anything that we can change.", n.Name)
	default:
		return Message{}, fmt.Errorf("mail: unknown notification kind %q", n.Kind)
	}
	return msg, nil
}
