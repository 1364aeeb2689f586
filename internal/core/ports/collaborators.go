package ports

import (
	"context"

	"github.com/taskmanager/task-api/internal/core/domain"
)

// Notifier schedules an outbound message. It never blocks on delivery and
// never reports delivery failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, kind domain.NotificationKind, email, name string)
}

// MailSender hands a rendered notification to the delivery channel.
type MailSender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// AvatarProcessor turns an uploaded image into the stored avatar format.
// Unreadable or non-raster input fails with domain.ErrUnsupportedFormat.
type AvatarProcessor interface {
	Normalize(data []byte) ([]byte, error)
}
