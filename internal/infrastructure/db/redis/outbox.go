package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
	"github.com/taskmanager/task-api/internal/infrastructure/mail"
)

const defaultOutboxKey = "mail:outbox"

var _ ports.MailSender = (*Outbox)(nil)

// Outbox hands rendered messages to the external mailer by appending them to
// a Redis list the mailer consumes with BLPOP.
type Outbox struct {
	client *redis.Client
	key    string
	from   string
}

// NewOutbox creates an Outbox writing to key. An empty key uses mail:outbox.
func NewOutbox(client *redis.Client, key, from string) *Outbox {
	if key == "" {
		key = defaultOutboxKey
	}
	return &Outbox{client: client, key: key, from: from}
}

// Send renders n and appends it to the outbox list.
func (o *Outbox) Send(ctx context.Context, n domain.Notification) error {
	msg, err := mail.Render(n, o.from)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("outbox encode: %w", err)
	}
	if err := o.client.RPush(ctx, o.key, payload).Err(); err != nil {
		return fmt.Errorf("outbox push: %w", err)
	}
	return nil
}

// Len reports how many messages are waiting for the mailer.
func (o *Outbox) Len(ctx context.Context) (int64, error) {
	n, err := o.client.LLen(ctx, o.key).Result()
	if err != nil {
		return 0, fmt.Errorf("outbox len: %w", err)
	}
	return n, nil
}
