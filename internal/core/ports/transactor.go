package ports

import "context"

// Transactor runs fn inside a store transaction. Repositories called with the
// ctx handed to fn participate in that transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	// Atomic reports whether a failing fn is rolled back by the store.
	Atomic() bool
}
