package domain

import "time"

// Task is a unit of work owned by exactly one Account.
type Task struct {
	ID          string    `json:"_id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	OwnerID     string    `json:"owner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskChanges carries the validated subset of mutable task fields.
type TaskChanges struct {
	Description *string
	Completed   *bool
}

// Empty reports whether no field would be written.
func (c TaskChanges) Empty() bool {
	return c.Description == nil && c.Completed == nil
}
