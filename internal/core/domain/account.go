package domain

import "time"

// ForbiddenPassword is the one literal value an account password may never take.
const ForbiddenPassword = "password"

// MinPasswordLength is measured after trimming surrounding whitespace.
const MinPasswordLength = 7

// Account models an end user owning tasks and sessions.
//
// PasswordHash, Sessions and Avatar are never part of the JSON projection.
type Account struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Age          int       `json:"age"`
	PasswordHash string    `json:"-"`
	Sessions     []string  `json:"-"`
	Avatar       []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasSession reports whether token is one of the account's live sessions.
func (a *Account) HasSession(token string) bool {
	for _, s := range a.Sessions {
		if s == token {
			return true
		}
	}
	return false
}

// AccountChanges carries the validated subset of mutable account fields.
// A nil pointer means "leave unchanged".
type AccountChanges struct {
	Name         *string
	Email        *string
	Age          *int
	PasswordHash *string
}

// Empty reports whether no field would be written.
func (c AccountChanges) Empty() bool {
	return c.Name == nil && c.Email == nil && c.Age == nil && c.PasswordHash == nil
}
