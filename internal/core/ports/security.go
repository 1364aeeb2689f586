package ports

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// TokenService issues and verifies signed session tokens bound to an account.
type TokenService interface {
	Issue(accountID string) (string, error)
	// Verify returns domain.ErrInvalidToken for every kind of bad token.
	Verify(token string) (accountID string, err error)
}
