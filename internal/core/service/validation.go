package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/taskmanager/task-api/internal/core/domain"
)

// fieldRules validates individual entity fields. It is shared by create and
// update paths so both enforce the same constraints.
type fieldRules struct {
	v *validator.Validate
}

func newFieldRules() *fieldRules {
	return &fieldRules{v: validator.New()}
}

func (r *fieldRules) name(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if err := r.v.Var(name, "required"); err != nil {
		return "", domain.NewValidationError("name", "is required")
	}
	return name, nil
}

func (r *fieldRules) email(raw string) (string, error) {
	email := normalizeEmail(raw)
	if err := r.v.Var(email, "required"); err != nil {
		return "", domain.NewValidationError("email", "is required")
	}
	if err := r.v.Var(email, "email"); err != nil {
		return "", domain.NewValidationError("email", "is invalid")
	}
	return email, nil
}

// password is checked before it ever reaches the hasher.
func (r *fieldRules) password(raw string) (string, error) {
	password := strings.TrimSpace(raw)
	if err := r.v.Var(password, "required"); err != nil {
		return "", domain.NewValidationError("password", "is required")
	}
	if err := r.v.Var(password, fmt.Sprintf("min=%d", domain.MinPasswordLength)); err != nil {
		return "", domain.NewValidationError("password", "must be at least %d characters", domain.MinPasswordLength)
	}
	if password == domain.ForbiddenPassword {
		return "", domain.NewValidationError("password", "cannot be %q", domain.ForbiddenPassword)
	}
	return password, nil
}

func (r *fieldRules) age(age int) (int, error) {
	if err := r.v.Var(age, "gte=0"); err != nil {
		return 0, domain.NewValidationError("age", "must be a positive number")
	}
	return age, nil
}

func (r *fieldRules) description(raw string) (string, error) {
	desc := strings.TrimSpace(raw)
	if err := r.v.Var(desc, "required"); err != nil {
		return "", domain.NewValidationError("description", "is required")
	}
	return desc, nil
}

// checkAllowed rejects the whole update when any key falls outside allowed.
func checkAllowed(fields map[string]any, allowed ...string) error {
	for key := range fields {
		ok := false
		for _, a := range allowed {
			if key == a {
				ok = true
				break
			}
		}
		if !ok {
			return domain.ErrInvalidUpdates
		}
	}
	return nil
}

func stringField(fields map[string]any, key string) (string, error) {
	s, ok := fields[key].(string)
	if !ok {
		return "", domain.NewValidationError(key, "must be a string")
	}
	return s, nil
}

func boolField(fields map[string]any, key string) (bool, error) {
	b, ok := fields[key].(bool)
	if !ok {
		return false, domain.NewValidationError(key, "must be a boolean")
	}
	return b, nil
}

// intField accepts JSON numbers, which decode as float64, as long as they are
// integral.
func intField(fields map[string]any, key string) (int, error) {
	switch n := fields[key].(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, domain.NewValidationError(key, "must be an integer")
		}
		return int(n), nil
	default:
		return 0, domain.NewValidationError(key, "must be a number")
	}
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
