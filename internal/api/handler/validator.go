package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/taskmanager/task-api/internal/core/domain"
)

// echoValidator wraps go-playground/validator so Echo can call c.Validate(req).
type echoValidator struct {
	v *validator.Validate
}

// NewValidator returns an echoValidator ready to be assigned to echo.Echo.Validator.
func NewValidator() *echoValidator {
	return &echoValidator{v: validator.New()}
}

// Validate satisfies the echo.Validator interface. The first failing field is
// reported as a domain.ValidationError.
func (ev *echoValidator) Validate(i any) error {
	if err := ev.v.Struct(i); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fieldError(ve[0])
		}
		return err
	}
	return nil
}

func fieldError(fe validator.FieldError) *domain.ValidationError {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return domain.NewValidationError(field, "is required")
	case "email":
		return domain.NewValidationError(field, "is invalid")
	case "min":
		return domain.NewValidationError(field, "must be at least %s characters", fe.Param())
	default:
		return domain.NewValidationError(field, "failed validation (%s)", fe.Tag())
	}
}
