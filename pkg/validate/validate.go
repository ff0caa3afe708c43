package validate

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates a struct's `validate` tags and converts field errors into
// a readable message.
func Struct[T any](value T) (T, error) {
	if err := validate.Struct(value); err != nil {
		return value, toReadableError(value, err)
	}

	return value, nil
}

// Var validates a single value against a validation tag.
func Var(value any, tag string) error {
	err := validate.Var(value, tag)
	if err != nil {
		return toReadableError(value, err)
	}
	return nil
}

func toReadableError(input any, err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		msg := ""
		for _, fe := range verrs {
			msg += fmt.Sprintf("\n • Failed %T validation for field '%s': rule '%s' expected '%s', got '%v'.", input, fe.StructField(), fe.Tag(), fe.Param(), fe.Value())
		}
		return errors.New(msg)
	}

	return err
}
