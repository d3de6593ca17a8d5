package chat

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims the text fields of msg, defaults its source to user and
// validates the result. Fields that are empty after trimming are rejected
// with a *ValidationError.
func Normalize(msg Message) (Message, error) {
	msg.Content = strings.TrimSpace(msg.Content)
	msg.Room = strings.TrimSpace(msg.Room)
	msg.Author = strings.TrimSpace(msg.Author)
	if msg.Source == "" {
		msg.Source = SourceUser
	}

	if err := validate.Struct(msg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return Message{}, toValidationError(fieldErrs[0])
		}
		return Message{}, err
	}
	return msg, nil
}

func toValidationError(fe validator.FieldError) *ValidationError {
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: fe.Field(), Reason: "is required"}
	case "oneof":
		return &ValidationError{Field: fe.Field(), Reason: "must be one of: " + fe.Param()}
	default:
		return &ValidationError{Field: fe.Field(), Reason: "is invalid"}
	}
}
