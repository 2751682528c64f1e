package chatsdk

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateRequest checks req before it is sent. Failures come back as a
// KindValidation *APIError keyed by json field name.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "cannot validate request")
	}

	details := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = append(details[fe.Field()], describeFieldError(fe))
	}

	return newValidationError("Validation failed", details)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "can't be blank"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "should be at most " + fe.Param() + " character(s)"
	case "min", "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "is invalid"
	}
}
