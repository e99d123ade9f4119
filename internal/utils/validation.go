package contextutils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs struct-tag validation and folds every field error into
// a single VALIDATION_FAILED AppError.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return WrapError(err, "validation failed")
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Namespace()+" failed '"+fe.Tag()+"'")
	}
	return NewAppErrorWithCause(ErrorCodeValidationFailed, SeverityError, "validation failed", strings.Join(msgs, "; "), err)
}
