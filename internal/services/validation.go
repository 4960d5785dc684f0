package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a validator that understands decimal amounts,
// so tags such as gt=0 apply to decimal.Decimal fields.
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return &ValidationHelper{validator: v}
}

// Validate checks s against its validate tags. A failure is returned as a
// *ValidationError carrying one message per field.
func (vh *ValidationHelper) Validate(s any) error {
	if err := vh.validator.Struct(s); err != nil {
		return fromValidator(err)
	}
	return nil
}

// SendErrorResponse sends a JSON error response. validationErr may be a
// validator.ValidationErrors or a *ValidationError.
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		var ve *ValidationError
		if !errors.As(validationErr, &ve) {
			errors.As(fromValidator(validationErr), &ve)
		}
		if ve != nil && len(ve.Fields) > 0 {
			errorResp.Details = ve.Fields
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
