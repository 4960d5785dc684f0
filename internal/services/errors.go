package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/somexchange/backend/internal/store"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrCurrencyNotFound    = errors.New("currency not found")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

// ValidationError carries per-field failures. It matches ErrValidation.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return e.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{
		Message: "Validation failed",
		Fields:  map[string]string{field: fmt.Sprintf(format, args...)},
	}
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: err.Error()}
	}
	ve := &ValidationError{Message: "Validation failed", Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		ve.Fields[fe.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", fe.Tag())
	}
	return ve
}

func insufficient(code string, have, need fmt.Stringer) error {
	return fmt.Errorf("%w: %s balance %s, need %s", ErrInsufficientFunds, code, have, need)
}

// translate maps store errors onto the ledger taxonomy. Errors already in the
// taxonomy pass through.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
	}
	return err
}
