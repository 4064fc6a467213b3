package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// SchemaError reports a record that failed canonical schema validation after
// normalisation. Records carrying a SchemaError never reach the bus.
type SchemaError struct {
	Record string // record kind, e.g. "external_signal"
	Field  string // first offending field (snake_case JSON name when known)
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s failed schema validation: %s", e.Record, e.Reason)
	}
	return fmt.Sprintf("%s failed schema validation: field %q %s", e.Record, e.Field, e.Reason)
}

// IsSchemaError reports whether err is (or wraps) a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// newSchemaError converts a validator error into a SchemaError for the given
// record kind, keeping only the first field failure for the message.
func newSchemaError(record string, err error) *SchemaError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &SchemaError{
			Record: record,
			Field:  fe.Field(),
			Reason: fmt.Sprintf("failed %q constraint", fe.Tag()),
		}
	}
	return &SchemaError{Record: record, Reason: err.Error()}
}
