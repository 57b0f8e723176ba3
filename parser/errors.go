package parser

import (
	"errors"
	"fmt"
)

// ErrMissingField indicates the element holding a field is absent from a card.
type ErrMissingField struct {
	Field    string
	Selector string
}

func (e ErrMissingField) Error() string {
	return fmt.Sprintf("missing_field: %s (selector %q)", e.Field, e.Selector)
}

// ErrMissingAttribute indicates the element was found but lacks the attribute
// carrying the value.
type ErrMissingAttribute struct {
	Field     string
	Selector  string
	Attribute string
}

func (e ErrMissingAttribute) Error() string {
	return fmt.Sprintf("missing_attribute: %s (selector %q, attribute %q)", e.Field, e.Selector, e.Attribute)
}

// ErrMalformedValue indicates the value is present but cannot be coerced.
type ErrMalformedValue struct {
	Field string
	Value string
	Err   error
}

func (e ErrMalformedValue) Error() string {
	return fmt.Errorf("malformed_value: %s %q: %w", e.Field, e.Value, e.Err).Error()
}

func (e ErrMalformedValue) Unwrap() error {
	return e.Err
}

// RecordError ties an extraction failure to the card's position on the page.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("card %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a stable label for an extraction error.
func ErrorKind(err error) string {
	if err == nil {
		return "unknown"
	}
	var missingField ErrMissingField
	if errors.As(err, &missingField) {
		return "missing_field"
	}
	var missingAttr ErrMissingAttribute
	if errors.As(err, &missingAttr) {
		return "missing_attribute"
	}
	var malformed ErrMalformedValue
	if errors.As(err, &malformed) {
		return "malformed_value"
	}
	return "invalid_record"
}
