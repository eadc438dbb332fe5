package nmea

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a line starts with '$' but is not a
	// $body*HH sentence.
	ErrMalformed = errors.New("nmea: malformed sentence")
	// ErrInvalidField is matched by every *FieldError.
	ErrInvalidField = errors.New("nmea: invalid field")
	// ErrChecksum is matched by *ChecksumError. Only strict decoders return it.
	ErrChecksum = errors.New("nmea: checksum mismatch")
)

// FieldError reports a field that could not be converted.
type FieldError struct {
	Sentence string // sentence type, e.g. "GGA"
	Field    string
	Value    string
	Err      error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nmea: %s: invalid %s %q: %v", e.Sentence, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("nmea: %s: invalid %s %q", e.Sentence, e.Field, e.Value)
}

func (e *FieldError) Is(target error) bool { return target == ErrInvalidField }

func (e *FieldError) Unwrap() error { return e.Err }

// ChecksumError carries the transmitted and computed checksums.
type ChecksumError struct {
	Want byte // transmitted
	Got  byte // computed over the body
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("nmea: checksum mismatch: sentence says %02X, computed %02X", e.Want, e.Got)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksum }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
}
