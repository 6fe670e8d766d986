package recurrence

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedBlob is returned when the blob ends inside a fixed-width field
	// or declares a length that cannot fit in the buffer.
	ErrMalformedBlob = errors.New("malformed recurrence blob")
	// ErrInvalidPattern is returned for pattern fields that contradict each other.
	ErrInvalidPattern = errors.New("invalid recurrence pattern")
	// ErrUnsupportedPattern is returned for patterns the rule generator cannot express.
	ErrUnsupportedPattern = errors.New("unsupported recurrence pattern")
	// ErrNoSuchOccurrence is returned when a date does not match any occurrence of the series.
	ErrNoSuchOccurrence = errors.New("no occurrence on date")
	// ErrNoSuchException is returned when a date has no exception to modify.
	ErrNoSuchException = errors.New("no exception on date")
	// ErrInvalidOverride is returned when an exception override is inconsistent.
	ErrInvalidOverride = errors.New("invalid exception override")
	// ErrNotRecurring is returned when an item has no recurrence pattern.
	ErrNotRecurring = errors.New("item is not recurring")
)

// DecodeError describes where decoding stopped.
type DecodeError struct {
	Section string
	Offset  int
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Section, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrMalformedBlob, e.Err}
}

func invalidPattern(freq Frequency, pt PatternType) error {
	return fmt.Errorf("%w: pattern type %s cannot be used with frequency %s", ErrInvalidPattern, pt, freq)
}
