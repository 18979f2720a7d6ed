package audio

import (
	"errors"
	"fmt"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

var (
	// ErrInvalidConfiguration is returned when a buffer is constructed with bad parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidArgument is returned for bad call-site inputs such as out-of-range offsets
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSizeMismatch is returned when a header buffer is shorter than the container requires
	ErrSizeMismatch = errors.New("header size mismatch")
	// ErrMalformedHeader is returned when container signatures or chunk bounds are invalid
	ErrMalformedHeader = errors.New("malformed header")
	// ErrMissingFormatChunk is returned when a data chunk precedes any fmt chunk
	ErrMissingFormatChunk = errors.New("unable to find the fmt chunk in header")
	// ErrFormatMismatch is returned when the parsed format differs from the expected one
	ErrFormatMismatch = errors.New("actual format does not match claimed format")
	// ErrCompleted is returned when bytes are appended after Complete
	ErrCompleted = errors.New("window buffer is completed")
)

// FormatMismatchError carries both sides of a failed format comparison
type FormatMismatchError struct {
	Claimed entities.FormatDescriptor
	Actual  entities.FormatDescriptor
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("%s. Actual format: %s vs Claimed format: %s", ErrFormatMismatch, e.Actual, e.Claimed)
}

func (e *FormatMismatchError) Unwrap() error {
	return ErrFormatMismatch
}

// IsFatal reports whether err terminates a stream. Header and configuration
// errors are fatal; argument errors only fail the offending call.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrMissingFormatChunk) ||
		errors.Is(err, ErrFormatMismatch) ||
		errors.Is(err, ErrSizeMismatch) ||
		errors.Is(err, ErrInvalidConfiguration)
}
