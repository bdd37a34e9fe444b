// Package oracle turns a psychrometer photo into a Reading by asking an
// external vision model, optionally primed with one confirmed exemplar.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/RMahshie/psychro/pkg/models"
)

var (
	// ErrSubjectNotRecognized means the oracle says the photo is not a psychrometer.
	ErrSubjectNotRecognized = errors.New("subject not recognized as a psychrometer")
	// ErrMalformedResponse means the oracle answer did not match the response contract.
	ErrMalformedResponse = errors.New("malformed oracle response")
)

// TransportError wraps a failure to complete the oracle call itself.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("oracle call failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Exemplar is a previously confirmed photo with its accepted values.
type Exemplar struct {
	Image   models.Image
	DryTemp float64
	WetTemp float64
}

// Extractor reads a psychrometer photo. Implementations make exactly one
// oracle call per invocation and must honour ctx cancellation.
type Extractor interface {
	Extract(ctx context.Context, image models.Image, exemplar *Exemplar) (models.Reading, error)
}

// FailureKind classifies extraction errors for the session layer.
type FailureKind string

const (
	FailureSubjectNotRecognized FailureKind = "subject_not_recognized"
	FailureMalformedResponse    FailureKind = "malformed_response"
	FailureTransport            FailureKind = "transport_failure"
	FailureCancelled            FailureKind = "cancelled"
)

// Classify maps an Extract error onto a FailureKind. Errors that are not
// part of the oracle taxonomy count as transport failures.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrSubjectNotRecognized):
		return FailureSubjectNotRecognized
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformedResponse
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	default:
		return FailureTransport
	}
}
