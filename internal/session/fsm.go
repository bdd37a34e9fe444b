// Package session drives one photo measurement from image selection to an
// optional calibration commit.
//
// The workflow is a finite-state machine. Transition is a pure function of
// the current Machine and an Event; it returns the next Machine and the
// effects the caller must perform (call the oracle, persist an exemplar,
// cancel an in-flight call). Session performs those effects.
package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/RMahshie/psychro/internal/oracle"
	"github.com/RMahshie/psychro/internal/psychrometry"
	"github.com/RMahshie/psychro/pkg/models"
)

// State is a phase of the measurement workflow.
type State string

const (
	StateIdle               State = "idle"
	StateAcquiring          State = "acquiring"
	StateAwaitingExtraction State = "awaiting_extraction"
	StateExtracted          State = "extracted"
	StateExtractionFailed   State = "extraction_failed"
	StateReviewing          State = "reviewing"
	StateCalibrated         State = "calibrated"
)

// correctionTolerance is how far an edited value may drift from the
// extracted one before the reading counts as corrected.
const correctionTolerance = 0.01

// toleranceEpsilon absorbs float rounding so a change of exactly
// correctionTolerance does not count.
const toleranceEpsilon = 1e-9

var (
	ErrInvalidTransition  = errors.New("invalid session transition")
	ErrExtractionInFlight = errors.New("an extraction is already in progress")
	ErrStaleAttempt       = errors.New("result belongs to a superseded extraction")
	ErrCalibrationBlocked = errors.New("calibration is blocked while the reading is physically inconsistent")
	ErrAlreadyCalibrated  = errors.New("reading is already committed as a calibration exemplar")
)

// Failure describes why an extraction ended in StateExtractionFailed.
type Failure struct {
	Kind    oracle.FailureKind
	Message string
	Err     error
}

// Machine is the complete session state. Values are never mutated through
// their pointers; transitions replace them.
type Machine struct {
	State   State
	Attempt int
	Image   *models.Image

	Original      *models.Reading
	Reading       *models.Reading
	Result        *models.MeasurementResult
	Inconsistency *psychrometry.InconsistencyError

	Corrected  bool
	Calibrated bool
	Exemplar   *models.CalibrationExemplar
	Failure    *Failure
}

// Event is an input to Transition.
type Event interface {
	eventName() string
}

type (
	ImageSelected       struct{ Image models.Image }
	ExtractionStarted   struct{ Attempt int }
	ExtractionSucceeded struct {
		Attempt int
		Reading models.Reading
	}
	ExtractionFailed struct {
		Attempt int
		Err     error
	}
	ReviewStarted        struct{}
	ReadingEdited        struct{ DryTemp, WetTemp float64 }
	CalibrationRequested struct{}
	CalibrationPersisted struct{ Exemplar models.CalibrationExemplar }
	Reset                struct{}
)

func (ImageSelected) eventName() string        { return "ImageSelected" }
func (ExtractionStarted) eventName() string    { return "ExtractionStarted" }
func (ExtractionSucceeded) eventName() string  { return "ExtractionSucceeded" }
func (ExtractionFailed) eventName() string     { return "ExtractionFailed" }
func (ReviewStarted) eventName() string        { return "ReviewStarted" }
func (ReadingEdited) eventName() string        { return "ReadingEdited" }
func (CalibrationRequested) eventName() string { return "CalibrationRequested" }
func (CalibrationPersisted) eventName() string { return "CalibrationPersisted" }
func (Reset) eventName() string                { return "Reset" }

// Effect is work requested by a transition.
type Effect interface {
	effectName() string
}

type (
	ExtractReading struct {
		Attempt int
		Image   models.Image
	}
	PersistExemplar struct {
		Image   models.Image
		DryTemp float64
		WetTemp float64
	}
	CancelExtraction struct{ Attempt int }
)

func (ExtractReading) effectName() string   { return "ExtractReading" }
func (PersistExemplar) effectName() string  { return "PersistExemplar" }
func (CancelExtraction) effectName() string { return "CancelExtraction" }

// Transition computes the next machine for ev. On error the returned
// machine equals m and no effects are produced.
func Transition(m Machine, ev Event) (Machine, []Effect, error) {
	switch e := ev.(type) {
	case ImageSelected:
		switch m.State {
		case StateIdle:
			image := e.Image
			next := Machine{State: StateAcquiring, Attempt: m.Attempt + 1, Image: &image}
			return next, []Effect{ExtractReading{Attempt: next.Attempt, Image: image}}, nil
		case StateAcquiring, StateAwaitingExtraction:
			return m, nil, ErrExtractionInFlight
		}

	case ExtractionStarted:
		if e.Attempt != m.Attempt {
			return m, nil, ErrStaleAttempt
		}
		if m.State == StateAcquiring {
			next := m
			next.State = StateAwaitingExtraction
			return next, nil, nil
		}

	case ExtractionSucceeded:
		if e.Attempt != m.Attempt || m.State != StateAwaitingExtraction {
			return m, nil, ErrStaleAttempt
		}
		original := e.Reading
		next := evaluate(m, original)
		next.State = StateExtracted
		next.Original = &original
		next.Corrected = false
		next.Calibrated = false
		return next, nil, nil

	case ExtractionFailed:
		if e.Attempt != m.Attempt || m.State != StateAwaitingExtraction {
			return m, nil, ErrStaleAttempt
		}
		next := m
		next.State = StateExtractionFailed
		next.Failure = describeFailure(e.Err)
		return next, nil, nil

	case ReviewStarted:
		if m.State == StateExtracted {
			next := m
			next.State = StateReviewing
			return next, nil, nil
		}

	case ReadingEdited:
		switch m.State {
		case StateExtracted, StateReviewing, StateCalibrated:
			if !differs(*m.Reading, e.DryTemp, e.WetTemp) {
				return m, nil, nil
			}
			edited := *m.Reading
			edited.DryTemp = e.DryTemp
			edited.WetTemp = e.WetTemp

			next := evaluate(m, edited)
			next.State = StateReviewing
			next.Corrected = differs(*m.Original, e.DryTemp, e.WetTemp)
			next.Calibrated = false
			return next, nil, nil
		}

	case CalibrationRequested:
		switch m.State {
		case StateExtracted, StateReviewing:
			if m.Inconsistency != nil {
				return m, nil, ErrCalibrationBlocked
			}
			return m, []Effect{PersistExemplar{
				Image:   *m.Image,
				DryTemp: m.Reading.DryTemp,
				WetTemp: m.Reading.WetTemp,
			}}, nil
		case StateCalibrated:
			return m, nil, ErrAlreadyCalibrated
		}

	case CalibrationPersisted:
		switch m.State {
		case StateExtracted, StateReviewing:
			exemplar := e.Exemplar
			next := m
			next.State = StateCalibrated
			next.Calibrated = true
			next.Exemplar = &exemplar
			return next, nil, nil
		}

	case Reset:
		next := Machine{State: StateIdle, Attempt: m.Attempt}
		if m.State == StateAcquiring || m.State == StateAwaitingExtraction {
			return next, []Effect{CancelExtraction{Attempt: m.Attempt}}, nil
		}
		return next, nil, nil
	}

	return m, nil, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, ev.eventName(), m.State)
}

// evaluate recomputes the derived values for r. A wet bulb above the dry
// bulb suppresses the result and records the inconsistency instead.
func evaluate(m Machine, r models.Reading) Machine {
	next := m
	next.Reading = &r
	next.Result = nil
	next.Inconsistency = nil

	result, err := psychrometry.Evaluate(r)
	var inconsistency *psychrometry.InconsistencyError
	if errors.As(err, &inconsistency) {
		next.Inconsistency = inconsistency
		return next
	}
	next.Result = &result
	return next
}

func differs(r models.Reading, dryTemp, wetTemp float64) bool {
	limit := correctionTolerance + toleranceEpsilon
	return math.Abs(r.DryTemp-dryTemp) > limit || math.Abs(r.WetTemp-wetTemp) > limit
}

func describeFailure(err error) *Failure {
	kind := oracle.Classify(err)
	var message string
	switch kind {
	case oracle.FailureSubjectNotRecognized:
		message = "This photo does not look like a psychrometer. Retake it with both thermometers in view."
	case oracle.FailureMalformedResponse:
		message = "The photo could not be analyzed. Please try again."
	case oracle.FailureCancelled:
		message = "The analysis was cancelled."
	default:
		message = err.Error()
	}
	return &Failure{Kind: kind, Message: message, Err: err}
}
