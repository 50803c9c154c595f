package core

import (
	"errors"
	"fmt"
)

// Configuration errors. These are unrecoverable for a run: the caller decides
// whether to abort, but no partial results are produced after one is returned.
var (
	ErrConfiguration = errors.New("invalid configuration")

	ErrTemplateNotFound        = fmt.Errorf("%w: template not found", ErrConfiguration)
	ErrNoBackground            = fmt.Errorf("%w: no background component", ErrConfiguration)
	ErrNoSignal                = fmt.Errorf("%w: no signal component", ErrConfiguration)
	ErrNoData                  = fmt.Errorf("%w: no data sample", ErrConfiguration)
	ErrNoDefaultNorm           = fmt.Errorf("%w: signal default normalization not set", ErrConfiguration)
	ErrNoCalibration           = fmt.Errorf("%w: safeguard requested without calibration sample", ErrConfiguration)
	ErrNoSafeguarded           = fmt.Errorf("%w: no safeguarded background component", ErrConfiguration)
	ErrProbabilityNotConserved = fmt.Errorf("%w: probability not conserved by safeguard", ErrConfiguration)
	ErrDuplicateParameter      = fmt.Errorf("%w: duplicate parameter name", ErrConfiguration)
	ErrDuplicateComponent      = fmt.Errorf("%w: duplicate component", ErrConfiguration)
	ErrParameterNotFound       = fmt.Errorf("%w: parameter not found", ErrConfiguration)
	ErrParameterOutOfRange     = fmt.Errorf("%w: parameter outside its range", ErrConfiguration)
	ErrInvalidConfidenceLevel  = fmt.Errorf("%w: confidence level must be in (0,1)", ErrConfiguration)
	ErrEmptyTemplate           = fmt.Errorf("%w: template has no positive integral", ErrConfiguration)
	ErrIncompatibleBinning     = fmt.Errorf("%w: incompatible template binning", ErrConfiguration)
	ErrNotInitialized          = fmt.Errorf("%w: model not initialized", ErrConfiguration)
	ErrNoMembers               = fmt.Errorf("%w: combined likelihood has no member", ErrConfiguration)
	ErrInconsistentCombination = fmt.Errorf("%w: members cannot be combined", ErrConfiguration)
)

// Operational errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrResultNotFound    = fmt.Errorf("%w: limit result", ErrNotFound)
	ErrNoAsimovData      = errors.New("no asimov dataset generated")
	ErrFitFailed         = errors.New("fit failed")
	ErrLimitNotBracketed = errors.New("limit not bracketed by scan range")
)

// NewTemplateNotFoundError names the missing storage key.
func NewTemplateNotFoundError(key string) error {
	return fmt.Errorf("%w: %q", ErrTemplateNotFound, key)
}

// NewOutOfRangeError names the parameter and the offending value.
func NewOutOfRangeError(name string, value, min, max float64) error {
	return fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrParameterOutOfRange, name, value, min, max)
}

// IsConfigurationError reports whether err belongs to the fail-fast class.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
