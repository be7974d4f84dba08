package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrContractViolation marks a corrupted model: the run must abort.
	ErrContractViolation = errors.New("contract violation")

	// ErrCycle is returned when the provenance graph is found to be cyclic.
	ErrCycle = fmt.Errorf("%w: provenance graph is not acyclic", ErrContractViolation)

	// ErrNoEligibleAction is returned by the scheduler when no module has a positive score.
	ErrNoEligibleAction = errors.New("no eligible action")

	// ErrModule marks a recoverable failure inside a module.
	ErrModule = errors.New("module error")
)

func contractf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...))
}

// ModuleError wraps err so that errors.Is(err, ErrModule) holds.
func ModuleError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrModule) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrModule, err)
}

// ValidCertainty rejects certainties outside [0,1] (including NaN).
func ValidCertainty(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return contractf("certainty %v must be in interval [0,1]", c)
	}
	return nil
}
