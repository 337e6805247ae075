package casa

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching. These are the only error kinds
// Compute returns; both are input-validation failures and never transient.
var (
	ErrInvalidTrajectory = errors.New("invalid trajectory")
	ErrInvalidParameters = errors.New("invalid parameters")
)

// TrajectoryError identifies the offending trajectory by id and position.
type TrajectoryError struct {
	Index  int
	ID     TrackID
	Reason string
}

func (e *TrajectoryError) Error() string {
	return fmt.Sprintf("invalid trajectory %q (index %d): %s", e.ID, e.Index, e.Reason)
}

// Is reports a match against ErrInvalidTrajectory.
func (e *TrajectoryError) Is(target error) bool {
	return target == ErrInvalidTrajectory
}

// ParameterError identifies the offending acquisition parameter.
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

// Is reports a match against ErrInvalidParameters.
func (e *ParameterError) Is(target error) bool {
	return target == ErrInvalidParameters
}
