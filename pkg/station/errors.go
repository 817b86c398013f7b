package station

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start, Configure and Observe while the station runs.
	ErrAlreadyRunning = errors.New("station: already running")

	// ErrNotRunning is returned by AddArrival before Start or after Stop.
	ErrNotRunning = errors.New("station: not running")
)

// ConfigurationError reports an invalid station parameter.
// The station is left exactly as it was before the failing call.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("station: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func validateSize(capacity, pumps int) error {
	if capacity < 0 {
		return &ConfigurationError{Field: "waiting capacity", Value: capacity, Reason: "must be >= 0"}
	}
	if pumps <= 0 {
		return &ConfigurationError{Field: "pump count", Value: pumps, Reason: "must be > 0"}
	}
	return nil
}
