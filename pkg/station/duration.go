package station

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// DefaultServiceDuration matches the two second wash of the original console simulator.
const DefaultServiceDuration = 2 * time.Second

// ServiceDuration decides how long a pump holds its bay for one car.
type ServiceDuration interface {
	Next() time.Duration
	String() string
}

type fixedDuration time.Duration

// Fixed holds every car for exactly d.
func Fixed(d time.Duration) ServiceDuration {
	return fixedDuration(d)
}

func (f fixedDuration) Next() time.Duration { return time.Duration(f) }
func (f fixedDuration) String() string      { return time.Duration(f).String() }

type rangeDuration struct {
	min, max time.Duration
}

// Between holds each car for a uniformly random duration in [min, max].
func Between(min, max time.Duration) ServiceDuration {
	return rangeDuration{min: min, max: max}
}

func (r rangeDuration) Next() time.Duration {
	if r.max <= r.min {
		return r.min
	}
	return r.min + rand.N(r.max-r.min+1)
}

func (r rangeDuration) String() string {
	return fmt.Sprintf("%s..%s", r.min, r.max)
}

func validateDuration(d ServiceDuration) error {
	switch d := d.(type) {
	case nil:
		return &ConfigurationError{Field: "service duration", Value: nil, Reason: "is required"}
	case fixedDuration:
		if d < 0 {
			return &ConfigurationError{Field: "service duration", Value: d, Reason: "must be >= 0"}
		}
	case rangeDuration:
		if d.min < 0 {
			return &ConfigurationError{Field: "service duration", Value: d, Reason: "minimum must be >= 0"}
		}
		if d.max < d.min {
			return &ConfigurationError{Field: "service duration", Value: d, Reason: "maximum must be >= minimum"}
		}
	}
	return nil
}
