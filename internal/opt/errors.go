package opt

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidConfig is the sentinel every *ConfigError unwraps to.
var ErrInvalidConfig = errors.New("invalid optimization input")

// ConfigError reports input that was rejected before construction started.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Unassigned is a customer the builder could not place on any route.
type Unassigned struct {
	CustomerID string `json:"customerId"`
	Reason     string `json:"reason"`
}

const (
	ReasonNoVehicles       = "no vehicles available"
	ReasonOverCapacity     = "demand exceeds every vehicle capacity"
	ReasonUnsupported      = "special requirements not supported by any vehicle"
	ReasonNoFeasibleInsert = "no feasible position in any route"
)
