package opt

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate rejects a problem that cannot be optimized. The returned error is
// always a *ConfigError.
func Validate(p Problem) error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Field: strings.TrimPrefix(fe.Namespace(), "Problem."), Reason: describe(fe)}
		}
		return &ConfigError{Field: "problem", Reason: err.Error()}
	}
	o := p.Objectives
	if !o.MinimizeCost && !o.MinimizeDistance && !o.MinimizeTime && !o.MaximizeUtilization {
		return &ConfigError{Field: "objectives", Reason: "no objective enabled"}
	}

	vehicles := make(map[string]struct{}, len(p.Vehicles))
	for i, v := range p.Vehicles {
		if _, dup := vehicles[v.ID]; dup {
			return &ConfigError{Field: fmt.Sprintf("vehicles[%d].id", i), Reason: "duplicate id " + v.ID}
		}
		vehicles[v.ID] = struct{}{}
		if err := v.Location.Validate(); err != nil {
			return &ConfigError{Field: "vehicle " + v.ID + " currentLocation", Reason: err.Error()}
		}
	}

	customers := make(map[string]struct{}, len(p.Customers))
	for i, c := range p.Customers {
		if _, dup := customers[c.ID]; dup {
			return &ConfigError{Field: fmt.Sprintf("customers[%d].id", i), Reason: "duplicate id " + c.ID}
		}
		customers[c.ID] = struct{}{}
		if err := c.Location.Validate(); err != nil {
			return &ConfigError{Field: "customer " + c.ID + " location", Reason: err.Error()}
		}
		if c.TimeWindow.bounded() && c.TimeWindow.End < c.TimeWindow.Start {
			return &ConfigError{Field: "customer " + c.ID + " timeWindow", Reason: "end before start"}
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
