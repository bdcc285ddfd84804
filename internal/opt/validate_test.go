package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(randomProblem(1, 2, 5)))

	tests := []struct {
		name   string
		mutate func(*Problem)
		field  string
	}{
		{"missing vehicle id", func(p *Problem) { p.Vehicles[0].ID = "" }, "vehicles[0].id"},
		{"priority range", func(p *Problem) { p.Customers[2].Priority = 0 }, "customers[2].priority"},
		{"negative demand", func(p *Problem) { p.Customers[0].Demand.Weight = -1 }, "customers[0].demand.weight"},
		{"zero route duration", func(p *Problem) { p.Constraints.MaxRouteDuration = 0 }, "constraints.maxRouteDuration"},
		{"zero customers per route", func(p *Problem) { p.Constraints.MaxCustomersPerRoute = 0 }, "constraints.maxCustomersPerRoute"},
		{"latitude", func(p *Problem) { p.Customers[1].Location.Lat = 123 }, "customers[1].location.lat"},
		{"nan longitude", func(p *Problem) { p.Vehicles[1].Location.Lon = math.NaN() }, "vehicles[1].currentLocation.lon"},
		{"no objectives", func(p *Problem) { p.Objectives = Objectives{RespectTimeWindows: true} }, "objectives"},
		{"duplicate vehicle", func(p *Problem) { p.Vehicles[1].ID = p.Vehicles[0].ID }, "vehicles[1].id"},
		{"duplicate customer", func(p *Problem) { p.Customers[3].ID = p.Customers[0].ID }, "customers[3].id"},
		{"window inverted", func(p *Problem) { p.Customers[4].TimeWindow = TimeWindow{Start: 100, End: 50} }, "customer c04 timeWindow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := randomProblem(1, 2, 5)
			tt.mutate(&p)
			err := Validate(p)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidateAllowsEmptyFleet(t *testing.T) {
	p := randomProblem(1, 0, 3)
	assert.NoError(t, Validate(p))
	p = randomProblem(1, 2, 0)
	assert.NoError(t, Validate(p))
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Field: "constraints.fuelLimit", Reason: "must be greater than 0"}
	assert.Equal(t, "invalid optimization input: constraints.fuelLimit: must be greater than 0", err.Error())
}
