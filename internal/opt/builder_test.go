package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructionOrder(t *testing.T) {
	a := customer("a", 0, 0, 60, 0, 1)
	b := customer("b", 0, 0, 0, 0, 1)
	c := customer("c", 0, 0, 30, 0, 1)
	c.Priority = 5
	in := []Customer{a, b, c}

	got := constructionOrder(in)
	assert.Equal(t, []string{"c", "b", "a"}, ids(got))
	assert.Equal(t, []string{"a", "b", "c"}, ids(in), "input must not be reordered")
}

func TestBuildRecordsViolations(t *testing.T) {
	e := testEvaluator()
	v := vehicle("v1", 0, 0)
	big := customer("big", 0.01, 0, 0, 0, 900)
	small := customer("small", 0.02, 0, 0, 0, 200)
	big.Priority = 2

	sol, unassigned, err := e.build(context.Background(), []Vehicle{v}, []Customer{small, big})
	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	assert.Equal(t, []string{"big"}, sol.Routes[0].CustomerIDs())
	assert.Equal(t, []string{"small: capacity exceeded"}, sol.Routes[0].Violations)
	assert.Equal(t, []Unassigned{{CustomerID: "small", Reason: ReasonNoFeasibleInsert}}, unassigned)
}

func TestBuildRespectsLimits(t *testing.T) {
	tests := []struct {
		name   string
		cons   func(*Constraints)
		reason string
	}{
		{"customer limit", func(c *Constraints) { c.MaxCustomersPerRoute = 1 }, "customer limit reached"},
		{"duration", func(c *Constraints) { c.MaxRouteDuration = 0.25 }, "route duration exceeded"},
		{"fuel", func(c *Constraints) { c.FuelLimit = 0.2 }, "fuel limit exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEvaluator()
			tt.cons(&e.cons)
			cs := []Customer{customer("a", 0.01, 0, 0, 0, 10), customer("b", 0.02, 0, 0, 0, 10)}
			sol, unassigned, err := e.build(context.Background(), []Vehicle{vehicle("v1", 0, 0)}, cs)
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, sol.Routes[0].CustomerIDs())
			assert.Equal(t, []string{"b: " + tt.reason}, sol.Routes[0].Violations)
			require.Len(t, unassigned, 1)
			assert.Equal(t, "b", unassigned[0].CustomerID)
		})
	}
}

func TestBuildRejectsClosedWindow(t *testing.T) {
	e := testEvaluator()
	c := customer("far", 1, 0, 0, 30, 10)
	sol, unassigned, err := e.build(context.Background(), []Vehicle{vehicle("v1", 0, 0)}, []Customer{c})
	require.NoError(t, err)
	assert.Empty(t, sol.Routes[0].Customers)
	assert.Equal(t, []string{"far: time window closes before arrival"}, sol.Routes[0].Violations)
	assert.Equal(t, ReasonNoFeasibleInsert, unassigned[0].Reason)
}

func TestUnassignedReason(t *testing.T) {
	c := customer("c", 0, 0, 0, 0, 10)
	assert.Equal(t, ReasonNoVehicles, unassignedReason(c, nil))

	v := vehicle("v", 0, 0)
	heavy := c
	heavy.Demand.Weight = 5000
	assert.Equal(t, ReasonOverCapacity, unassignedReason(heavy, []Vehicle{v}))

	cold := c
	cold.SpecialRequirements = []string{"refrigerated"}
	v.Capabilities = []string{"liftgate"}
	assert.Equal(t, ReasonUnsupported, unassignedReason(cold, []Vehicle{v}))
	assert.Equal(t, ReasonNoFeasibleInsert, unassignedReason(c, []Vehicle{v}))
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := testEvaluator().build(ctx, []Vehicle{vehicle("v1", 0, 0)}, []Customer{customer("a", 0, 0, 0, 0, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func ids(cs []Customer) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
