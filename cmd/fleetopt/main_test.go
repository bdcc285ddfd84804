package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/internal/opt"
)

const problemYAML = `
vehicles:
  - id: v1
    capacity: {weight: 500, volume: 5, pallets: 4}
    fuelConsumption: 10
    operatingCost: 1
    currentLocation: {lat: 52.52, lon: 13.40}
customers:
  - id: c1
    location: {lat: 52.53, lon: 13.42}
    timeWindow: {start: 0, end: 300}
    serviceTime: 5
    priority: 3
    demand: {weight: 50, volume: 0.5, pallets: 1}
  - id: c2
    location: {lat: 52.50, lon: 13.37}
    timeWindow: {start: 0, end: 300}
    serviceTime: 5
    priority: 1
    demand: {weight: 900, volume: 1, pallets: 1}
objectives: {minimizeCost: true, respectTimeWindows: true}
constraints: {maxRouteDuration: 8, maxCustomersPerRoute: 10, fuelLimit: 50}
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunYAMLProblem(t *testing.T) {
	path := writeFile(t, "problem.yaml", problemYAML)
	var out, errOut bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-iterations", "20", "-workers", "1", path}, &out, &errOut))

	var res opt.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.Routes, 1)
	assert.Equal(t, "c1", res.Routes[0].Customers[0].ID)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, "c2", res.Unassigned[0].CustomerID)
}

func TestRunJSONProblem(t *testing.T) {
	p := opt.Problem{
		Vehicles:    []opt.Vehicle{{ID: "v1", Capacity: opt.Load{Weight: 100}, Location: opt.Point{Lat: 1, Lon: 1}}},
		Objectives:  opt.Objectives{MinimizeDistance: true},
		Constraints: opt.Constraints{MaxRouteDuration: 1, MaxCustomersPerRoute: 1, FuelLimit: 1},
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	path := writeFile(t, "problem.json", string(raw))

	var out, errOut bytes.Buffer
	require.NoError(t, run(context.Background(), []string{path}, &out, &errOut))
	assert.Contains(t, out.String(), "no customers to route")
}

func TestRunRejectsInvalidProblem(t *testing.T) {
	path := writeFile(t, "bad.yaml", "vehicles: []\ncustomers: []\nobjectives: {}\nconstraints: {maxRouteDuration: 1, maxCustomersPerRoute: 1, fuelLimit: 1}\n")
	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{path}, &out, &errOut)
	require.Error(t, err)
	assert.ErrorIs(t, err, opt.ErrInvalidConfig)
}

func TestRunUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Error(t, run(context.Background(), nil, &out, &errOut))
	assert.Error(t, run(context.Background(), []string{"/does/not/exist.yaml"}, &out, &errOut))
}
