package opt

import (
	"fmt"
	"math/rand/v2"
)

func vehicle(id string, lat, lon float64) Vehicle {
	return Vehicle{
		ID:              id,
		Type:            "van",
		Capacity:        Load{Weight: 1000, Volume: 10, Pallets: 20},
		FuelConsumption: 12,
		OperatingCost:   1.5,
		Location:        Point{Lat: lat, Lon: lon},
	}
}

func customer(id string, lat, lon float64, start, end float64, weight float64) Customer {
	return Customer{
		ID:          id,
		Location:    Point{Lat: lat, Lon: lon},
		TimeWindow:  TimeWindow{Start: start, End: end},
		ServiceTime: 10,
		Priority:    1,
		Demand:      Load{Weight: weight, Volume: weight / 100, Pallets: 1},
	}
}

func defaultConstraints() Constraints {
	return Constraints{MaxRouteDuration: 8, MaxCustomersPerRoute: 20, FuelLimit: 200}
}

func allObjectives() Objectives {
	return Objectives{MinimizeCost: true, MinimizeDistance: true, MinimizeTime: true, MaximizeUtilization: true, RespectTimeWindows: true}
}

// randomProblem builds a reproducible city-sized instance around (52.5, 13.4).
func randomProblem(seed uint64, vehicles, customers int) Problem {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	p := Problem{Objectives: allObjectives(), Constraints: defaultConstraints()}
	for i := 0; i < vehicles; i++ {
		v := vehicle(fmt.Sprintf("v%d", i), 52.5+rng.Float64()*0.05, 13.4+rng.Float64()*0.05)
		v.Capacity = Load{Weight: 600 + rng.Float64()*600, Volume: 8, Pallets: 12}
		p.Vehicles = append(p.Vehicles, v)
	}
	for i := 0; i < customers; i++ {
		start := float64(rng.IntN(6)) * 60
		c := customer(fmt.Sprintf("c%02d", i), 52.45+rng.Float64()*0.15, 13.3+rng.Float64()*0.2, start, start+120+float64(rng.IntN(120)), 20+rng.Float64()*180)
		c.Priority = 1 + rng.IntN(5)
		c.ServiceTime = float64(5 + rng.IntN(10))
		p.Customers = append(p.Customers, c)
	}
	return p
}

func testEvaluator() evaluator {
	return evaluator{geo: Geo{SpeedKmh: DefaultSpeedKmh}, cons: defaultConstraints(), obj: allObjectives()}
}
