package opt

import "slices"

// Utilization is the share of a vehicle's capacity a route consumes, in percent.
type Utilization struct {
	Weight  float64 `json:"weight"`
	Volume  float64 `json:"volume"`
	Pallets float64 `json:"pallets"`
}

type RouteMetrics struct {
	TotalDistance   float64     `json:"totalDistance"` // km
	TotalTime       float64     `json:"totalTime"`     // minutes, including waiting and service
	TotalCost       float64     `json:"totalCost"`
	FuelConsumption float64     `json:"fuelConsumption"` // liters
	LateMinutes     float64     `json:"lateMinutes,omitempty"`
	Load            Load        `json:"load"`
	Utilization     Utilization `json:"utilization"`
}

// Route is the ordered stop sequence of one vehicle. Routes are values: every
// change produces a new Route and leaves the previous one untouched.
type Route struct {
	VehicleID string     `json:"vehicleId"`
	DriverID  string     `json:"driverId,omitempty"`
	Customers []Customer `json:"customers"`
	RouteMetrics
	Feasible   bool     `json:"feasible"`
	Violations []string `json:"violations,omitempty"`

	profile  VehicleProfile
	endClock float64 // after the last service, before any return leg
}

// Profile returns the profile of the vehicle that owns the route.
func (r Route) Profile() VehicleProfile { return r.profile }

// CustomerIDs lists the stops of r in visiting order.
func (r Route) CustomerIDs() []string {
	ids := make([]string, len(r.Customers))
	for i, c := range r.Customers {
		ids[i] = c.ID
	}
	return ids
}

// utilization averages the dimensions the vehicle actually has capacity in.
func (r Route) utilization() float64 {
	sum, dims := 0.0, 0
	if r.profile.Capacity.Weight > 0 {
		sum += r.Utilization.Weight
		dims++
	}
	if r.profile.Capacity.Volume > 0 {
		sum += r.Utilization.Volume
		dims++
	}
	if r.profile.Capacity.Pallets > 0 {
		sum += r.Utilization.Pallets
		dims++
	}
	if dims == 0 {
		return 0
	}
	return sum / float64(dims)
}

// Solution is one complete assignment: a route per vehicle, empty ones included.
type Solution struct {
	Routes []Route
}

// Totals are sums over the routes of a solution.
type Totals struct {
	Cost     float64
	Distance float64
	Time     float64
	Fuel     float64
}

func (s Solution) Totals() Totals {
	var t Totals
	for _, r := range s.Routes {
		t.Cost += r.TotalCost
		t.Distance += r.TotalDistance
		t.Time += r.TotalTime
		t.Fuel += r.FuelConsumption
	}
	return t
}

// AverageUtilization is the mean utilization of routes that serve at least
// one customer. It is zero when there are none.
func (s Solution) AverageUtilization() float64 {
	sum, n := 0.0, 0
	for _, r := range s.Routes {
		if len(r.Customers) == 0 {
			continue
		}
		sum += r.utilization()
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Served returns the routes that visit at least one customer.
func (s Solution) Served() []Route {
	out := make([]Route, 0, len(s.Routes))
	for _, r := range s.Routes {
		if len(r.Customers) > 0 {
			out = append(out, r)
		}
	}
	return out
}

func (s Solution) replace(i int, r Route) Solution {
	routes := slices.Clone(s.Routes)
	routes[i] = r
	return Solution{Routes: routes}
}

// evaluator bundles what every recomputation needs. It holds no mutable state
// and is shared read-only by the neighborhood workers.
type evaluator struct {
	geo  Geo
	cons Constraints
	obj  Objectives
}

// route computes a route from scratch for the given vehicle and stop order.
// Service starts at the window start when the vehicle arrives early.
func (e evaluator) route(p VehicleProfile, customers []Customer) Route {
	r := Route{VehicleID: p.VehicleID, DriverID: p.DriverID, Customers: customers, profile: p}
	cur := p.Start
	var clock, dist, late float64
	var load Load
	for _, c := range customers {
		d := Distance(cur, c.Location)
		dist += d
		clock += e.geo.minutesFor(d)
		if c.TimeWindow.bounded() && clock > c.TimeWindow.End {
			late += clock - c.TimeWindow.End
		}
		if clock < c.TimeWindow.Start {
			clock = c.TimeWindow.Start
		}
		clock += c.ServiceTime
		load = load.Add(c.Demand)
		cur = c.Location
	}
	r.endClock = clock
	if e.cons.ReturnToDepot && len(customers) > 0 {
		d := Distance(cur, p.Start)
		dist += d
		clock += e.geo.minutesFor(d)
	}
	r.RouteMetrics = RouteMetrics{
		TotalDistance:   dist,
		TotalTime:       clock,
		TotalCost:       dist * p.CostPerKm,
		FuelConsumption: dist * p.FuelPerKm,
		LateMinutes:     late,
		Load:            load,
		Utilization: Utilization{
			Weight:  percent(load.Weight, p.Capacity.Weight),
			Volume:  percent(load.Volume, p.Capacity.Volume),
			Pallets: percent(float64(load.Pallets), float64(p.Capacity.Pallets)),
		},
	}
	r.Feasible = IsFeasible(r, e.cons)
	return r
}

// rebuild recomputes old with a new stop order, keeping its construction-time
// violations.
func (e evaluator) rebuild(old Route, customers []Customer) Route {
	r := e.route(old.profile, customers)
	r.Violations = old.Violations
	return r
}

func percent(used, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return used / capacity * 100
}
