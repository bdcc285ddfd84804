package opt

import (
	"cmp"
	"context"
	"slices"
)

// build assigns customers to vehicles greedily. Customers are considered by
// descending priority, then by earliest window start; each vehicle takes every
// customer it can still append without breaking a constraint. Vehicles are
// visited once, in input order. Whatever is left over is reported, never dropped.
func (e evaluator) build(ctx context.Context, vehicles []Vehicle, customers []Customer) (Solution, []Unassigned, error) {
	pool := constructionOrder(customers)
	routes := make([]Route, 0, len(vehicles))
	for _, v := range vehicles {
		if err := ctx.Err(); err != nil {
			return Solution{}, nil, err
		}
		var r Route
		r, pool = e.fill(v.Profile(), pool)
		routes = append(routes, r)
	}
	return Solution{Routes: routes}, classify(pool, vehicles), nil
}

func constructionOrder(customers []Customer) []Customer {
	out := slices.Clone(customers)
	slices.SortStableFunc(out, func(a, b Customer) int {
		if a.Priority != b.Priority {
			return cmp.Compare(b.Priority, a.Priority)
		}
		return cmp.Compare(a.TimeWindow.Start, b.TimeWindow.Start)
	})
	return out
}

// fill grows one vehicle's route from the pool and returns the customers it
// did not take.
func (e evaluator) fill(p VehicleProfile, pool []Customer) (Route, []Customer) {
	r := e.route(p, nil)
	var violations []string
	rest := make([]Customer, 0, len(pool))
	for _, c := range pool {
		next, reason := e.tryAppend(r, c)
		if reason != "" {
			rest = append(rest, c)
			violations = append(violations, c.ID+": "+reason)
			continue
		}
		r = next
	}
	r.Violations = violations
	return r, rest
}

// tryAppend returns r extended by c, or the reason c cannot go at its end.
func (e evaluator) tryAppend(r Route, c Customer) (Route, string) {
	p := r.profile
	if !r.Load.Add(c.Demand).FitsIn(p.Capacity) {
		return r, "capacity exceeded"
	}
	if !p.Supports(c) {
		return r, "special requirements not supported"
	}
	if len(r.Customers) >= e.cons.MaxCustomersPerRoute {
		return r, "customer limit reached"
	}
	last := p.Start
	if n := len(r.Customers); n > 0 {
		last = r.Customers[n-1].Location
	}
	arrival := r.endClock + e.geo.TravelTime(last, c.Location)
	if c.TimeWindow.bounded() && arrival > c.TimeWindow.End {
		return r, "time window closes before arrival"
	}
	next := e.route(p, append(slices.Clip(r.Customers), c))
	switch {
	case next.TotalTime > e.cons.MaxRouteMinutes()+durationEps:
		return r, "route duration exceeded"
	case next.FuelConsumption > e.cons.FuelLimit+durationEps:
		return r, "fuel limit exceeded"
	case p.MaxDistance > 0 && next.TotalDistance > p.MaxDistance+durationEps:
		return r, "vehicle distance limit exceeded"
	}
	return next, ""
}

func classify(pool []Customer, vehicles []Vehicle) []Unassigned {
	out := make([]Unassigned, 0, len(pool))
	for _, c := range pool {
		out = append(out, Unassigned{CustomerID: c.ID, Reason: unassignedReason(c, vehicles)})
	}
	return out
}

func unassignedReason(c Customer, vehicles []Vehicle) string {
	if len(vehicles) == 0 {
		return ReasonNoVehicles
	}
	fits, supported := false, false
	for _, v := range vehicles {
		if c.Demand.FitsIn(v.Capacity) {
			fits = true
		}
		if v.Profile().Supports(c) {
			supported = true
		}
	}
	switch {
	case !fits:
		return ReasonOverCapacity
	case !supported:
		return ReasonUnsupported
	default:
		return ReasonNoFeasibleInsert
	}
}
