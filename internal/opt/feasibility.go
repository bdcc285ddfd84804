package opt

const durationEps = 1e-9

// IsFeasible reports whether r satisfies every hard constraint: route time,
// customer count, fuel, vehicle capacity, special requirements and the
// vehicle's daily distance. It does not say which one failed.
func IsFeasible(r Route, c Constraints) bool {
	if r.TotalTime > c.MaxRouteMinutes()+durationEps {
		return false
	}
	if len(r.Customers) > c.MaxCustomersPerRoute {
		return false
	}
	if r.FuelConsumption > c.FuelLimit+durationEps {
		return false
	}
	p := r.profile
	if !r.Load.FitsIn(p.Capacity) {
		return false
	}
	if p.MaxDistance > 0 && r.TotalDistance > p.MaxDistance+durationEps {
		return false
	}
	for _, cu := range r.Customers {
		if !p.Supports(cu) {
			return false
		}
	}
	return true
}

// acceptable is the gate every local search candidate passes through.
func (e evaluator) acceptable(r Route) bool {
	if !r.Feasible {
		return false
	}
	if e.obj.RespectTimeWindows && r.LateMinutes > 0 {
		return false
	}
	return true
}
