package opt

const scoreEps = 1e-9

// Score scalarizes a solution. Each enabled objective contributes its raw
// total with weight one; utilization, when maximized, is subtracted. Lower is
// better. Time windows are a gate, not a term, so RespectTimeWindows never
// changes the value.
func Score(s Solution, o Objectives) float64 {
	t := s.Totals()
	score := 0.0
	if o.MinimizeCost {
		score += t.Cost
	}
	if o.MinimizeDistance {
		score += t.Distance
	}
	if o.MinimizeTime {
		score += t.Time
	}
	if o.MaximizeUtilization {
		score -= s.AverageUtilization()
	}
	return score
}

// routeScore is the per-route part of Score. Utilization is a solution-level
// average and is left out; a single route reorder cannot change its load.
func (e evaluator) routeScore(r Route) float64 {
	score := 0.0
	if e.obj.MinimizeCost {
		score += r.TotalCost
	}
	if e.obj.MinimizeDistance {
		score += r.TotalDistance
	}
	if e.obj.MinimizeTime {
		score += r.TotalTime
	}
	return score
}

func (e evaluator) score(s Solution) float64 { return Score(s, e.obj) }
