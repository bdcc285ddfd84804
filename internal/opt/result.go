package opt

import "time"

// Improvement holds percentage reductions of the final solution against the
// construction baseline. Positive means the search helped.
type Improvement struct {
	CostReduction     float64 `json:"costReduction"`
	DistanceReduction float64 `json:"distanceReduction"`
	TimeReduction     float64 `json:"timeReduction"`
}

// Stats describes how a run went.
type Stats struct {
	Iterations          int     `json:"iterations"`
	Improvements        int     `json:"improvements"`
	CandidatesEvaluated int     `json:"candidatesEvaluated"`
	RefinePasses        int     `json:"refinePasses"`
	BaselineScore       float64 `json:"baselineScore"`
	FinalScore          float64 `json:"finalScore"`
}

type Result struct {
	Routes               []Route      `json:"routes"`
	TotalCost            float64      `json:"totalCost"`
	TotalDistance        float64      `json:"totalDistance"`
	TotalTime            float64      `json:"totalTime"`
	TotalFuelConsumption float64      `json:"totalFuelConsumption"`
	AverageUtilization   float64      `json:"averageUtilization"`
	Algorithm            string       `json:"algorithm"`
	ExecutionTimeMs      int64        `json:"executionTime"`
	Improvement          Improvement  `json:"improvement"`
	Unassigned           []Unassigned `json:"unassigned"`
	Warnings             []string     `json:"warnings,omitempty"`
	Stats                Stats        `json:"stats"`
}

// Algorithm is the label every Result carries.
const Algorithm = "greedy-construction+local-search(2opt,relocate,3opt)"

// aggregate rolls the final solution up into a Result and compares it with
// the baseline. Only routes that serve customers are reported.
func aggregate(final, baseline Solution, unassigned []Unassigned, started time.Time) Result {
	t, b := final.Totals(), baseline.Totals()
	if unassigned == nil {
		unassigned = []Unassigned{}
	}
	return Result{
		Routes:               final.Served(),
		TotalCost:            t.Cost,
		TotalDistance:        t.Distance,
		TotalTime:            t.Time,
		TotalFuelConsumption: t.Fuel,
		AverageUtilization:   final.AverageUtilization(),
		Algorithm:            Algorithm,
		ExecutionTimeMs:      time.Since(started).Milliseconds(),
		Improvement: Improvement{
			CostReduction:     reduction(b.Cost, t.Cost),
			DistanceReduction: reduction(b.Distance, t.Distance),
			TimeReduction:     reduction(b.Time, t.Time),
		},
		Unassigned: unassigned,
	}
}

func reduction(before, after float64) float64 {
	if before <= 0 {
		return 0
	}
	return (before - after) / before * 100
}
