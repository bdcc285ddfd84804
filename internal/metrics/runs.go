package metrics

import (
	"sync"
	"time"
)

// RunStats is the summary of the latest optimization run for a tenant.
type RunStats struct {
	ResultID            string    `json:"resultId,omitempty"`
	FinishedAt          time.Time `json:"finishedAt"`
	DurationMs          int64     `json:"durationMs"`
	Iterations          int       `json:"iterations"`
	Improvements        int       `json:"improvements"`
	CandidatesEvaluated int       `json:"candidatesEvaluated"`
	BaselineScore       float64   `json:"baselineScore"`
	FinalScore          float64   `json:"finalScore"`
	Unassigned          int       `json:"unassigned"`
	Warnings            []string  `json:"warnings,omitempty"`
}

// Runs keeps the latest RunStats per tenant.
type Runs struct {
	mu    sync.Mutex
	stats map[string]RunStats
}

func NewRuns() *Runs {
	return &Runs{stats: map[string]RunStats{}}
}

func (r *Runs) Record(tenant string, s RunStats) {
	r.mu.Lock()
	r.stats[tenant] = s
	r.mu.Unlock()
}

func (r *Runs) Latest(tenant string) (RunStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[tenant]
	return s, ok
}
