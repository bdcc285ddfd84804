package model

import (
	"time"

	"fleetroute/internal/opt"
)

// EventRouteOptimized is emitted once per successful optimization run.
const EventRouteOptimized = "route.optimized"

// OptimizeRequest is the body of POST /v1/optimize. The tenant always comes
// from the X-Tenant-Id header.
type OptimizeRequest struct {
	Vehicles    []opt.Vehicle     `json:"vehicles"`
	Customers   []opt.Customer    `json:"customers"`
	Objectives  opt.Objectives    `json:"objectives"`
	Constraints opt.Constraints   `json:"constraints"`
	Options     *OptimizerOptions `json:"options,omitempty"`
}

func (r OptimizeRequest) Problem() opt.Problem {
	return opt.Problem{
		Vehicles:    r.Vehicles,
		Customers:   r.Customers,
		Objectives:  r.Objectives,
		Constraints: r.Constraints,
	}
}

// OptimizerOptions overrides engine options. It is used both as the stored
// per-tenant configuration and as the per-request options block; unset fields
// leave the underlying value alone.
type OptimizerOptions struct {
	Iterations      int     `json:"iterations,omitempty" validate:"gte=0,lte=100000"`
	RefinePasses    int     `json:"refinePasses,omitempty" validate:"gte=0,lte=10000"`
	Workers         int     `json:"workers,omitempty" validate:"gte=0,lte=256"`
	SpeedKmh        float64 `json:"speedKmh,omitempty" validate:"gte=0,lte=200"`
	TimeBudgetMs    int     `json:"timeBudgetMs,omitempty" validate:"gte=0"`
	StopWhenStalled *bool   `json:"stopWhenStalled,omitempty"`
}

// Apply overlays o onto base.
func (o OptimizerOptions) Apply(base opt.Options) opt.Options {
	if o.Iterations > 0 {
		base.Iterations = o.Iterations
	}
	if o.RefinePasses > 0 {
		base.RefinePasses = o.RefinePasses
	}
	if o.Workers > 0 {
		base.Workers = o.Workers
	}
	if o.SpeedKmh > 0 {
		base.SpeedKmh = o.SpeedKmh
	}
	if o.TimeBudgetMs > 0 {
		base.TimeBudget = time.Duration(o.TimeBudgetMs) * time.Millisecond
	}
	if o.StopWhenStalled != nil {
		base.StopWhenStalled = *o.StopWhenStalled
	}
	return base
}

// StoredResult is a persisted optimization result.
type StoredResult struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	CreatedAt time.Time  `json:"createdAt"`
	Result    opt.Result `json:"result"`
}

// ResultSummary is the list view of a stored result.
type ResultSummary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Routes        int       `json:"routes"`
	Unassigned    int       `json:"unassigned"`
	TotalCost     float64   `json:"totalCost"`
	TotalDistance float64   `json:"totalDistance"`
}

func Summarize(r StoredResult) ResultSummary {
	return ResultSummary{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		Routes:        len(r.Result.Routes),
		Unassigned:    len(r.Result.Unassigned),
		TotalCost:     r.Result.TotalCost,
		TotalDistance: r.Result.TotalDistance,
	}
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url" validate:"required,url"`
	Events   []string `json:"events" validate:"required,min=1,dive,required"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// Wants reports whether the subscription listens for eventType.
func (s Subscription) Wants(eventType string) bool {
	for _, e := range s.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// WebhookDeliveryView is the admin listing shape of a queued webhook.
type WebhookDeliveryView struct {
	ID            string     `json:"id"`
	EventType     string     `json:"eventType"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	URL           string     `json:"url"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	ResponseCode  int        `json:"responseCode,omitempty"`
}
