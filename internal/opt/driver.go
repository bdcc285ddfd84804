package opt

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// Phase is a state of one optimization run. Runs move strictly forward.
type Phase int

const (
	PhaseBuild Phase = iota
	PhaseSearch
	PhaseRefine
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseBuild:
		return "BUILD"
	case PhaseSearch:
		return "SEARCH"
	case PhaseRefine:
		return "REFINE"
	case PhaseDone:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

const (
	DefaultIterations   = 1000
	DefaultRefinePasses = 100
)

// Options tunes a run. Zero values select defaults.
type Options struct {
	Iterations   int           `json:"iterations,omitempty" yaml:"iterations"`
	RefinePasses int           `json:"refinePasses,omitempty" yaml:"refinePasses"`
	Workers      int           `json:"workers,omitempty" yaml:"workers"`
	SpeedKmh     float64       `json:"speedKmh,omitempty" yaml:"speedKmh"`
	TimeBudget   time.Duration `json:"timeBudget,omitempty" yaml:"timeBudget"`
	// StopWhenStalled ends SEARCH at the first iteration without improvement
	// instead of spending the whole iteration budget.
	StopWhenStalled bool         `json:"stopWhenStalled,omitempty" yaml:"stopWhenStalled"`
	Logger          *slog.Logger `json:"-" yaml:"-"`
}

func (o Options) withDefaults() Options {
	if o.Iterations <= 0 {
		o.Iterations = DefaultIterations
	}
	if o.RefinePasses <= 0 {
		o.RefinePasses = DefaultRefinePasses
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.SpeedKmh <= 0 {
		o.SpeedKmh = DefaultSpeedKmh
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Optimizer runs BUILD, SEARCH, REFINE and DONE over a Problem. It keeps no
// state between calls and may be shared by concurrent callers.
type Optimizer struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Optimizer {
	opts = opts.withDefaults()
	return &Optimizer{opts: opts, log: opts.Logger}
}

// Options returns the effective options, defaults applied.
func (o *Optimizer) Options() Options { return o.opts }

var errBudgetExhausted = errors.New("optimization time budget exhausted")

// Optimize solves p. Invalid input yields a *ConfigError before any work is
// done. When the time budget runs out the best solution so far is returned
// with a warning and a nil error. When ctx is cancelled by the caller the best
// solution so far is returned together with the wrapped context error; the
// Result is zero if construction had not finished.
func (o *Optimizer) Optimize(ctx context.Context, p Problem) (Result, error) {
	started := time.Now()
	if err := Validate(p); err != nil {
		return Result{}, err
	}

	switch {
	case len(p.Customers) == 0:
		res := aggregate(Solution{}, Solution{}, nil, started)
		res.Warnings = []string{"no customers to route"}
		return res, nil
	case len(p.Vehicles) == 0:
		res := aggregate(Solution{}, Solution{}, classify(p.Customers, nil), started)
		res.Warnings = []string{"no vehicles available"}
		return res, nil
	}

	if o.opts.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, o.opts.TimeBudget, errBudgetExhausted)
		defer cancel()
	}

	e := evaluator{geo: Geo{SpeedKmh: o.opts.SpeedKmh}, cons: p.Constraints, obj: p.Objectives}
	log := o.log.With("vehicles", len(p.Vehicles), "customers", len(p.Customers))

	log.Debug("optimizer phase", "phase", PhaseBuild.String())
	baseline, unassigned, err := e.build(ctx, p.Vehicles, p.Customers)
	if err != nil {
		return Result{}, buildInterrupted(ctx)
	}

	r := run{e: e, opts: o.opts, log: log, cur: baseline, score: e.score(baseline)}
	r.stats.BaselineScore = r.score
	err = r.search(ctx)
	if err == nil && !r.stopped {
		err = r.refine(ctx)
	}

	log.Debug("optimizer phase", "phase", PhaseDone.String())
	res := aggregate(r.cur, baseline, unassigned, started)
	r.stats.FinalScore = r.score
	res.Stats = r.stats
	res.Warnings = r.warnings
	if n := len(unassigned); n > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d customer(s) could not be routed", n))
	}
	log.Info("optimization finished",
		"routes", len(res.Routes),
		"unassigned", len(unassigned),
		"iterations", r.stats.Iterations,
		"improvements", r.stats.Improvements,
		"score", r.score,
		"elapsed_ms", res.ExecutionTimeMs)
	return res, err
}

// buildInterrupted reports a BUILD phase cut short. No plan exists yet, so
// even a spent time budget is an error; the chain keeps ctx.Err() so callers
// can tell a deadline from a cancellation.
func buildInterrupted(ctx context.Context) error {
	err, cause := ctx.Err(), context.Cause(ctx)
	if cause != nil && cause != err {
		return errors.Wrapf(err, "build initial solution: %v", cause)
	}
	return errors.Wrap(err, "build initial solution")
}

// run is the mutable bookkeeping of one Optimize call. The solutions it
// points to are never modified; cur is only ever replaced.
type run struct {
	e        evaluator
	opts     Options
	log      *slog.Logger
	cur      Solution
	score    float64
	stats    Stats
	warnings []string
	stopped  bool
}

// interrupted reports whether the run must stop. A spent time budget is a
// normal stop; any other cancellation is returned as an error.
func (r *run) interrupted(ctx context.Context, phase Phase) (bool, error) {
	if ctx.Err() == nil {
		return false, nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, errBudgetExhausted) {
		r.warnings = append(r.warnings, "time budget exhausted during "+phase.String())
		r.stopped = true
		r.log.Warn("optimizer stopped early", "phase", phase.String(), "cause", cause)
		return true, nil
	}
	return true, errors.Wrapf(cause, "optimizer cancelled during %s", phase)
}

func (r *run) search(ctx context.Context) error {
	r.log.Debug("optimizer phase", "phase", PhaseSearch.String(), "iterations", r.opts.Iterations)
	for i := 0; i < r.opts.Iterations; i++ {
		if stop, err := r.interrupted(ctx, PhaseSearch); stop {
			return err
		}
		best, evaluated, err := r.e.bestNeighbor(ctx, r.cur, r.opts.Workers)
		if err != nil {
			if stop, ierr := r.interrupted(ctx, PhaseSearch); stop {
				return ierr
			}
			return errors.Wrap(err, "evaluate neighborhood")
		}
		r.stats.Iterations++
		r.stats.CandidatesEvaluated += evaluated
		if best.ok && best.score < r.score-scoreEps {
			r.cur, r.score = best.sol, best.score
			r.stats.Improvements++
			continue
		}
		if r.opts.StopWhenStalled {
			break
		}
	}
	return nil
}

func (r *run) refine(ctx context.Context) error {
	r.log.Debug("optimizer phase", "phase", PhaseRefine.String(), "passes", r.opts.RefinePasses)
	for pass := 0; pass < r.opts.RefinePasses; pass++ {
		if stop, err := r.interrupted(ctx, PhaseRefine); stop {
			return err
		}
		improved := false
		for i, route := range r.cur.Routes {
			if next, ok := r.e.refineRoute(route); ok {
				r.cur = r.cur.replace(i, next)
				improved = true
			}
		}
		r.stats.RefinePasses++
		if !improved {
			break
		}
		r.score = r.e.score(r.cur)
	}
	return nil
}
