package opt

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	e := testEvaluator()
	r := e.route(vehicle("v1", 0, 0).Profile(), []Customer{customer("a", 0.1, 0, 0, 0, 500)})
	s := Solution{Routes: []Route{r}}

	assert.InDelta(t, r.TotalCost, Score(s, Objectives{MinimizeCost: true}), 1e-9)
	assert.InDelta(t, r.TotalDistance+r.TotalTime, Score(s, Objectives{MinimizeDistance: true, MinimizeTime: true}), 1e-9)
	assert.InDelta(t, -s.AverageUtilization(), Score(s, Objectives{MaximizeUtilization: true}), 1e-9)
	assert.Equal(t,
		Score(s, Objectives{MinimizeCost: true}),
		Score(s, Objectives{MinimizeCost: true, RespectTimeWindows: true}))
}

func TestTwoOptDoesNotMutate(t *testing.T) {
	e := testEvaluator()
	cs := []Customer{
		customer("a", 0.03, 0, 0, 0, 10),
		customer("b", 0.01, 0, 0, 0, 10),
		customer("c", 0.02, 0, 0, 0, 10),
	}
	r := e.route(vehicle("v1", 0, 0).Profile(), cs)
	s := Solution{Routes: []Route{r}}

	next, ok := e.apply(s, Move{Kind: TwoOpt, Route: 0, J: 0, K: 1})
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a", "c"}, next.Routes[0].CustomerIDs())
	assert.Equal(t, []string{"a", "b", "c"}, s.Routes[0].CustomerIDs())
	assert.Equal(t, []string{"a", "b", "c"}, ids(cs))

	_, ok = e.apply(s, Move{Kind: TwoOpt, Route: 0, J: 1, K: 3})
	assert.False(t, ok)
	_, ok = e.apply(s, Move{Kind: TwoOpt, Route: 2})
	assert.False(t, ok)
}

func TestRelocateToFront(t *testing.T) {
	e := testEvaluator()
	src := e.route(vehicle("v1", 0, 0).Profile(), []Customer{customer("a", 0.01, 0, 0, 0, 10), customer("b", 0.02, 0, 0, 0, 10)})
	dst := e.route(vehicle("v2", 0, 0.1).Profile(), []Customer{customer("c", 0, 0.11, 0, 0, 10)})
	s := Solution{Routes: []Route{src, dst}}

	next, ok := e.apply(s, Move{Kind: Relocate, Route: 0, Target: 1, I: 1})
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, next.Routes[0].CustomerIDs())
	assert.Equal(t, []string{"b", "c"}, next.Routes[1].CustomerIDs())
	assert.Equal(t, []string{"a", "b"}, s.Routes[0].CustomerIDs())
	assert.Equal(t, []string{"c"}, s.Routes[1].CustomerIDs())

	_, ok = e.apply(s, Move{Kind: Relocate, Route: 0, Target: 0, I: 0})
	assert.False(t, ok)
}

func TestRelocateRespectsTargetCapacity(t *testing.T) {
	e := testEvaluator()
	src := e.route(vehicle("v1", 0, 0).Profile(), []Customer{customer("a", 0.01, 0, 0, 0, 600)})
	dst := e.route(vehicle("v2", 0, 0).Profile(), []Customer{customer("b", 0.02, 0, 0, 0, 600)})
	_, ok := e.apply(Solution{Routes: []Route{src, dst}}, Move{Kind: Relocate, Route: 0, Target: 1, I: 0})
	assert.False(t, ok)
}

func TestThreeOptAndRefine(t *testing.T) {
	e := testEvaluator()
	e.obj = Objectives{MinimizeDistance: true}
	// a zig-zag along one meridian; sorted order is optimal
	cs := []Customer{
		customer("d", 0.04, 0, 0, 0, 1),
		customer("b", 0.02, 0, 0, 0, 1),
		customer("c", 0.03, 0, 0, 0, 1),
		customer("a", 0.01, 0, 0, 0, 1),
	}
	r := e.route(vehicle("v1", 0, 0).Profile(), cs)

	moved, ok := e.threeOpt(r, 0, 2, 4)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "d", "a", "c"}, moved.CustomerIDs())

	best := r
	for {
		next, improved := e.refineRoute(best)
		if !improved {
			break
		}
		assert.Less(t, e.routeScore(next), e.routeScore(best))
		best = next
	}
	assert.Less(t, best.TotalDistance, r.TotalDistance)
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(cs))
}

func TestNeighborhoodSize(t *testing.T) {
	e := testEvaluator()
	mk := func(n int) Route {
		var cs []Customer
		for i := 0; i < n; i++ {
			cs = append(cs, customer(string(rune('a'+i)), 0.01*float64(i+1), 0, 0, 0, 1))
		}
		return e.route(vehicle("v", 0, 0).Profile(), cs)
	}
	s := Solution{Routes: []Route{mk(4), mk(3), mk(0)}}

	var twoOpt, relocate int
	for m := range neighborhood(s) {
		switch m.Kind {
		case TwoOpt:
			twoOpt++
		case Relocate:
			relocate++
		}
	}
	assert.Equal(t, 6+3, twoOpt)
	assert.Equal(t, 2*4+2*3, relocate)

	var first []Move
	for m := range neighborhood(s) {
		first = append(first, m)
		if len(first) == 3 {
			break
		}
	}
	assert.Len(t, first, 3)
}

func TestBestNeighborIndependentOfWorkers(t *testing.T) {
	p := randomProblem(21, 3, 15)
	e := evaluator{geo: Geo{SpeedKmh: DefaultSpeedKmh}, cons: p.Constraints, obj: p.Objectives}
	sol, _, err := e.build(context.Background(), p.Vehicles, p.Customers)
	require.NoError(t, err)

	want, n, err := e.bestNeighbor(context.Background(), sol, 1)
	require.NoError(t, err)
	total := 0
	for range neighborhood(sol) {
		total++
	}
	assert.Equal(t, total, n)

	for _, w := range []int{2, 5, 16} {
		got, _, err := e.bestNeighbor(context.Background(), sol, w)
		require.NoError(t, err)
		assert.Equal(t, want.ok, got.ok)
		assert.Equal(t, want.seq, got.seq)
		assert.Equal(t, want.move, got.move)
	}
}

func TestBestNeighborCancelled(t *testing.T) {
	p := randomProblem(22, 3, 15)
	e := evaluator{geo: Geo{SpeedKmh: DefaultSpeedKmh}, cons: p.Constraints, obj: p.Objectives}
	sol, _, err := e.build(context.Background(), p.Vehicles, p.Customers)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = e.bestNeighbor(ctx, sol, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCandidateOrdering(t *testing.T) {
	none := candidate{}
	a := candidate{seq: 4, score: 10, ok: true}
	b := candidate{seq: 2, score: 10, ok: true}
	c := candidate{seq: 9, score: 5, ok: true}
	assert.True(t, a.better(none))
	assert.False(t, none.better(a))
	assert.True(t, b.better(a))
	assert.True(t, c.better(b))

	cs := []candidate{a, c, b}
	slices.SortFunc(cs, func(x, y candidate) int {
		if x.better(y) {
			return -1
		}
		return 1
	})
	assert.Equal(t, 9, cs[0].seq)
}
