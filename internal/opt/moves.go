package opt

import "slices"

// MoveKind names a neighborhood operator.
type MoveKind int

const (
	TwoOpt MoveKind = iota
	Relocate
	ThreeOpt
)

func (k MoveKind) String() string {
	switch k {
	case TwoOpt:
		return "2-opt"
	case Relocate:
		return "relocate"
	case ThreeOpt:
		return "3-opt"
	default:
		return "unknown"
	}
}

// Move describes one candidate change to a solution.
//
//	TwoOpt:   reverse Routes[Route].Customers[J..K]
//	Relocate: move Routes[Route].Customers[I] to the front of Routes[Target]
//	ThreeOpt: reverse [I,J) and [J,K) of Routes[Route]
type Move struct {
	Kind   MoveKind
	Route  int
	Target int
	I, J   int
	K      int
}

// apply returns the solution produced by m, or false when the move is out of
// range or leaves a touched route infeasible. s itself is never modified.
func (e evaluator) apply(s Solution, m Move) (Solution, bool) {
	if m.Route < 0 || m.Route >= len(s.Routes) {
		return s, false
	}
	switch m.Kind {
	case TwoOpt:
		r, ok := e.twoOpt(s.Routes[m.Route], m.J, m.K)
		if !ok {
			return s, false
		}
		return s.replace(m.Route, r), true
	case Relocate:
		return e.relocate(s, m.Route, m.I, m.Target)
	case ThreeOpt:
		r, ok := e.threeOpt(s.Routes[m.Route], m.I, m.J, m.K)
		if !ok {
			return s, false
		}
		return s.replace(m.Route, r), true
	}
	return s, false
}

func (e evaluator) twoOpt(r Route, j, k int) (Route, bool) {
	if j < 0 || k >= len(r.Customers) || j >= k {
		return r, false
	}
	seq := slices.Clone(r.Customers)
	slices.Reverse(seq[j : k+1])
	next := e.rebuild(r, seq)
	return next, e.acceptable(next)
}

// relocate moves one customer to the head of another route. Both resulting
// routes must pass the acceptance gate.
func (e evaluator) relocate(s Solution, src, i, dst int) (Solution, bool) {
	if dst < 0 || dst >= len(s.Routes) || src == dst {
		return s, false
	}
	from, to := s.Routes[src], s.Routes[dst]
	if i < 0 || i >= len(from.Customers) {
		return s, false
	}
	c := from.Customers[i]
	rest := slices.Delete(slices.Clone(from.Customers), i, i+1)
	head := append([]Customer{c}, to.Customers...)

	nf := e.rebuild(from, rest)
	nt := e.rebuild(to, head)
	if !e.acceptable(nf) || !e.acceptable(nt) {
		return s, false
	}
	routes := slices.Clone(s.Routes)
	routes[src], routes[dst] = nf, nt
	return Solution{Routes: routes}, true
}

func (e evaluator) threeOpt(r Route, i, j, k int) (Route, bool) {
	if i < 0 || !(i < j && j < k) || k > len(r.Customers) {
		return r, false
	}
	seq := slices.Clone(r.Customers)
	slices.Reverse(seq[i:j])
	slices.Reverse(seq[j:k])
	next := e.rebuild(r, seq)
	return next, e.acceptable(next)
}

// refineRoute tries every 3-opt segment pair on r and returns the best
// strictly improving variant.
func (e evaluator) refineRoute(r Route) (Route, bool) {
	best, bestScore := r, e.routeScore(r)
	improved := false
	n := len(r.Customers)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k <= n; k++ {
				cand, ok := e.threeOpt(r, i, j, k)
				if !ok {
					continue
				}
				if sc := e.routeScore(cand); sc < bestScore-scoreEps {
					best, bestScore, improved = cand, sc, true
				}
			}
		}
	}
	return best, improved
}
