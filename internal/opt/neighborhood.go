package opt

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

// neighborhood enumerates every 2-opt move of every route, then every
// relocation of a customer into another route. The order is fixed for a
// given solution, which keeps tie-breaking reproducible.
func neighborhood(s Solution) iter.Seq[Move] {
	return func(yield func(Move) bool) {
		for ri, r := range s.Routes {
			n := len(r.Customers)
			for j := 0; j < n; j++ {
				for k := j + 1; k < n; k++ {
					if !yield(Move{Kind: TwoOpt, Route: ri, J: j, K: k}) {
						return
					}
				}
			}
		}
		for src, r := range s.Routes {
			for dst := range s.Routes {
				if dst == src {
					continue
				}
				for i := range r.Customers {
					if !yield(Move{Kind: Relocate, Route: src, Target: dst, I: i}) {
						return
					}
				}
			}
		}
	}
}

type candidate struct {
	seq   int
	move  Move
	sol   Solution
	score float64
	ok    bool
}

// better orders candidates by score, then by enumeration position.
func (c candidate) better(o candidate) bool {
	if !o.ok {
		return c.ok
	}
	if !c.ok {
		return false
	}
	if c.score != o.score {
		return c.score < o.score
	}
	return c.seq < o.seq
}

type job struct {
	seq  int
	move Move
}

// bestNeighbor evaluates the neighborhood of s on a fixed pool of workers and
// returns the best feasible neighbor together with the number of candidates
// evaluated. Each worker keeps its own best; they are merged once all workers
// have returned, so the choice does not depend on scheduling.
func (e evaluator) bestNeighbor(ctx context.Context, s Solution, workers int) (candidate, int, error) {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, workers*4)

	g.Go(func() error {
		defer close(jobs)
		seq := 0
		for m := range neighborhood(s) {
			select {
			case jobs <- job{seq: seq, move: m}:
			case <-gctx.Done():
				return gctx.Err()
			}
			seq++
		}
		return nil
	})

	bests := make([]candidate, workers)
	counts := make([]int, workers)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for jb := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				counts[w]++
				next, ok := e.apply(s, jb.move)
				if !ok {
					continue
				}
				c := candidate{seq: jb.seq, move: jb.move, sol: next, score: e.score(next), ok: true}
				if c.better(bests[w]) {
					bests[w] = c
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return candidate{}, 0, err
	}

	var best candidate
	evaluated := 0
	for w := range bests {
		evaluated += counts[w]
		if bests[w].better(best) {
			best = bests[w]
		}
	}
	return best, evaluated, nil
}
