package routeopt

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Annealing is the metaheuristic solver: greedy nearest-arc construction
// followed by 2-opt and or-opt local search under a simulated-annealing
// acceptance rule. The wall-clock budget is a hard bound; the best order
// found so far is always returned, never "no solution".
type Annealing struct {
	Budget      time.Duration
	Seed        int64
	InitialTemp float64
	Cooling     float64
}

func NewAnnealing(budget time.Duration) *Annealing {
	if budget <= 0 {
		budget = 30 * time.Second
	}
	return &Annealing{Budget: budget, InitialTemp: 1.0, Cooling: 0.995}
}

func (a *Annealing) Name() string { return "annealing" }

func (a *Annealing) Solve(ctx context.Context, matrix [][]float64) []int {
	n := len(matrix) - 1
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []int{0}
	}
	seed := a.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	best := nearestArcSeed(matrix)
	bestCost := openPathCost(matrix, best)
	curr := append([]int(nil), best...)
	currCost := bestCost

	temp := a.InitialTemp
	if temp <= 0 {
		temp = 1.0
	}
	cool := a.Cooling
	if cool <= 0 || cool >= 1 {
		cool = 0.995
	}

	deadline := time.Now().Add(a.Budget)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		cand := neighbor(curr, rng)
		candCost := openPathCost(matrix, cand)
		delta := candCost - currCost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			currCost = candCost
			if currCost+1e-9 < bestCost {
				best = append(best[:0], curr...)
				bestCost = currCost
			}
		}
		temp *= cool
	}
	return best
}

// nearestArcSeed builds the initial order by repeatedly walking to the
// closest unvisited stop. Ties resolve to the lowest stop index so the seed
// is deterministic and preserves input order between co-located stops.
func nearestArcSeed(matrix [][]float64) []int {
	n := len(matrix) - 1
	visited := make([]bool, n)
	order := make([]int, 0, n)
	at := 0 // matrix row: origin
	for len(order) < n {
		next := -1
		nextDist := math.MaxFloat64
		for i := 0; i < n; i++ {
			if visited[i] {
				continue
			}
			if d := matrix[at][i+1]; d < nextDist {
				next = i
				nextDist = d
			}
		}
		if next == -1 {
			break
		}
		visited[next] = true
		order = append(order, next)
		at = next + 1
	}
	return order
}

// neighbor produces a candidate order by either reversing a segment (2-opt)
// or relocating a single stop (or-opt).
func neighbor(order []int, rng *rand.Rand) []int {
	out := append([]int(nil), order...)
	n := len(out)
	if n < 2 {
		return out
	}
	if rng.Intn(2) == 0 {
		i := rng.Intn(n - 1)
		k := i + 1 + rng.Intn(n-i-1)
		for a, b := i, k; a < b; a, b = a+1, b-1 {
			out[a], out[b] = out[b], out[a]
		}
		return out
	}
	i := rng.Intn(n)
	stop := out[i]
	out = append(out[:i], out[i+1:]...)
	j := rng.Intn(len(out) + 1)
	out = append(out[:j], append([]int{stop}, out[j:]...)...)
	return out
}
