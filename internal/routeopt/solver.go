// Package routeopt computes per-technician visiting orders: a single-vehicle
// open-path routing problem, one instance per technician per day.
package routeopt

import (
	"context"
	"sort"

	"fieldops/internal/geo"
)

// Solver orders stops given a distance matrix. Row and column 0 is the
// technician's start location; entries 1..n are the stops in input order.
// The returned slice is a permutation of 0..n-1 stop indices.
type Solver interface {
	Name() string
	Solve(ctx context.Context, matrix [][]float64) []int
}

// GreedyProximity is the fallback strategy: stops sorted by straight-line
// distance from the start, ascending. Stops with unknown distance carry the
// sentinel value and sort last; the stable sort keeps their relative input
// order, which tests and operators rely on.
type GreedyProximity struct{}

func (GreedyProximity) Name() string { return "greedy_proximity" }

func (GreedyProximity) Solve(_ context.Context, matrix [][]float64) []int {
	n := len(matrix) - 1
	if n <= 0 {
		return nil
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return matrix[0][order[i]+1] < matrix[0][order[j]+1]
	})
	return order
}

// openPathCost is the travel cost of visiting stops in the given order,
// starting from the origin, no return leg. Sentinel legs are excluded so one
// unlocatable stop cannot drown out the real comparison.
func openPathCost(matrix [][]float64, order []int) float64 {
	if len(order) == 0 {
		return 0
	}
	total := 0.0
	if d := matrix[0][order[0]+1]; d < geo.UnknownDistance {
		total += d
	}
	for i := 0; i < len(order)-1; i++ {
		if d := matrix[order[i]+1][order[i+1]+1]; d < geo.UnknownDistance {
			total += d
		}
	}
	return total
}
