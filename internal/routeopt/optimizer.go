package routeopt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fieldops/internal/geo"
	"fieldops/internal/model"
)

// Options tune conversions and advisory thresholds.
type Options struct {
	// MetersPerMinute converts leg distance into travel minutes.
	MetersPerMinute float64
	// LongLegMeters is the advisory threshold for SuggestImprovements.
	LongLegMeters float64
}

func (o *Options) defaults() {
	if o.MetersPerMinute <= 0 {
		o.MetersPerMinute = 100
	}
	if o.LongLegMeters <= 0 {
		o.LongLegMeters = 10000
	}
}

// Optimizer turns a technician's work orders for one day into an ordered
// Route. The solver is injected at construction; degenerate inputs skip it
// and use the greedy fallback directly.
type Optimizer struct {
	distance geo.Provider
	solver   Solver
	fallback GreedyProximity
	opts     Options
	log      zerolog.Logger
}

func NewOptimizer(distance geo.Provider, solver Solver, opts Options, log zerolog.Logger) *Optimizer {
	opts.defaults()
	if solver == nil {
		solver = GreedyProximity{}
	}
	return &Optimizer{distance: distance, solver: solver, opts: opts, log: log}
}

// Optimize computes the visiting order for the technician's work orders on
// the given date. It returns the new Route plus per-order copies carrying
// their sequence index; statuses are never touched here. Zero work orders
// yield an empty route, not an error. The only error path is a solver
// violating the permutation contract, which is a bug, not an operating
// condition.
func (o *Optimizer) Optimize(ctx context.Context, tech *model.Technician, orders []*model.WorkOrder, date string) (model.Route, []model.WorkOrder, error) {
	route := model.Route{
		ID:           uuid.New().String(),
		TechnicianID: tech.ID,
		Date:         date,
		WorkOrderIDs: []string{},
		Status:       model.RoutePlanned,
		CreatedAt:    time.Now().UTC(),
	}
	if len(orders) == 0 {
		return route, nil, nil
	}
	route.OrgID = orders[0].OrgID

	points := make([]*model.Coordinate, 0, len(orders)+1)
	points = append(points, tech.Location)
	locatable := 0
	for _, wo := range orders {
		points = append(points, wo.Location)
		if wo.Location != nil {
			locatable++
		}
	}
	matrix := o.distance.Matrix(ctx, points)

	solver := o.solver
	if locatable <= 1 {
		solver = o.fallback
	}
	order := solver.Solve(ctx, matrix)
	if !isPermutation(order, len(orders)) {
		return model.Route{}, nil, fmt.Errorf("solver %s returned invalid order for %d stops", solver.Name(), len(orders))
	}

	totalDist := openPathCost(matrix, order)
	durationMin := totalDist / o.opts.MetersPerMinute
	sequenced := make([]model.WorkOrder, 0, len(order))
	for seq, idx := range order {
		cp := *orders[idx]
		cp.SequenceIndex = seq
		sequenced = append(sequenced, cp)
		route.WorkOrderIDs = append(route.WorkOrderIDs, cp.ID)
		durationMin += float64(cp.EstimatedDurationMin)
	}
	route.TotalDistanceM = totalDist
	route.TotalDuration = durationMin

	o.log.Debug().
		Str("technician", tech.ID).
		Str("date", date).
		Int("stops", len(order)).
		Float64("distanceM", totalDist).
		Str("solver", solver.Name()).
		Msg("route optimized")
	return route, sequenced, nil
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

// Finding kinds reported by SuggestImprovements.
const (
	FindingLongLeg      = "long_leg"
	FindingTimeConflict = "time_conflict"
)

// Finding is an advisory observation about a computed route. Findings are
// for operators; they never change the route.
type Finding struct {
	Kind            string  `json:"kind"`
	WorkOrderID     string  `json:"workOrderId"`
	NextWorkOrderID string  `json:"nextWorkOrderId,omitempty"`
	DistanceM       float64 `json:"distanceM,omitempty"`
	Detail          string  `json:"detail"`
}

// SuggestImprovements flags legs longer than the configured threshold and
// schedule overlaps between consecutive stops.
func (o *Optimizer) SuggestImprovements(ctx context.Context, route model.Route, orders []*model.WorkOrder) []Finding {
	byID := make(map[string]*model.WorkOrder, len(orders))
	for _, wo := range orders {
		byID[wo.ID] = wo
	}
	var findings []Finding
	for i := 0; i+1 < len(route.WorkOrderIDs); i++ {
		cur, next := byID[route.WorkOrderIDs[i]], byID[route.WorkOrderIDs[i+1]]
		if cur == nil || next == nil {
			continue
		}
		if cur.Location != nil && next.Location != nil {
			if d := o.distance.Distance(ctx, cur.Location, next.Location); d > o.opts.LongLegMeters && d < geo.UnknownDistance {
				findings = append(findings, Finding{
					Kind:            FindingLongLeg,
					WorkOrderID:     cur.ID,
					NextWorkOrderID: next.ID,
					DistanceM:       d,
					Detail:          fmt.Sprintf("leg %s -> %s is %.1f km", cur.ID, next.ID, d/1000),
				})
			}
		}
		if cur.ScheduledEnd != nil && next.ScheduledStart != nil && cur.ScheduledEnd.After(*next.ScheduledStart) {
			findings = append(findings, Finding{
				Kind:            FindingTimeConflict,
				WorkOrderID:     cur.ID,
				NextWorkOrderID: next.ID,
				Detail:          fmt.Sprintf("%s ends after %s starts", cur.ID, next.ID),
			})
		}
	}
	return findings
}
