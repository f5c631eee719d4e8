package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fieldops/internal/assign"
	"fieldops/internal/geo"
	"fieldops/internal/metrics"
	"fieldops/internal/model"
	"fieldops/internal/routeopt"
	"fieldops/internal/store"
)

// Orchestrator runs the daily planning cycle: partition the day's work
// orders among available technicians, optimize each technician's route in
// parallel, and persist the results per technician so one bad write never
// takes down the whole batch.
type Orchestrator struct {
	store  store.Store
	engine *assign.Engine
	opt    *routeopt.Optimizer
	cache  *geo.Cached // nil when distances are uncached
	solver string
	log    zerolog.Logger
}

func NewOrchestrator(st store.Store, engine *assign.Engine, opt *routeopt.Optimizer, cache *geo.Cached, solverName string, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{store: st, engine: engine, opt: opt, cache: cache, solver: solverName, log: log}
}

// TechnicianPlan is one technician's slice of a RunReport. Err is set when
// optimization or persistence failed for this technician only.
type TechnicianPlan struct {
	TechnicianID string
	Route        model.Route
	Stops        int
	Err          error
}

// RunReport summarizes one daily optimization run. Plans are ordered by
// technician ID so repeated runs over the same snapshot compare equal.
type RunReport struct {
	OrgID      string
	Date       string
	Planned    int
	Unassigned []string
	Plans      []TechnicianPlan
	Elapsed    time.Duration
}

// Failed returns the plans that did not persist.
func (r *RunReport) Failed() []TechnicianPlan {
	var out []TechnicianPlan
	for _, p := range r.Plans {
		if p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}

// RunDailyOptimization plans routes for every available technician on the
// given date. Per-technician failures are reported, not fatal; only invariant
// violations in a produced route abort the run. Empty inputs produce an empty
// report and no error.
func (o *Orchestrator) RunDailyOptimization(ctx context.Context, orgID, date string) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{OrgID: orgID, Date: date}

	orders, err := o.store.ListWorkOrdersForDate(ctx, orgID, date, model.StatusScheduled)
	if err != nil {
		metrics.BatchRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load work orders: %w", err)
	}
	techs, err := o.store.ListAvailableTechnicians(ctx, orgID)
	if err != nil {
		metrics.BatchRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load technicians: %w", err)
	}
	if len(orders) == 0 || len(techs) == 0 {
		report.Elapsed = time.Since(start)
		metrics.BatchRuns.WithLabelValues("ok").Inc()
		o.log.Info().Str("org", orgID).Str("date", date).
			Int("orders", len(orders)).Int("technicians", len(techs)).
			Msg("nothing to plan")
		return report, nil
	}

	// Pre-warm the shared distance cache so the parallel phase only reads.
	if o.cache != nil {
		points := make([]*model.Coordinate, 0, len(orders)+len(techs))
		for _, t := range techs {
			points = append(points, t.Location)
		}
		for _, wo := range orders {
			points = append(points, wo.Location)
		}
		o.cache.Warm(ctx, points)
	}

	buckets, unassigned := o.engine.Partition(ctx, orders, techs)
	for _, wo := range unassigned {
		report.Unassigned = append(report.Unassigned, wo.ID)
	}

	// techs is sorted by ID; keep the plan order stable the same way.
	var planned []*model.Technician
	for _, tech := range techs {
		if len(buckets[tech.ID]) > 0 {
			planned = append(planned, tech)
		}
	}
	report.Plans = make([]TechnicianPlan, len(planned))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fatalErr error
	)
	for i, tech := range planned {
		wg.Add(1)
		go func(i int, tech *model.Technician) {
			defer wg.Done()
			plan := TechnicianPlan{TechnicianID: tech.ID}
			defer func() { report.Plans[i] = plan }()

			if err := ctx.Err(); err != nil {
				plan.Err = err
				return
			}
			route, seq, err := o.planTechnician(ctx, tech, buckets[tech.ID], date)
			if err != nil {
				mu.Lock()
				if fatalErr == nil {
					fatalErr = err
				}
				mu.Unlock()
				plan.Err = err
				return
			}
			plan.Route = route
			plan.Stops = len(seq)
			plan.Err = o.persistPlan(ctx, route, seq)
		}(i, tech)
	}
	wg.Wait()

	if fatalErr != nil {
		metrics.BatchRuns.WithLabelValues("error").Inc()
		return nil, fatalErr
	}

	outcome := "ok"
	for _, p := range report.Plans {
		if p.Err == nil {
			report.Planned += p.Stops
		} else {
			outcome = "partial"
			o.log.Error().Err(p.Err).Str("technician", p.TechnicianID).Msg("plan not persisted")
		}
	}
	report.Elapsed = time.Since(start)
	metrics.BatchRuns.WithLabelValues(outcome).Inc()
	o.log.Info().Str("org", orgID).Str("date", date).
		Int("planned", report.Planned).Int("unassigned", len(report.Unassigned)).
		Int("technicians", len(report.Plans)).Dur("elapsed", report.Elapsed).
		Msg("daily optimization finished")
	return report, nil
}

// planTechnician reassigns the bucket to the technician, optimizes the route,
// and checks the route invariants. Any error here is a planner bug and aborts
// the run.
func (o *Orchestrator) planTechnician(ctx context.Context, tech *model.Technician, bucket []*model.WorkOrder, date string) (model.Route, []model.WorkOrder, error) {
	assigned := make([]*model.WorkOrder, 0, len(bucket))
	for _, wo := range bucket {
		cp := *wo
		cp.AssignedTechnicianIDs = []string{tech.ID}
		assigned = append(assigned, &cp)
	}

	t0 := time.Now()
	route, seq, err := o.opt.Optimize(ctx, tech, assigned, date)
	metrics.SolverDuration.WithLabelValues(o.solver).Observe(time.Since(t0).Seconds())
	if err != nil {
		return model.Route{}, nil, err
	}
	if err := verifyPlan(tech.ID, route, seq); err != nil {
		return model.Route{}, nil, err
	}
	metrics.RouteDistance.Observe(route.TotalDistanceM / 1000)
	return route, seq, nil
}

// verifyPlan rejects routes that visit a work order twice or carry an order
// assigned to a different technician.
func verifyPlan(technicianID string, route model.Route, seq []model.WorkOrder) error {
	seen := map[string]bool{}
	for _, id := range route.WorkOrderIDs {
		if seen[id] {
			return fmt.Errorf("route %s visits work order %s twice", route.ID, id)
		}
		seen[id] = true
	}
	for i := range seq {
		if seq[i].PrimaryTechnicianID() != technicianID {
			return fmt.Errorf("route %s for technician %s contains work order %s assigned to %q",
				route.ID, technicianID, seq[i].ID, seq[i].PrimaryTechnicianID())
		}
	}
	return nil
}

func (o *Orchestrator) persistPlan(ctx context.Context, route model.Route, seq []model.WorkOrder) error {
	for i := range seq {
		if err := o.store.UpdateWorkOrder(ctx, &seq[i]); err != nil {
			return fmt.Errorf("update work order %s: %w", seq[i].ID, err)
		}
		// Assignment records back the derived workload counts; they must
		// track the technician list written above.
		if err := o.store.ReplaceAssignments(ctx, &seq[i]); err != nil {
			return fmt.Errorf("reconcile assignments for %s: %w", seq[i].ID, err)
		}
	}
	if err := o.store.SaveRoute(ctx, &route); err != nil {
		return fmt.Errorf("save route %s: %w", route.ID, err)
	}
	return nil
}

// Stats aggregates persisted routes over a date range.
type Stats struct {
	Routes           int     `json:"routes"`
	Stops            int     `json:"stops"`
	TotalDistanceM   float64 `json:"totalDistanceM"`
	TotalDurationMin float64 `json:"totalDurationMin"`
	AvgDistanceM     float64 `json:"avgDistanceM"`
	AvgDurationMin   float64 `json:"avgDurationMin"`
}

// Statistics summarizes the routes persisted for the organization between
// fromDate and toDate inclusive. An empty range yields zero values.
func (o *Orchestrator) Statistics(ctx context.Context, orgID, fromDate, toDate string) (Stats, error) {
	routes, err := o.store.ListRoutes(ctx, orgID, fromDate, toDate)
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, r := range routes {
		s.Routes++
		s.Stops += len(r.WorkOrderIDs)
		s.TotalDistanceM += r.TotalDistanceM
		s.TotalDurationMin += r.TotalDuration
	}
	if s.Routes > 0 {
		s.AvgDistanceM = s.TotalDistanceM / float64(s.Routes)
		s.AvgDurationMin = s.TotalDurationMin / float64(s.Routes)
	}
	return s, nil
}
