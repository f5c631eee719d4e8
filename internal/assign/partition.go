package assign

import (
	"context"
	"sort"

	"fieldops/internal/model"
)

// Partition distributes work orders among technicians for one planning day
// using score-based matching. Orders are handled most urgent first; each goes
// to the best-scoring eligible technician with remaining daily capacity.
// Orders nobody can take are returned separately, not dropped.
//
// Input snapshots are not mutated: scoring against the evolving in-run load
// works on technician copies.
func (e *Engine) Partition(ctx context.Context, orders []*model.WorkOrder, techs []*model.Technician) (map[string][]*model.WorkOrder, []*model.WorkOrder) {
	queue := make([]*model.WorkOrder, len(orders))
	copy(queue, orders)
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].Priority.Rank() != queue[j].Priority.Rank() {
			return queue[i].Priority.Rank() > queue[j].Priority.Rank()
		}
		return queue[i].ID < queue[j].ID
	})

	// Working copies so the workload term tracks assignments made this run.
	working := make([]*model.Technician, 0, len(techs))
	for _, t := range techs {
		cp := *t
		working = append(working, &cp)
	}

	buckets := map[string][]*model.WorkOrder{}
	var unassigned []*model.WorkOrder
	for _, wo := range queue {
		eligible := Eligible(working, wo.RequiredSkills)
		withRoom := eligible[:0:0]
		for _, tech := range eligible {
			if len(buckets[tech.ID]) < tech.MaxJobsPerDay {
				withRoom = append(withRoom, tech)
			}
		}
		if len(withRoom) == 0 {
			unassigned = append(unassigned, wo)
			continue
		}
		ranked := e.scorer.Rank(ctx, wo, withRoom)
		best := ranked[0].Technician
		buckets[best.ID] = append(buckets[best.ID], wo)
		best.ActiveJobs++
	}
	return buckets, unassigned
}
