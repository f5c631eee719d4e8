// Package assign matches pending work orders to technicians under the
// configured assignment policy.
package assign

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fieldops/internal/geo"
	"fieldops/internal/metrics"
	"fieldops/internal/model"
	"fieldops/internal/score"
)

// Rotation is the organization-wide round-robin cursor. It is explicit state
// handed in and out of the engine so the policy is reproducible from a known
// cursor instead of depending on live assignment history.
type Rotation struct {
	LastTechnicianID string `json:"lastTechnicianId"`
}

// Result carries everything a successful assignment produced: the chosen
// technician, the mutated work-order copy, the assignment record, and the
// advanced rotation cursor. The caller applies the changes; input snapshots
// are never written to.
type Result struct {
	Technician *model.Technician
	WorkOrder  model.WorkOrder
	Assignment model.Assignment
	Rotation   Rotation
}

type Engine struct {
	scorer   *score.Scorer
	distance geo.Provider
	log      zerolog.Logger
}

func NewEngine(scorer *score.Scorer, distance geo.Provider, log zerolog.Logger) *Engine {
	return &Engine{scorer: scorer, distance: distance, log: log}
}

// Eligible filters candidates to available technicians holding every required
// skill, sorted by ID so every policy sees the same stable order. A missing
// skill excludes the technician entirely; it is not a scoring penalty.
func Eligible(candidates []*model.Technician, required model.SkillSet) []*model.Technician {
	out := make([]*model.Technician, 0, len(candidates))
	for _, tech := range candidates {
		if tech.Availability != model.TechAvailable {
			continue
		}
		if !tech.Skills.ContainsAll(required) {
			continue
		}
		out = append(out, tech)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Assign picks a technician for the work order under the given policy.
// Candidates must already be filtered with Eligible. A nil return means no
// assignment was possible; that is a normal outcome and leaves the work order
// untouched for manual handling.
func (e *Engine) Assign(ctx context.Context, wo *model.WorkOrder, candidates []*model.Technician, logic model.AssignmentLogic, rot Rotation) *Result {
	if len(candidates) == 0 {
		e.log.Info().Str("workOrder", wo.ID).Msg("no eligible technician, leaving unassigned")
		metrics.Assignments.WithLabelValues(string(logic), "unassigned").Inc()
		return nil
	}
	stable := make([]*model.Technician, len(candidates))
	copy(stable, candidates)
	sort.Slice(stable, func(i, j int) bool { return stable[i].ID < stable[j].ID })

	var chosen *model.Technician
	switch logic {
	case model.LogicNearest:
		chosen = e.pickNearest(ctx, wo, stable)
	case model.LogicSkillMatch:
		chosen = pickSkillMatch(wo, stable)
	case model.LogicWorkload:
		chosen = pickWorkload(stable)
	case model.LogicRoundRobin:
		chosen = pickRoundRobin(stable, rot)
	default:
		// Unknown policy strings never error; first candidate in stable order.
		chosen = stable[0]
	}

	updated := *wo
	if updated.Status == model.StatusDraft {
		updated.Status = model.StatusAssigned
	}
	updated.AssignedTechnicianIDs = append(append([]string(nil), wo.AssignedTechnicianIDs...), chosen.ID)

	metrics.Assignments.WithLabelValues(string(logic), "assigned").Inc()
	return &Result{
		Technician: chosen,
		WorkOrder:  updated,
		Assignment: model.Assignment{
			ID:           uuid.New().String(),
			OrgID:        wo.OrgID,
			WorkOrderID:  wo.ID,
			TechnicianID: chosen.ID,
			CreatedAt:    time.Now().UTC(),
		},
		Rotation: Rotation{LastTechnicianID: chosen.ID},
	}
}

// pickNearest minimizes distance to the service location. Technicians with
// unknown location sort last via the sentinel distance but stay selectable.
func (e *Engine) pickNearest(ctx context.Context, wo *model.WorkOrder, stable []*model.Technician) *model.Technician {
	best := stable[0]
	bestDist := e.distance.Distance(ctx, best.Location, wo.Location)
	for _, tech := range stable[1:] {
		d := e.distance.Distance(ctx, tech.Location, wo.Location)
		if d < bestDist {
			best = tech
			bestDist = d
		}
	}
	return best
}

// pickSkillMatch maximizes the raw overlap count, not a ratio.
func pickSkillMatch(wo *model.WorkOrder, stable []*model.Technician) *model.Technician {
	best := stable[0]
	bestOverlap := best.Skills.Overlap(wo.RequiredSkills)
	for _, tech := range stable[1:] {
		if n := tech.Skills.Overlap(wo.RequiredSkills); n > bestOverlap {
			best = tech
			bestOverlap = n
		}
	}
	return best
}

func pickWorkload(stable []*model.Technician) *model.Technician {
	best := stable[0]
	for _, tech := range stable[1:] {
		if tech.ActiveJobs < best.ActiveJobs {
			best = tech
		}
	}
	return best
}

// pickRoundRobin selects the technician after the cursor in stable order,
// wrapping around. An unset or vanished cursor yields the first candidate.
func pickRoundRobin(stable []*model.Technician, rot Rotation) *model.Technician {
	if rot.LastTechnicianID == "" {
		return stable[0]
	}
	for i, tech := range stable {
		if tech.ID == rot.LastTechnicianID {
			return stable[(i+1)%len(stable)]
		}
	}
	return stable[0]
}

// Schedule applies the rule's auto-schedule flags to an assigned work order,
// returning the scheduled copy. Without auto_schedule it returns the input
// unchanged; scheduling is a distinct lifecycle step from assignment.
func Schedule(wo model.WorkOrder, rule *model.AssignmentRule, now time.Time) model.WorkOrder {
	if rule == nil || !rule.AutoSchedule {
		return wo
	}
	if !wo.Status.CanTransition(model.StatusScheduled) {
		return wo
	}
	start := now.Add(time.Duration(rule.ScheduleOffsetHours) * time.Hour)
	end := start.Add(time.Duration(wo.EstimatedDurationMin) * time.Minute)
	wo.ScheduledStart = &start
	wo.ScheduledEnd = &end
	wo.Status = model.StatusScheduled
	return wo
}
