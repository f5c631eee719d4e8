package store

import (
	"context"
	"testing"
	"time"

	"fieldops/internal/model"
)

func TestMemoryWorkOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	wo := &model.WorkOrder{
		ID:                   "wo-1",
		OrgID:                "org-1",
		Status:               model.StatusDraft,
		EstimatedDurationMin: 45,
		SourceTicketID:       "tick-1",
		CreatedAt:            time.Now().UTC(),
	}
	if err := m.CreateWorkOrder(ctx, wo); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := m.GetWorkOrder(ctx, "org-1", "wo-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EstimatedDurationMin != 45 {
		t.Fatalf("duration = %d, want 45", got.EstimatedDurationMin)
	}

	// Mutating the returned copy must not touch stored state.
	got.Status = model.StatusCancelled
	again, _ := m.GetWorkOrder(ctx, "org-1", "wo-1")
	if again.Status != model.StatusDraft {
		t.Fatalf("stored status changed through returned copy")
	}

	if _, err := m.GetWorkOrder(ctx, "other-org", "wo-1"); err != ErrNotFound {
		t.Fatalf("cross-org get err = %v, want ErrNotFound", err)
	}

	byTicket, err := m.GetWorkOrderByTicket(ctx, "org-1", "tick-1")
	if err != nil || byTicket == nil || byTicket.ID != "wo-1" {
		t.Fatalf("by ticket = %v, %v", byTicket, err)
	}
	missing, err := m.GetWorkOrderByTicket(ctx, "org-1", "no-such-ticket")
	if err != nil || missing != nil {
		t.Fatalf("missing ticket should be (nil, nil), got %v, %v", missing, err)
	}

	wo.Status = model.StatusAssigned
	if err := m.UpdateWorkOrder(ctx, wo); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := m.UpdateWorkOrder(ctx, &model.WorkOrder{ID: "ghost", OrgID: "org-1"}); err != ErrNotFound {
		t.Fatalf("update missing err = %v, want ErrNotFound", err)
	}
}

func TestMemoryListWorkOrdersForDate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	other := day.AddDate(0, 0, 1)

	for _, wo := range []*model.WorkOrder{
		{ID: "wo-b", OrgID: "org-1", Status: model.StatusAssigned, ScheduledStart: &day},
		{ID: "wo-a", OrgID: "org-1", Status: model.StatusAssigned, ScheduledStart: &day},
		{ID: "wo-c", OrgID: "org-1", Status: model.StatusAssigned, ScheduledStart: &other},
		{ID: "wo-d", OrgID: "org-1", Status: model.StatusDraft, ScheduledStart: &day},
		{ID: "wo-e", OrgID: "org-1", Status: model.StatusAssigned}, // unscheduled
	} {
		if err := m.CreateWorkOrder(ctx, wo); err != nil {
			t.Fatalf("create %s: %v", wo.ID, err)
		}
	}

	got, err := m.ListWorkOrdersForDate(ctx, "org-1", "2026-03-14", model.StatusAssigned)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "wo-a" || got[1].ID != "wo-b" {
		t.Fatalf("unexpected list result: %+v", got)
	}
}

func TestMemoryTechniciansAndActiveLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, tech := range []*model.Technician{
		{ID: "t-2", Name: "Row", Availability: model.TechAvailable, MaxJobsPerDay: 8},
		{ID: "t-1", Name: "Kim", Availability: model.TechAvailable, MaxJobsPerDay: 8},
		{ID: "t-3", Name: "Off", Availability: model.TechOffDuty, MaxJobsPerDay: 8},
	} {
		if err := m.UpsertTechnician(ctx, "org-1", tech); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	// Two assignments for t-1, one of them against a completed order.
	for i, st := range []model.WorkOrderStatus{model.StatusAssigned, model.StatusCompleted} {
		wo := &model.WorkOrder{ID: "wo-" + string(rune('a'+i)), OrgID: "org-1", Status: st}
		if err := m.CreateWorkOrder(ctx, wo); err != nil {
			t.Fatalf("create: %v", err)
		}
		a := &model.Assignment{ID: "as-" + wo.ID, OrgID: "org-1", WorkOrderID: wo.ID, TechnicianID: "t-1"}
		if err := m.CreateAssignment(ctx, a); err != nil {
			t.Fatalf("assign: %v", err)
		}
	}

	techs, err := m.ListAvailableTechnicians(ctx, "org-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(techs) != 2 || techs[0].ID != "t-1" || techs[1].ID != "t-2" {
		t.Fatalf("unexpected technicians: %+v", techs)
	}
	if techs[0].ActiveJobs != 1 {
		t.Fatalf("t-1 active jobs = %d, want 1 (completed order excluded)", techs[0].ActiveJobs)
	}

	n, err := m.CountActiveAssignments(ctx, "org-1", "t-1")
	if err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}

	loc := &model.Coordinate{Lat: 40.0, Lng: -74.0}
	if err := m.UpdateTechnicianTelemetry(ctx, "org-1", "t-3", loc, model.TechAvailable); err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	techs, _ = m.ListAvailableTechnicians(ctx, "org-1")
	if len(techs) != 3 {
		t.Fatalf("t-3 should be available after telemetry update")
	}
	if err := m.UpdateTechnicianTelemetry(ctx, "org-1", "ghost", nil, ""); err != ErrNotFound {
		t.Fatalf("telemetry for unknown tech err = %v, want ErrNotFound", err)
	}
}

func TestMemoryReplaceAssignments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	wo := &model.WorkOrder{ID: "wo-1", OrgID: "org-1", Status: model.StatusScheduled, AssignedTechnicianIDs: []string{"t-1"}}
	if err := m.CreateWorkOrder(ctx, wo); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.ReplaceAssignments(ctx, wo); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if n, _ := m.CountActiveAssignments(ctx, "org-1", "t-1"); n != 1 {
		t.Fatalf("t-1 count = %d, want 1", n)
	}

	// Reconciling twice does not stack records.
	if err := m.ReplaceAssignments(ctx, wo); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	if n, _ := m.CountActiveAssignments(ctx, "org-1", "t-1"); n != 1 {
		t.Fatalf("t-1 count after repeat = %d, want 1", n)
	}

	// Moving the order to another technician drops the stale record.
	wo.AssignedTechnicianIDs = []string{"t-2"}
	if err := m.UpdateWorkOrder(ctx, wo); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := m.ReplaceAssignments(ctx, wo); err != nil {
		t.Fatalf("replace after move: %v", err)
	}
	if n, _ := m.CountActiveAssignments(ctx, "org-1", "t-1"); n != 0 {
		t.Fatalf("t-1 count after move = %d, want 0", n)
	}
	if n, _ := m.CountActiveAssignments(ctx, "org-1", "t-2"); n != 1 {
		t.Fatalf("t-2 count after move = %d, want 1", n)
	}
}

func TestMemoryRoutesReplacePerTechnicianDay(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first := &model.Route{ID: "r-1", OrgID: "org-1", TechnicianID: "t-1", Date: "2026-03-14", WorkOrderIDs: []string{"wo-1"}, Status: model.RoutePlanned}
	if err := m.SaveRoute(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	replacement := &model.Route{ID: "r-2", OrgID: "org-1", TechnicianID: "t-1", Date: "2026-03-14", WorkOrderIDs: []string{"wo-2", "wo-1"}, Status: model.RoutePlanned}
	if err := m.SaveRoute(ctx, replacement); err != nil {
		t.Fatalf("save replacement: %v", err)
	}
	other := &model.Route{ID: "r-3", OrgID: "org-1", TechnicianID: "t-1", Date: "2026-03-15", Status: model.RoutePlanned}
	if err := m.SaveRoute(ctx, other); err != nil {
		t.Fatalf("save other day: %v", err)
	}

	got, err := m.ListRoutes(ctx, "org-1", "", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r-2" || got[1].ID != "r-3" {
		t.Fatalf("unexpected routes: %+v", got)
	}

	ranged, _ := m.ListRoutes(ctx, "org-1", "2026-03-15", "2026-03-15")
	if len(ranged) != 1 || ranged[0].ID != "r-3" {
		t.Fatalf("date range filter broken: %+v", ranged)
	}
}

func TestMemoryRulesAndRotation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.SaveRule(ctx, &model.AssignmentRule{ID: "rule-1", OrgID: "org-1", Name: "hvac", Active: true}); err != nil {
		t.Fatalf("save rule: %v", err)
	}
	if err := m.SaveRule(ctx, &model.AssignmentRule{ID: "rule-2", OrgID: "org-1", Name: "retired", Active: false}); err != nil {
		t.Fatalf("save rule: %v", err)
	}
	rules, err := m.ListActiveRules(ctx, "org-1")
	if err != nil || len(rules) != 1 || rules[0].ID != "rule-1" {
		t.Fatalf("active rules = %+v, %v", rules, err)
	}

	cur, err := m.GetRotation(ctx, "org-1")
	if err != nil || cur != "" {
		t.Fatalf("fresh rotation = %q, %v", cur, err)
	}
	if err := m.SaveRotation(ctx, "org-1", "t-7"); err != nil {
		t.Fatalf("save rotation: %v", err)
	}
	cur, _ = m.GetRotation(ctx, "org-1")
	if cur != "t-7" {
		t.Fatalf("rotation = %q, want t-7", cur)
	}
}
