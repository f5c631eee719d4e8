package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/model"
)

// Memory is the in-memory store used in tests and when no DATABASE_URL is
// configured. All methods return copies so callers can never alias internal
// state.
type Memory struct {
	mu          sync.Mutex
	workOrders  map[string]model.WorkOrder     // id -> work order
	byTicket    map[string]string              // orgID|ticketID -> work order id
	technicians map[string][]model.Technician  // orgID -> technicians
	assignments map[string][]model.Assignment  // orgID -> assignments
	routes      map[string][]model.Route       // orgID -> routes
	rules       map[string][]model.AssignmentRule
	rotation    map[string]string // orgID -> last assigned technician id
}

func NewMemory() *Memory {
	return &Memory{
		workOrders:  map[string]model.WorkOrder{},
		byTicket:    map[string]string{},
		technicians: map[string][]model.Technician{},
		assignments: map[string][]model.Assignment{},
		routes:      map[string][]model.Route{},
		rules:       map[string][]model.AssignmentRule{},
		rotation:    map[string]string{},
	}
}

func ticketKey(orgID, ticketID string) string { return orgID + "|" + ticketID }

func (m *Memory) CreateWorkOrder(_ context.Context, wo *model.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workOrders[wo.ID] = *wo
	if wo.SourceTicketID != "" {
		m.byTicket[ticketKey(wo.OrgID, wo.SourceTicketID)] = wo.ID
	}
	return nil
}

func (m *Memory) GetWorkOrder(_ context.Context, orgID, id string) (*model.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wo, ok := m.workOrders[id]
	if !ok || wo.OrgID != orgID {
		return nil, ErrNotFound
	}
	cp := wo
	return &cp, nil
}

func (m *Memory) UpdateWorkOrder(_ context.Context, wo *model.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workOrders[wo.ID]; !ok {
		return ErrNotFound
	}
	m.workOrders[wo.ID] = *wo
	return nil
}

func (m *Memory) GetWorkOrderByTicket(_ context.Context, orgID, ticketID string) (*model.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byTicket[ticketKey(orgID, ticketID)]
	if !ok {
		return nil, nil
	}
	wo := m.workOrders[id]
	cp := wo
	return &cp, nil
}

func (m *Memory) ListWorkOrdersForDate(_ context.Context, orgID, date string, status model.WorkOrderStatus) ([]*model.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.WorkOrder{}
	for _, wo := range m.workOrders {
		if wo.OrgID != orgID {
			continue
		}
		if status != "" && wo.Status != status {
			continue
		}
		if date != "" {
			if wo.ScheduledStart == nil || wo.ScheduledStart.UTC().Format("2006-01-02") != date {
				continue
			}
		}
		cp := wo
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpsertTechnician(_ context.Context, orgID string, tech *model.Technician) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.technicians[orgID]
	for i := range list {
		if list[i].ID == tech.ID {
			list[i] = *tech
			return nil
		}
	}
	m.technicians[orgID] = append(list, *tech)
	return nil
}

func (m *Memory) ListAvailableTechnicians(_ context.Context, orgID string) ([]*model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Technician{}
	for _, tech := range m.technicians[orgID] {
		if tech.Availability != model.TechAvailable {
			continue
		}
		cp := tech
		cp.ActiveJobs = m.activeCountLocked(orgID, tech.ID)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateTechnicianTelemetry(_ context.Context, orgID, id string, loc *model.Coordinate, availability model.AvailabilityStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.technicians[orgID]
	for i := range list {
		if list[i].ID == id {
			if loc != nil {
				cp := *loc
				list[i].Location = &cp
			}
			if availability != "" {
				list[i].Availability = availability
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CreateAssignment(_ context.Context, a *model.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.OrgID] = append(m.assignments[a.OrgID], *a)
	return nil
}

func (m *Memory) ReplaceAssignments(_ context.Context, wo *model.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range wo.AssignedTechnicianIDs {
		want[id] = true
	}
	kept := make([]model.Assignment, 0, len(m.assignments[wo.OrgID]))
	for _, a := range m.assignments[wo.OrgID] {
		if a.WorkOrderID != wo.ID {
			kept = append(kept, a)
			continue
		}
		// Records for technicians still on the order survive unchanged.
		if want[a.TechnicianID] {
			kept = append(kept, a)
			delete(want, a.TechnicianID)
		}
	}
	for _, id := range wo.AssignedTechnicianIDs {
		if want[id] {
			kept = append(kept, model.Assignment{
				ID:           uuid.New().String(),
				OrgID:        wo.OrgID,
				WorkOrderID:  wo.ID,
				TechnicianID: id,
				CreatedAt:    time.Now().UTC(),
			})
		}
	}
	m.assignments[wo.OrgID] = kept
	return nil
}

func (m *Memory) CountActiveAssignments(_ context.Context, orgID, technicianID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCountLocked(orgID, technicianID), nil
}

func (m *Memory) activeCountLocked(orgID, technicianID string) int {
	n := 0
	for _, a := range m.assignments[orgID] {
		if a.TechnicianID != technicianID {
			continue
		}
		if wo, ok := m.workOrders[a.WorkOrderID]; ok && activeStatuses[wo.Status] {
			n++
		}
	}
	return n
}

func (m *Memory) SaveRoute(_ context.Context, r *model.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.routes[r.OrgID]
	for i := range list {
		// A re-optimization fully replaces the route for that technician/day.
		if list[i].TechnicianID == r.TechnicianID && list[i].Date == r.Date {
			list[i] = *r
			return nil
		}
	}
	m.routes[r.OrgID] = append(list, *r)
	return nil
}

func (m *Memory) ListRoutes(_ context.Context, orgID, fromDate, toDate string) ([]*model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Route{}
	for _, r := range m.routes[orgID] {
		if fromDate != "" && r.Date < fromDate {
			continue
		}
		if toDate != "" && r.Date > toDate {
			continue
		}
		cp := r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].TechnicianID < out[j].TechnicianID
	})
	return out, nil
}

func (m *Memory) SaveRule(_ context.Context, r *model.AssignmentRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.rules[r.OrgID]
	for i := range list {
		if list[i].ID == r.ID {
			list[i] = *r
			return nil
		}
	}
	m.rules[r.OrgID] = append(list, *r)
	return nil
}

func (m *Memory) ListActiveRules(_ context.Context, orgID string) ([]*model.AssignmentRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.AssignmentRule{}
	for _, r := range m.rules[orgID] {
		if !r.Active {
			continue
		}
		cp := r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetRotation(_ context.Context, orgID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotation[orgID], nil
}

func (m *Memory) SaveRotation(_ context.Context, orgID, technicianID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotation[orgID] = technicianID
	return nil
}
