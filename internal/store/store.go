package store

import (
	"context"
	"errors"

	"fieldops/internal/model"
)

// Store is the persistence boundary of the dispatch core. Implementations
// only hold state; all status transitions and route contents are computed by
// the callers and written through as-is.
type Store interface {
	// Work orders. GetWorkOrderByTicket returns (nil, nil) when the ticket
	// has not produced a work order yet.
	CreateWorkOrder(ctx context.Context, wo *model.WorkOrder) error
	GetWorkOrder(ctx context.Context, orgID, id string) (*model.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, wo *model.WorkOrder) error
	GetWorkOrderByTicket(ctx context.Context, orgID, ticketID string) (*model.WorkOrder, error)
	ListWorkOrdersForDate(ctx context.Context, orgID, date string, status model.WorkOrderStatus) ([]*model.WorkOrder, error)

	// Technicians. ListAvailableTechnicians fills ActiveJobs from current
	// assignments; the count is derived, never stored.
	UpsertTechnician(ctx context.Context, orgID string, tech *model.Technician) error
	ListAvailableTechnicians(ctx context.Context, orgID string) ([]*model.Technician, error)
	UpdateTechnicianTelemetry(ctx context.Context, orgID, id string, loc *model.Coordinate, availability model.AvailabilityStatus) error

	// Assignments. ReplaceAssignments reconciles the records for one work
	// order with its current technician list: one record per assigned
	// technician, records for removed technicians dropped. Derived workload
	// counts read this table, so every path that rewrites a work order's
	// technician list must reconcile through it.
	CreateAssignment(ctx context.Context, a *model.Assignment) error
	ReplaceAssignments(ctx context.Context, wo *model.WorkOrder) error
	CountActiveAssignments(ctx context.Context, orgID, technicianID string) (int, error)

	// Routes.
	SaveRoute(ctx context.Context, r *model.Route) error
	ListRoutes(ctx context.Context, orgID, fromDate, toDate string) ([]*model.Route, error)

	// Assignment rules.
	SaveRule(ctx context.Context, r *model.AssignmentRule) error
	ListActiveRules(ctx context.Context, orgID string) ([]*model.AssignmentRule, error)

	// Round-robin rotation cursor, one per organization. Empty string means
	// no assignment has been made yet.
	GetRotation(ctx context.Context, orgID string) (string, error)
	SaveRotation(ctx context.Context, orgID, technicianID string) error
}

var ErrNotFound = errors.New("not found")

// activeStatuses are the work-order states that count toward a technician's
// current load.
var activeStatuses = map[model.WorkOrderStatus]bool{
	model.StatusAssigned:   true,
	model.StatusScheduled:  true,
	model.StatusInProgress: true,
}
