package model

import "time"

// WorkOrderStatus is the work-order lifecycle state.
type WorkOrderStatus string

const (
	StatusDraft      WorkOrderStatus = "draft"
	StatusAssigned   WorkOrderStatus = "assigned"
	StatusScheduled  WorkOrderStatus = "scheduled"
	StatusInProgress WorkOrderStatus = "in_progress"
	StatusCompleted  WorkOrderStatus = "completed"
	StatusCancelled  WorkOrderStatus = "cancelled"
	StatusOnHold     WorkOrderStatus = "on_hold"
)

// Terminal reports whether no further transitions are allowed.
func (s WorkOrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// forward transitions of the lifecycle; cancelled and on_hold are reachable
// from any non-terminal state and handled in CanTransition directly.
var forwardTransitions = map[WorkOrderStatus]WorkOrderStatus{
	StatusDraft:      StatusAssigned,
	StatusAssigned:   StatusScheduled,
	StatusScheduled:  StatusInProgress,
	StatusInProgress: StatusCompleted,
	StatusOnHold:     StatusScheduled,
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step: draft -> assigned -> scheduled -> in_progress -> completed, with
// cancelled and on_hold reachable from any non-terminal state.
func (s WorkOrderStatus) CanTransition(next WorkOrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled || next == StatusOnHold {
		return true
	}
	return forwardTransitions[s] == next
}

// WorkOrder is one unit of field work. The assignment engine owns status and
// the technician list; the route optimizer owns SequenceIndex only.
type WorkOrder struct {
	ID                    string          `json:"id" validate:"required"`
	OrgID                 string          `json:"orgId" validate:"required"`
	Title                 string          `json:"title,omitempty"`
	Type                  string          `json:"type,omitempty"`
	Location              *Coordinate     `json:"location"`
	RequiredSkills        SkillSet        `json:"requiredSkills,omitempty"`
	Priority              Priority        `json:"priority,omitempty"`
	Status                WorkOrderStatus `json:"status"`
	ScheduledStart        *time.Time      `json:"scheduledStart,omitempty"`
	ScheduledEnd          *time.Time      `json:"scheduledEnd,omitempty"`
	EstimatedDurationMin  int             `json:"estimatedDurationMin" validate:"gt=0"`
	AssignedTechnicianIDs []string        `json:"assignedTechnicianIds,omitempty"`
	SequenceIndex         int             `json:"sequenceIndex"`
	SourceTicketID        string          `json:"sourceTicketId,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
}

// PrimaryTechnicianID returns the head of the assigned list, the technician
// the route is planned for. Empty when unassigned.
func (w *WorkOrder) PrimaryTechnicianID() string {
	if len(w.AssignedTechnicianIDs) == 0 {
		return ""
	}
	return w.AssignedTechnicianIDs[0]
}

// RouteStatus is the lifecycle state of a planned route.
type RouteStatus string

const (
	RoutePlanned    RouteStatus = "planned"
	RouteInProgress RouteStatus = "in_progress"
	RouteCompleted  RouteStatus = "completed"
	RouteCancelled  RouteStatus = "cancelled"
)

// Route is an ordered visiting sequence for one technician on one day.
// Created fresh per optimization; only Status changes afterwards.
type Route struct {
	ID             string      `json:"id"`
	OrgID          string      `json:"orgId"`
	TechnicianID   string      `json:"technicianId"`
	Date           string      `json:"date"` // YYYY-MM-DD
	WorkOrderIDs   []string    `json:"workOrderIds"`
	TotalDistanceM float64     `json:"totalDistanceM"`
	TotalDuration  float64     `json:"totalDurationMin"`
	Status         RouteStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
}
