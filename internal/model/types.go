package model

import "time"

// Coordinate is a WGS84 latitude/longitude pair. A nil *Coordinate means the
// location is unknown; distance and scoring degrade gracefully in that case.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Skill is an opaque capability tag such as "hvac" or "electrical".
type Skill string

// SkillSet is an unordered collection of skills. Kept as a slice so snapshots
// marshal deterministically; membership checks are linear, sets are tiny.
type SkillSet []Skill

func (s SkillSet) Contains(want Skill) bool {
	for _, sk := range s {
		if sk == want {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every skill in want is present in s.
func (s SkillSet) ContainsAll(want SkillSet) bool {
	for _, sk := range want {
		if !s.Contains(sk) {
			return false
		}
	}
	return true
}

// Overlap counts skills present in both sets.
func (s SkillSet) Overlap(other SkillSet) int {
	n := 0
	for _, sk := range other {
		if s.Contains(sk) {
			n++
		}
	}
	return n
}

// AvailabilityStatus describes whether a technician can take new work.
type AvailabilityStatus string

const (
	TechAvailable AvailabilityStatus = "available"
	TechOnJob     AvailabilityStatus = "on_job"
	TechOffDuty   AvailabilityStatus = "off_duty"
	TechOnBreak   AvailabilityStatus = "break"
)

// Technician is a read-only snapshot of a mobile worker for one planning pass.
// ActiveJobs is derived from current assignments by the caller, never stored.
type Technician struct {
	ID            string             `json:"id" validate:"required"`
	Name          string             `json:"name,omitempty"`
	Location      *Coordinate        `json:"location"`
	Skills        SkillSet           `json:"skills,omitempty"`
	Availability  AvailabilityStatus `json:"availability" validate:"oneof=available on_job off_duty break"`
	MaxJobsPerDay int                `json:"maxJobsPerDay" validate:"gt=0"`
	ActiveJobs    int                `json:"activeJobs"`
}

// Priority orders work by urgency: low < medium < high < urgent.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank maps a priority onto an integer usable for sorting. Unknown values
// rank below low so malformed input never outranks real work.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

// AssignmentLogic selects how the assignment engine picks a technician.
type AssignmentLogic string

const (
	LogicNearest    AssignmentLogic = "nearest"
	LogicSkillMatch AssignmentLogic = "skill_match"
	LogicWorkload   AssignmentLogic = "workload"
	LogicRoundRobin AssignmentLogic = "round_robin"
)

// Ticket is the inbound helpdesk record evaluated against assignment rules.
type Ticket struct {
	ID           string      `json:"id" validate:"required"`
	OrgID        string      `json:"orgId" validate:"required"`
	Subject      string      `json:"subject,omitempty"`
	Category     string      `json:"category,omitempty"`
	Priority     Priority    `json:"priority,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
	CustomerType string      `json:"customerType,omitempty"`
	Location     *Coordinate `json:"location,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// AssignmentRule maps ticket conditions onto a work-order template. Empty
// condition lists are wildcards. Rules are evaluated highest priority first,
// ties broken by name ascending; the first full match wins.
type AssignmentRule struct {
	ID       string `json:"id" validate:"required"`
	OrgID    string `json:"orgId" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Priority int    `json:"priority"`
	Active   bool   `json:"active"`

	// Conditions; empty list matches anything.
	TicketCategories []string   `json:"ticketCategories,omitempty"`
	TicketPriorities []Priority `json:"ticketPriorities,omitempty"`
	TicketTags       []string   `json:"ticketTags,omitempty"`
	CustomerTypes    []string   `json:"customerTypes,omitempty"`

	// Work-order template.
	WorkOrderType      string   `json:"workOrderType,omitempty"`
	WorkOrderPriority  Priority `json:"workOrderPriority,omitempty"`
	DefaultDurationMin int      `json:"defaultDurationMin,omitempty"`

	// Dispatch behavior.
	AssignmentLogic     AssignmentLogic `json:"assignmentLogic,omitempty"`
	RequiredSkills      SkillSet        `json:"requiredSkills,omitempty"`
	AutoAssign          bool            `json:"autoAssign"`
	AutoSchedule        bool            `json:"autoSchedule"`
	ScheduleOffsetHours int             `json:"scheduleOffsetHours"`

	// Forwarded to the external notifier; never acted on here.
	NotifyCustomer   bool `json:"notifyCustomer"`
	NotifyTechnician bool `json:"notifyTechnician"`
}

// Assignment links one technician to one work order.
type Assignment struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"orgId"`
	WorkOrderID  string    `json:"workOrderId"`
	TechnicianID string    `json:"technicianId"`
	CreatedAt    time.Time `json:"createdAt"`
}
