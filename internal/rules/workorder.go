package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/model"
)

// WorkOrderStore is the slice of persistence the rule matcher needs.
// GetWorkOrderByTicket returns (nil, nil) when no work order exists yet.
type WorkOrderStore interface {
	GetWorkOrderByTicket(ctx context.Context, orgID, ticketID string) (*model.WorkOrder, error)
	CreateWorkOrder(ctx context.Context, wo *model.WorkOrder) error
}

// CreateWorkOrderFromTicket builds a draft work order from the rule's
// template and links the source ticket. The operation is idempotent per
// ticket: an existing work order is returned as-is with created=false, so a
// ticket can never produce two work orders.
func CreateWorkOrderFromTicket(ctx context.Context, s WorkOrderStore, ticket *model.Ticket, rule *model.AssignmentRule) (*model.WorkOrder, bool, error) {
	existing, err := s.GetWorkOrderByTicket(ctx, ticket.OrgID, ticket.ID)
	if err != nil {
		return nil, false, fmt.Errorf("lookup work order for ticket %s: %w", ticket.ID, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	priority := rule.WorkOrderPriority
	if priority == "" {
		priority = ticket.Priority
	}
	if priority == "" {
		priority = model.PriorityMedium
	}
	duration := rule.DefaultDurationMin
	if duration <= 0 {
		duration = 60
	}

	wo := &model.WorkOrder{
		ID:                   uuid.New().String(),
		OrgID:                ticket.OrgID,
		Title:                ticket.Subject,
		Type:                 rule.WorkOrderType,
		Location:             ticket.Location,
		RequiredSkills:       rule.RequiredSkills,
		Priority:             priority,
		Status:               model.StatusDraft,
		EstimatedDurationMin: duration,
		SourceTicketID:       ticket.ID,
		CreatedAt:            time.Now().UTC(),
	}
	if err := s.CreateWorkOrder(ctx, wo); err != nil {
		return nil, false, fmt.Errorf("create work order from ticket %s: %w", ticket.ID, err)
	}
	return wo, true, nil
}
