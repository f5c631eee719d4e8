// Package rules decides whether and how an incoming ticket becomes a work
// order, by evaluating the organization's configured assignment rules.
package rules

import (
	"sort"

	"github.com/rs/zerolog"

	"fieldops/internal/model"
)

// FindMatchingRule evaluates active rules highest priority first, ties broken
// by name ascending, and returns the first rule whose conditions all match.
// This is first-match-wins, not best-match. A nil return means the ticket
// produces no work order, which is informational, not an error.
func FindMatchingRule(ticket *model.Ticket, rules []*model.AssignmentRule, log zerolog.Logger) *model.AssignmentRule {
	ordered := make([]*model.AssignmentRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})
	for _, r := range ordered {
		if matches(ticket, r) {
			return r
		}
	}
	log.Info().Str("ticket", ticket.ID).Int("rules", len(ordered)).Msg("no rule matched ticket")
	return nil
}

// matches checks every condition list; an empty list is a wildcard.
func matches(t *model.Ticket, r *model.AssignmentRule) bool {
	if len(r.TicketCategories) > 0 && !containsString(r.TicketCategories, t.Category) {
		return false
	}
	if len(r.TicketPriorities) > 0 && !containsPriority(r.TicketPriorities, t.Priority) {
		return false
	}
	if len(r.CustomerTypes) > 0 && !containsString(r.CustomerTypes, t.CustomerType) {
		return false
	}
	if len(r.TicketTags) > 0 && !anyTagMatch(r.TicketTags, t.Tags) {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsPriority(list []model.Priority, v model.Priority) bool {
	for _, p := range list {
		if p == v {
			return true
		}
	}
	return false
}

// anyTagMatch is satisfied when the ticket carries at least one of the
// rule's tags.
func anyTagMatch(want []string, have []string) bool {
	for _, tag := range have {
		if containsString(want, tag) {
			return true
		}
	}
	return false
}
