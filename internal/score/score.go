// Package score ranks technicians against a work order. Scores are additive
// and only comparable within one matching pass; there is no fixed range.
package score

import (
	"context"
	"sort"

	"fieldops/internal/geo"
	"fieldops/internal/model"
)

// Weights holds the tunable term weights. Values come from configuration;
// the reference defaults mirror the point bonuses operators are used to.
type Weights struct {
	Skill             float64 `yaml:"skill" json:"skill"`
	AvailableBonus    float64 `yaml:"available_bonus" json:"availableBonus"`
	BusyBonus         float64 `yaml:"busy_bonus" json:"busyBonus"`
	WorkloadCap       float64 `yaml:"workload_cap" json:"workloadCap"`
	ProximityCapMiles float64 `yaml:"proximity_cap_miles" json:"proximityCapMiles"`
}

func DefaultWeights() Weights {
	return Weights{
		Skill:             50,
		AvailableBonus:    20,
		BusyBonus:         10,
		WorkloadCap:       20,
		ProximityCapMiles: 20,
	}
}

type Scorer struct {
	weights  Weights
	distance geo.Provider
}

func NewScorer(w Weights, distance geo.Provider) *Scorer {
	return &Scorer{weights: w, distance: distance}
}

// Score composes four additive terms. Each term degrades to its neutral value
// when its input is missing; scoring never fails.
func (s *Scorer) Score(ctx context.Context, wo *model.WorkOrder, tech *model.Technician) float64 {
	total := s.skillTerm(wo, tech)

	switch tech.Availability {
	case model.TechAvailable:
		total += s.weights.AvailableBonus
	case model.TechOnJob:
		total += s.weights.BusyBonus
	}

	if load := s.weights.WorkloadCap - float64(tech.ActiveJobs); load > 0 {
		total += load
	}

	if wo.Location != nil && tech.Location != nil {
		if d := s.distance.Distance(ctx, tech.Location, wo.Location); d < geo.UnknownDistance {
			if prox := s.weights.ProximityCapMiles - d/geo.MetersPerMile; prox > 0 {
				total += prox
			}
		}
	}
	return total
}

// skillTerm is the fraction of required skills the technician holds, scaled
// by the skill weight. No requirements means fully satisfied.
func (s *Scorer) skillTerm(wo *model.WorkOrder, tech *model.Technician) float64 {
	if len(wo.RequiredSkills) == 0 {
		return s.weights.Skill
	}
	matched := tech.Skills.Overlap(wo.RequiredSkills)
	return s.weights.Skill * float64(matched) / float64(len(wo.RequiredSkills))
}

// Scored pairs a technician with its score for one work order.
type Scored struct {
	Technician *model.Technician
	Score      float64
}

// Rank scores every candidate and sorts best first. Equal scores break by
// technician ID ascending so repeated runs produce identical output.
func (s *Scorer) Rank(ctx context.Context, wo *model.WorkOrder, candidates []*model.Technician) []Scored {
	out := make([]Scored, 0, len(candidates))
	for _, tech := range candidates {
		out = append(out, Scored{Technician: tech, Score: s.Score(ctx, wo, tech)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Technician.ID < out[j].Technician.ID
	})
	return out
}
