package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"fieldops/internal/model"
)

// Config is the full dispatcher configuration. Values come from an optional
// YAML file with DISPATCH_* environment variables layered on top.
type Config struct {
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	LogLevel   string `yaml:"log_level" env:"LOG_LEVEL"`
	OrgID      string `yaml:"org_id" env:"ORG_ID"`

	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`

	// External routing service; empty URL means haversine only.
	RoutingURL        string        `yaml:"routing_url" env:"ROUTING_URL"`
	RoutingTimeout    time.Duration `yaml:"routing_timeout" env:"ROUTING_TIMEOUT"`
	RoutingRatePerSec float64       `yaml:"routing_rate_per_sec" env:"ROUTING_RATE_PER_SEC"`

	// Telemetry websocket; empty disables the feed.
	TelemetryURL string `yaml:"telemetry_url" env:"TELEMETRY_URL"`

	Assignment Assignment `yaml:"assignment" envPrefix:"ASSIGNMENT_"`
	Routing    Routing    `yaml:"routing" envPrefix:"ROUTING_"`
}

// Assignment configures rule defaults and the scorer.
type Assignment struct {
	Logic               model.AssignmentLogic `yaml:"logic" env:"LOGIC"`
	AutoAssign          bool                  `yaml:"auto_assign" env:"AUTO_ASSIGN"`
	AutoSchedule        bool                  `yaml:"auto_schedule" env:"AUTO_SCHEDULE"`
	ScheduleOffsetHours int                   `yaml:"schedule_offset_hours" env:"SCHEDULE_OFFSET_HOURS"`
	RequiredSkills      model.SkillSet        `yaml:"required_skills" env:"REQUIRED_SKILLS"`

	SkillWeight       float64 `yaml:"skill_weight" env:"SKILL_WEIGHT"`
	AvailableBonus    float64 `yaml:"available_bonus" env:"AVAILABLE_BONUS"`
	BusyBonus         float64 `yaml:"busy_bonus" env:"BUSY_BONUS"`
	WorkloadCap       float64 `yaml:"workload_cap" env:"WORKLOAD_CAP"`
	ProximityCapMiles float64 `yaml:"proximity_cap_miles" env:"PROXIMITY_CAP_MILES"`
}

// DefaultRule renders the assignment settings as a wildcard rule: it matches
// every ticket and sits at the lowest priority, so configured rules always
// win and the configured defaults apply only when nothing else matched.
// ID and OrgID are left for the caller to fill.
func (a Assignment) DefaultRule() model.AssignmentRule {
	return model.AssignmentRule{
		Name:                "default",
		Priority:            0,
		Active:              true,
		AssignmentLogic:     a.Logic,
		RequiredSkills:      a.RequiredSkills,
		AutoAssign:          a.AutoAssign,
		AutoSchedule:        a.AutoSchedule,
		ScheduleOffsetHours: a.ScheduleOffsetHours,
	}
}

// Routing configures the route optimizer.
type Routing struct {
	Solver            string  `yaml:"solver" env:"SOLVER"`
	TimeBudgetSeconds int     `yaml:"time_budget_seconds" env:"TIME_BUDGET_SECONDS"`
	MetersPerMinute   float64 `yaml:"meters_per_minute" env:"METERS_PER_MINUTE"`
	LongLegMeters     float64 `yaml:"long_leg_meters" env:"LONG_LEG_METERS"`
}

// Default returns the configuration used when neither file nor environment
// say otherwise.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		OrgID:      "default",
		Assignment: Assignment{
			Logic:             model.LogicNearest,
			AutoAssign:        true,
			SkillWeight:       50,
			AvailableBonus:    20,
			BusyBonus:         10,
			WorkloadCap:       20,
			ProximityCapMiles: 20,
		},
		Routing: Routing{
			Solver:            "annealing",
			TimeBudgetSeconds: 30,
			MetersPerMinute:   100,
			LongLegMeters:     10000,
		},
		RoutingTimeout:    5 * time.Second,
		RoutingRatePerSec: 10,
	}
}

// Load builds the configuration: defaults, then the YAML file when path is
// non-empty, then DISPATCH_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "DISPATCH_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
