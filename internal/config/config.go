package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ServiceConfig locates one collaborator model service.
type ServiceConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// PlannerConfig tunes the object-search planner.
type PlannerConfig struct {
	Strategy string `json:"strategy"` // "basic" or "coverage"
	// Viewpoints selected per room before the sweep is cut off.
	DefaultBudget int            `json:"default_budget"`
	RoomBudgets   map[string]int `json:"room_budgets"`
	// A viewpoint covers another within this planar distance.
	DefaultCoverageRadius float64            `json:"default_coverage_radius"`
	RoomCoverageRadius    map[string]float64 `json:"room_coverage_radius"`
}

// RulesConfig locates the feedback rule set.
type RulesConfig struct {
	Path          string `json:"path"`
	DefaultRuleID int    `json:"default_rule_id"`
	// How many recently used rule ids to remember per session.
	RecentWindow int `json:"recent_window"`
}

type Config struct {
	Server struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Subpath   string `json:"subpath"`
		JWTSecret string `json:"jwtSecret"`
	} `json:"server"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	Services struct {
		FeatureExtractor       ServiceConfig `json:"feature_extractor"`
		NLU                    ServiceConfig `json:"nlu"`
		ActionGenerator        ServiceConfig `json:"action_generator"`
		VisualGrounding        ServiceConfig `json:"visual_grounding"`
		Profanity              ServiceConfig `json:"profanity"`
		OutOfDomain            ServiceConfig `json:"out_of_domain"`
		ConfirmationClassifier ServiceConfig `json:"confirmation_classifier"`
		InstructionSplitter    ServiceConfig `json:"instruction_splitter"`
	} `json:"services"`
	Planner PlannerConfig `json:"planner"`
	Rules   RulesConfig   `json:"rules"`
	Speech  struct {
		MinASRConfidence float64  `json:"min_asr_confidence"`
		WakeWords        []string `json:"wake_words"`
	} `json:"speech"`
	History struct {
		// Turns of history whose cached features feed action generation.
		Window int `json:"window"`
	} `json:"history"`
}

// LoadConfig reads and validates the JSON config file. The result is passed
// down explicitly; nothing in this package holds it.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("invalid config format: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn must be set in config")
	}
	if c.Services.NLU.URL == "" || c.Services.ActionGenerator.URL == "" || c.Services.FeatureExtractor.URL == "" {
		return errors.New("feature_extractor, nlu and action_generator service URLs must be set")
	}
	if c.Planner.Strategy != "" && c.Planner.Strategy != "basic" && c.Planner.Strategy != "coverage" {
		return fmt.Errorf("unknown planner strategy %q", c.Planner.Strategy)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Planner.Strategy == "" {
		c.Planner.Strategy = "coverage"
	}
	if c.Planner.DefaultBudget <= 0 {
		c.Planner.DefaultBudget = 4
	}
	if c.Planner.DefaultCoverageRadius <= 0 {
		c.Planner.DefaultCoverageRadius = 3.0
	}
	if c.Rules.RecentWindow <= 0 {
		c.Rules.RecentWindow = 8
	}
	if c.Speech.MinASRConfidence <= 0 {
		c.Speech.MinASRConfidence = 0.55
	}
	if c.History.Window <= 0 {
		c.History.Window = 4
	}
}

// Budget returns the viewpoint budget for a room.
func (p PlannerConfig) Budget(room string) int {
	if b, ok := p.RoomBudgets[room]; ok && b > 0 {
		return b
	}
	return p.DefaultBudget
}

// CoverageRadius returns the covers-distance threshold for a room.
func (p PlannerConfig) CoverageRadius(room string) float64 {
	if r, ok := p.RoomCoverageRadius[room]; ok && r > 0 {
		return r
	}
	return p.DefaultCoverageRadius
}

// Timeout returns the configured call timeout in seconds, defaulted.
func (s ServiceConfig) Timeout() int {
	if s.TimeoutSeconds <= 0 {
		return 10
	}
	return s.TimeoutSeconds
}
