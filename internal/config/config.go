package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models boardflow.yml.
type Config struct {
	Board struct {
		ID string `yaml:"id"`
	} `yaml:"board"`
	Docket struct {
		// Annual intake and decision rates for the direct review docket,
		// used to compute the pacesetting proportion.
		NonpriorityReceiptsPerYear  int     `yaml:"nonpriority_receipts_per_year"`
		NonpriorityDecisionsPerYear int     `yaml:"nonpriority_decisions_per_year"`
		DaysToDecisionGoal          int     `yaml:"days_to_decision_goal"`
		DaysBeforeGoalDue           int     `yaml:"days_before_goal_due"`
		MaximumDirectReview         float64 `yaml:"maximum_direct_review_proportion"`
		MinimumLegacy               float64 `yaml:"minimum_legacy_proportion"`
		InterpolatedAdjustment      float64 `yaml:"interpolated_minimum_adjustment"`
		CasesPerAttorney            int     `yaml:"cases_per_attorney"`
	} `yaml:"docket"`
	Hearings struct {
		NoShowHoldDays         int `yaml:"no_show_hold_days"`
		TravelBoardPaddingDays int `yaml:"travel_board_padding_days"`
	} `yaml:"hearings"`
	Organizations map[string]OrgConfig `yaml:"organizations"`
	Webhooks      []WebhookConfig      `yaml:"webhooks,omitempty"`
}

// WebhookConfig declares an outbound event delivery target.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// OrgConfig declares a named organization and its assignable membership.
type OrgConfig struct {
	Label       string   `yaml:"label"`
	Members     []string `yaml:"members"`
	Admins      []string `yaml:"admins"`
	Distributor bool     `yaml:"distributor"`
}

// Well-known organization names resolved from the registry at startup.
const (
	OrgBva                = "bva"
	OrgHearingsManagement = "hearings_management"
	OrgTranscription      = "transcription"
	OrgMail               = "mail"
	OrgColocated          = "colocated"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with bf config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Board.ID == "" {
		return fmt.Errorf("config.board.id is required")
	}
	if c.Docket.NonpriorityDecisionsPerYear <= 0 {
		return fmt.Errorf("config.docket.nonpriority_decisions_per_year must be positive")
	}
	if c.Docket.NonpriorityReceiptsPerYear < 0 {
		return fmt.Errorf("config.docket.nonpriority_receipts_per_year must not be negative")
	}
	if c.Docket.DaysToDecisionGoal <= 0 {
		return fmt.Errorf("config.docket.days_to_decision_goal must be positive")
	}
	if c.Docket.DaysBeforeGoalDue < 0 || c.Docket.DaysBeforeGoalDue >= c.Docket.DaysToDecisionGoal {
		return fmt.Errorf("config.docket.days_before_goal_due must be in [0, days_to_decision_goal)")
	}
	if c.Docket.MaximumDirectReview <= 0 || c.Docket.MaximumDirectReview > 1 {
		return fmt.Errorf("config.docket.maximum_direct_review_proportion must be in (0,1]")
	}
	if c.Docket.MinimumLegacy < 0 || c.Docket.MinimumLegacy > 1 {
		return fmt.Errorf("config.docket.minimum_legacy_proportion must be in [0,1]")
	}
	if c.Docket.InterpolatedAdjustment <= 0 || c.Docket.InterpolatedAdjustment > 1 {
		return fmt.Errorf("config.docket.interpolated_minimum_adjustment must be in (0,1]")
	}
	if c.Docket.CasesPerAttorney <= 0 {
		return fmt.Errorf("config.docket.cases_per_attorney must be positive")
	}
	if c.Hearings.NoShowHoldDays <= 0 {
		return fmt.Errorf("config.hearings.no_show_hold_days must be positive")
	}
	if c.Hearings.TravelBoardPaddingDays < 0 {
		return fmt.Errorf("config.hearings.travel_board_padding_days must not be negative")
	}
	for _, name := range []string{OrgBva, OrgHearingsManagement, OrgTranscription, OrgMail, OrgColocated} {
		if _, ok := c.Organizations[name]; !ok {
			return fmt.Errorf("config.organizations must include %s", name)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	for name, org := range c.Organizations {
		if name == "" {
			return fmt.Errorf("config.organizations contains empty name")
		}
		members := map[string]bool{}
		for _, m := range org.Members {
			if m == "" {
				return fmt.Errorf("organization %s has empty member handle", name)
			}
			members[m] = true
		}
		for _, a := range org.Admins {
			if !members[a] {
				return fmt.Errorf("organization %s admin %s is not a member", name, a)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "boardflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(boardID string) string {
	return fmt.Sprintf(defaultTemplate, boardID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a board.
func Default(boardID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, boardID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `board:
  id: %s

docket:
  nonpriority_receipts_per_year: 100
  nonpriority_decisions_per_year: 1000
  days_to_decision_goal: 365
  days_before_goal_due: 30
  maximum_direct_review_proportion: 0.8
  minimum_legacy_proportion: 0.1
  interpolated_minimum_adjustment: 0.67
  cases_per_attorney: 3

hearings:
  no_show_hold_days: 25
  travel_board_padding_days: 3

organizations:
  bva:
    label: "Board of Veterans' Appeals"
  hearings_management:
    label: "Hearings Management"
  transcription:
    label: "Transcription"
  mail:
    label: "Mail"
  colocated:
    label: "Colocated"
    distributor: true
`
