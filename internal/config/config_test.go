package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default("board-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Board.ID != "board-1" {
		t.Fatalf("board id not applied")
	}
	if cfg.Docket.DaysToDecisionGoal != 365 {
		t.Fatalf("unexpected decision goal %d", cfg.Docket.DaysToDecisionGoal)
	}
	if !cfg.Organizations[OrgColocated].Distributor {
		t.Fatalf("colocated org should be a distributor")
	}
}

func TestGenerateDefaultRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boardflow.yml")
	if err := os.WriteFile(path, []byte(GenerateDefault("board-2")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Board.ID != "board-2" {
		t.Fatalf("unexpected board id %s", cfg.Board.ID)
	}
	if cfg.Hearings.NoShowHoldDays != 25 {
		t.Fatalf("unexpected no-show hold %d", cfg.Hearings.NoShowHoldDays)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "bf config init") {
		t.Fatalf("expected the init hint, got %v", err)
	}
	cfg, err := LoadOptional(t.TempDir())
	if err != nil || cfg != nil {
		t.Fatalf("optional load should return nil,nil, got %v,%v", cfg, err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name  string
		mutate func(*Config)
		want  string
	}{
		{"missing board id", func(c *Config) { c.Board.ID = "" }, "board.id"},
		{"zero decisions", func(c *Config) { c.Docket.NonpriorityDecisionsPerYear = 0 }, "decisions_per_year"},
		{"due window past goal", func(c *Config) { c.Docket.DaysBeforeGoalDue = 400 }, "days_before_goal_due"},
		{"oversized maximum", func(c *Config) { c.Docket.MaximumDirectReview = 1.5 }, "maximum_direct_review"},
		{"zero hold", func(c *Config) { c.Hearings.NoShowHoldDays = 0 }, "no_show_hold_days"},
		{"missing org", func(c *Config) { delete(c.Organizations, OrgMail) }, "organizations"},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookConfig{{Secret: "s"}} }, "webhooks[0].url"},
		{"admin not member", func(c *Config) {
			org := c.Organizations[OrgBva]
			org.Admins = []string{"ghost"}
			c.Organizations[OrgBva] = org
		}, "is not a member"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("board-1")
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}
