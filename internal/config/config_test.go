package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("camp-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Campaign.ID != "camp-1" {
		t.Fatalf("campaign id = %q", cfg.Campaign.ID)
	}
	if cfg.Targets.Base != 3 || len(cfg.Targets.AgeBands) != 6 {
		t.Fatalf("unexpected target table: %+v", cfg.Targets)
	}
	if cfg.Payouts.InfantryCompensation.String() != "50000.00" || cfg.Payouts.SalaryMonths != 24 {
		t.Fatalf("unexpected payout table: %+v", cfg.Payouts)
	}
	if !cfg.Options.Modifiers.Age || cfg.Options.UseShareSystem {
		t.Fatalf("unexpected options: %+v", cfg.Options)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default("camp-rt")
	data, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	back, err := FromYAML(data)
	if err != nil {
		t.Fatalf("from yaml: %v\n%s", err, data)
	}
	if back.Payouts.InfantryCompensation.String() != "50000.00" {
		t.Fatalf("infantry compensation lost: %s", back.Payouts.InfantryCompensation)
	}
	if back.Targets.Leadership != cfg.Targets.Leadership {
		t.Fatalf("leadership lost: %+v", back.Targets.Leadership)
	}
}

func TestValidateRejects(t *testing.T) {
	tcs := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing id", func(c *Config) { c.Campaign.ID = "" }, "campaign.id"},
		{"bad interval", func(c *Config) { c.Options.ReviewInterval = "weekly" }, "review_interval"},
		{"zero fatigue divisor", func(c *Config) { c.Targets.FatigueDivisor = 0 }, "fatigue_divisor"},
		{"unordered bands", func(c *Config) {
			c.Targets.AgeBands = []AgeBand{{MinAge: 65, Modifier: 2}, {MinAge: 50, Modifier: 1}}
		}, "ordered"},
		{"decreasing bands", func(c *Config) {
			c.Targets.AgeBands = []AgeBand{{MinAge: 50, Modifier: 2}, {MinAge: 65, Modifier: 1}}
		}, "must not decrease"},
		{"unknown role", func(c *Config) { c.Targets.CombatRoles = append(c.Targets.CombatRoles, "pilot") }, "unknown role"},
		{"overlapping drift", func(c *Config) { c.Payouts.WeightDownAtOrBelow = 5 }, "overlap"},
		{"neutral rating", func(c *Config) { c.Targets.NeutralRating = 9 }, "neutral_rating"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("camp")
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("LoadOptional on empty dir = %v, %v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Load on empty dir error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "turnline.yml"), []byte(GenerateDefault("from-file")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Campaign.ID != "from-file" {
		t.Fatalf("campaign id = %q", cfg.Campaign.ID)
	}
}

func TestFromYAMLInvalid(t *testing.T) {
	if _, err := FromYAML([]byte("campaign: [")); err == nil || !strings.Contains(err.Error(), "invalid config yaml") {
		t.Fatalf("expected yaml error, got %v", err)
	}
}
