package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"turnline/internal/domain"
	"turnline/internal/money"
)

// Config models turnline.yml.
type Config struct {
	Campaign struct {
		ID string `yaml:"id" json:"id"`
	} `yaml:"campaign" json:"campaign"`
	Options Options     `yaml:"options" json:"options"`
	Targets TargetTable `yaml:"targets" json:"targets"`
	Payouts PayoutTable `yaml:"payouts" json:"payouts"`
}

// Options are the campaign-wide switches consulted by the turnover engine.
type Options struct {
	UseShareSystem             bool      `yaml:"use_share_system" json:"use_share_system"`
	SharesExcludeLargeCraft    bool      `yaml:"shares_exclude_large_craft" json:"shares_exclude_large_craft"`
	UseLeadershipModifier      bool      `yaml:"use_leadership_modifier" json:"use_leadership_modifier"`
	UseRandomFounderRetirement bool      `yaml:"use_random_founder_retirement" json:"use_random_founder_retirement"`
	ReviewInterval             string    `yaml:"review_interval" json:"review_interval" enum:"never,monthly,quarterly,yearly"`
	RollOnContractEnd          bool      `yaml:"roll_on_contract_end" json:"roll_on_contract_end"`
	Modifiers                  Modifiers `yaml:"modifiers" json:"modifiers"`
}

// Modifiers toggles each target number modifier independently.
type Modifiers struct {
	Skill      bool `yaml:"skill" json:"skill"`
	UnitRating bool `yaml:"unit_rating" json:"unit_rating"`
	Contract   bool `yaml:"contract" json:"contract"`
	Fatigue    bool `yaml:"fatigue" json:"fatigue"`
	Faction    bool `yaml:"faction" json:"faction"`
	Officer    bool `yaml:"officer" json:"officer"`
	Age        bool `yaml:"age" json:"age"`
	Shares     bool `yaml:"shares" json:"shares"`
	Role       bool `yaml:"role" json:"role"`
	Injuries   bool `yaml:"injuries" json:"injuries"`
}

// TargetTable holds the values of the target number modifiers.
type TargetTable struct {
	Base               int           `yaml:"base" json:"base"`
	NeutralRating      int           `yaml:"neutral_rating" json:"neutral_rating"`
	ContractFailed     int           `yaml:"contract_failed" json:"contract_failed"`
	ContractBreach     int           `yaml:"contract_breach" json:"contract_breach"`
	FatigueThreshold   int           `yaml:"fatigue_threshold" json:"fatigue_threshold"`
	FatigueDivisor     int           `yaml:"fatigue_divisor" json:"fatigue_divisor"`
	PirateOrganization int           `yaml:"pirate_organization" json:"pirate_organization"`
	PirateOrigin       int           `yaml:"pirate_origin" json:"pirate_origin"`
	MercenaryOrigin    int           `yaml:"mercenary_origin" json:"mercenary_origin"`
	ClanOrigin         int           `yaml:"clan_origin" json:"clan_origin"`
	Officer            int           `yaml:"officer" json:"officer"`
	TacticalGenius     int           `yaml:"tactical_genius" json:"tactical_genius"`
	AgeBands           []AgeBand     `yaml:"age_bands" json:"age_bands"`
	SharePctDivisor    int           `yaml:"share_pct_divisor" json:"share_pct_divisor"`
	CombatRoles        []domain.Role `yaml:"combat_roles" json:"combat_roles"`
	CombatRole         int           `yaml:"combat_role" json:"combat_role"`
	PermanentInjury    int           `yaml:"permanent_injury" json:"permanent_injury"`
	Leadership         Leadership    `yaml:"leadership" json:"leadership"`
}

// AgeBand applies Modifier to persons aged MinAge or older, up to the next band.
type AgeBand struct {
	MinAge   int `yaml:"min_age" json:"min_age"`
	Modifier int `yaml:"modifier" json:"modifier"`
}

// Leadership sizes the headcount a commander can keep content.
type Leadership struct {
	BaseCapacity       int `yaml:"base_capacity" json:"base_capacity"`
	PerSkillLevel      int `yaml:"per_skill_level" json:"per_skill_level"`
	SupportMultiplier  int `yaml:"support_multiplier" json:"support_multiplier"`
	ModifierPerOverrun int `yaml:"modifier_per_overrun" json:"modifier_per_overrun"`
}

// PayoutTable holds the compensation constants.
type PayoutTable struct {
	SalaryMonths         int64       `yaml:"salary_months" json:"salary_months"`
	InfantryCompensation money.Money `yaml:"infantry_compensation" json:"infantry_compensation"`
	StolenUnitRoll       int         `yaml:"stolen_unit_roll" json:"stolen_unit_roll"`
	WeightDownAtOrBelow  int         `yaml:"weight_down_at_or_below" json:"weight_down_at_or_below"`
	WeightUpAtOrAbove    int         `yaml:"weight_up_at_or_above" json:"weight_up_at_or_above"`
}

var reviewIntervals = map[string]bool{"": true, "never": true, "monthly": true, "quarterly": true, "yearly": true}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with tl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Campaign.ID == "" {
		return fmt.Errorf("config.campaign.id is required")
	}
	if !reviewIntervals[c.Options.ReviewInterval] {
		return fmt.Errorf("config.options.review_interval %q is invalid", c.Options.ReviewInterval)
	}
	t := c.Targets
	if t.FatigueDivisor <= 0 {
		return fmt.Errorf("config.targets.fatigue_divisor must be positive")
	}
	if t.SharePctDivisor <= 0 {
		return fmt.Errorf("config.targets.share_pct_divisor must be positive")
	}
	if t.NeutralRating < int(domain.RatingF) || t.NeutralRating > int(domain.RatingAStar) {
		return fmt.Errorf("config.targets.neutral_rating must be between %d and %d", domain.RatingF, domain.RatingAStar)
	}
	if !sort.SliceIsSorted(t.AgeBands, func(i, j int) bool { return t.AgeBands[i].MinAge < t.AgeBands[j].MinAge }) {
		return fmt.Errorf("config.targets.age_bands must be ordered by min_age")
	}
	for i := 1; i < len(t.AgeBands); i++ {
		if t.AgeBands[i].MinAge == t.AgeBands[i-1].MinAge {
			return fmt.Errorf("age band %d duplicated", t.AgeBands[i].MinAge)
		}
		if t.AgeBands[i].Modifier < t.AgeBands[i-1].Modifier {
			return fmt.Errorf("age band %d lowers the modifier; bands must not decrease", t.AgeBands[i].MinAge)
		}
	}
	for _, role := range t.CombatRoles {
		if role.IsNone() || !role.Valid() {
			return fmt.Errorf("config.targets.combat_roles has unknown role %q", role)
		}
	}
	l := t.Leadership
	if l.BaseCapacity < 0 || l.PerSkillLevel < 0 {
		return fmt.Errorf("config.targets.leadership capacities must not be negative")
	}
	if l.SupportMultiplier <= 0 {
		return fmt.Errorf("config.targets.leadership.support_multiplier must be positive")
	}
	p := c.Payouts
	if p.SalaryMonths < 0 {
		return fmt.Errorf("config.payouts.salary_months must not be negative")
	}
	if p.InfantryCompensation.IsNegative() {
		return fmt.Errorf("config.payouts.infantry_compensation must not be negative")
	}
	if p.WeightDownAtOrBelow >= p.WeightUpAtOrAbove {
		return fmt.Errorf("config.payouts weight drift thresholds overlap")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "turnline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(campaignID string) string {
	return fmt.Sprintf(defaultTemplate, campaignID)
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

// Default returns the default Config struct for a campaign.
func Default(campaignID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(campaignID))).Decode(&cfg)
	cfg.Campaign.ID = campaignID
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

// ToYAML renders the config for storage.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `campaign:
  id: %s

options:
  use_share_system: false
  shares_exclude_large_craft: true
  use_leadership_modifier: true
  use_random_founder_retirement: false
  review_interval: yearly
  roll_on_contract_end: true
  modifiers:
    skill: true
    unit_rating: true
    contract: true
    fatigue: true
    faction: true
    officer: true
    age: true
    shares: true
    role: true
    injuries: true

targets:
  base: 3
  # F=0 D=1 C=2 B=3 A=4 A*=5; ratings above neutral lower the target
  neutral_rating: 2
  contract_failed: 1
  contract_breach: 2
  fatigue_threshold: 10 # applies once fatigue exceeds this
  fatigue_divisor: 10
  pirate_organization: 1
  pirate_origin: 1
  mercenary_origin: 1
  clan_origin: -2
  officer: -1
  tactical_genius: -1
  age_bands:
    - {min_age: 50, modifier: 1}
    - {min_age: 65, modifier: 2}
    - {min_age: 75, modifier: 3}
    - {min_age: 85, modifier: 4}
    - {min_age: 95, modifier: 5}
    - {min_age: 105, modifier: 6}
  share_pct_divisor: 10
  combat_roles: [mekwarrior, aerospace_pilot]
  combat_role: -1
  permanent_injury: 1
  leadership:
    base_capacity: 12
    per_skill_level: 6
    support_multiplier: 2
    modifier_per_overrun: 1

payouts:
  salary_months: 24
  infantry_compensation: "50000"
  stolen_unit_roll: 6
  weight_down_at_or_below: 1
  weight_up_at_or_above: 5
`
