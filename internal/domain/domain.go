package domain

import (
	"time"

	"turnline/internal/money"
)

type Campaign struct {
	ID              string      `json:"id" yaml:"id"`
	Name            string      `json:"name" yaml:"name"`
	Date            time.Time   `json:"date" yaml:"date"`
	UnitRating      UnitRating  `json:"unit_rating" yaml:"unit_rating"`
	Fatigue         *int        `json:"fatigue,omitempty" yaml:"fatigue,omitempty"`
	Pirate          bool        `json:"pirate,omitempty" yaml:"pirate,omitempty"`
	CommanderID     string      `json:"commander_id,omitempty" yaml:"commander_id,omitempty"`
	NetWorth        money.Money `json:"net_worth" yaml:"net_worth"`
	LargeCraftValue money.Money `json:"large_craft_value" yaml:"large_craft_value"`
	CreatedAt       string      `json:"created_at" yaml:"-" format:"date-time"`
}

type Contract struct {
	ID         string         `json:"id" yaml:"id"`
	CampaignID string         `json:"campaign_id" yaml:"-"`
	Name       string         `json:"name" yaml:"name"`
	Status     ContractStatus `json:"status" yaml:"status" enum:"active,success,partial,failed,breach"`
	SharePct   int            `json:"share_pct" yaml:"share_pct"`
}

// IsActive reports whether the contract is still running.
func (c Contract) IsActive() bool { return c.Status == ContractActive }

type Person struct {
	ID                string         `json:"id" yaml:"id"`
	CampaignID        string         `json:"campaign_id" yaml:"-"`
	Name              string         `json:"name" yaml:"name"`
	Status            PersonStatus   `json:"status" yaml:"status"`
	PrimaryRole       Role           `json:"primary_role" yaml:"primary_role"`
	SecondaryRole     Role           `json:"secondary_role,omitempty" yaml:"secondary_role,omitempty"`
	Experience        Experience     `json:"experience" yaml:"experience"`
	Officer           bool           `json:"officer,omitempty" yaml:"officer,omitempty"`
	TacticalGenius    bool           `json:"tactical_genius,omitempty" yaml:"tactical_genius,omitempty"`
	BirthDate         time.Time      `json:"birth_date" yaml:"birth_date"`
	PermanentInjuries int            `json:"permanent_injuries,omitempty" yaml:"permanent_injuries,omitempty"`
	PriorWeightClass  *WeightClass   `json:"prior_weight_class,omitempty" yaml:"prior_weight_class,omitempty"`
	Origin            Origin         `json:"origin" yaml:"origin"`
	MonthlySalary     money.Money    `json:"monthly_salary" yaml:"monthly_salary"`
	Shares            int            `json:"shares,omitempty" yaml:"shares,omitempty"`
	Deployed          bool           `json:"deployed,omitempty" yaml:"deployed,omitempty"`
	Prisoner          PrisonerStatus `json:"prisoner_status,omitempty" yaml:"prisoner_status,omitempty"`
	Founder           bool           `json:"founder,omitempty" yaml:"founder,omitempty"`
	UnitID            string         `json:"unit_id,omitempty" yaml:"unit_id,omitempty"`
	UnitCommander     bool           `json:"unit_commander,omitempty" yaml:"unit_commander,omitempty"`
	Leadership        *int           `json:"leadership,omitempty" yaml:"leadership,omitempty"`
}

// Origin carries the faction traits of a person's background.
type Origin struct {
	Faction   string `json:"faction,omitempty" yaml:"faction,omitempty"`
	Pirate    bool   `json:"pirate,omitempty" yaml:"pirate,omitempty"`
	Mercenary bool   `json:"mercenary,omitempty" yaml:"mercenary,omitempty"`
	Clan      bool   `json:"clan,omitempty" yaml:"clan,omitempty"`
}

// Age returns the person's age in whole years on the given date, or -1 when
// the birth date is unknown or after the date.
func (p Person) Age(on time.Time) int {
	if p.BirthDate.IsZero() || on.Before(p.BirthDate) {
		return -1
	}
	age := on.Year() - p.BirthDate.Year()
	if on.Month() < p.BirthDate.Month() || (on.Month() == p.BirthDate.Month() && on.Day() < p.BirthDate.Day()) {
		age--
	}
	return age
}

func (p Person) IsActive() bool {
	return p.Status == "" || p.Status == StatusActive
}

// IsFree reports whether the person is neither a prisoner nor a bondsman.
func (p Person) IsFree() bool {
	return p.Prisoner == "" || p.Prisoner == PrisonerFree
}

// HasRole reports whether the primary or secondary role satisfies fn.
func (p Person) HasRole(fn func(Role) bool) bool {
	return fn(p.PrimaryRole) || fn(p.SecondaryRole)
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Transaction is a finance ledger row. Negative amounts are debits.
type Transaction struct {
	ID          string      `json:"id"`
	CampaignID  string      `json:"campaign_id"`
	Date        string      `json:"date"`
	Amount      money.Money `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	CreatedAt   string      `json:"created_at" format:"date-time"`
}
