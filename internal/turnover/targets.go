// Package turnover computes turnover target numbers, rolls them and prices
// the payouts owed to the persons who leave.
package turnover

import (
	"log/slog"
	"sort"

	"turnline/internal/config"
	"turnline/internal/domain"
)

// Snapshot is the campaign state a turnover pass reads. The calculators never
// look anything up beyond it.
type Snapshot struct {
	Campaign  domain.Campaign
	Roster    []domain.Person
	Contracts []domain.Contract
}

// Person returns the roster entry with the given id.
func (s Snapshot) Person(id string) (domain.Person, bool) {
	for _, p := range s.Roster {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Person{}, false
}

// Contract returns the contract with the given id.
func (s Snapshot) Contract(id string) (domain.Contract, bool) {
	for _, c := range s.Contracts {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Contract{}, false
}

// Calculator folds the configured modifier table into per-person target
// numbers.
type Calculator struct {
	Config *config.Config
	Logger *slog.Logger
}

func (c Calculator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Eligible returns the persons of the roster that take part in a turnover
// roll, sorted by id.
func (c Calculator) Eligible(s Snapshot) []domain.Person {
	var out []domain.Person
	for _, p := range s.Roster {
		if Eligibility(p, c.Config.Options.UseRandomFounderRetirement) == Eligible {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TargetNumbers computes the target of every eligible person. contract is the
// contract whose conclusion triggered the pass, or nil for a periodic review.
func (c Calculator) TargetNumbers(s Snapshot, contract *domain.Contract) map[string]TargetRoll {
	pass := c.newPass(s, contract)
	out := map[string]TargetRoll{}
	for _, p := range c.Eligible(s) {
		out[p.ID] = pass.target(p)
	}
	return out
}

// pass holds the campaign-wide inputs shared by every person of one pass.
type pass struct {
	cfg      *config.Config
	log      *slog.Logger
	campaign domain.Campaign
	contract *domain.Contract
	sharePct int
	// leadership modifier per category, zero when within capacity
	combatOverrun  int
	supportOverrun int
}

func (c Calculator) newPass(s Snapshot, contract *domain.Contract) *pass {
	ps := &pass{cfg: c.Config, log: c.logger(), campaign: s.Campaign, contract: contract}
	if contract != nil {
		ps.sharePct = contract.SharePct
	} else {
		for _, k := range s.Contracts {
			if k.IsActive() && k.SharePct > ps.sharePct {
				ps.sharePct = k.SharePct
			}
		}
	}
	if c.Config.Options.UseLeadershipModifier {
		ps.combatOverrun, ps.supportOverrun = c.leadershipOverrun(s)
	}
	return ps
}

// leadershipOverrun sizes the headcount the commander can keep content and
// returns the modifier for combat and support personnel.
func (c Calculator) leadershipOverrun(s Snapshot) (combat, support int) {
	if s.Campaign.CommanderID == "" {
		return 0, 0
	}
	commander, ok := s.Person(s.Campaign.CommanderID)
	if !ok {
		c.logger().Warn("commander not on roster; leadership modifier skipped",
			"campaign_id", s.Campaign.ID, "commander_id", s.Campaign.CommanderID)
		return 0, 0
	}
	skill := 0
	if commander.Leadership != nil {
		skill = *commander.Leadership
	} else {
		c.logger().Warn("commander has no leadership skill; using 0",
			"campaign_id", s.Campaign.ID, "commander_id", commander.ID)
	}
	l := c.Config.Targets.Leadership
	capacity := l.BaseCapacity + l.PerSkillLevel*skill
	var combatCount, supportCount int
	for _, p := range s.Roster {
		if !p.IsActive() || !p.IsFree() {
			continue
		}
		switch {
		case p.PrimaryRole.IsCombat():
			combatCount++
		case p.PrimaryRole.IsSupport():
			supportCount++
		}
	}
	combat = overrunTiers(combatCount, capacity) * l.ModifierPerOverrun
	support = overrunTiers(supportCount, capacity*l.SupportMultiplier) * l.ModifierPerOverrun
	return combat, support
}

func overrunTiers(count, capacity int) int {
	switch {
	case count > 2*capacity:
		return 2
	case count > capacity:
		return 1
	}
	return 0
}

func (ps *pass) target(p domain.Person) TargetRoll {
	t := ps.cfg.Targets
	mods := ps.cfg.Options.Modifiers
	roll := TargetRoll{Base: t.Base}

	if mods.Skill {
		if p.Experience.Valid() {
			roll.add(int(p.Experience), p.Experience.String())
		} else {
			ps.log.Warn("unknown experience level; skill modifier 0", "person_id", p.ID, "experience", int(p.Experience))
		}
	}
	if mods.UnitRating {
		if ps.campaign.UnitRating.Valid() {
			roll.add(t.NeutralRating-int(ps.campaign.UnitRating), "Unit rating "+ps.campaign.UnitRating.String())
		} else {
			ps.log.Warn("unknown unit rating; rating modifier 0", "campaign_id", ps.campaign.ID, "rating", int(ps.campaign.UnitRating))
		}
	}
	if mods.Contract && ps.contract != nil {
		switch ps.contract.Status {
		case domain.ContractFailed:
			roll.add(t.ContractFailed, "Mission failure")
		case domain.ContractBreach:
			roll.add(t.ContractBreach, "Contract breach")
		}
	}
	if mods.Fatigue && ps.campaign.Fatigue != nil && *ps.campaign.Fatigue > t.FatigueThreshold {
		roll.add(*ps.campaign.Fatigue/t.FatigueDivisor, "Fatigue")
	}
	if mods.Faction {
		switch {
		case ps.campaign.Pirate:
			roll.add(t.PirateOrganization, "Pirate company")
		case p.Origin.Pirate:
			roll.add(t.PirateOrigin, "Pirate origin")
		}
		if p.Origin.Mercenary {
			roll.add(t.MercenaryOrigin, "Mercenary origin")
		}
		if p.Origin.Clan {
			roll.add(t.ClanOrigin, "Clan origin")
		}
	}
	if mods.Officer {
		switch {
		case p.Officer:
			roll.add(t.Officer, "Officer")
		case p.TacticalGenius:
			roll.add(t.TacticalGenius, "Non-officer tactical genius")
		}
	}
	if mods.Age {
		roll.add(ps.ageModifier(p), "Age")
	}
	if mods.Shares && ps.cfg.Options.UseShareSystem && ps.sharePct > 0 {
		roll.add(-(ps.sharePct / t.SharePctDivisor), "Shares")
	}
	if mods.Role {
		for _, role := range t.CombatRoles {
			if p.PrimaryRole == role {
				roll.add(t.CombatRole, "Combat role")
				break
			}
		}
	}
	if mods.Injuries && p.PermanentInjuries > 0 {
		roll.add(p.PermanentInjuries*t.PermanentInjury, "Permanent injuries")
	}
	switch {
	case p.PrimaryRole.IsCombat():
		roll.add(ps.combatOverrun, "Leadership (combat)")
	case p.PrimaryRole.IsSupport():
		roll.add(ps.supportOverrun, "Leadership (support)")
	}
	return roll
}

// ageModifier returns the modifier of the highest band the person has
// reached.
func (ps *pass) ageModifier(p domain.Person) int {
	age := p.Age(ps.campaign.Date)
	if age < 0 {
		ps.log.Warn("unknown age; age modifier 0", "person_id", p.ID)
		return 0
	}
	return AgeModifier(ps.cfg.Targets.AgeBands, age)
}

// AgeModifier returns the modifier of the last band whose minimum age is at
// most age. Bands must be ordered by MinAge.
func AgeModifier(bands []config.AgeBand, age int) int {
	mod := 0
	for _, b := range bands {
		if age < b.MinAge {
			break
		}
		mod = b.Modifier
	}
	return mod
}
